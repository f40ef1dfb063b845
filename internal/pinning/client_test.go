package pinning

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchReturnsGatewayBytes(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ipfs/QmTest" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	client, err := NewClient(Config{Gateway: srv.URL}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	data, err := client.Fetch(context.Background(), "QmTest")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client, _ := NewClient(Config{Gateway: srv.URL}, nil)
	_, err := client.Fetch(context.Background(), "QmMissing")

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Status != http.StatusNotFound || fetchErr.CID != "QmMissing" {
		t.Fatalf("unexpected error detail: %+v", fetchErr)
	}
}

func TestFetchEmptyCID(t *testing.T) {
	client, _ := NewClient(Config{Gateway: "http://gateway.invalid"}, nil)
	var fetchErr *FetchError
	if _, err := client.Fetch(context.Background(), " "); !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError for empty cid, got %v", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, _ := NewClient(Config{Gateway: srv.URL}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx, "QmSlow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("timeout should still be a FetchError, got %v", err)
	}
}

func TestPinParsesCID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-jwt" {
			t.Errorf("missing auth header")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"cid":"QmPinned"}}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Config{Gateway: srv.URL, JWT: "test-jwt", UploadURL: srv.URL}, nil)
	cid, err := client.Pin(context.Background(), "badge-1.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("pin: %v", err)
	}
	if cid != "QmPinned" {
		t.Fatalf("cid = %s, want QmPinned", cid)
	}
}

func TestPinLegacyResponseShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"IpfsHash":"QmLegacy","PinSize":42}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Config{Gateway: srv.URL, JWT: "jwt", UploadURL: srv.URL}, nil)
	cid, err := client.Pin(context.Background(), "badge.png", []byte("x"))
	if err != nil {
		t.Fatalf("pin: %v", err)
	}
	if cid != "QmLegacy" {
		t.Fatalf("cid = %s, want QmLegacy", cid)
	}
}

func TestPinWithoutJWT(t *testing.T) {
	client, _ := NewClient(Config{Gateway: "http://gateway.invalid"}, nil)
	var uploadErr *UploadError
	if _, err := client.Pin(context.Background(), "x.png", []byte("x")); !errors.As(err, &uploadErr) {
		t.Fatalf("expected UploadError, got %v", err)
	}
}
