// Package pinning talks to the IPFS pinning provider: content fetches through
// the gateway and pin uploads through the upload API. No retries and no
// caching happen at this layer; callers own both policies.
package pinning

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/saltoriousSIG/peeples-pins-generator/pkg/logger"
)

// DefaultUploadURL is the pinning provider's file upload endpoint.
const DefaultUploadURL = "https://uploads.pinata.cloud/v3/files"

// FetchError reports a failed gateway fetch, carrying the content id and
// gateway for diagnostics.
type FetchError struct {
	CID     string
	Gateway string
	Status  int
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s from %s: status %d", e.CID, e.Gateway, e.Status)
	}
	return fmt.Sprintf("fetch %s from %s: %v", e.CID, e.Gateway, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// UploadError reports a failed pin upload.
type UploadError struct {
	Name   string
	Status int
	Err    error
}

func (e *UploadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("pin %s: status %d", e.Name, e.Status)
	}
	return fmt.Sprintf("pin %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Config configures the client.
type Config struct {
	// Gateway is the IPFS gateway base URL.
	Gateway string
	// JWT authenticates uploads. Empty disables Pin.
	JWT string
	// UploadURL overrides the pin upload endpoint.
	UploadURL string
	// Timeout bounds each request when the caller's context has no deadline.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client is the pinning provider client. Construct one at process startup and
// inject it wherever images are fetched or persisted.
type Client struct {
	httpClient *http.Client
	gateway    string
	jwt        string
	uploadURL  string
	log        *logger.Logger
}

// NewClient constructs a client from config.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	gateway := strings.TrimRight(strings.TrimSpace(cfg.Gateway), "/")
	if gateway == "" {
		return nil, fmt.Errorf("pinning gateway required")
	}
	if log == nil {
		log = logger.NewDefault("pinning")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		uploadURL = DefaultUploadURL
	}
	return &Client{
		httpClient: httpClient,
		gateway:    gateway,
		jwt:        cfg.JWT,
		uploadURL:  uploadURL,
		log:        log,
	}, nil
}

// GatewayURL returns the public gateway URL for a content id.
func (c *Client) GatewayURL(cid string) string {
	return c.gateway + "/ipfs/" + cid
}

// Fetch retrieves the raw bytes behind a content id. The bytes are returned
// undecoded; format validation belongs to the compositor.
func (c *Client) Fetch(ctx context.Context, cid string) ([]byte, error) {
	if strings.TrimSpace(cid) == "" {
		return nil, &FetchError{CID: cid, Gateway: c.gateway, Err: fmt.Errorf("empty content id")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.GatewayURL(cid), nil)
	if err != nil {
		return nil, &FetchError{CID: cid, Gateway: c.gateway, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{CID: cid, Gateway: c.gateway, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{CID: cid, Gateway: c.gateway, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{CID: cid, Gateway: c.gateway, Err: err}
	}
	c.log.Debugf("fetched %s (%d bytes)", cid, len(data))
	return data, nil
}

// FetchURL retrieves raw bytes from an arbitrary URL, for content that is
// not yet pinned (generated images hosted by the model provider).
func (c *Client) FetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Pin uploads data under name and returns the resulting content id.
func (c *Client) Pin(ctx context.Context, name string, data []byte) (string, error) {
	if c.jwt == "" {
		return "", &UploadError{Name: name, Err: fmt.Errorf("uploads disabled: no JWT configured")}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", &UploadError{Name: name, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return "", &UploadError{Name: name, Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &UploadError{Name: name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return "", &UploadError{Name: name, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.jwt)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UploadError{Name: name, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UploadError{Name: name, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UploadError{Name: name, Status: resp.StatusCode}
	}

	// v3 responses nest the cid under data; older pin endpoints return
	// IpfsHash at the top level.
	cid := gjson.GetBytes(respBody, "data.cid").String()
	if cid == "" {
		cid = gjson.GetBytes(respBody, "IpfsHash").String()
	}
	if cid == "" {
		return "", &UploadError{Name: name, Err: fmt.Errorf("no cid in upload response")}
	}
	c.log.Infof("pinned %s as %s", name, cid)
	return cid, nil
}
