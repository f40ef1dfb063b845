// Package httpapi exposes the badge operations over REST.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	app "github.com/saltoriousSIG/peeples-pins-generator/internal/app"
	flairdomain "github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/flair"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/metrics"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/services/badges"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/services/compositor"
	flairsvc "github.com/saltoriousSIG/peeples-pins-generator/internal/app/services/flair"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/services/generator"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/storage"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/pinning"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the badge REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/equip_flair", h.equipFlair)
	mux.HandleFunc("/unequip_flair", h.unequipFlair)
	mux.HandleFunc("/modify_pfp", h.modifyPFP)
	mux.HandleFunc("/generate_pfp/", h.generatePFP)
	mux.HandleFunc("/badges", h.badges)
	mux.HandleFunc("/badges/", h.badgeResource)
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (h *handler) equipFlair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		FID          string             `json:"fid"`
		TokenID      string             `json:"tokenId"`
		NewFlairID   string             `json:"newFlairId"`
		NewFlairCID  string             `json:"newFlairCid"`
		SlotIndex    int                `json:"slotIndex"`
		BaseImageCID string             `json:"baseImageCid"`
		CurrentFlair []flairdomain.Item `json:"currentFlair"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.app.Badges.EquipFlair(r.Context(), badges.EquipRequest{
		FID:          payload.FID,
		TokenID:      payload.TokenID,
		NewFlairID:   payload.NewFlairID,
		NewFlairCID:  payload.NewFlairCID,
		SlotIndex:    payload.SlotIndex,
		BaseImageCID: payload.BaseImageCID,
		CurrentFlair: payload.CurrentFlair,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) unequipFlair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		FID          string             `json:"fid"`
		TokenID      string             `json:"tokenId"`
		SlotIndex    int                `json:"slotIndex"`
		BaseImageCID string             `json:"baseImageCid"`
		CurrentFlair []flairdomain.Item `json:"currentFlair"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.app.Badges.UnequipFlair(r.Context(), badges.UnequipRequest{
		FID:          payload.FID,
		TokenID:      payload.TokenID,
		SlotIndex:    payload.SlotIndex,
		BaseImageCID: payload.BaseImageCID,
		CurrentFlair: payload.CurrentFlair,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// modifyPFP renders a preview composite without touching stored state and
// streams the PNG back.
func (h *handler) modifyPFP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		BaseCID   string   `json:"baseCid"`
		FlairCIDs []string `json:"flairCids"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := h.app.Badges.RenderByCID(r.Context(), payload.BaseCID, payload.FlairCIDs)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *handler) generatePFP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	fid := strings.Trim(strings.TrimPrefix(r.URL.Path, "/generate_pfp"), "/")
	if fid == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	res, err := h.app.Generator.Generate(r.Context(), fid, r.URL.Query().Get("tokenId"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) badges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	states, err := h.app.Badges.ListBadges(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *handler) badgeResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tokenID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/badges"), "/")
	if tokenID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	st, err := h.app.Badges.GetBadge(r.Context(), tokenID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var decodeErr *compositor.DecodeError
	var fetchErr *pinning.FetchError

	switch {
	case errors.Is(err, badges.ErrValidation),
		errors.Is(err, generator.ErrValidation),
		errors.Is(err, flairsvc.ErrSlotOutOfRange),
		errors.Is(err, flairsvc.ErrInvalidSet):
		return http.StatusBadRequest
	case errors.Is(err, flairsvc.ErrSlotOccupied),
		errors.Is(err, flairsvc.ErrSlotEmpty),
		errors.Is(err, storage.ErrVersionConflict),
		errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, badges.ErrFetchTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.Is(err, generator.ErrDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
