// Package api exposes the thin HTTP surface over the delivery core.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/service"
)

const (
	defaultActivityLimit = 50
	maxBodyBytes         = 1 << 20
)

type APIHandler struct {
	messenger service.Messenger
	activity  service.ActivityReader
	logger    *slog.Logger
}

func NewAPIHandler(messenger service.Messenger, activity service.ActivityReader, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		messenger: messenger,
		activity:  activity,
		logger:    logger.With("component", "api"),
	}
}

// Routes mounts the API under the caller's router.
func (h *APIHandler) Routes(r chi.Router) {
	r.Post("/messages", h.SendMessage)
	r.Post("/devices/claim", h.ClaimDevice)
	r.Get("/devices/{deviceID}", h.GetDevice)
	r.Post("/devices/{deviceID}/test", h.TestPrint)
	r.Get("/activity", h.Activity)
}

func (h *APIHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req service.SendMessageRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	msg, err := h.messenger.SendMessage(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

type testPrintResponse struct {
	RequestID string `json:"request_id"`
	Result    string `json:"result"`
}

func (h *APIHandler) TestPrint(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	requestID, res, err := h.messenger.TestPrint(r.Context(), deviceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// [OFFLINE] Test prints are not persisted, so there is nothing to retry later.
	if res == model.Offline {
		writeError(w, http.StatusConflict, "device is offline")
		return
	}
	writeJSON(w, http.StatusAccepted, testPrintResponse{RequestID: requestID, Result: res.String()})
}

type claimResponse struct {
	Device *model.Device `json:"device"`
	Result string        `json:"result"`
}

func (h *APIHandler) ClaimDevice(w http.ResponseWriter, r *http.Request) {
	var req service.ClaimRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	device, res, err := h.messenger.ClaimDevice(r.Context(), req)
	if err != nil && device == nil {
		h.fail(w, r, err)
		return
	}
	if err != nil {
		// The claim is stored; only the notice to the device failed.
		h.logger.Warn("[CLAIM] claimed notice failed", "device_id", device.ID, "err", err)
	}
	writeJSON(w, http.StatusOK, claimResponse{Device: device, Result: res.String()})
}

func (h *APIHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.messenger.GetDevice(r.Context(), deviceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) Activity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultActivityLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(w, r, fmt.Errorf("%w: limit must be a positive integer", model.ErrInvalidRequest))
			return
		}
		limit = n
	}

	var deviceID uuid.UUID
	if raw := q.Get("device_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: device_id must be a uuid", model.ErrInvalidRequest))
			return
		}
		deviceID = id
	}

	writeJSON(w, http.StatusOK, h.activity.Recent(limit, deviceID))
}

func deviceParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: device id must be a uuid", model.ErrInvalidRequest)
	}
	return id, nil
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	return nil
}

// fail maps domain errors onto HTTP statuses.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("[API] request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrDeviceNotFound),
		errors.Is(err, model.ErrMessageNotFound),
		errors.Is(err, model.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrDeviceAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
