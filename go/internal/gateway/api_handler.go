package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flaglights/go/internal/delay"
	"github.com/mcdev12/flaglights/go/internal/lighting"
	"github.com/mcdev12/flaglights/go/internal/models"
	"github.com/mcdev12/flaglights/go/internal/scheduler"
	"github.com/mcdev12/flaglights/go/internal/trackstatus"
)

// Controller is the tracker surface driven by the HTTP API.
type Controller interface {
	SnapshotSource
	SetDelay(ctx context.Context, seconds int) error
	InjectTestMessage(ctx context.Context, msg models.RaceControlMessage) models.RaceControlMessage
	ClearTestMessage()
	ApplyManual(ctx context.Context, flag models.Flag) error
	Connect(ctx context.Context, token string) error
	Disconnect(ctx context.Context) error
	Devices() []models.Device
	RefreshDevices(ctx context.Context) ([]models.Device, error)
	SelectDevices(ctx context.Context, ids []string) error
	ToggleDevice(ctx context.Context, id string) ([]string, error)
	Actions() []scheduler.Action
}

var _ Controller = (*trackstatus.Tracker)(nil)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

type DelayRequest struct {
	Seconds *int `json:"seconds"`
}

type DelayResponse struct {
	Seconds int `json:"seconds"`
}

// TestMessageRequest describes an injected race-control message. Category
// defaults to "Flag" and Scope to "Track".
type TestMessageRequest struct {
	Category string `json:"category"`
	Flag     string `json:"flag"`
	Message  string `json:"message"`
	Scope    string `json:"scope"`
}

type ConnectRequest struct {
	Token string `json:"token"`
}

type SelectRequest struct {
	DeviceIDs []string `json:"device_ids"`
}

type SelectResponse struct {
	Selected []string `json:"selected"`
}

type ActionsResponse struct {
	Actions []scheduler.Action `json:"actions"`
}

type DevicesResponse struct {
	Devices  []models.Device `json:"devices"`
	Selected []string        `json:"selected"`
}

// APIHandler serves the JSON control API.
type APIHandler struct {
	ctrl Controller
}

func NewAPIHandler(ctrl Controller) *APIHandler {
	return &APIHandler{ctrl: ctrl}
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", h.HandleStatus)
	mux.HandleFunc("GET /api/actions", h.HandleActions)
	mux.HandleFunc("GET /api/delay", h.HandleGetDelay)
	mux.HandleFunc("PUT /api/delay", h.HandleSetDelay)
	mux.HandleFunc("POST /api/test-message", h.HandleInjectTestMessage)
	mux.HandleFunc("DELETE /api/test-message", h.HandleClearTestMessage)
	mux.HandleFunc("GET /api/devices", h.HandleListDevices)
	mux.HandleFunc("POST /api/devices/refresh", h.HandleRefreshDevices)
	mux.HandleFunc("PUT /api/devices/selected", h.HandleSelectDevices)
	mux.HandleFunc("POST /api/devices/{id}/toggle", h.HandleToggleDevice)
	mux.HandleFunc("POST /api/lifx/connect", h.HandleConnect)
	mux.HandleFunc("POST /api/lifx/disconnect", h.HandleDisconnect)
	mux.HandleFunc("POST /api/flags/{flag}", h.HandleApplyFlag)
}

func (h *APIHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

// HandleActions lists pending and recently executed delayed actions.
func (h *APIHandler) HandleActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ActionsResponse{Actions: h.ctrl.Actions()})
}

func (h *APIHandler) HandleGetDelay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DelayResponse{Seconds: h.ctrl.Snapshot().DelaySeconds})
}

func (h *APIHandler) HandleSetDelay(w http.ResponseWriter, r *http.Request) {
	var req DelayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Seconds == nil {
		writeError(w, http.StatusBadRequest, "seconds is required")
		return
	}
	if err := h.ctrl.SetDelay(r.Context(), *req.Seconds); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DelayResponse{Seconds: *req.Seconds})
}

func (h *APIHandler) HandleInjectTestMessage(w http.ResponseWriter, r *http.Request) {
	var req TestMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Flag == "" && req.Message == "" {
		writeError(w, http.StatusBadRequest, "flag or message is required")
		return
	}

	msg := models.RaceControlMessage{
		Category: req.Category,
		Message:  req.Message,
	}
	if msg.Category == "" {
		msg.Category = models.CategoryFlag
	}
	if req.Flag != "" {
		raw := strings.ToUpper(req.Flag)
		msg.Flag = &raw
	}
	scope := req.Scope
	if scope == "" {
		scope = models.ScopeTrack
	}
	msg.Scope = &scope

	writeJSON(w, http.StatusCreated, h.ctrl.InjectTestMessage(r.Context(), msg))
}

func (h *APIHandler) HandleClearTestMessage(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ClearTestMessage()
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DevicesResponse{
		Devices:  nonNilDevices(h.ctrl.Devices()),
		Selected: h.ctrl.Snapshot().SelectedDevices,
	})
}

func (h *APIHandler) HandleRefreshDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.ctrl.RefreshDevices(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DevicesResponse{
		Devices:  nonNilDevices(devices),
		Selected: h.ctrl.Snapshot().SelectedDevices,
	})
}

func (h *APIHandler) HandleSelectDevices(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.ctrl.SelectDevices(r.Context(), req.DeviceIDs); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SelectResponse{Selected: h.ctrl.Snapshot().SelectedDevices})
}

func (h *APIHandler) HandleToggleDevice(w http.ResponseWriter, r *http.Request) {
	selected, err := h.ctrl.ToggleDevice(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if selected == nil {
		selected = []string{}
	}
	writeJSON(w, http.StatusOK, SelectResponse{Selected: selected})
}

func (h *APIHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := h.ctrl.Connect(r.Context(), token); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *APIHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Disconnect(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *APIHandler) HandleApplyFlag(w http.ResponseWriter, r *http.Request) {
	flag, ok := models.ParseFlag(r.PathValue("flag"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown flag: "+r.PathValue("flag"))
		return
	}
	if err := h.ctrl.ApplyManual(r.Context(), flag); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func nonNilDevices(devices []models.Device) []models.Device {
	if devices == nil {
		return []models.Device{}
	}
	return devices
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeDomainError maps service errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, delay.ErrNegativeDelay), errors.Is(err, lighting.ErrUnknownFlag):
		status = http.StatusBadRequest
	case errors.Is(err, lighting.ErrInvalidCredential):
		status = http.StatusUnauthorized
	case errors.Is(err, lighting.ErrUnknownDevice):
		status = http.StatusNotFound
	case errors.Is(err, lighting.ErrNoDevicesSelected),
		errors.Is(err, lighting.ErrNoValidDevices),
		errors.Is(err, lighting.ErrNotConnected),
		errors.Is(err, trackstatus.ErrSuperseded):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
