package resources

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	logger "github.com/Financial-Times/go-logger/v2"
	"github.com/grundic/browser-notifier/permission"
)

const maxTestBody = 4096

type permissionController interface {
	ShowPermissionsInfo() permission.State
	RequestNotificationAccess(ctx context.Context) (<-chan permission.State, error)
	ShowTestNotification(text string) error
}

// PermissionHandler serves the notification part of the settings page.
type PermissionHandler struct {
	ctrl  permissionController
	board *StatusBoard
	log   *logger.UPPLogger
}

func NewPermissionHandler(ctrl permissionController, board *StatusBoard, log *logger.UPPLogger) *PermissionHandler {
	return &PermissionHandler{
		ctrl:  ctrl,
		board: board,
		log:   log,
	}
}

// Status re-evaluates the permission state, as loading the page does, and
// returns what the page shows.
func (h *PermissionHandler) Status(w http.ResponseWriter, r *http.Request) {
	state := h.ctrl.ShowPermissionsInfo()
	h.writeSnapshot(w, state)
}

// Request asks for permission and answers once the user decided.
func (h *PermissionHandler) Request(w http.ResponseWriter, r *http.Request) {
	result, err := h.ctrl.RequestNotificationAccess(context.Background())
	if errors.Is(err, permission.ErrRequestInFlight) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.log.WithError(err).Error("Cannot request notification permission")
		http.Error(w, "Cannot request permission.", http.StatusInternalServerError)
		return
	}

	select {
	case state := <-result:
		h.writeSnapshot(w, state)
	case <-r.Context().Done():
		h.log.Info("Client left before the permission request completed")
	}
}

type testNotificationRequest struct {
	Text string `json:"text"`
}

// TestNotification shows the text typed on the settings page.
func (h *PermissionHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	var req testNotificationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTestBody)).Decode(&req); err != nil {
		http.Error(w, "Invalid test notification request.", http.StatusBadRequest)
		return
	}

	if err := h.ctrl.ShowTestNotification(req.Text); err != nil {
		http.Error(w, "Cannot show test notification.", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PermissionHandler) writeSnapshot(w http.ResponseWriter, state permission.State) {
	snapshot := h.board.Snapshot()
	snapshot.State = state

	w.Header().Set("Content-type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		h.log.WithError(err).Warn("Error writing permission status to HTTP response")
	}
}
