// Package handlers implements the command and query API of the editor.
package handlers

import (
	"context"
	"time"

	"github.com/maruel/kvedit/internal/editor"
	apierrors "github.com/maruel/kvedit/internal/errors"
	"github.com/maruel/kvedit/internal/navstate"
	"github.com/maruel/kvedit/internal/notify"
	"github.com/maruel/kvedit/internal/overlay"
)

// Handler serves every endpoint against one overlay.
type Handler struct {
	overlay *overlay.Overlay
	center  *notify.Center
}

// New returns a Handler.
func New(o *overlay.Overlay, c *notify.Center) *Handler {
	return &Handler{overlay: o, center: c}
}

// editor returns the engine, or a conflict while the overlay is hidden.
func (h *Handler) editor() (*editor.Editor, error) {
	return h.overlay.Editor()
}

// snapshot is the state returned by every command.
func (h *Handler) snapshot(e *editor.Editor) *navstate.State {
	s := e.Snapshot()
	return &s
}

// ToggleRequest is the activation signal.
type ToggleRequest struct {
	URL string `json:"url"`
}

// Toggle shows or hides the overlay.
func (h *Handler) Toggle(ctx context.Context, req ToggleRequest) (*overlay.Activation, error) {
	act := h.overlay.Toggle(ctx, req.URL)
	return &act, nil
}

// StateRequest is a request for the navigation state.
type StateRequest struct{}

// State returns the navigation state.
func (h *Handler) State(ctx context.Context, req StateRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}

// NotificationsRequest lists active notifications. With Wait set, the call
// blocks up to that many seconds until the active set changes.
type NotificationsRequest struct {
	Wait int `query:"wait"`
}

// maxWait bounds a long poll on notifications.
const maxWait = 60 * time.Second

// NotificationsResponse holds the notifications not dismissed yet, oldest
// first.
type NotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// Notifications returns the active notifications.
func (h *Handler) Notifications(ctx context.Context, req NotificationsRequest) (*NotificationsResponse, error) {
	if req.Wait < 0 {
		return nil, apierrors.BadRequest("wait must not be negative")
	}
	if req.Wait > 0 {
		ch := h.center.Subscribe()
		defer h.center.Unsubscribe(ch)
		t := time.NewTimer(min(time.Duration(req.Wait)*time.Second, maxWait))
		defer t.Stop()
		select {
		case <-ch:
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &NotificationsResponse{Notifications: h.center.Active()}, nil
}
