package handlers

import "context"

// HealthRequest is the request type for health check (empty).
type HealthRequest struct{}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Visible bool   `json:"visible"`
}

// Health returns the health status of the server and whether the overlay is
// shown.
func (h *Handler) Health(ctx context.Context, req HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{Status: "ok", Visible: h.overlay.Visible()}, nil
}
