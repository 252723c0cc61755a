package handlers

import (
	"context"

	"github.com/maruel/kvedit/internal/catalog"
	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/models"
	"github.com/maruel/kvedit/internal/navstate"
)

// ListRecordsRequest filters the records of the current store.
type ListRecordsRequest struct {
	Query string `query:"q"`
}

// ListRecordsResponse is the filtered record list.
type ListRecordsResponse struct {
	Records []models.Record `json:"records"`
	Summary string          `json:"summary"`
}

// ListRecords applies the key filter.
func (h *Handler) ListRecords(ctx context.Context, req ListRecordsRequest) (*ListRecordsResponse, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	recs := e.Filter(req.Query)
	return &ListRecordsResponse{Records: recs, Summary: catalog.Summary(len(recs), len(e.Snapshot().Records))}, nil
}

// RecordRequest designates a loaded record by key.
type RecordRequest struct {
	Key hoststore.Key `json:"key"`
}

// ViewRecord opens the detail view.
func (h *Handler) ViewRecord(ctx context.Context, req RecordRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	if err := e.ViewRecord(req.Key); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}

// ShowListRequest goes back to the list.
type ShowListRequest struct{}

// ShowList leaves the detail view.
func (h *Handler) ShowList(ctx context.Context, req ShowListRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	if err := e.ShowList(); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}
