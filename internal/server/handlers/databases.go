package handlers

import (
	"context"

	"github.com/maruel/kvedit/internal/models"
	"github.com/maruel/kvedit/internal/navstate"
)

// ListDatabasesRequest is a request to list all databases.
type ListDatabasesRequest struct{}

// ListDatabasesResponse is a response containing a list of databases.
type ListDatabasesResponse struct {
	Databases []models.DatabaseDescriptor `json:"databases"`
}

// ListDatabases enumerates the databases of the host.
func (h *Handler) ListDatabases(ctx context.Context, req ListDatabasesRequest) (*ListDatabasesResponse, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	dbs, err := e.LoadDatabases(ctx)
	if err != nil {
		return nil, err
	}
	return &ListDatabasesResponse{Databases: dbs}, nil
}

// SelectDatabaseRequest selects a database.
type SelectDatabaseRequest struct {
	Name string `path:"db"`
}

// SelectDatabase selects a database and waits for its store list.
func (h *Handler) SelectDatabase(ctx context.Context, req SelectDatabaseRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	if err := e.SelectDatabase(req.Name).Wait(ctx); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}

// SelectStoreRequest selects a store of the current database.
type SelectStoreRequest struct {
	Name string `path:"store"`
}

// SelectStore selects a store and waits for its records.
func (h *Handler) SelectStore(ctx context.Context, req SelectStoreRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	if err := e.SelectStore(req.Name).Wait(ctx); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}

// RefreshRequest rescans the current store.
type RefreshRequest struct{}

// Refresh rescans the current store and waits for the records.
func (h *Handler) Refresh(ctx context.Context, req RefreshRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	if err := e.Refresh().Wait(ctx); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}
