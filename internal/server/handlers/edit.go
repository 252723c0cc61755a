package handlers

import (
	"context"
	"errors"

	"github.com/maruel/kvedit/internal/editor"
	"github.com/maruel/kvedit/internal/navstate"
)

// BeginCreateRequest opens the editor on a new record.
type BeginCreateRequest struct{}

// BeginCreate opens the editor on a new, empty record.
func (h *Handler) BeginCreate(ctx context.Context, req BeginCreateRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	if err := e.BeginCreate(); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}

// EditSelectedRequest opens the editor on the viewed record.
type EditSelectedRequest struct{}

// EditSelected opens the editor from the detail view.
func (h *Handler) EditSelected(ctx context.Context, req EditSelectedRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	if err := e.EditSelected(); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}

// BeginEdit opens the editor on a loaded record.
func (h *Handler) BeginEdit(ctx context.Context, req RecordRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	if err := e.BeginEdit(req.Key); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}

// BufferRequest carries edit buffer text.
type BufferRequest struct {
	Text string `json:"text"`
}

// SetBuffer replaces the edit buffer.
func (h *Handler) SetBuffer(ctx context.Context, req BufferRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	if err := e.SetBuffer(req.Text); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}

// SaveRequest saves the edit buffer.
type SaveRequest struct{}

// Save writes the edit buffer and waits for the rescan.
func (h *Handler) Save(ctx context.Context, req SaveRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	op, err := e.Save(ctx)
	if err != nil {
		return nil, err
	}
	if err := settled(op.Wait(ctx)); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}

// settled ignores a rescan replaced by a newer selection; the write itself
// went through.
func settled(err error) error {
	if errors.Is(err, editor.ErrSuperseded) {
		return nil
	}
	return err
}

// CancelEditRequest closes the editor.
type CancelEditRequest struct{}

// CancelEdit closes the editor without saving.
func (h *Handler) CancelEdit(ctx context.Context, req CancelEditRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	if err := e.CancelEdit(); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}

// DeleteRequest deletes the edited or viewed record. Confirm carries the
// operator's answer to the confirmation prompt.
type DeleteRequest struct {
	Confirm bool `json:"confirm"`
}

// Delete removes the record and waits for the rescan.
func (h *Handler) Delete(ctx context.Context, req DeleteRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	op, err := e.Delete(ctx, func(string) bool { return req.Confirm })
	if err != nil {
		return nil, err
	}
	if err := settled(op.Wait(ctx)); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}

// ExportRequest exports the edit buffer.
type ExportRequest struct{}

// ExportResponse is served as a file download.
type ExportResponse struct {
	Name string
	Data []byte
}

// Attachment returns the file name and content to serve.
func (r *ExportResponse) Attachment() (string, []byte) {
	return r.Name, r.Data
}

// Export returns the edit buffer as a JSON file.
func (h *Handler) Export(ctx context.Context, req ExportRequest) (*ExportResponse, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	art, err := e.ExportCurrent()
	if err != nil {
		return nil, err
	}
	return &ExportResponse{Name: art.Name, Data: art.Data}, nil
}

// Import replaces the edit buffer with the content of a file.
func (h *Handler) Import(ctx context.Context, req BufferRequest) (*navstate.State, error) {
	e, err := h.editor()
	if err != nil {
		return nil, err
	}
	if err := e.ImportBuffer(req.Text); err != nil {
		return nil, err
	}
	return h.snapshot(e), nil
}
