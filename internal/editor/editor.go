// Package editor is the browsing and mutation engine.
//
// An Editor owns the navigation state of one overlay. Every command runs
// under the editor mutex; loads that talk to the host store run in goroutines
// bound to the editor lifetime and report through an *Op. A load only applies
// its results if its selection is still current, which is checked after every
// cursor step and once more before the state is updated.
package editor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/maruel/kvedit/internal/catalog"
	apierrors "github.com/maruel/kvedit/internal/errors"
	"github.com/maruel/kvedit/internal/navstate"
	"github.com/maruel/kvedit/internal/notify"
	"github.com/maruel/kvedit/internal/storeclient"
)

// Editor is the engine behind the overlay. It is safe for concurrent use.
type Editor struct {
	client   *storeclient.Client
	notifier notify.Notifier
	parent   context.Context

	mu     sync.Mutex
	state  navstate.State
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an editor. Background loads stop when ctx is canceled.
func New(ctx context.Context, client *storeclient.Client, n notify.Notifier) *Editor {
	e := &Editor{client: client, notifier: n, parent: ctx}
	e.ctx, e.cancel = context.WithCancel(ctx)
	return e
}

func (e *Editor) info(msg string) {
	e.notifier.Notify(notify.Info, msg)
}

// fail reports err unless it only means the result was dropped.
func (e *Editor) fail(err error) error {
	if err != nil && !errors.Is(err, ErrSuperseded) {
		e.notifier.Notify(notify.Error, err.Error())
	}
	return err
}

// spawn runs f in the background with the editor lifetime context captured
// by the caller while holding the lock.
func (e *Editor) spawn(ctx context.Context, op *Op, f func(ctx context.Context) error) *Op {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := f(ctx)
		if err != nil {
			slog.DebugContext(ctx, "editor", "msg", "load ended", "err", err)
		}
		op.finish(err)
	}()
	return op
}

// Snapshot returns a copy of the navigation state.
func (e *Editor) Snapshot() navstate.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// DetailJSON renders the record shown in the detail view.
func (e *Editor) DetailJSON() (string, error) {
	e.mu.Lock()
	sel := e.state.Selected
	e.mu.Unlock()
	if sel == nil {
		return "", apierrors.Conflict("No record selected")
	}
	return catalog.DetailJSON(sel.Value)
}

// Reset empties the state and drops every load in flight. The editor stays
// usable.
func (e *Editor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Reset()
	e.cancel()
	e.ctx, e.cancel = context.WithCancel(e.parent)
}

// Close stops background loads and waits for them to return.
func (e *Editor) Close() {
	e.mu.Lock()
	e.state.Reset()
	e.cancel()
	e.mu.Unlock()
	e.wg.Wait()
}
