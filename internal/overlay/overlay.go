// Package overlay owns the editor of one page and reacts to the activation
// signal.
package overlay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maruel/kvedit/internal/autonav"
	"github.com/maruel/kvedit/internal/editor"
	apierrors "github.com/maruel/kvedit/internal/errors"
	"github.com/maruel/kvedit/internal/notify"
	"github.com/maruel/kvedit/internal/storeclient"
)

// Activation describes what a toggle did.
type Activation struct {
	Visible    bool            `json:"visible"`
	Identifier string          `json:"identifier,omitempty"`
	AutoNav    *autonav.Result `json:"autonav,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Overlay shows and hides the editor. The editor is built on the first
// activation and reused afterwards.
type Overlay struct {
	ctx      context.Context
	client   *storeclient.Client
	notifier notify.Notifier

	mu      sync.Mutex
	nav     *autonav.Navigator
	editor  *editor.Editor
	visible bool
}

// New returns a hidden overlay. ctx bounds the lifetime of the editor.
func New(ctx context.Context, client *storeclient.Client, n notify.Notifier, cfg autonav.Config) *Overlay {
	return &Overlay{ctx: ctx, client: client, notifier: n, nav: autonav.New(cfg, n)}
}

// SetAutoNav replaces the auto-navigation settings used by the next
// activations.
func (o *Overlay) SetAutoNav(cfg autonav.Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nav = autonav.New(cfg, o.notifier)
}

// AutoNav returns the auto-navigation settings in use.
func (o *Overlay) AutoNav() autonav.Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.nav.Config()
}

// Visible reports whether the overlay is shown.
func (o *Overlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

// Editor returns the editor while the overlay is shown.
func (o *Overlay) Editor() (*editor.Editor, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.visible {
		return nil, apierrors.Conflict("Overlay is hidden")
	}
	return o.editor, nil
}

// Toggle shows the overlay if hidden, hides it otherwise.
//
// Showing loads the database list, or runs auto-navigation when pageURL
// carries an identifier. Failures are reported through the notifier and
// recorded in the returned Activation. Hiding drops all state, including an
// open edit.
func (o *Overlay) Toggle(ctx context.Context, pageURL string) Activation {
	o.mu.Lock()
	if o.visible {
		o.visible = false
		e := o.editor
		o.mu.Unlock()
		e.Reset()
		o.notifier.Notify(notify.Info, "Ready to browse")
		slog.DebugContext(ctx, "overlay", "msg", "hidden")
		return Activation{}
	}
	if o.editor == nil {
		o.editor = editor.New(o.ctx, o.client, o.notifier)
	}
	o.visible = true
	e, nav := o.editor, o.nav
	o.mu.Unlock()

	act := Activation{Visible: true}
	cfg := nav.Config()
	if id, ok := cfg.ExtractIdentifier(pageURL); ok {
		act.Identifier = id
		slog.InfoContext(ctx, "overlay", "msg", "auto-navigating", "identifier", id)
		res, err := nav.Run(ctx, e, id)
		act.AutoNav = &res
		if err != nil {
			act.Error = err.Error()
		}
		return act
	}
	if _, err := e.LoadDatabases(ctx); err != nil {
		act.Error = err.Error()
	}
	return act
}

// Close stops the editor, if it was ever built.
func (o *Overlay) Close() {
	o.mu.Lock()
	e := o.editor
	o.visible = false
	o.mu.Unlock()
	if e != nil {
		e.Close()
	}
}
