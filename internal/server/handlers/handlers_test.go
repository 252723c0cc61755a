package handlers

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruel/kvedit/internal/autonav"
	"github.com/maruel/kvedit/internal/editor"
	apierrors "github.com/maruel/kvedit/internal/errors"
	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/hoststore/memhost"
	"github.com/maruel/kvedit/internal/navstate"
	"github.com/maruel/kvedit/internal/notify"
	"github.com/maruel/kvedit/internal/overlay"
	"github.com/maruel/kvedit/internal/storeclient"
)

// armedHost blocks the next read-only transaction on store once armed.
type armedHost struct {
	*memhost.Host
	store   string
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (a *armedHost) Open(ctx context.Context, name string) (hoststore.Conn, error) {
	c, err := a.Host.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &armedConn{Conn: c, a: a}, nil
}

type armedConn struct {
	hoststore.Conn
	a *armedHost
}

func (c *armedConn) Begin(ctx context.Context, store string, mode hoststore.Mode) (hoststore.Tx, error) {
	if store == c.a.store && mode == hoststore.ReadOnly && c.a.armed.CompareAndSwap(true, false) {
		close(c.a.entered)
		<-c.a.release
	}
	return c.Conn.Begin(ctx, store, mode)
}

func newHandler(t *testing.T, host hoststore.Host) (*Handler, *notify.Center) {
	t.Helper()
	center := notify.New(time.Minute)
	t.Cleanup(center.Close)
	o := overlay.New(t.Context(), storeclient.New(host), center, autonav.DefaultConfig())
	t.Cleanup(o.Close)
	return New(o, center), center
}

func seed(t *testing.T) *memhost.Host {
	t.Helper()
	ctx := t.Context()
	h := memhost.New()
	require.NoError(t, h.CreateDatabase(ctx, "app-db", 1))
	require.NoError(t, h.CreateStore(ctx, "app-db", "items", ""))
	require.NoError(t, h.CreateStore(ctx, "app-db", "users", "id"))
	c, err := h.Open(ctx, "app-db")
	require.NoError(t, err)
	tx, err := c.Begin(ctx, "items", hoststore.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, map[string]any{"x": 1.0}, "a"))
	require.NoError(t, tx.Commit())
	require.NoError(t, c.Close())
	return h
}

func TestSave_RescanSuperseded(t *testing.T) {
	ctx := t.Context()
	host := &armedHost{Host: seed(t), store: "items", entered: make(chan struct{}), release: make(chan struct{})}
	h, _ := newHandler(t, host)
	_, err := h.Toggle(ctx, ToggleRequest{})
	require.NoError(t, err)
	_, err = h.SelectDatabase(ctx, SelectDatabaseRequest{Name: "app-db"})
	require.NoError(t, err)
	_, err = h.SelectStore(ctx, SelectStoreRequest{Name: "items"})
	require.NoError(t, err)
	_, err = h.BeginEdit(ctx, RecordRequest{Key: "a"})
	require.NoError(t, err)
	_, err = h.SetBuffer(ctx, BufferRequest{Text: `{"x": 3}`})
	require.NoError(t, err)

	type result struct {
		s   *navstate.State
		err error
	}
	done := make(chan result, 1)
	host.armed.Store(true)
	go func() {
		s, err := h.Save(ctx, SaveRequest{})
		done <- result{s, err}
	}()
	select {
	case <-host.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("rescan never started")
	}
	_, err = h.SelectStore(ctx, SelectStoreRequest{Name: "users"})
	require.NoError(t, err)
	close(host.release)

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("save did not return")
	}
	require.NoError(t, res.err, "the write went through")
	require.NotNil(t, res.s)
	assert.Equal(t, "users", res.s.Store)

	s, err := h.SelectStore(ctx, SelectStoreRequest{Name: "items"})
	require.NoError(t, err)
	require.Len(t, s.Records, 1)
	assert.Equal(t, map[string]any{"x": 3.0}, s.Records[0].Value)
}

func TestSettled(t *testing.T) {
	assert.NoError(t, settled(nil))
	assert.NoError(t, settled(fmt.Errorf("rescan: %w", editor.ErrSuperseded)))
	err := apierrors.Conflict("x")
	assert.Equal(t, err, settled(err))
}

func TestNotifications_LongPoll(t *testing.T) {
	h, center := newHandler(t, memhost.New())
	done := make(chan *NotificationsResponse, 1)
	go func() {
		resp, err := h.Notifications(t.Context(), NotificationsRequest{Wait: 30})
		if err != nil {
			resp = nil
		}
		done <- resp
	}()

	// The poller subscribes asynchronously; keep posting until it returns.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case resp := <-done:
			require.NotNil(t, resp)
			require.NotEmpty(t, resp.Notifications)
			assert.Equal(t, "hello", resp.Notifications[0].Message)
			return
		case <-tick.C:
			center.Notify(notify.Info, "hello")
		case <-deadline:
			t.Fatal("long poll did not return on a new notification")
		}
	}
}

func TestNotifications_NoWait(t *testing.T) {
	h, center := newHandler(t, memhost.New())
	center.Notify(notify.Error, "boom")
	resp, err := h.Notifications(t.Context(), NotificationsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, notify.Error, resp.Notifications[0].Level)

	_, err = h.Notifications(t.Context(), NotificationsRequest{Wait: -1})
	assert.True(t, apierrors.HasCode(err, apierrors.ErrValidationFailed))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = h.Notifications(ctx, NotificationsRequest{Wait: 10})
	assert.ErrorIs(t, err, context.Canceled)
}
