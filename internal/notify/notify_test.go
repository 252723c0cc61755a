package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCenter_Stacks(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()

	a := c.Post(Info, "Loading databases...")
	b := c.Post(Error, "Error opening database")
	assert.NotEqual(t, a.ID, b.ID)

	active := c.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "Loading databases...", active[0].Message)
	assert.Equal(t, Error, active[1].Level)
	assert.Equal(t, time.Hour, active[0].Expires.Sub(active[0].Created))

	assert.True(t, c.Dismiss(a.ID))
	assert.False(t, c.Dismiss(a.ID))
	assert.Len(t, c.Active(), 1)
}

func TestCenter_AutoDismiss(t *testing.T) {
	c := New(20 * time.Millisecond)
	defer c.Close()
	c.Notify(Info, "Record saved successfully")
	require.Len(t, c.Active(), 1)
	assert.Eventually(t, func() bool { return len(c.Active()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestCenter_Subscribe(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()
	ch := c.Subscribe()

	c.Notify(Info, "one")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no ping after Notify")
	}

	// Pings coalesce while the listener is not reading.
	c.Notify(Info, "two")
	c.Notify(Info, "three")
	assert.Len(t, ch, 1)

	c.Unsubscribe(ch)
	<-ch // pending ping
	_, ok := <-ch
	assert.False(t, ok)
}

func TestCenter_DefaultTTL(t *testing.T) {
	c := New(0)
	defer c.Close()
	n := c.Post(Info, "x")
	assert.Equal(t, DefaultTTL, n.Expires.Sub(n.Created))
	c.SetTTL(time.Minute)
	n = c.Post(Info, "y")
	assert.Equal(t, time.Minute, n.Expires.Sub(n.Created))
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_, ok := r.Last()
	assert.False(t, ok)
	r.Notify(Info, "a")
	r.Notify(Error, "b")
	assert.Equal(t, []string{"a", "b"}, r.Texts())
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, Error, last.Level)
}
