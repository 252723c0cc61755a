package editor

import (
	"context"
	"errors"
)

// ErrSuperseded is the result of a load whose selection was replaced before
// it completed. Its results were discarded.
var ErrSuperseded = errors.New("superseded by a newer selection")

// Op is the completion handle of an asynchronous transition.
type Op struct {
	done chan struct{}
	err  error
}

func newOp() *Op {
	return &Op{done: make(chan struct{})}
}

// completed returns an Op that is already done.
func completed(err error) *Op {
	o := newOp()
	o.finish(err)
	return o
}

func (o *Op) finish(err error) {
	o.err = err
	close(o.done)
}

// Done is closed when the transition has settled.
func (o *Op) Done() <-chan struct{} {
	return o.done
}

// Err returns the outcome once Done is closed, nil before.
func (o *Op) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Wait blocks until the transition settles or ctx is done.
func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
