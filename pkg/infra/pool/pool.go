// Package pool runs bounded groups of tasks on ants worker pools.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

const idleExpiry = 5 * time.Second

var (
	// ErrInvalidSize is returned for a non-positive group size.
	ErrInvalidSize = errors.New("pool: size must be positive")
	// ErrClosed is returned by Go after Wait has released the group.
	ErrClosed = errors.New("pool: group is closed")
)

// Stats counts the tasks of one group.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Panicked  int64 `json:"panicked"`
}

// Group runs tasks on a private ants pool of fixed size and waits for all of
// them. A panicking task is logged and counted; it never takes the process
// down and never blocks Wait. A Group is single use.
type Group struct {
	name string
	pool *ants.Pool
	wg   sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}

// NewGroup creates a group running at most size tasks at once.
func NewGroup(name string, size int) (*Group, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s got %d", ErrInvalidSize, name, size)
	}
	p, err := ants.NewPool(size, ants.WithExpiryDuration(idleExpiry))
	if err != nil {
		return nil, fmt.Errorf("pool: create %s: %w", name, err)
	}
	logger.Debugw("worker group created", "name", name, "size", size)
	return &Group{name: name, pool: p}, nil
}

// Go submits task, blocking while all workers are busy. When ctx is already
// done it returns ctx.Err() and task does not run.
func (g *Group) Go(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.wg.Add(1)
	err := g.pool.Submit(func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.panicked.Add(1)
				logger.Errorw("worker task panic recovered", "group", g.name, "panic", fmt.Sprint(r))
				return
			}
			g.completed.Add(1)
		}()
		task()
	})
	if err != nil {
		g.wg.Done()
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrClosed
		}
		return err
	}
	g.submitted.Add(1)
	return nil
}

// Wait blocks until every submitted task has returned, then releases the pool.
func (g *Group) Wait() {
	g.wg.Wait()
	g.pool.Release()
}

// Cap returns the group size.
func (g *Group) Cap() int {
	return g.pool.Cap()
}

// Stats returns a snapshot of the task counters.
func (g *Group) Stats() Stats {
	return Stats{
		Submitted: g.submitted.Load(),
		Completed: g.completed.Load(),
		Panicked:  g.panicked.Load(),
	}
}
