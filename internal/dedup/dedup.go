// Package dedup collapses concurrent requests for the same work onto a
// single execution.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Role tells a caller whether it ran the work or waited on another caller.
type Role int

const (
	Leader Role = iota
	Follower
)

func (r Role) String() string {
	if r == Leader {
		return "leader"
	}
	return "follower"
}

// Registry tracks in-flight work by key. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	flight   singleflight.Group
	inflight atomic.Int64
	wg       sync.WaitGroup

	leaders   atomic.Int64
	followers atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Do runs fn once for all concurrent callers sharing key. The caller whose
// call started the work is the Leader and receives fn's error. Followers
// only learn that the work finished and get a nil error, so they must
// re-read whatever fn produced rather than trust its outcome. Any caller
// returns ctx.Err() as soon as its own ctx is done. fn runs with the
// leader's ctx and a panic in fn is returned to the leader as an error.
func (r *Registry) Do(ctx context.Context, key string, fn func(ctx context.Context) error) (Role, error) {
	if err := ctx.Err(); err != nil {
		return Follower, err
	}

	var led atomic.Bool
	ch := r.flight.DoChan(key, func() (v any, err error) {
		led.Store(true)
		r.wg.Add(1)
		r.inflight.Add(1)
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("dedup %s: panic: %v", key, p)
			}
			r.inflight.Add(-1)
			r.wg.Done()
		}()
		return nil, fn(ctx)
	})

	select {
	case res := <-ch:
		if led.Load() {
			r.leaders.Add(1)
			return Leader, res.Err
		}
		r.followers.Add(1)
		return Follower, nil
	case <-ctx.Done():
		if led.Load() {
			return Leader, ctx.Err()
		}
		return Follower, ctx.Err()
	}
}

// InFlight returns the number of keys with work currently running
func (r *Registry) InFlight() int64 {
	return r.inflight.Load()
}

// Leaders and Followers count completed calls by role
func (r *Registry) Leaders() int64   { return r.leaders.Load() }
func (r *Registry) Followers() int64 { return r.followers.Load() }

// Wait blocks until all running work has returned. New calls to Do must
// have stopped before Wait is called.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Key builds a registry key from an operation kind and its identifying parts
func Key(kind string, parts ...any) string {
	var b strings.Builder
	b.WriteString(kind)
	for _, p := range parts {
		b.WriteByte('|')
		fmt.Fprint(&b, p)
	}
	return b.String()
}
