package anansi

import (
	"context"
	"slices"
	"sync"
)

// Handler executes an action.
type Handler func(context.Context, Action) (any, error)

// Handle calls f(ctx, a).
func (f Handler) Handle(ctx context.Context, a Action) (any, error) {
	return f(ctx, a)
}

// Middleware wraps the next handler of a pipeline. A middleware handles
// the actions it knows and delegates the rest to next.
type Middleware interface {
	Wrap(next Handler) Handler
}

// The MiddlewareFunc type is an adapter to allow the use of ordinary
// functions as Middleware.
type MiddlewareFunc func(Handler) Handler

// Wrap calls f(next).
func (f MiddlewareFunc) Wrap(next Handler) Handler { return f(next) }

// On returns a middleware that handles the actions of kind k with h and
// delegates everything else.
func On(k ActionKind, h func(context.Context, Action, Handler) (any, error)) Middleware {
	return MiddlewareFunc(func(next Handler) Handler {
		return func(ctx context.Context, a Action) (any, error) {
			if a.Kind() != k {
				return next(ctx, a)
			}
			return h(ctx, a, next)
		}
	})
}

// Pipeline is an ordered list of middleware. The first item is the
// outermost. A pipeline is itself a Middleware, and nested pipelines are
// flattened when wrapped.
type Pipeline struct {
	mu    sync.RWMutex
	items []Middleware
}

// NewPipeline returns a pipeline with the given middleware.
func NewPipeline(ms ...Middleware) *Pipeline {
	p := &Pipeline{}
	p.Add(ms...)
	return p
}

// Add appends middleware to the end of the pipeline.
func (p *Pipeline) Add(ms ...Middleware) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range ms {
		if m != nil {
			p.items = append(p.items, m)
		}
	}
	return p
}

// Insert inserts middleware at index i. An index past the end appends.
func (p *Pipeline) Insert(i int, ms ...Middleware) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	i = max(0, min(i, len(p.items)))
	p.items = slices.Insert(p.items, i, slices.DeleteFunc(slices.Clone(ms), func(m Middleware) bool { return m == nil })...)
	return p
}

// Len returns the number of direct items in the pipeline.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Middlewares returns the flattened middleware list, outermost first.
func (p *Pipeline) Middlewares() []Middleware {
	p.mu.RLock()
	items := slices.Clone(p.items)
	p.mu.RUnlock()
	var out []Middleware
	for _, m := range items {
		if sub, ok := m.(*Pipeline); ok {
			out = append(out, sub.Middlewares()...)
			continue
		}
		out = append(out, m)
	}
	return out
}

// Wrap composes the pipeline around next.
func (p *Pipeline) Wrap(next Handler) Handler {
	ms := p.Middlewares()
	h := next
	for i := len(ms) - 1; i >= 0; i-- {
		h = ms[i].Wrap(h)
	}
	return h
}

// Dispatch runs a through the pipeline. Unhandled actions are returned
// unchanged.
func (p *Pipeline) Dispatch(ctx context.Context, a Action) (any, error) {
	return p.Wrap(identity)(ctx, a)
}

// StorageMiddleware returns a middleware that executes actions against s.
// MakeStoreValue is delegated when s does not implement ValueMaker.
func StorageMiddleware(s Storage) Middleware {
	return MiddlewareFunc(func(next Handler) Handler {
		return func(ctx context.Context, a Action) (any, error) {
			switch a := a.(type) {
			case *GetRecordsAction:
				return s.GetRecords(ctx, a.Schema, a.Options())
			case *GetCountAction:
				return s.GetCount(ctx, a.Schema, a.Options())
			case *SaveRecordAction:
				return s.SaveRecord(ctx, a.Record, a.Options())
			case *SaveCollectionAction:
				return s.SaveCollection(ctx, a.Collection, a.Options())
			case *DeleteRecordAction:
				return s.DeleteRecord(ctx, a.Record, a.Options())
			case *DeleteCollectionAction:
				return s.DeleteCollection(ctx, a.Collection, a.Options())
			case *MakeStoreValueAction:
				if vm, ok := s.(ValueMaker); ok {
					return vm.MakeStoreValue(ctx, a.Value, a.Options())
				}
			}
			return next(ctx, a)
		}
	})
}
