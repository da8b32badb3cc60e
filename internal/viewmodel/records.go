// Package viewmodel holds the presentation state of fetched records.
//
// Fetches run in the background. Their results are applied on the dispatch loop, one hop per result,
// so that views observing the state only ever see it change on that loop.
package viewmodel

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/ubuntu/recordfeed/internal/api"
	"github.com/ubuntu/recordfeed/internal/model"
)

// Poster runs tasks on the presentation execution context.
//
// Post reports whether fn was queued. Done is closed once the context stops, queued tasks being dropped.
type Poster interface {
	Post(fn func()) bool
	Done() <-chan struct{}
}

// Records is the state holder of a list of records.
//
// Items always holds the payload of the last fetch applied, LastError the failure of the last fetch
// applied, or nil after a success. When fetches overlap, the last one to resolve wins.
type Records struct {
	source  api.RecordAPI
	loop    Poster
	items   *Observable[[]model.Record]
	lastErr *Observable[error]
	onError func(error)

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	subs   map[*Subscription]struct{}

	log *slog.Logger
}

type options struct {
	initialQuery api.Query
	onError      func(error)
	logger       *slog.Logger
}

// Options represents an optional function to override Records default values.
type Options func(*options)

// WithInitialQuery starts a search for q when the state holder is created.
func WithInitialQuery(q api.Query) Options {
	return func(o *options) {
		if q == nil {
			q = api.Query{}
		}
		o.initialQuery = q
	}
}

// WithErrorHandler sets fn to be called on the dispatch loop with every failure applied.
// Without it, failures only reach LastError.
func WithErrorHandler(fn func(error)) Options {
	return func(o *options) {
		o.onError = fn
	}
}

// WithLogger sets the logger of the state holder.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New returns a state holder fetching from source and applying results through loop.
func New(source api.RecordAPI, loop Poster, args ...Options) *Records {
	opts := options{
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Records{
		source:  source,
		loop:    loop,
		items:   newObservable([]model.Record{}, cloneRecords),
		lastErr: newObservable[error](nil, nil),
		onError: opts.onError,
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[*Subscription]struct{}),
		log:     opts.logger,
	}

	if opts.initialQuery != nil {
		r.Search(opts.initialQuery)
	}

	return r
}

// Items is the observable list of records.
func (r *Records) Items() *Observable[[]model.Record] {
	return r.items
}

// LastError is the observable failure of the last applied fetch.
func (r *Records) LastError() *Observable[error] {
	return r.lastErr
}

// Load fetches the record identified by id. On success, Items becomes that single record.
func (r *Records) Load(id string) *Subscription {
	return r.subscribe("load", func(ctx context.Context) ([]model.Record, error) {
		rec, err := r.source.Record(ctx, id)
		if err != nil {
			return nil, err
		}
		return []model.Record{rec}, nil
	}, "id", id)
}

// Search fetches the records matching q. On success, Items becomes them, in the order received.
func (r *Records) Search(q api.Query) *Subscription {
	return r.subscribe("search", func(ctx context.Context) ([]model.Record, error) {
		return r.source.Records(ctx, q)
	}, "query", q.Encode())
}

// Close cancels every pending fetch and freezes the state: once Close returns, Items and LastError
// never change again, and new fetches are canceled at once. Close can be called several times.
func (r *Records) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	r.items.seal()
	r.lastErr.seal()
	r.cancel()
	for sub := range subs {
		sub.Cancel()
	}
	r.log.Debug("State holder closed", "canceled", len(subs))
}

func (r *Records) subscribe(op string, fetch func(context.Context) ([]model.Record, error), args ...any) *Subscription {
	sub := newSubscription()
	log := r.log.With(append([]any{"op", op, "sub", sub.ID()}, args...)...)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sub.Cancel()
		log.Debug("State holder closed, fetch canceled")
		return sub
	}
	ctx, cancel := context.WithCancel(r.ctx)
	sub.start(cancel)
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	log.Debug("Fetch started")
	results := api.Go(ctx, fetch)
	go func() {
		res := <-results
		if !r.loop.Post(func() { r.apply(sub, res, log) }) {
			log.Debug("Dispatch loop stopped, dropping result")
			sub.Cancel()
			r.forget(sub)
			return
		}

		select {
		case <-sub.Done():
		case <-r.loop.Done():
			// A claimed subscription is left to apply.
			if sub.terminate(Canceled, false) {
				log.Debug("Dispatch loop stopped before applying result")
				r.forget(sub)
			}
		}
	}()

	return sub
}

// apply runs on the loop. It writes the result to the observables unless sub was canceled.
func (r *Records) apply(sub *Subscription, res model.Result[[]model.Record], log *slog.Logger) {
	defer r.forget(sub)

	if !sub.claim() {
		log.Debug("Subscription canceled, dropping result")
		return
	}

	records, err := res.Get()
	if err != nil {
		if !r.lastErr.set(err) {
			sub.terminate(Canceled, true)
			return
		}
		if r.onError != nil {
			r.onError(err)
		} else {
			log.Debug("Fetch failed", "kind", api.KindOf(err), "error", err)
		}
		sub.terminate(Failed, true)
		return
	}

	if records == nil {
		records = []model.Record{}
	}
	// Clearing first: once sealed, fresh items never sit next to a stale error.
	if r.lastErr.Get() != nil && !r.lastErr.set(nil) {
		sub.terminate(Canceled, true)
		return
	}
	if !r.items.set(cloneRecords(records)) {
		sub.terminate(Canceled, true)
		return
	}
	log.Debug("Fetch applied", "records", len(records))
	sub.terminate(Delivered, true)
}

func (r *Records) forget(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, sub)
}

func cloneRecords(rs []model.Record) []model.Record {
	if rs == nil {
		return nil
	}
	return slices.Clone(rs)
}
