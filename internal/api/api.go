// Package api declares the contract of the remote record service and the errors its providers return.
//
// Providers perform one request per call, with no retry and no cache. Callers depend on RecordAPI only,
// the concrete provider is picked when the application is composed.
package api

import (
	"context"
	"net/url"

	"github.com/ubuntu/recordfeed/internal/model"
)

// RecordAPI is the capability of fetching records from a remote.
type RecordAPI interface {
	// Record fetches the record identified by id.
	Record(ctx context.Context, id string) (model.Record, error)
	// Records fetches every record matching the query.
	Records(ctx context.Context, q Query) ([]model.Record, error)
}

// Query holds exact match filters, keyed by canonical record key.
type Query map[string]string

// Encode encodes the query in URL form, sorted by key.
func (q Query) Encode() string {
	v := make(url.Values, len(q))
	for k, val := range q {
		v.Set(k, val)
	}
	return v.Encode()
}

// Go runs op on its own goroutine and returns the channel its result will be delivered on.
// The channel yields exactly one result, then is closed.
func Go[T any](ctx context.Context, op func(context.Context) (T, error)) <-chan model.Result[T] {
	ch := make(chan model.Result[T], 1)
	go func() {
		defer close(ch)
		v, err := op(ctx)
		if err != nil {
			ch <- model.Fail[T](err)
			return
		}
		ch <- model.Ok(v)
	}()
	return ch
}
