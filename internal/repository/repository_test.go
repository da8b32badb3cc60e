package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/recordfeed/internal/api"
	"github.com/ubuntu/recordfeed/internal/model"
	"github.com/ubuntu/recordfeed/internal/repository"
)

var _ api.RecordAPI = (*repository.Repository)(nil)

type ctxKey struct{}

type fakeSource struct {
	record  model.Record
	records []model.Record
	err     error

	gotID    string
	gotQuery api.Query
	gotCtx   context.Context
	calls    int
}

func (s *fakeSource) Record(ctx context.Context, id string) (model.Record, error) {
	s.calls++
	s.gotCtx, s.gotID = ctx, id
	return s.record, s.err
}

func (s *fakeSource) Records(ctx context.Context, q api.Query) ([]model.Record, error) {
	s.calls++
	s.gotCtx, s.gotQuery = ctx, q
	return s.records, s.err
}

func TestRecord(t *testing.T) {
	t.Parallel()

	errRemote := &api.RemoteError{Target: "http://example.com/1", StatusCode: 500}

	tests := map[string]struct {
		record model.Record
		err    error
	}{
		"Forwards record": {record: model.Record{ID: "1", Name: "A"}},
		"Forwards error":  {err: errRemote},
		"Forwards both":   {record: model.Record{ID: "1"}, err: errRemote},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			src := &fakeSource{record: tc.record, err: tc.err}
			r := repository.New(src)
			ctx := context.WithValue(context.Background(), ctxKey{}, name)

			got, err := r.Record(ctx, "some/id")

			assert.Equal(t, tc.record, got, "Record should return the source record unchanged")
			if tc.err != nil {
				assert.Same(t, tc.err, err, "Record should return the source error unchanged")
			} else {
				assert.NoError(t, err, "Record should not fail when the source does not")
			}
			assert.Equal(t, "some/id", src.gotID, "Record should forward the id unchanged")
			assert.Equal(t, name, src.gotCtx.Value(ctxKey{}), "Record should forward the context")
			assert.Equal(t, 1, src.calls, "Record should call the source exactly once")
		})
	}
}

func TestRecords(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		q       api.Query
		records []model.Record
		err     error
	}{
		"Forwards records":      {q: api.Query{"name": "A"}, records: []model.Record{{ID: "2"}, {ID: "1"}}},
		"Forwards empty result": {records: []model.Record{}},
		"Forwards error":        {q: api.Query{"color": "blue"}, err: errors.New("boom")},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			src := &fakeSource{records: tc.records, err: tc.err}
			r := repository.New(src)

			got, err := r.Records(context.Background(), tc.q)

			assert.Equal(t, tc.records, got, "Records should return the source records unchanged")
			assert.Equal(t, tc.err, err, "Records should return the source error unchanged")
			assert.Equal(t, tc.q, src.gotQuery, "Records should forward the query unchanged")
			require.Equal(t, 1, src.calls, "Records should call the source exactly once")
		})
	}
}
