// Package repository mediates between the presentation layer and a record provider.
package repository

import (
	"context"

	"github.com/ubuntu/recordfeed/internal/api"
	"github.com/ubuntu/recordfeed/internal/model"
)

// Repository forwards every call to its source and returns its results unchanged.
// It holds no state beyond the source: no cache, no retry, no transformation.
type Repository struct {
	source api.RecordAPI
}

// New returns a Repository over source.
func New(source api.RecordAPI) *Repository {
	return &Repository{source: source}
}

// Record forwards to the source.
func (r *Repository) Record(ctx context.Context, id string) (model.Record, error) {
	return r.source.Record(ctx, id)
}

// Records forwards to the source.
func (r *Repository) Records(ctx context.Context, q api.Query) ([]model.Record, error) {
	return r.source.Records(ctx, q)
}
