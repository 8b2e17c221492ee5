package repository

import (
	"context"

	"github.com/user/college-service/internal/entity"
)

// ListLookup is the outcome of CollegeCache.GetList. Generation identifies
// the cache state the lookup saw; a listing read from the store after a
// miss is cached under that generation, so an invalidation that happens in
// between makes it unreachable.
type ListLookup struct {
	Colleges   []entity.College
	Hit        bool
	Generation int64
}

// CollegeCache defines a read-through cache for college listings.
type CollegeCache interface {
	// GetList returns the cached result for a filter.
	GetList(ctx context.Context, filter CollegeFilter) (ListLookup, error)
	// SetList stores the result for a filter under the generation returned
	// by the GetList that missed.
	SetList(ctx context.Context, filter CollegeFilter, generation int64, colleges []entity.College) error
	// Invalidate drops every cached listing, typically after a write.
	Invalidate(ctx context.Context) error
}
