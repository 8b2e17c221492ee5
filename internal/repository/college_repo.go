package repository

import (
	"context"
	"errors"

	"github.com/user/college-service/internal/entity"
)

// ErrNotFound is returned when no college matches the given identifier.
var ErrNotFound = errors.New("college not found")

// CollegeFilter narrows Find. The zero value matches every college.
type CollegeFilter struct {
	CollegeName string
}

// CollegeRepository defines the record store for college documents.
type CollegeRepository interface {
	// Find returns every college matching the filter, oldest first.
	Find(ctx context.Context, filter CollegeFilter) ([]entity.College, error)
	// FindByID returns ErrNotFound when the id is unknown or malformed.
	FindByID(ctx context.Context, id string) (*entity.College, error)
	// Insert stores a new document and returns it with its assigned id.
	Insert(ctx context.Context, doc entity.Record) (*entity.College, error)
	// UpdateByID merges the given top-level fields into the stored document
	// and returns the result.
	UpdateByID(ctx context.Context, id string, doc entity.Record) (*entity.College, error)
	// DeleteByID removes a document.
	DeleteByID(ctx context.Context, id string) error
	// Ping checks connectivity for health reporting.
	Ping(ctx context.Context) error
}
