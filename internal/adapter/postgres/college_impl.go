package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/college-service/internal/entity"
	"github.com/user/college-service/internal/repository"
)

// schemaDDL creates the document table. Each college is one JSONB document
// keyed by a UUID.
const schemaDDL = `
	CREATE TABLE IF NOT EXISTS colleges (
		id         UUID PRIMARY KEY,
		doc        JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS colleges_name_idx ON colleges ((doc->>'collegeName'));
`

// CollegeRepoImpl provides a concrete implementation for the CollegeRepository interface using PostgreSQL.
type CollegeRepoImpl struct {
	db    *pgxpool.Pool
	newID func() uuid.UUID
	now   func() time.Time
}

// NewCollegeRepo creates a new instance of CollegeRepoImpl.
func NewCollegeRepo(db *pgxpool.Pool) *CollegeRepoImpl {
	return &CollegeRepoImpl{db: db, newID: uuid.New, now: time.Now}
}

// EnsureSchema creates the colleges table when it does not exist yet.
func (r *CollegeRepoImpl) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create colleges table: %w", err)
	}
	return nil
}

// Find retrieves every college matching the filter in insertion order.
func (r *CollegeRepoImpl) Find(ctx context.Context, filter repository.CollegeFilter) ([]entity.College, error) {
	query := `SELECT id, doc FROM colleges ORDER BY created_at, id;`
	args := []any{}
	if filter.CollegeName != "" {
		query = `SELECT id, doc FROM colleges WHERE doc->>'collegeName' = $1 ORDER BY created_at, id;`
		args = append(args, filter.CollegeName)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colleges := []entity.College{}
	for rows.Next() {
		c, err := scanCollege(rows)
		if err != nil {
			return nil, err
		}
		colleges = append(colleges, *c)
	}
	return colleges, rows.Err()
}

// FindByID retrieves a single college.
func (r *CollegeRepoImpl) FindByID(ctx context.Context, id string) (*entity.College, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, doc FROM colleges WHERE id = $1;`, uid)
	return notFound(scanCollege(row))
}

// Insert stores a new college document under a fresh id.
func (r *CollegeRepoImpl) Insert(ctx context.Context, doc entity.Record) (*entity.College, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode college: %w", err)
	}

	query := `
		INSERT INTO colleges (id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING id, doc;
	`
	row := r.db.QueryRow(ctx, query, r.newID(), payload, r.now().UTC())
	return scanCollege(row)
}

// UpdateByID merges the given top-level fields into the stored document.
func (r *CollegeRepoImpl) UpdateByID(ctx context.Context, id string, doc entity.Record) (*entity.College, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode college: %w", err)
	}

	// jsonb || replaces top-level keys, leaving the rest of the document as is.
	query := `
		UPDATE colleges SET
			doc = doc || $2::jsonb,
			updated_at = $3
		WHERE id = $1
		RETURNING id, doc;
	`
	row := r.db.QueryRow(ctx, query, uid, payload, r.now().UTC())
	return notFound(scanCollege(row))
}

// DeleteByID removes a college document.
func (r *CollegeRepoImpl) DeleteByID(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return repository.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM colleges WHERE id = $1;`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping checks the connection pool.
func (r *CollegeRepoImpl) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanCollege(row pgx.Row) (*entity.College, error) {
	var (
		id  uuid.UUID
		raw []byte
	)
	if err := row.Scan(&id, &raw); err != nil {
		return nil, err
	}
	var doc entity.Record
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode college %s: %w", id, err)
	}
	if doc == nil {
		doc = entity.Record{}
	}
	return &entity.College{ID: id.String(), Document: doc}, nil
}

func notFound(c *entity.College, err error) (*entity.College, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return c, err
}
