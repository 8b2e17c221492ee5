package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/college-service/internal/entity"
	"github.com/user/college-service/internal/repository"
	"github.com/user/college-service/pkg/utils"
)

const (
	collegeKeyPrefix     = "colleges:"
	collegeGenerationKey = "colleges:gen"
)

// CollegeCacheImpl provides a concrete implementation for the CollegeCache interface using Redis.
//
// Listings are stored under a generation number. Invalidate bumps the
// generation so every earlier listing becomes unreachable and expires on
// its own TTL.
type CollegeCacheImpl struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCollegeCache creates a new instance of CollegeCacheImpl.
func NewCollegeCache(client *redis.Client, ttl time.Duration) *CollegeCacheImpl {
	return &CollegeCacheImpl{client: client, ttl: ttl}
}

// generation returns the current listing generation.
func (c *CollegeCacheImpl) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, collegeGenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return gen, nil
}

// generateKey creates a consistent Redis key for a filter by hashing it.
func generateKey(gen int64, filter repository.CollegeFilter) string {
	return fmt.Sprintf("%s%d:%s", collegeKeyPrefix, gen, utils.HashKey("name="+filter.CollegeName))
}

// GetList returns the cached listing for a filter together with the
// generation it was looked up in.
func (c *CollegeCacheImpl) GetList(ctx context.Context, filter repository.CollegeFilter) (repository.ListLookup, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return repository.ListLookup{}, err
	}
	lookup := repository.ListLookup{Generation: gen}
	raw, err := c.client.Get(ctx, generateKey(gen, filter)).Bytes()
	if errors.Is(err, redis.Nil) {
		return lookup, nil
	}
	if err != nil {
		return repository.ListLookup{}, err
	}

	var colleges []entity.College
	if err := json.Unmarshal(raw, &colleges); err != nil {
		// a corrupt entry behaves like a miss and is overwritten by the next SetList
		return lookup, nil
	}
	if colleges == nil {
		colleges = []entity.College{}
	}
	lookup.Colleges, lookup.Hit = colleges, true
	return lookup, nil
}

// SetList caches a listing under generation with the configured expiry.
// A listing read before an Invalidate lands in a generation nobody looks
// up any more.
func (c *CollegeCacheImpl) SetList(ctx context.Context, filter repository.CollegeFilter, generation int64, colleges []entity.College) error {
	payload, err := json.Marshal(colleges)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, generateKey(generation, filter), payload, c.ttl).Err()
}

// Invalidate drops all cached listings by moving to a new generation.
func (c *CollegeCacheImpl) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, collegeGenerationKey).Err()
}

// Ping checks the connection to Redis.
func (c *CollegeCacheImpl) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
