package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/user/college-service/internal/entity"
	"github.com/user/college-service/internal/repository"
)

type fakeMediaStore struct {
	mu        sync.Mutex
	attempts  int
	uploads   [][]byte
	opts      []repository.UploadOptions
	deleted   []string
	failOn    int    // 1-based attempt that fails; 0 never fails
	fixedURL  string // when set every upload returns this URL
	deleteErr error
}

func (f *fakeMediaStore) Upload(_ context.Context, data []byte, opts repository.UploadOptions) (repository.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failOn == f.attempts {
		return repository.Asset{}, &repository.UploadError{Folder: opts.Folder, Err: errors.New("store rejected payload")}
	}
	f.uploads = append(f.uploads, data)
	f.opts = append(f.opts, opts)
	id := fmt.Sprintf("%s/img%d", opts.Folder, f.attempts)
	url := "https://cdn/" + id + ".png"
	if f.fixedURL != "" {
		url = f.fixedURL
	}
	return repository.Asset{URL: url, PublicID: id}, nil
}

func (f *fakeMediaStore) Delete(_ context.Context, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, reference)
	return f.deleteErr
}

func (f *fakeMediaStore) Reference(url string) (string, error) {
	trimmed := strings.TrimSuffix(url, "/")
	file := path.Base(trimmed)
	folder := path.Base(path.Dir(trimmed))
	if folder == "." || folder == "/" || folder == "" {
		return "", errors.New("no folder")
	}
	return folder + "/" + strings.TrimSuffix(file, path.Ext(file)), nil
}

func (f *fakeMediaStore) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

type fakeCollegeRepo struct {
	mu       sync.Mutex
	nextID   int
	docs     map[string]entity.Record
	order    []string
	inserts  int
	updates  int
	finds    int
	deletes  int
	findErr   error
	insertErr error
	deleteFn  func(id string) error
	afterFind func() // runs once Find has read the store, outside the lock
}

func newFakeCollegeRepo() *fakeCollegeRepo {
	return &fakeCollegeRepo{docs: map[string]entity.Record{}}
}

func (r *fakeCollegeRepo) Find(_ context.Context, filter repository.CollegeFilter) ([]entity.College, error) {
	out, err := r.find(filter)
	if r.afterFind != nil {
		hook := r.afterFind
		r.afterFind = nil
		hook()
	}
	return out, err
}

func (r *fakeCollegeRepo) find(filter repository.CollegeFilter) ([]entity.College, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []entity.College
	for _, id := range r.order {
		doc, ok := r.docs[id]
		if !ok {
			continue
		}
		if filter.CollegeName != "" {
			if name, _ := doc[entity.FieldCollegeName].AsString(); name != filter.CollegeName {
				continue
			}
		}
		out = append(out, entity.College{ID: id, Document: doc.Clone()})
	}
	return out, nil
}

func (r *fakeCollegeRepo) FindByID(_ context.Context, id string) (*entity.College, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &entity.College{ID: id, Document: doc.Clone()}, nil
}

func (r *fakeCollegeRepo) Insert(_ context.Context, doc entity.Record) (*entity.College, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.insertErr != nil {
		return nil, r.insertErr
	}
	r.nextID++
	id := strconv.Itoa(r.nextID)
	r.docs[id] = doc.Clone()
	r.order = append(r.order, id)
	return &entity.College{ID: id, Document: doc.Clone()}, nil
}

func (r *fakeCollegeRepo) UpdateByID(_ context.Context, id string, doc entity.Record) (*entity.College, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	stored, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for k, v := range doc {
		stored[k] = v
	}
	return &entity.College{ID: id, Document: stored.Clone()}, nil
}

func (r *fakeCollegeRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	if r.deleteFn != nil {
		if err := r.deleteFn(id); err != nil {
			return err
		}
	}
	if _, ok := r.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *fakeCollegeRepo) Ping(context.Context) error { return nil }

func (r *fakeCollegeRepo) seed(doc entity.Record) string {
	c, _ := r.Insert(context.Background(), doc)
	r.inserts = 0
	return c.ID
}

// fakeCache mirrors the redis cache: listings live under the generation
// they were stored with and Invalidate moves to a new one.
type fakeCache struct {
	generation  int64
	lists       map[string][]entity.College
	invalidated int
}

func newFakeCache() *fakeCache { return &fakeCache{lists: map[string][]entity.College{}} }

func fakeCacheKey(gen int64, f repository.CollegeFilter) string {
	return strconv.FormatInt(gen, 10) + ":" + f.CollegeName
}

func (c *fakeCache) GetList(_ context.Context, f repository.CollegeFilter) (repository.ListLookup, error) {
	v, ok := c.lists[fakeCacheKey(c.generation, f)]
	return repository.ListLookup{Colleges: v, Hit: ok, Generation: c.generation}, nil
}

func (c *fakeCache) SetList(_ context.Context, f repository.CollegeFilter, gen int64, cs []entity.College) error {
	c.lists[fakeCacheKey(gen, f)] = cs
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.invalidated++
	c.generation++
	return nil
}

func mustRecord(s string) entity.Record {
	rec, err := entity.DecodeRecord(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return rec
}
