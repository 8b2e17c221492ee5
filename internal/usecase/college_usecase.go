package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/college-service/internal/entity"
	"github.com/user/college-service/internal/repository"
	"github.com/user/college-service/pkg/metrics"
)

// CollegeManager defines the college CRUD operations exposed over HTTP.
type CollegeManager interface {
	List(ctx context.Context) ([]entity.College, error)
	FindByName(ctx context.Context, name string) ([]entity.College, error)
	// Create externalizes embedded images in doc and stores the result.
	Create(ctx context.Context, doc entity.Record) (*entity.College, error)
	// CreateWithUpload stores doc as-is, attaching image (when non-empty)
	// as the college's imageUrl.
	CreateWithUpload(ctx context.Context, doc entity.Record, image []byte) (*entity.College, error)
	Update(ctx context.Context, id string, doc entity.Record) (*entity.College, error)
	UpdateWithUpload(ctx context.Context, id string, doc entity.Record, image []byte) (*entity.College, error)
	// Delete removes the college. Failing to delete its hosted image does
	// not block the removal.
	Delete(ctx context.Context, id string) error
}

type collegeUseCase struct {
	repo      repository.CollegeRepository
	cache     repository.CollegeCache
	media     repository.MediaStore
	extractor MediaExtractor
	folder    string
	logger    *zap.Logger
}

// NewCollegeManager creates a new CollegeManager use case. cache may be nil.
func NewCollegeManager(
	repo repository.CollegeRepository,
	cache repository.CollegeCache,
	media repository.MediaStore,
	extractor MediaExtractor,
	folder string,
	logger *zap.Logger,
) CollegeManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &collegeUseCase{
		repo:      repo,
		cache:     cache,
		media:     media,
		extractor: extractor,
		folder:    folder,
		logger:    logger,
	}
}

func (uc *collegeUseCase) List(ctx context.Context) ([]entity.College, error) {
	return uc.find(ctx, repository.CollegeFilter{})
}

func (uc *collegeUseCase) FindByName(ctx context.Context, name string) ([]entity.College, error) {
	return uc.find(ctx, repository.CollegeFilter{CollegeName: name})
}

func (uc *collegeUseCase) find(ctx context.Context, filter repository.CollegeFilter) ([]entity.College, error) {
	var (
		cacheable  bool
		generation int64
	)
	if uc.cache != nil {
		lookup, err := uc.cache.GetList(ctx, filter)
		switch {
		case err != nil:
			metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
			uc.logger.Warn("college cache lookup failed", zap.Error(err))
		case lookup.Hit:
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			return lookup.Colleges, nil
		default:
			metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
			cacheable, generation = true, lookup.Generation
		}
	}

	colleges, err := uc.repo.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find colleges: %w", err)
	}
	if colleges == nil {
		colleges = []entity.College{}
	}

	if cacheable {
		if err := uc.cache.SetList(ctx, filter, generation, colleges); err != nil {
			uc.logger.Warn("failed to cache colleges", zap.Error(err))
		}
	}
	return colleges, nil
}

func (uc *collegeUseCase) Create(ctx context.Context, doc entity.Record) (*entity.College, error) {
	prepared, assets, err := uc.prepare(ctx, doc, false)
	if err != nil {
		return nil, err
	}
	return uc.insert(ctx, prepared, assets)
}

func (uc *collegeUseCase) CreateWithUpload(ctx context.Context, doc entity.Record, image []byte) (*entity.College, error) {
	prepared, assets, err := uc.attach(ctx, doc, image, false)
	if err != nil {
		return nil, err
	}
	return uc.insert(ctx, prepared, assets)
}

func (uc *collegeUseCase) Update(ctx context.Context, id string, doc entity.Record) (*entity.College, error) {
	prepared, assets, err := uc.prepare(ctx, doc, true)
	if err != nil {
		return nil, err
	}
	return uc.update(ctx, id, prepared, assets)
}

func (uc *collegeUseCase) UpdateWithUpload(ctx context.Context, id string, doc entity.Record, image []byte) (*entity.College, error) {
	prepared, assets, err := uc.attach(ctx, doc, image, true)
	if err != nil {
		return nil, err
	}
	return uc.update(ctx, id, prepared, assets)
}

// insert stores doc. assets were uploaded for doc and are deleted again
// when the store rejects it.
func (uc *collegeUseCase) insert(ctx context.Context, doc entity.Record, assets []repository.Asset) (*entity.College, error) {
	college, err := uc.repo.Insert(ctx, doc)
	if err != nil {
		uc.extractor.Discard(ctx, assets)
		return nil, fmt.Errorf("failed to insert college: %w", err)
	}
	uc.invalidate(ctx)
	return college, nil
}

func (uc *collegeUseCase) update(ctx context.Context, id string, doc entity.Record, assets []repository.Asset) (*entity.College, error) {
	college, err := uc.repo.UpdateByID(ctx, id, doc)
	if err != nil {
		uc.extractor.Discard(ctx, assets)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update college %s: %w", id, err)
	}
	uc.invalidate(ctx)
	return college, nil
}

func (uc *collegeUseCase) Delete(ctx context.Context, id string) error {
	college, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to load college %s: %w", id, err)
	}

	if ref := uc.imageReference(college); ref != "" {
		if err := uc.media.Delete(ctx, ref); err != nil {
			// cleanup failures never block the deletion
			metrics.AssetCleanupFailuresTotal.Inc()
			uc.logger.Warn("failed to delete college image", zap.String("id", id), zap.String("reference", ref), zap.Error(err))
		}
	}

	if err := uc.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete college %s: %w", id, err)
	}
	uc.invalidate(ctx)
	return nil
}

// prepare restricts doc to the college schema and externalizes its
// embedded images. Schema checks run first so a rejected document never
// uploads anything. The returned assets were uploaded for doc.
func (uc *collegeUseCase) prepare(ctx context.Context, doc entity.Record, partial bool) (entity.Record, []repository.Asset, error) {
	conformed, err := entity.CollegeSchema.Conform(doc, entity.ConformOptions{
		Partial: partial,
		Pending: IsEmbeddedMedia,
	})
	if err != nil {
		return nil, nil, err
	}
	res, err := uc.extractor.Extract(ctx, conformed)
	if err != nil {
		return nil, nil, err
	}
	var uploaded *repository.Asset
	if asset, ok := res.AssetAt(entity.FieldImageURL); ok {
		uploaded = &asset
	}
	syncImagePublicID(res.Record, uploaded, partial)
	return res.Record, res.Assets(), nil
}

// attach uploads image and records it on doc. Embedded payloads in doc
// are not extracted on this path.
func (uc *collegeUseCase) attach(ctx context.Context, doc entity.Record, image []byte, partial bool) (entity.Record, []repository.Asset, error) {
	conformed, err := entity.CollegeSchema.Conform(doc, entity.ConformOptions{Partial: partial})
	if err != nil {
		return nil, nil, err
	}
	if len(image) == 0 {
		syncImagePublicID(conformed, nil, partial)
		return conformed, nil, nil
	}
	asset, err := uc.media.Upload(ctx, image, repository.UploadOptions{Folder: uc.folder})
	if err != nil {
		return nil, nil, err
	}
	conformed[entity.FieldImageURL] = entity.String(asset.URL)
	syncImagePublicID(conformed, &asset, partial)
	return conformed, []repository.Asset{asset}, nil
}

// syncImagePublicID keeps imagePublicId pointing at the asset behind
// imageUrl whenever a write sets imageUrl. An explicit imagePublicId in
// the write wins unless the image was uploaded by this write. When the
// asset is unknown, updates clear the stored id so deletion falls back to
// deriving the reference from the URL.
func syncImagePublicID(doc entity.Record, uploaded *repository.Asset, partial bool) {
	if uploaded != nil {
		if uploaded.PublicID != "" {
			doc[entity.FieldImagePublicID] = entity.String(uploaded.PublicID)
		} else if partial {
			doc[entity.FieldImagePublicID] = entity.Null()
		} else {
			delete(doc, entity.FieldImagePublicID)
		}
		return
	}
	if _, setsURL := doc[entity.FieldImageURL]; !setsURL {
		return
	}
	if _, setsID := doc[entity.FieldImagePublicID]; setsID {
		return
	}
	if partial {
		doc[entity.FieldImagePublicID] = entity.Null()
	}
}

// imageReference prefers the stored public id and falls back to deriving
// it from the stored image URL.
func (uc *collegeUseCase) imageReference(c *entity.College) string {
	if id, ok := c.Document[entity.FieldImagePublicID].AsString(); ok && id != "" {
		return id
	}
	url, ok := c.Document[entity.FieldImageURL].AsString()
	if !ok || url == "" {
		return ""
	}
	ref, err := uc.media.Reference(url)
	if err != nil {
		uc.logger.Warn("cannot derive image reference", zap.String("url", url), zap.Error(err))
		return ""
	}
	return ref
}

func (uc *collegeUseCase) invalidate(ctx context.Context) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Invalidate(ctx); err != nil {
		uc.logger.Warn("failed to invalidate college cache", zap.Error(err))
	}
}
