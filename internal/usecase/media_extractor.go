package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/user/college-service/internal/entity"
	"github.com/user/college-service/internal/repository"
	"github.com/user/college-service/pkg/metrics"
)

// MediaExtractor replaces embedded images in a record with hosted URLs.
type MediaExtractor interface {
	// Extract returns a copy of rec in which every embedded image payload has
	// been uploaded and replaced by its URL. rec itself is left untouched.
	// On failure no record is returned and any assets uploaded during the
	// call are deleted again.
	Extract(ctx context.Context, rec entity.Record) (*Extracted, error)
	// Discard deletes assets that were uploaded but never stored. Failures
	// are logged and counted, not returned.
	Discard(ctx context.Context, assets []repository.Asset)
}

// Upload is one payload replaced during extraction. Path locates it the
// same way ExtractionError does.
type Upload struct {
	Path  string
	Asset repository.Asset
}

// Extracted is the result of a successful Extract.
type Extracted struct {
	Record  entity.Record
	Uploads []Upload
}

// Assets lists every uploaded asset in upload order.
func (e *Extracted) Assets() []repository.Asset {
	out := make([]repository.Asset, len(e.Uploads))
	for i, u := range e.Uploads {
		out[i] = u.Asset
	}
	return out
}

// AssetAt returns the asset that replaced the payload at path.
func (e *Extracted) AssetAt(path string) (repository.Asset, bool) {
	for _, u := range e.Uploads {
		if u.Path == path {
			return u.Asset, true
		}
	}
	return repository.Asset{}, false
}

type mediaExtractor struct {
	store  repository.MediaStore
	folder string
	logger *zap.Logger
}

// NewMediaExtractor creates a MediaExtractor uploading into folder.
func NewMediaExtractor(store repository.MediaStore, folder string, logger *zap.Logger) MediaExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &mediaExtractor{store: store, folder: folder, logger: logger}
}

// extraction holds the state of one Extract call.
type extraction struct {
	ctx      context.Context
	x        *mediaExtractor
	uploaded []Upload
}

func (e *mediaExtractor) Extract(ctx context.Context, rec entity.Record) (*Extracted, error) {
	run := &extraction{ctx: ctx, x: e}
	out, err := run.record(rec, "")
	if err != nil {
		res := Extracted{Uploads: run.uploaded}
		e.Discard(ctx, res.Assets())
		return nil, err
	}
	if len(run.uploaded) > 0 {
		e.logger.Debug("embedded images externalized", zap.Int("count", len(run.uploaded)))
	}
	return &Extracted{Record: out, Uploads: run.uploaded}, nil
}

func (r *extraction) record(rec entity.Record, path string) (entity.Record, error) {
	if rec == nil {
		return nil, nil
	}
	out := make(entity.Record, len(rec))
	for key, v := range rec {
		nv, err := r.value(v, joinKey(path, key))
		if err != nil {
			return nil, err
		}
		out[key] = nv
	}
	return out, nil
}

func (r *extraction) value(v entity.Value, path string) (entity.Value, error) {
	payload := ClassifyMedia(v)
	switch payload.Kind {
	case MalformedMedia:
		metrics.EmbeddedPayloadsTotal.WithLabelValues(payload.Kind.String()).Inc()
		return entity.Value{}, &ExtractionError{Path: path, Err: payload.Err}
	case EncodedInline, RawBytes:
		metrics.EmbeddedPayloadsTotal.WithLabelValues(payload.Kind.String()).Inc()
		url, err := r.upload(payload.Data, path)
		if err != nil {
			return entity.Value{}, err
		}
		return entity.String(url), nil
	}

	switch v.Kind() {
	case entity.KindMapping:
		m, _ := v.AsMapping()
		nm, err := r.record(m, path)
		if err != nil {
			return entity.Value{}, err
		}
		return entity.Mapping(nm), nil
	case entity.KindSequence:
		seq, _ := v.AsSequence()
		out := make([]entity.Value, len(seq))
		for i, el := range seq {
			nv, err := r.value(el, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return entity.Value{}, err
			}
			out[i] = nv
		}
		return entity.Sequence(out...), nil
	}
	return v, nil
}

func (r *extraction) upload(data []byte, path string) (string, error) {
	if err := r.ctx.Err(); err != nil {
		return "", err
	}
	asset, err := r.x.store.Upload(r.ctx, data, repository.UploadOptions{Folder: r.x.folder})
	if err != nil {
		var upErr *repository.UploadError
		if !errors.As(err, &upErr) {
			err = &repository.UploadError{Folder: r.x.folder, Err: err}
		}
		return "", fmt.Errorf("%s: %w", path, err)
	}
	r.uploaded = append(r.uploaded, Upload{Path: path, Asset: asset})
	return asset.URL, nil
}

func (e *mediaExtractor) Discard(ctx context.Context, assets []repository.Asset) {
	ctx = context.WithoutCancel(ctx)
	for _, a := range assets {
		ref := a.PublicID
		if ref == "" {
			var err error
			if ref, err = e.store.Reference(a.URL); err != nil {
				e.logger.Warn("cannot derive reference for orphaned asset", zap.String("url", a.URL), zap.Error(err))
				metrics.AssetCleanupFailuresTotal.Inc()
				continue
			}
		}
		if err := e.store.Delete(ctx, ref); err != nil {
			e.logger.Warn("failed to delete orphaned asset", zap.String("reference", ref), zap.Error(err))
			metrics.AssetCleanupFailuresTotal.Inc()
		}
	}
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
