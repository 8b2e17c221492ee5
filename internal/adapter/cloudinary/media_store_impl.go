package cloudinary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"

	"github.com/user/college-service/internal/repository"
	"github.com/user/college-service/pkg/metrics"
	"github.com/user/college-service/pkg/utils"
)

// DefaultAllowedFormats are the image formats accepted on upload.
var DefaultAllowedFormats = []string{"jpg", "jpeg", "png", "gif", "webp"}

// destroyNotFound is the destroy result for an asset that no longer exists.
const destroyNotFound = "not found"

// Config holds the media store settings.
type Config struct {
	CloudName      string
	APIKey         string
	APISecret      string
	Folder         string
	AllowedFormats []string
	UploadTimeout  time.Duration
}

// assetUploader is the subset of the Cloudinary upload API the store uses.
type assetUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// MediaStoreImpl provides a concrete implementation for the MediaStore interface using Cloudinary.
type MediaStoreImpl struct {
	api    assetUploader
	cfg    Config
	logger *zap.Logger
}

// NewMediaStore creates a Cloudinary-backed media store.
func NewMediaStore(cfg Config, logger *zap.Logger) (*MediaStoreImpl, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary client: %w", err)
	}
	return newMediaStore(&cld.Upload, cfg, logger), nil
}

func newMediaStore(client assetUploader, cfg Config, logger *zap.Logger) *MediaStoreImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.AllowedFormats) == 0 {
		cfg.AllowedFormats = DefaultAllowedFormats
	}
	return &MediaStoreImpl{api: client, cfg: cfg, logger: logger}
}

// Upload stores data and returns the hosted asset.
func (s *MediaStoreImpl) Upload(ctx context.Context, data []byte, opts repository.UploadOptions) (repository.Asset, error) {
	folder := opts.Folder
	if folder == "" {
		folder = s.cfg.Folder
	}
	if len(data) == 0 {
		return repository.Asset{}, &repository.UploadError{Folder: folder, Err: errors.New("empty payload")}
	}

	if s.cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.UploadTimeout)
		defer cancel()
	}

	params := uploader.UploadParams{
		Folder:         folder,
		AllowedFormats: api.CldAPIArray(s.cfg.AllowedFormats),
	}
	if opts.MaxWidth > 0 {
		params.Transformation = fmt.Sprintf("c_limit,w_%d", opts.MaxWidth)
	}

	start := time.Now()
	res, err := s.api.Upload(ctx, bytes.NewReader(data), params)
	metrics.MediaUploadDuration.Observe(time.Since(start).Seconds())
	if err == nil && res == nil {
		err = errors.New("empty response")
	}
	if err == nil && res.Error.Message != "" {
		err = errors.New(res.Error.Message)
	}
	if err == nil && res.SecureURL == "" {
		err = errors.New("response carries no url")
	}
	if err != nil {
		metrics.MediaUploadsTotal.WithLabelValues("failure").Inc()
		s.logger.Warn("media upload failed", zap.String("folder", folder), zap.Int("bytes", len(data)), zap.Error(err))
		return repository.Asset{}, &repository.UploadError{Folder: folder, Err: err}
	}

	metrics.MediaUploadsTotal.WithLabelValues("success").Inc()
	s.logger.Debug("media uploaded", zap.String("public_id", res.PublicID), zap.Int("bytes", len(data)))
	return repository.Asset{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

// Delete removes an asset by public id. An asset that is already gone
// counts as deleted.
func (s *MediaStoreImpl) Delete(ctx context.Context, reference string) error {
	if reference == "" {
		return errors.New("empty media reference")
	}
	res, err := s.api.Destroy(ctx, uploader.DestroyParams{PublicID: reference})
	if err != nil {
		return fmt.Errorf("destroy %s: %w", reference, err)
	}
	if res == nil {
		return nil
	}
	if res.Error.Message != "" {
		return fmt.Errorf("destroy %s: %s", reference, res.Error.Message)
	}
	if res.Result != "" && res.Result != "ok" && res.Result != destroyNotFound {
		return fmt.Errorf("destroy %s: unexpected result %q", reference, res.Result)
	}
	return nil
}

// Reference derives the public id from a hosted URL.
func (s *MediaStoreImpl) Reference(url string) (string, error) {
	return ReferenceFromURL(url)
}

// ReferenceFromURL returns the folder and file name of a hosted URL without
// the extension: https://host/.../colleges/abc123.png -> colleges/abc123.
func ReferenceFromURL(rawURL string) (string, error) {
	segments, err := utils.LastPathSegments(rawURL, 2)
	if err != nil {
		return "", fmt.Errorf("derive media reference: %w", err)
	}
	file := strings.TrimSuffix(segments[1], path.Ext(segments[1]))
	if file == "" {
		return "", fmt.Errorf("derive media reference: %q has no file name", rawURL)
	}
	return segments[0] + "/" + file, nil
}
