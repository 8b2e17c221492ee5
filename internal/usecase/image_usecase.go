package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/college-service/internal/entity"
	"github.com/user/college-service/internal/repository"
)

const (
	// MaxBatchFiles caps UploadBatch.
	MaxBatchFiles = 10
	// crmMaxWidth limits the width of images uploaded to the CRM folder.
	crmMaxWidth = 1000
)

// ImageUploader defines the standalone image upload operations.
type ImageUploader interface {
	// UploadFile stores an uploaded file in the college media folder.
	UploadFile(ctx context.Context, data []byte) (repository.Asset, error)
	// UploadEmbedded stores an inline payload, either a data URL or a byte
	// buffer. Anything else yields ErrInvalidImage.
	UploadEmbedded(ctx context.Context, image entity.Value) (repository.Asset, error)
	// UploadBatch stores up to MaxBatchFiles files in the CRM folder
	// concurrently. Results keep the order of files.
	UploadBatch(ctx context.Context, files [][]byte) ([]repository.Asset, error)
}

type imageUseCase struct {
	media     repository.MediaStore
	folder    string
	crmFolder string
	logger    *zap.Logger
}

// NewImageUploader creates a new ImageUploader use case.
func NewImageUploader(media repository.MediaStore, folder, crmFolder string, logger *zap.Logger) ImageUploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &imageUseCase{media: media, folder: folder, crmFolder: crmFolder, logger: logger}
}

func (uc *imageUseCase) UploadFile(ctx context.Context, data []byte) (repository.Asset, error) {
	if len(data) == 0 {
		return repository.Asset{}, ErrInvalidImage
	}
	return uc.media.Upload(ctx, data, repository.UploadOptions{Folder: uc.folder})
}

func (uc *imageUseCase) UploadEmbedded(ctx context.Context, image entity.Value) (repository.Asset, error) {
	payload := ClassifyMedia(image)
	switch payload.Kind {
	case EncodedInline, RawBytes:
		return uc.media.Upload(ctx, payload.Data, repository.UploadOptions{Folder: uc.folder})
	case MalformedMedia:
		return repository.Asset{}, fmt.Errorf("%w: %v", ErrInvalidImage, payload.Err)
	}
	return repository.Asset{}, ErrInvalidImage
}

func (uc *imageUseCase) UploadBatch(ctx context.Context, files [][]byte) ([]repository.Asset, error) {
	if len(files) == 0 {
		return nil, ErrInvalidImage
	}
	if len(files) > MaxBatchFiles {
		return nil, fmt.Errorf("%w: got %d, limit %d", ErrTooManyFiles, len(files), MaxBatchFiles)
	}

	for i, data := range files {
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: file %d is empty", ErrInvalidImage, i)
		}
	}

	opts := repository.UploadOptions{Folder: uc.crmFolder, MaxWidth: crmMaxWidth}
	assets := make([]repository.Asset, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, data := range files {
		g.Go(func() error {
			asset, err := uc.media.Upload(gctx, data, opts)
			if err != nil {
				return err
			}
			assets[i] = asset
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		uc.discard(ctx, assets)
		return nil, err
	}
	return assets, nil
}

func (uc *imageUseCase) discard(ctx context.Context, assets []repository.Asset) {
	ctx = context.WithoutCancel(ctx)
	for _, a := range assets {
		if a.PublicID == "" {
			continue
		}
		if err := uc.media.Delete(ctx, a.PublicID); err != nil {
			uc.logger.Warn("failed to delete asset from failed batch", zap.String("reference", a.PublicID), zap.Error(err))
		}
	}
}
