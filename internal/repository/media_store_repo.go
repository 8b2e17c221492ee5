package repository

import (
	"context"
	"fmt"
)

// Asset is a hosted media object.
type Asset struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// UploadOptions controls where and how an asset is stored.
type UploadOptions struct {
	// Folder defaults to the store's configured folder when empty.
	Folder string
	// MaxWidth asks the store to scale images down to this width. Zero keeps
	// the original size.
	MaxWidth int
}

// MediaStore defines the external image hosting service.
type MediaStore interface {
	// Upload stores raw image bytes and returns the hosted asset. Rejections
	// and transport failures are reported as *UploadError.
	Upload(ctx context.Context, data []byte, opts UploadOptions) (Asset, error)
	// Delete removes a previously uploaded asset by reference.
	Delete(ctx context.Context, reference string) error
	// Reference derives the delete reference from a hosted URL.
	Reference(url string) (string, error)
}

// UploadError reports that the media store rejected a payload or could not
// be reached.
type UploadError struct {
	Folder string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Folder == "" {
		return fmt.Sprintf("media upload failed: %v", e.Err)
	}
	return fmt.Sprintf("media upload to %q failed: %v", e.Folder, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
