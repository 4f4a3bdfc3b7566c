package port

import (
	"context"

	"github.com/stillframe/stillframe-extraction-service/internal/photo"
)

// PhotoEncoder persists a validated, trimmed frame as an image file.
type PhotoEncoder interface {
	Encode(ctx context.Context, frame *photo.Frame, destPath string) error
}
