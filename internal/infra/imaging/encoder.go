package imaging

import (
	"context"
	"fmt"

	disintegration "github.com/disintegration/imaging"

	"github.com/stillframe/stillframe-extraction-service/internal/photo"
)

// JPEGEncoder writes frames as JPEG files.
type JPEGEncoder struct {
	quality int
}

func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality <= 0 || quality > 100 {
		quality = 92
	}
	return &JPEGEncoder{quality: quality}
}

func (e *JPEGEncoder) Encode(ctx context.Context, frame *photo.Frame, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := disintegration.Save(frame.ToImage(), destPath, disintegration.JPEGQuality(e.quality))
	if err != nil {
		return fmt.Errorf("save jpeg: %w", err)
	}
	return nil
}
