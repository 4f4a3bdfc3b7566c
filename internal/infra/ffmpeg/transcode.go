package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// TranscodeLowRes writes a 320px-wide, audio-stripped proxy of the video to
// outPath. Scanning the proxy instead of the original keeps the per-frame
// work cheap and the MAD thresholds resolution-independent.
func TranscodeLowRes(ctx context.Context, videoPath, outPath string, log *zap.Logger) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", videoPath,
		"-vf", "scale=320:-2",
		"-an",
		"-q:v", "5",
		"-y",
		outPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg low-res transcode: %w, output: %s", err, string(output))
	}
	log.Debug("low-res proxy created", zap.String("path", outPath))
	return nil
}
