package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"go.uber.org/zap"

	"github.com/stillframe/stillframe-extraction-service/internal/photo"
)

// Source implements photo.FrameSource on top of ffmpeg subprocesses: the
// low-res side streams rawvideo frames from the proxy sampled at the step
// interval; the full-res side seeks and decodes single frames from the
// original. The core drives it single-threaded.
type Source struct {
	videoPath string
	proxyPath string
	stepTime  float64
	proxyMeta Metadata
	videoMeta Metadata
	log       *zap.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser
	index  int
}

// NewSource builds a frame source. proxyMeta/videoMeta come from Probe on
// the respective files.
func NewSource(videoPath, proxyPath string, videoMeta, proxyMeta Metadata, stepTime float64, log *zap.Logger) *Source {
	return &Source{
		videoPath: videoPath,
		proxyPath: proxyPath,
		stepTime:  stepTime,
		proxyMeta: proxyMeta,
		videoMeta: videoMeta,
		log:       log,
	}
}

// NextLowRes returns the next sampled proxy frame, io.EOF at end of stream.
// The decoder process starts lazily on the first call.
func (s *Source) NextLowRes(ctx context.Context) (*photo.Frame, error) {
	if s.cmd == nil {
		if err := s.startLowRes(ctx); err != nil {
			return nil, err
		}
	}

	frame := photo.NewFrame(s.proxyMeta.Width, s.proxyMeta.Height)
	if _, err := io.ReadFull(s.stdout, frame.Pix); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read low-res frame: %w", err)
	}
	frame.Index = s.index
	frame.Timestamp = float64(s.index) * s.stepTime
	s.index++
	return frame, nil
}

func (s *Source) startLowRes(ctx context.Context) error {
	if s.proxyMeta.Width <= 0 || s.proxyMeta.Height <= 0 {
		return fmt.Errorf("proxy geometry unknown")
	}
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", s.proxyPath,
		"-vf", fmt.Sprintf("fps=1/%g", s.stepTime),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start low-res decoder: %w", err)
	}
	s.cmd = cmd
	s.stdout = stdout
	s.index = 0
	s.log.Debug("low-res decoder started",
		zap.Int("width", s.proxyMeta.Width),
		zap.Int("height", s.proxyMeta.Height),
		zap.Float64("step_time", s.stepTime),
	)
	return nil
}

// SeekFullRes decodes one full-resolution frame at the timestamp. A failed
// seek is returned as an error for the caller to skip, never to abort on.
func (s *Source) SeekFullRes(ctx context.Context, timestamp float64) (*photo.Frame, error) {
	if s.videoMeta.Width <= 0 || s.videoMeta.Height <= 0 {
		return nil, fmt.Errorf("video geometry unknown")
	}
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", fmt.Sprintf("%.3f", timestamp),
		"-i", s.videoPath,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("seek full-res at %.3fs: %w", timestamp, err)
	}

	frame := photo.NewFrame(s.videoMeta.Width, s.videoMeta.Height)
	if len(output) < len(frame.Pix) {
		return nil, fmt.Errorf("seek full-res at %.3fs: short frame (%d of %d bytes)",
			timestamp, len(output), len(frame.Pix))
	}
	copy(frame.Pix, output)
	frame.Timestamp = timestamp
	return frame, nil
}

// Close reaps the low-res decoder process if it is still running.
func (s *Source) Close() error {
	if s.cmd == nil {
		return nil
	}
	s.stdout.Close()
	err := s.cmd.Wait()
	s.cmd = nil
	s.stdout = nil
	return err
}
