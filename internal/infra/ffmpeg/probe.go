package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata is the subset of ffprobe output the pipeline needs.
type Metadata struct {
	FPS      int
	Duration float64
	Width    int
	Height   int
}

// FrameArea is the full frame area in pixels.
func (m Metadata) FrameArea() int { return m.Width * m.Height }

// Probe reads fps, duration and frame geometry from the first video stream.
// Works with any codec ffprobe understands, AV1 included.
func Probe(ctx context.Context, videoPath string) (Metadata, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "v:0",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeOutput(output)
}

type probeStream struct {
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
	NBFrames     string `json:"nb_frames"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

func parseProbeOutput(raw []byte) (Metadata, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Metadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return Metadata{}, fmt.Errorf("no video stream found")
	}
	stream := out.Streams[0]

	meta := Metadata{Width: stream.Width, Height: stream.Height}
	meta.FPS = parseFrameRate(stream.RFrameRate)
	if meta.FPS == 0 {
		meta.FPS = parseFrameRate(stream.AvgFrameRate)
	}

	// Duration lives on the stream for most containers, on the format for
	// MKV, and is derivable from the frame count as a last resort.
	switch {
	case stream.Duration != "":
		meta.Duration, _ = strconv.ParseFloat(stream.Duration, 64)
	case out.Format.Duration != "":
		meta.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	case stream.NBFrames != "" && meta.FPS > 0:
		if frames, err := strconv.Atoi(stream.NBFrames); err == nil {
			meta.Duration = float64(frames) / float64(meta.FPS)
		}
	}

	return meta, nil
}

// parseFrameRate handles both "30000/1001" rationals and plain numbers.
func parseFrameRate(rate string) int {
	if rate == "" {
		return 0
	}
	if num, den, ok := strings.Cut(rate, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return int(math.Round(n / d))
	}
	f, err := strconv.ParseFloat(rate, 64)
	if err != nil {
		return 0
	}
	return int(math.Round(f))
}
