// Package media measures video files with ffprobe.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/makeasinger/motionvault/internal/model"
)

// Prober reports the pixel dimensions of a local video file.
type Prober interface {
	Resolution(ctx context.Context, path string) (model.Resolution, error)
}

// FFprobe runs the ffprobe binary.
type FFprobe struct {
	binary string
}

func NewFFprobe(binary string) *FFprobe {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobe{binary: binary}
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Resolution returns the size of the first video stream in path.
func (p *FFprobe) Resolution(ctx context.Context, path string) (model.Resolution, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return model.Resolution{}, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error", "-hide_banner",
		"-select_streams", "v:0", "-show_streams",
		"-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return model.Resolution{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return model.Resolution{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseResolution(output)
}

func parseResolution(output []byte) (model.Resolution, error) {
	var out probeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return model.Resolution{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	for _, s := range out.Streams {
		if !strings.EqualFold(s.CodecType, "video") {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return model.Resolution{}, fmt.Errorf("ffprobe: video stream has no dimensions")
		}
		return model.Resolution{Width: s.Width, Height: s.Height}, nil
	}
	return model.Resolution{}, errors.New("ffprobe: no video stream")
}
