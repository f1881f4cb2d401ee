package features

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/setforge/liveset/logging"
)

// PCMDecoder turns an audio file into mono float64 samples. It returns
// the samples and the sample rate they were decoded at.
type PCMDecoder interface {
	DecodePCM(path string) ([]float64, int, error)
}

// DecoderConfig holds FFmpeg decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	FFmpegPath       string        `json:"ffmpeg_path"`
	MaxDuration      time.Duration `json:"max_duration"`
	Timeout          time.Duration `json:"timeout"`
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 44100,
		FFmpegPath:       "ffmpeg", // Assume in PATH
		MaxDuration:      0,        // No limit
		Timeout:          60 * time.Second,
	}
}

// FFmpegDecoder decodes audio files to mono PCM by shelling out to
// FFmpeg. Construct with NewFFmpegDecoder, which verifies the binary
// is available.
type FFmpegDecoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewFFmpegDecoder creates an FFmpeg-backed decoder. It returns an
// error when the configured binary cannot be found, so callers can
// leave the audio capability disabled instead of failing per file.
func NewFFmpegDecoder(config *DecoderConfig) (*FFmpegDecoder, error) {
	if config == nil {
		config = DefaultDecoderConfig()
	}

	if _, err := exec.LookPath(config.FFmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg not available at %q: %w", config.FFmpegPath, err)
	}

	return &FFmpegDecoder{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "ffmpeg_decoder",
		}),
	}, nil
}

// DecodePCM decodes the audio file at path into mono float64 samples
// at the configured target sample rate
func (d *FFmpegDecoder) DecodePCM(path string) ([]float64, int, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function": "DecodePCM",
		"filename": path,
	})

	args := []string{
		"-v", "error",
		"-i", path,
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", d.config.MaxDuration.Seconds()))
	}

	args = append(args,
		"-vn",
		"-map", "0:a:0?",
		"-f", "f64le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
		"pipe:1",
	)

	ctx := context.Background()
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)

	logger.Debug("Running FFmpeg decode", logging.Fields{
		"command": fmt.Sprintf("%s %s", d.config.FFmpegPath, strings.Join(args, " ")),
	})

	startTime := time.Now()
	output, err := cmd.Output()
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			logger.Error(err, "FFmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
			return nil, 0, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, 0, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, 0, fmt.Errorf("no audio samples decoded from %s", path)
	}

	logger.Debug("FFmpeg decode completed", logging.Fields{
		"samples":     len(samples),
		"sample_rate": d.config.TargetSampleRate,
		"decode_time": time.Since(startTime).Seconds(),
	})

	return samples, d.config.TargetSampleRate, nil
}

// bytesToFloat64 converts raw f64le output into samples, dropping any
// trailing partial value
func bytesToFloat64(data []byte) []float64 {
	count := len(data) / 8
	samples := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples = append(samples, math.Float64frombits(bits))
	}
	return samples
}
