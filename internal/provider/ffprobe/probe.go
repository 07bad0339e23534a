// Package ffprobe reads technical stream details from media files.
package ffprobe

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/vansante/go-ffprobe.v2"

	"github.com/Digital-Shane/title-resolve/internal/media"
)

const defaultTimeout = 30 * time.Second

// probeFunc matches ffprobe.ProbeURL.
type probeFunc func(ctx context.Context, path string, extraOpts ...string) (*ffprobe.ProbeData, error)

// Prober runs ffprobe against local files.
type Prober struct {
	probe   probeFunc
	timeout time.Duration
}

// New creates a prober that shells out to the ffprobe binary.
func New() *Prober {
	return &Prober{probe: ffprobe.ProbeURL, timeout: defaultTimeout}
}

// Probe returns the resolution and primary codecs of the file at path.
func (p *Prober) Probe(ctx context.Context, path string) (media.Technical, error) {
	if path == "" {
		return media.Technical{}, fmt.Errorf("ffprobe: empty path")
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	data, err := p.probe(ctx, path)
	if err != nil {
		return media.Technical{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return technicalFrom(data), nil
}

func technicalFrom(data *ffprobe.ProbeData) media.Technical {
	var info media.Technical
	if data == nil {
		return info
	}
	if v := data.FirstVideoStream(); v != nil {
		info.VideoCodec = codecName(v)
		info.Resolution = resolution(v.Height)
	}
	if a := data.FirstAudioStream(); a != nil {
		info.AudioCodec = codecName(a)
	}
	return info
}

func codecName(stream *ffprobe.Stream) string {
	if stream.CodecName != "" {
		return stream.CodecName
	}
	return stream.CodecLongName
}

// resolution names the height the way release tags do.
func resolution(height int) string {
	switch {
	case height <= 0:
		return ""
	case height >= 2000:
		return "2160p"
	case height >= 1000:
		return "1080p"
	case height >= 700:
		return "720p"
	case height >= 560:
		return "576p"
	case height >= 460:
		return "480p"
	default:
		return strconv.Itoa(height) + "p"
	}
}
