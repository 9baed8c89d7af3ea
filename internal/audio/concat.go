// Package audio stitches synthesized MP3 segments into a single file.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tcolgate/mp3"
)

var (
	// ErrNoFrames is returned for segments that contain no decodable MPEG audio frame.
	ErrNoFrames = errors.New("audio segment contains no mp3 frames")
	// ErrFormatMismatch is returned when a segment's sample rate or channel layout
	// differs from the format every segment must share.
	ErrFormatMismatch = errors.New("audio segment format mismatch")
)

// Format describes the fixed layout requested from the TTS provider.
type Format struct {
	SampleRate int
	Channels   int
}

// Concatenator accumulates decoded MP3 frames in append order, starting from
// an empty, zero-duration buffer.
type Concatenator struct {
	format   Format
	buf      bytes.Buffer
	duration time.Duration
	segments int
	frames   int
}

// NewConcatenator creates an empty concatenator for the given format.
func NewConcatenator(format Format) *Concatenator {
	return &Concatenator{format: format}
}

// Append decodes segment and appends its frames. A segment is appended
// entirely or not at all.
func (c *Concatenator) Append(segment []byte) error {
	var (
		decoder  = mp3.NewDecoder(bytes.NewReader(segment))
		frame    mp3.Frame
		skipped  int
		decoded  bytes.Buffer
		duration time.Duration
		frames   int
	)

	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || (errors.Is(err, io.ErrUnexpectedEOF) && frames > 0) {
				break
			}
			return fmt.Errorf("decode segment %d frame %d: %w", c.segments+1, frames+1, err)
		}

		if err := c.checkFormat(frame.Header()); err != nil {
			return fmt.Errorf("segment %d frame %d: %w", c.segments+1, frames+1, err)
		}

		if _, err := io.Copy(&decoded, frame.Reader()); err != nil {
			return fmt.Errorf("copy segment %d frame %d: %w", c.segments+1, frames+1, err)
		}
		duration += frame.Duration()
		frames++
	}

	if frames == 0 {
		return fmt.Errorf("segment %d: %w", c.segments+1, ErrNoFrames)
	}

	c.buf.Write(decoded.Bytes())
	c.duration += duration
	c.frames += frames
	c.segments++
	return nil
}

func (c *Concatenator) checkFormat(header mp3.FrameHeader) error {
	if c.format.SampleRate > 0 {
		if rate := int(header.SampleRate()); rate != c.format.SampleRate {
			return fmt.Errorf("%w: sample rate %d, want %d", ErrFormatMismatch, rate, c.format.SampleRate)
		}
	}
	if c.format.Channels > 0 {
		channels := 2
		if header.ChannelMode() == mp3.SingleChannel {
			channels = 1
		}
		if channels != c.format.Channels {
			return fmt.Errorf("%w: %d channels, want %d", ErrFormatMismatch, channels, c.format.Channels)
		}
	}
	return nil
}

// Segments returns the number of appended segments.
func (c *Concatenator) Segments() int { return c.segments }

// Frames returns the number of appended MP3 frames.
func (c *Concatenator) Frames() int { return c.frames }

// Duration returns the playback duration of everything appended so far.
func (c *Concatenator) Duration() time.Duration { return c.duration }

// Bytes returns the concatenated stream.
func (c *Concatenator) Bytes() []byte { return c.buf.Bytes() }

// Export writes the concatenated stream to path. The file appears only once
// it has been completely written.
func (c *Concatenator) Export(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure output dir: %w", err)
	}

	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, c.buf.Bytes(), 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write audio: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish audio: %w", err)
	}
	return nil
}
