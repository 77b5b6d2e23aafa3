// Package audioconv decodes audio files into mono float32 PCM at a chosen
// sample rate.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

const DefaultSampleRate = 16000

type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
	FormatOgg
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	case FormatOgg:
		return "ogg"
	}
	return "unknown"
}

var ErrUnsupported = errors.New("unsupported audio format")

type Options struct {
	SampleRate int // output rate, DefaultSampleRate when zero
	MaxSamples int // 0 = no limit
}

// PCM is mono audio normalised to [-1, 1].
type PCM struct {
	SampleRate int
	Samples    []float32
}

// DecodeFile reads the file at path. The format comes from the extension
// and falls back to sniffing the header.
func DecodeFile(ctx context.Context, path string, opt Options) (PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return PCM{}, err
	}
	defer f.Close()

	format := FormatFromExt(filepath.Ext(path))
	if format == FormatUnknown {
		if format, err = Sniff(f); err != nil {
			return PCM{}, err
		}
	}
	return Decode(ctx, f, format, opt)
}

func FormatFromExt(ext string) Format {
	switch strings.ToLower(ext) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".ogg", ".oga", ".opus":
		return FormatOgg
	}
	return FormatUnknown
}

// Sniff inspects the first bytes of r and rewinds it.
func Sniff(r io.ReadSeeker) (Format, error) {
	magic, _ := bufio.NewReader(r).Peek(4)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return FormatUnknown, err
	}

	switch {
	case string(magic) == "RIFF":
		return FormatWAV, nil
	case string(magic) == "OggS":
		return FormatOgg, nil
	case len(magic) >= 3 && string(magic[:3]) == "ID3",
		len(magic) >= 2 && magic[0] == 0xFF && magic[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}
	return FormatUnknown, fmt.Errorf("%w: header %q", ErrUnsupported, magic)
}

// Decode converts r to mono PCM at opt.SampleRate. Ogg streams are tried
// as Vorbis first, then as Opus.
func Decode(ctx context.Context, r io.ReadSeeker, format Format, opt Options) (PCM, error) {
	if opt.SampleRate <= 0 {
		opt.SampleRate = DefaultSampleRate
	}

	var (
		pcm PCM
		err error
	)
	switch format {
	case FormatWAV:
		pcm, err = decodeWAV(r)
	case FormatMP3:
		pcm, err = decodeMP3(r)
	case FormatOgg:
		pcm, err = decodeVorbis(r)
		if err != nil {
			if _, e := r.Seek(0, io.SeekStart); e != nil {
				return PCM{}, e
			}
			var opusErr error
			if pcm, opusErr = decodeOpus(r); opusErr != nil {
				return PCM{}, fmt.Errorf("ogg is neither vorbis (%v) nor opus: %w", err, opusErr)
			}
			err = nil
		}
	default:
		return PCM{}, ErrUnsupported
	}
	if err != nil {
		return PCM{}, fmt.Errorf("decode %s: %w", format, err)
	}
	if ctx.Err() != nil {
		return PCM{}, ctx.Err()
	}

	pcm.Samples = Resample(pcm.Samples, pcm.SampleRate, opt.SampleRate)
	pcm.SampleRate = opt.SampleRate
	if opt.MaxSamples > 0 && len(pcm.Samples) > opt.MaxSamples {
		pcm.Samples = pcm.Samples[:opt.MaxSamples]
	}
	return pcm, nil
}

func decodeWAV(r io.ReadSeeker) (PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return PCM{}, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return PCM{}, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}

	channels, rate := 1, 44100
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}

	return PCM{
		SampleRate: rate,
		Samples:    Downmix(intsToFloat32(buf.Data, depth), channels),
	}, nil
}

func decodeMP3(r io.Reader) (PCM, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return PCM{}, err
	}

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return PCM{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return PCM{}, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	// go-mp3 always yields interleaved stereo.
	return PCM{SampleRate: rate, Samples: Downmix(int16sToFloat32(ints), 2)}, nil
}

func decodeVorbis(r io.Reader) (PCM, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return PCM{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return PCM{}, errors.New("invalid vorbis stream")
	}
	return PCM{SampleRate: format.SampleRate, Samples: Downmix(data, format.Channels)}, nil
}
