//go:build opus

package audioconv

import (
	"io"

	popus "github.com/pekim/opus"
)

const opusRate = 48000

func decodeOpus(r io.ReadSeeker) (PCM, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return PCM{}, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	var samples []float32
	buf := make([]int16, opusRate*channels/2)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			samples = append(samples, int16sToFloat32(buf[:n*channels])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return PCM{}, err
		}
	}

	return PCM{SampleRate: opusRate, Samples: Downmix(samples, channels)}, nil
}
