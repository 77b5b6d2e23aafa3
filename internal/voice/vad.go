package voice

import (
	"math"
	"time"
)

// DetectorConfig tunes end-of-utterance detection in continuous mode.
type DetectorConfig struct {
	Threshold float64       // frame RMS above which the frame counts as speech
	Silence   time.Duration // trailing silence that ends an utterance
	MaxLength time.Duration // hard cap on a single utterance
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Threshold: 0.015,
		Silence:   600 * time.Millisecond,
		MaxLength: 10 * time.Second,
	}
}

type detector struct {
	cfg        DetectorConfig
	sampleRate int

	speaking bool
	silence  time.Duration
	elapsed  time.Duration
}

func newDetector(cfg DetectorConfig, sampleRate int) *detector {
	def := DefaultDetectorConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Silence <= 0 {
		cfg.Silence = def.Silence
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = def.MaxLength
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &detector{cfg: cfg, sampleRate: sampleRate}
}

// feed reports whether the frame belongs to the utterance and whether the
// utterance is over. Leading silence is dropped.
func (d *detector) feed(frame []float32) (keep, end bool) {
	dur := time.Duration(len(frame)) * time.Second / time.Duration(d.sampleRate)
	d.elapsed += dur

	if frameRMS(frame) > d.cfg.Threshold {
		d.speaking = true
		d.silence = 0
		keep = true
	} else if d.speaking {
		d.silence += dur
		if d.silence >= d.cfg.Silence {
			return false, true
		}
		keep = true
	}

	return keep, d.elapsed >= d.cfg.MaxLength
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
