//go:build !espeak

// Package tts is the offline speech synthesizer.
package tts

import (
	"context"
	"errors"
)

var errNotBuilt = errors.New("espeak support not built in (build with -tags espeak)")

type Espeak struct{}

func NewEspeak(string) (*Espeak, error) { return nil, errNotBuilt }

func (*Espeak) Speak(context.Context, string) error { return errNotBuilt }

func (*Espeak) Close() {}
