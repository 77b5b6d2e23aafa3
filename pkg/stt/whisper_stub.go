//go:build !whisper

package stt

import (
	"context"
	"errors"

	"buddy/internal/voice"
)

var errNotBuilt = errors.New("whisper support not built in (build with -tags whisper)")

type Transcriber struct{}

func NewTranscriber(string, Options) (*Transcriber, error) { return nil, errNotBuilt }

func (*Transcriber) Close() error { return nil }

func (*Transcriber) Transcribe(context.Context, voice.Clip) (string, error) {
	return "", errNotBuilt
}

func (*Transcriber) TranscribePCM(context.Context, []float32) (Result, error) {
	return Result{}, errNotBuilt
}
