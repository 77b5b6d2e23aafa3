package voice

import "errors"

var (
	ErrCaptureDenied      = errors.New("microphone access denied")
	ErrCaptureUnsupported = errors.New("voice capture unsupported")
	ErrAlreadyCapturing   = errors.New("recording already in progress")
	ErrSynthesis          = errors.New("speech synthesis failed")
)
