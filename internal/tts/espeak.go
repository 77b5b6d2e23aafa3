//go:build espeak

// Package tts is the offline speech synthesizer.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

static int
buddy_espeak_init(const char *lang)
{
	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -1; }

	espeak_VOICE specs = { 0 };
	specs.languages = lang;
	return espeak_SetVoiceByProperties(&specs) == EE_OK ? 0 : -2;
}

static int
buddy_espeak_say(const char *text)
{
	if (!text)
	{ return -1; }

	if (espeak_Synth(text, 0, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -2; }
	espeak_Synchronize();
	return 0;
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// Espeak speaks through the local espeak-ng library.
type Espeak struct {
	mu sync.Mutex
}

// NewEspeak loads the voice for lang, e.g. "en" or "ru".
func NewEspeak(lang string) (*Espeak, error) {
	if lang == "" || lang == "auto" {
		lang = "en"
	}

	clang := C.CString(lang)
	defer C.free(unsafe.Pointer(clang))

	if rc := C.buddy_espeak_init(clang); rc != 0 {
		return nil, fmt.Errorf("espeak init failed: %d", int(rc))
	}
	return &Espeak{}, nil
}

// Speak blocks until the text was spoken. Cancelling ctx cuts it short.
func (e *Espeak) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	done := make(chan C.int, 1)
	go func() { done <- C.buddy_espeak_say(ctext) }()

	select {
	case rc := <-done:
		if rc != 0 {
			return fmt.Errorf("espeak synth failed: %d", int(rc))
		}
		return nil
	case <-ctx.Done():
		C.espeak_Cancel()
		<-done
		return ctx.Err()
	}
}

func (e *Espeak) Close() {
	C.espeak_Terminate()
}
