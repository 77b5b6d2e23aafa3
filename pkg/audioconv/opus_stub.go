//go:build !opus

package audioconv

import (
	"errors"
	"io"
)

func decodeOpus(io.ReadSeeker) (PCM, error) {
	return PCM{}, errors.New("opus support not built in (build with -tags opus)")
}
