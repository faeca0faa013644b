package transaction

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

// encodeLen writes len in the compact-u16 format used for every length
// prefix in the wire format.
func encodeLen(w io.Writer, len int) (n int, err error) {
	if len > math.MaxUint16 {
		return 0, errors.Errorf("len exceeds %d", math.MaxUint16)
	}

	written := 0
	valBuf := make([]byte, 1)

	for {
		valBuf[0] = byte(len & 0x7f)
		len >>= 7
		if len == 0 {
			n, err := w.Write(valBuf)
			written += n
			return written, err
		}

		valBuf[0] |= 0x80
		n, err := w.Write(valBuf)
		written += n
		if err != nil {
			return written, err
		}
	}
}

// decodeLen reads a compact-u16 length.
func decodeLen(r io.Reader) (val int, err error) {
	var offset int
	valBuf := make([]byte, 1)

	for {
		if _, err := io.ReadFull(r, valBuf); err != nil {
			return 0, err
		}

		val |= int(valBuf[0]&0x7f) << (offset * 7)
		offset++

		if valBuf[0]&0x80 == 0 {
			break
		}
		if offset == 3 {
			return 0, errors.Errorf("invalid size: %d (max 3)", offset+1)
		}
	}

	return val, nil
}
