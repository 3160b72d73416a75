package sidechannel

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Write encodes a record the way a subject does. It exists for fake
// subjects and tests; the harness itself only reads.
func Write(w io.Writer, order binary.ByteOrder, rec Record) error {
	width := int(rec.Width)
	if width < 1 || width > MaxWidth {
		return fmt.Errorf("%w: %d", ErrWidth, width)
	}
	for _, v := range []int64{rec.ParentPID, rec.ChildPID} {
		if !fits(v, width) {
			return fmt.Errorf("pid %d does not fit in %d bytes", v, width)
		}
	}

	buf := make([]byte, 1+2*width)
	buf[0] = rec.Width
	encodeSigned(buf[1:1+width], rec.ParentPID, order)
	encodeSigned(buf[1+width:], rec.ChildPID, order)

	_, err := w.Write(buf)
	return err
}

func encodeSigned(dst []byte, v int64, order binary.ByteOrder) {
	var wide [8]byte
	order.PutUint64(wide[:], uint64(v))
	w := len(dst)
	if littleEndian(order) {
		copy(dst, wide[:w])
	} else {
		copy(dst, wide[8-w:])
	}
}

func fits(v int64, width int) bool {
	if width == 8 {
		return true
	}
	bits := uint(width * 8)
	lo := -(int64(1) << (bits - 1))
	hi := int64(1)<<(bits-1) - 1
	return v >= lo && v <= hi
}
