package sidechannel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxWidth is the largest identifier width accepted from a subject.
const MaxWidth = 8

// ErrWidth is returned when the width byte is outside 1..MaxWidth.
var ErrWidth = errors.New("implausible identifier width")

// Record is the ground truth recovered from a subject.
type Record struct {
	Width     uint8
	ParentPID int64
	ChildPID  int64
}

// ParseError describes which field of the record could not be read.
type ParseError struct {
	Field string // "width", "parent_pid" or "child_pid"
	Want  int    // bytes requested
	Got   int    // bytes actually read
	Err   error
}

func (e *ParseError) Error() string {
	if e.Want > 0 {
		return fmt.Sprintf("side-channel %s: read %d of %d bytes: %v", e.Field, e.Got, e.Want, e.Err)
	}
	return fmt.Sprintf("side-channel %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Read decodes exactly one record from r. The identifiers are decoded with
// order, which callers normally set to binary.NativeEndian because the
// subject writes its in-memory pid_t.
func Read(r io.Reader, order binary.ByteOrder) (Record, error) {
	var head [1]byte
	if n, err := io.ReadFull(r, head[:]); err != nil {
		return Record{}, &ParseError{Field: "width", Want: 1, Got: n, Err: shortRead(err)}
	}

	width := int(head[0])
	if width < 1 || width > MaxWidth {
		return Record{}, &ParseError{Field: "width", Err: fmt.Errorf("%w: %d", ErrWidth, width)}
	}

	buf := make([]byte, width)
	parent, err := readField(r, buf, "parent_pid", order)
	if err != nil {
		return Record{}, err
	}
	child, err := readField(r, buf, "child_pid", order)
	if err != nil {
		return Record{}, err
	}

	return Record{Width: uint8(width), ParentPID: parent, ChildPID: child}, nil
}

func readField(r io.Reader, buf []byte, field string, order binary.ByteOrder) (int64, error) {
	if n, err := io.ReadFull(r, buf); err != nil {
		return 0, &ParseError{Field: field, Want: len(buf), Got: n, Err: shortRead(err)}
	}
	return decodeSigned(buf, order), nil
}

// shortRead folds a clean EOF into ErrUnexpectedEOF: any end of stream
// before the record is complete is a truncated record.
func shortRead(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// decodeSigned sign-extends a 1..8 byte two's complement integer.
func decodeSigned(b []byte, order binary.ByteOrder) int64 {
	var wide [8]byte
	w := len(b)
	if littleEndian(order) {
		copy(wide[:w], b)
		if b[w-1]&0x80 != 0 {
			for i := w; i < 8; i++ {
				wide[i] = 0xff
			}
		}
	} else {
		copy(wide[8-w:], b)
		if b[0]&0x80 != 0 {
			for i := 0; i < 8-w; i++ {
				wide[i] = 0xff
			}
		}
	}
	return int64(order.Uint64(wide[:]))
}

func littleEndian(order binary.ByteOrder) bool {
	return order.Uint16([]byte{1, 0}) == 1
}
