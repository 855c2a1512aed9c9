// Package frame splits length-delimited records out of a serialized descriptor set
// without decoding the records themselves.
package frame

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
	"google.golang.org/protobuf/encoding/protowire"
)

// RecordTag is the single-byte key announcing field 1 with the length-delimited
// wire type, which is how a FileDescriptorSet encodes each of its files.
const RecordTag byte = 0x0A

// ErrMalformedFrame is returned for corrupt or truncated records.
var ErrMalformedFrame = errors.New("malformed frame")

// MalformedFrameError describes why a record could not be extracted.
type MalformedFrameError struct {
	Offset int    // Byte offset of the record within the original buffer (0 for Extract)
	Reason string // Human-readable cause
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame at offset %d: %s", e.Offset, e.Reason)
}

// Is reports whether target is ErrMalformedFrame.
func (e *MalformedFrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

// Extract reads one record from the front of buf and returns its payload and the
// bytes that follow it. The payload aliases buf and is never decoded.
func Extract(buf []byte) (payload, rest []byte, err error) {
	return extractAt(buf, 0)
}

// ExtractSingle extracts a record that must span the whole buffer. It is used when
// the compiler was asked for exactly one file.
func ExtractSingle(buf []byte) ([]byte, error) {
	payload, rest, err := Extract(buf)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, &MalformedFrameError{
			Reason: fmt.Sprintf("declared length %d does not match the %d bytes after the header",
				len(payload), len(payload)+len(rest)),
		}
	}
	return payload, nil
}

// Split extracts every record from buf in order.
func Split(buf []byte) ([][]byte, error) {
	var records [][]byte
	offset := 0
	for len(buf) > 0 {
		payload, rest, err := extractAt(buf, offset)
		if err != nil {
			return nil, err
		}
		records = append(records, payload)
		offset += len(buf) - len(rest)
		buf = rest
	}
	return records, nil
}

func extractAt(buf []byte, offset int) ([]byte, []byte, error) {
	if len(buf) == 0 {
		return nil, nil, &MalformedFrameError{Offset: offset, Reason: "empty buffer"}
	}
	if buf[0] != RecordTag {
		return nil, nil, &MalformedFrameError{
			Offset: offset,
			Reason: fmt.Sprintf("unexpected tag 0x%02X, want 0x%02X", buf[0], RecordTag),
		}
	}

	length, n := protowire.ConsumeVarint(buf[1:])
	if n < 0 {
		return nil, nil, &MalformedFrameError{
			Offset: offset,
			Reason: fmt.Sprintf("invalid length prefix: %v", protowire.ParseError(n)),
		}
	}
	header := 1 + n

	size, err := safecast.Conv[int](length)
	if err != nil {
		return nil, nil, &MalformedFrameError{
			Offset: offset,
			Reason: fmt.Sprintf("length %d cannot address the buffer: %v", length, err),
		}
	}
	if size > len(buf)-header {
		return nil, nil, &MalformedFrameError{
			Offset: offset,
			Reason: fmt.Sprintf("declared length %d exceeds the %d remaining bytes", size, len(buf)-header),
		}
	}

	end := header + size
	return buf[header:end:end], buf[end:], nil
}
