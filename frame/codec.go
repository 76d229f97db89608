// Package frame implements the chunked framing used on the cow-shake
// characteristic: a payload is terminated with a fixed sentinel and cut into
// windows no larger than a single characteristic write.
//
// The terminator is not escaped. A payload that itself contains the terminator
// can be cut short on the receiving side.
package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// Terminator marks the end of a message in the chunk stream
	Terminator = "#$%"

	// ChunkSize is the largest value a single write may carry (ATT MTU 23 - 3 byte header)
	ChunkSize = 20
)

// ErrNilPayload is returned by Marshal for a nil outbound value
var ErrNilPayload = errors.New("frame: nil payload")

// Marshal converts an outbound value to the text that gets framed.
// Strings and byte slices are sent verbatim; anything else is JSON encoded.
func Marshal(v interface{}) (string, error) {
	switch p := v.(type) {
	case nil:
		return "", ErrNilPayload
	case string:
		return p, nil
	case []byte:
		return string(p), nil
	case json.RawMessage:
		return string(p), nil
	case Payload:
		return p.Text, nil
	case *Payload:
		if p == nil {
			return "", ErrNilPayload
		}
		return p.Text, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("frame: marshal payload: %w", err)
	}
	return string(data), nil
}

// Encode appends the terminator to text and splits the result into chunks
// of at most ChunkSize bytes
func Encode(text string) [][]byte {
	data := make([]byte, 0, len(text)+len(Terminator))
	data = append(data, text...)
	data = append(data, Terminator...)
	return Split(data, ChunkSize)
}

// Split partitions data into contiguous windows of at most size bytes.
// Every window except possibly the last is exactly size bytes long.
func Split(data []byte, size int) [][]byte {
	if size <= 0 {
		size = ChunkSize
	}
	if len(data) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for offset := 0; offset < len(data); offset += size {
		end := offset + size
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, end-offset)
		copy(chunk, data[offset:end])
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Join concatenates chunks in order
func Join(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// IsComplete reports whether buf ends with the terminator
func IsComplete(buf []byte) bool {
	return bytes.HasSuffix(buf, []byte(Terminator))
}

// DecodeIfComplete returns the decoded payload once buf ends with the
// terminator. The trailing terminator is stripped before parsing.
func DecodeIfComplete(buf []byte) (Payload, bool) {
	if !IsComplete(buf) {
		return Payload{}, false
	}
	return Parse(string(buf[:len(buf)-len(Terminator)])), true
}
