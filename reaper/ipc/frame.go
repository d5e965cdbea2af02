// Package ipc implements the length-prefixed msgpack framing for the
// ChildReaper's optional helper protocol (spec section 4.7): a forked
// helper process reports its progress and final outcome back to the core
// over a pipe, one frame per message.
package ipc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (1 MiB), including the
	// length prefix. Helper messages are small, fixed-shape status
	// reports, never bulk payloads.
	MaxFrameSize = 1 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// HelperStatus is the lifecycle state a helper reports about itself.
type HelperStatus string

const (
	// HelperStatusRunning means the helper is still working.
	HelperStatusRunning HelperStatus = "running"
	// HelperStatusDone means the helper finished without error.
	HelperStatusDone HelperStatus = "done"
	// HelperStatusFailed means the helper finished with an error.
	HelperStatusFailed HelperStatus = "failed"
)

// HelperMessage is one frame of the helper protocol: a forked child's
// status report back to the core, keyed by the PID the Reaper tracks it
// under.
type HelperMessage struct {
	PID    int          `msgpack:"pid"`
	Status HelperStatus `msgpack:"status"`
	// Detail is a short human-readable note (e.g. the error string on a
	// failed status). Empty for a routine running update.
	Detail string `msgpack:"detail,omitempty"`
}

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether this error should terminate the helper
// connection outright rather than just dropping one message: a partial
// read leaves the stream unsynchronized, and an oversized frame means
// the helper is not speaking this protocol.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// FrameDecoder decodes length-prefixed msgpack HelperMessage frames from
// a stream (typically the read end of a pipe to a forked helper).
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder wraps r with a FrameDecoder, buffering it if it is not
// already a *bufio.Reader.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &FrameDecoder{reader: br}
}

// ReadMessage reads and decodes a single HelperMessage frame.
//
// Errors:
//   - io.EOF: stream ended cleanly (helper closed its pipe)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
//   - *FrameError with Kind=FrameErrorDecode: malformed msgpack payload
func (d *FrameDecoder) ReadMessage() (*HelperMessage, error) {
	payload, err := d.readFrame()
	if err != nil {
		return nil, err
	}
	var msg HelperMessage
	if err := msgpack.Unmarshal(payload, &msg); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode helper message", Err: err}
	}
	return &msg, nil
}

func (d *FrameDecoder) readFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
	}
	return payload, nil
}

// EncodeMessage encodes msg as a length-prefixed msgpack frame, the
// counterpart a helper process writes to its side of the pipe.
func EncodeMessage(msg *HelperMessage) ([]byte, error) {
	payload, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("ipc: encode helper message: %w", err)
	}
	return encodeFrame(payload), nil
}

func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}
