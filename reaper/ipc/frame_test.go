package ipc

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := &HelperMessage{PID: 4242, Status: HelperStatusDone, Detail: "exit 0"}

	frame, err := EncodeMessage(msg)
	require.NoError(t, err)

	dec := NewFrameDecoder(bytes.NewReader(frame))
	got, err := dec.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

func TestFrameDecoderMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	msgs := []*HelperMessage{
		{PID: 1, Status: HelperStatusRunning},
		{PID: 1, Status: HelperStatusDone},
	}
	for _, m := range msgs {
		frame, err := EncodeMessage(m)
		require.NoError(t, err)
		buf.Write(frame)
	}

	dec := NewFrameDecoder(&buf)
	for _, want := range msgs {
		got, err := dec.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := dec.ReadMessage()
	require.ErrorIs(t, err, io.EOF)
}

func TestReadMessageTruncatedLengthPrefix(t *testing.T) {
	dec := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x01}))
	_, err := dec.ReadMessage()
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	require.Equal(t, FrameErrorPartial, frameErr.Kind)
	require.True(t, frameErr.IsFatal())
}

func TestReadMessageTruncatedPayload(t *testing.T) {
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], 10)
	dec := NewFrameDecoder(bytes.NewReader(append(lengthBuf[:], []byte{1, 2, 3}...)))
	_, err := dec.ReadMessage()
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	require.Equal(t, FrameErrorPartial, frameErr.Kind)
}

func TestReadMessageOversizedFrame(t *testing.T) {
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], MaxPayloadSize+1)
	dec := NewFrameDecoder(bytes.NewReader(lengthBuf[:]))
	_, err := dec.ReadMessage()
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	require.Equal(t, FrameErrorTooLarge, frameErr.Kind)
	require.True(t, frameErr.IsFatal())
}

func TestReadMessageMalformedPayload(t *testing.T) {
	var lengthBuf [LengthPrefixSize]byte
	garbage := []byte{0xff, 0xff, 0xff, 0xff}
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(garbage)))
	dec := NewFrameDecoder(bytes.NewReader(append(lengthBuf[:], garbage...)))
	_, err := dec.ReadMessage()
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	require.Equal(t, FrameErrorDecode, frameErr.Kind)
	require.False(t, frameErr.IsFatal())
}
