package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewWriter(&buf, 0)
	fr := NewReader(&buf, 0)

	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xab}, 1000),
	}
	for _, p := range payloads {
		require.NoError(t, fw.WriteFrame(p))
	}
	for _, want := range payloads {
		got, err := fr.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFrameMaxSizeBoundary(t *testing.T) {
	const max = 64

	var buf bytes.Buffer
	fw := NewWriter(&buf, max)
	require.NoError(t, fw.WriteFrame(bytes.Repeat([]byte{1}, max)))

	got, err := NewReader(&buf, max).ReadFrame()
	require.NoError(t, err)
	assert.Len(t, got, max)

	// One byte more must be rejected on both sides.
	err = fw.WriteFrame(bytes.Repeat([]byte{1}, max+1))
	var tooLarge FrameTooLargeError
	require.ErrorAs(t, err, &tooLarge)

	oversized := make([]byte, LenPrefixSize)
	binary.BigEndian.PutUint32(oversized, max+1)
	_, err = NewReader(bytes.NewReader(oversized), max).ReadFrame()
	require.ErrorAs(t, err, &tooLarge)
}

func TestFrameTruncation(t *testing.T) {
	var buf bytes.Buffer
	fw := NewWriter(&buf, 0)
	require.NoError(t, fw.WriteFrame([]byte("cut me off")))

	// Stream ends mid-payload.
	cut := buf.Bytes()[:buf.Len()-3]
	_, err := NewReader(bytes.NewReader(cut), 0).ReadFrame()
	assert.ErrorIs(t, err, ErrTruncated)

	// Stream ends mid-length-prefix.
	_, err = NewReader(bytes.NewReader(cut[:2]), 0).ReadFrame()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecoderIncremental(t *testing.T) {
	var buf bytes.Buffer
	fw := NewWriter(&buf, 0)
	require.NoError(t, fw.WriteFrame([]byte("first")))
	require.NoError(t, fw.WriteFrame([]byte("second")))
	stream := buf.Bytes()

	d := NewDecoder(0)
	_, err := d.Next()
	assert.ErrorIs(t, err, ErrAgain)

	// Feed one byte at a time; frames pop out exactly when complete.
	var got [][]byte
	for _, b := range stream {
		d.Push([]byte{b})
		for {
			frame, err := d.Next()
			if err != nil {
				assert.ErrorIs(t, err, ErrAgain)
				break
			}
			got = append(got, frame)
		}
	}
	require.Len(t, got, 2)
	assert.Equal(t, []byte("first"), got[0])
	assert.Equal(t, []byte("second"), got[1])
	assert.Zero(t, d.Buffered())
}
