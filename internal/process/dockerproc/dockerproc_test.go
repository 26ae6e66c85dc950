package dockerproc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func frame(streamType byte, payload string) []byte {
	header := make([]byte, 8)
	header[0] = streamType
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	return append(header, []byte(payload)...)
}

func TestDemultiplexPassesStdoutAndStderr(t *testing.T) {
	var input bytes.Buffer
	input.Write(frame(1, "hello "))
	input.Write(frame(2, "world"))

	var out bytes.Buffer
	demultiplex(&input, &out)

	assert.Equal(t, "hello world", out.String())
}

func TestDemultiplexSkipsUnknownStreamType(t *testing.T) {
	var input bytes.Buffer
	input.Write(frame(0, "ignored"))
	input.Write(frame(1, "kept"))

	var out bytes.Buffer
	demultiplex(&input, &out)

	assert.Equal(t, "kept", out.String())
}

func TestDemultiplexStopsOnTruncatedHeader(t *testing.T) {
	var out bytes.Buffer
	demultiplex(bytes.NewReader([]byte{1, 0, 0}), &out)

	assert.Equal(t, "", out.String())
}
