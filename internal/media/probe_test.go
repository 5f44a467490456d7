package media

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(boxType string, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(payload)))
	copy(out[4:8], boxType)
	copy(out[8:], payload)
	return out
}

func tkhdPayload(version byte, width, height int) []byte {
	dimOffset := 76
	if version == 1 {
		dimOffset = 88
	}
	payload := make([]byte, dimOffset+8)
	payload[0] = version
	binary.BigEndian.PutUint32(payload[dimOffset:], uint32(width)<<16)
	binary.BigEndian.PutUint32(payload[dimOffset+4:], uint32(height)<<16)
	return payload
}

func TestProbeVideoSize(t *testing.T) {
	data := box("moov", box("trak", box("tkhd", tkhdPayload(0, 1920, 1080))))

	w, h, err := ProbeVideoSize(data)

	require.NoError(t, err)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
}

func TestProbeVideoSizeVersion1(t *testing.T) {
	data := box("moov", box("trak", box("tkhd", tkhdPayload(1, 640, 480))))

	w, h, err := ProbeVideoSize(data)

	require.NoError(t, err)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestProbeVideoSizeSkipsLeadingBoxes(t *testing.T) {
	ftyp := box("ftyp", []byte("isom0000"))
	moov := box("moov", box("trak", box("tkhd", tkhdPayload(0, 720, 1280))))

	w, h, err := ProbeVideoSize(append(ftyp, moov...))

	require.NoError(t, err)
	assert.Equal(t, 720, w)
	assert.Equal(t, 1280, h)
}

func TestProbeVideoSizeNoTrack(t *testing.T) {
	_, _, err := ProbeVideoSize(box("moov", box("trak", nil)))
	assert.Error(t, err)
}

func TestProbeVideoSizeGarbage(t *testing.T) {
	_, _, err := ProbeVideoSize([]byte("not an mp4 at all"))
	assert.Error(t, err)
}
