package media

import (
	"encoding/binary"
	"fmt"
)

// ProbeVideoSize reads the pixel dimensions of an MP4/MOV file from its
// moov/trak/tkhd box. Only the first track with nonzero dimensions is
// considered. This keeps aspect-ratio derivation free of any external
// probing binary.
func ProbeVideoSize(data []byte) (width, height int, err error) {
	w, h := scanBoxes(data)
	if w == 0 || h == 0 {
		return 0, 0, fmt.Errorf("no video track dimensions found")
	}
	return w, h, nil
}

func scanBoxes(data []byte) (int, int) {
	offset := 0
	for offset+8 <= len(data) {
		size := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		boxType := string(data[offset+4 : offset+8])
		headerLen := 8
		if size == 1 {
			// 64-bit box length
			if offset+16 > len(data) {
				return 0, 0
			}
			size = int(binary.BigEndian.Uint64(data[offset+8 : offset+16]))
			headerLen = 16
		}
		if size < headerLen || offset+size > len(data) {
			return 0, 0
		}

		payload := data[offset+headerLen : offset+size]
		switch boxType {
		case "moov", "trak":
			if w, h := scanBoxes(payload); w != 0 && h != 0 {
				return w, h
			}
		case "tkhd":
			if w, h := parseTkhd(payload); w != 0 && h != 0 {
				return w, h
			}
		}
		offset += size
	}
	return 0, 0
}

func parseTkhd(payload []byte) (int, int) {
	if len(payload) < 4 {
		return 0, 0
	}
	version := payload[0]
	// width/height are 16.16 fixed point at the end of the box
	dimOffset := 76
	if version == 1 {
		dimOffset = 88
	}
	if len(payload) < dimOffset+8 {
		return 0, 0
	}
	width := int(binary.BigEndian.Uint32(payload[dimOffset:dimOffset+4]) >> 16)
	height := int(binary.BigEndian.Uint32(payload[dimOffset+4:dimOffset+8]) >> 16)
	return width, height
}
