package imaging

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
)

// EXIF orientation values the pipeline acts on. Mirrored/transposed
// orientations are left untouched.
const (
	orientationNormal    = 1
	orientationRotate180 = 3
	orientationRotate90  = 6
	orientationRotate270 = 8
)

const orientationTag = 0x0112

// ReadOrientation scans the JPEG at path for an EXIF orientation tag and
// returns its value (1..8), or 0 if the file carries none or cannot be
// parsed. Unknown or absent metadata is never an error.
func ReadOrientation(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var soi [2]byte
	if _, err := io.ReadFull(r, soi[:]); err != nil || soi[0] != 0xFF || soi[1] != 0xD8 {
		return 0
	}

	for {
		marker, err := r.ReadByte()
		if err != nil || marker != 0xFF {
			return 0
		}
		seg, err := r.ReadByte()
		if err != nil {
			return 0
		}
		// Standalone markers carry no length.
		if seg == 0xD8 || (seg >= 0xD0 && seg <= 0xD7) {
			continue
		}
		// Entropy-coded data or end of image: no APP1 was found.
		if seg == 0xDA || seg == 0xD9 {
			return 0
		}
		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return 0
		}
		segLen := int(binary.BigEndian.Uint16(lenBuf[:]))
		if segLen < 2 {
			return 0
		}
		payload := make([]byte, segLen-2)
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0
		}
		if seg == 0xE1 {
			return orientationFromExif(payload)
		}
	}
}

func orientationFromExif(payload []byte) int {
	if len(payload) < 14 || string(payload[:6]) != "Exif\x00\x00" {
		return 0
	}
	tiff := payload[6:]

	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0
	}
	if order.Uint16(tiff[2:4]) != 42 {
		return 0
	}

	ifdOffset := int(order.Uint32(tiff[4:8]))
	if ifdOffset < 8 || ifdOffset+2 > len(tiff) {
		return 0
	}
	entries := int(order.Uint16(tiff[ifdOffset : ifdOffset+2]))
	pos := ifdOffset + 2
	for i := 0; i < entries; i++ {
		if pos+12 > len(tiff) {
			return 0
		}
		tag := order.Uint16(tiff[pos : pos+2])
		typ := order.Uint16(tiff[pos+2 : pos+4])
		if tag == orientationTag && typ == 3 { // SHORT, value stored inline
			v := int(order.Uint16(tiff[pos+8 : pos+10]))
			if v >= 1 && v <= 8 {
				return v
			}
			return 0
		}
		pos += 12
	}
	return 0
}
