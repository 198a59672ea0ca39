package picture

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// decodeEPS extracts the PostScript payload and bounding box. EPS files
// are never rasterized; the payload is embedded verbatim downstream.
// DOS EPS binary files locate the payload through their 30-byte header;
// plain files are the payload.
func decodeEPS(data []byte) (*Picture, error) {
	ps := data
	if bytes.HasPrefix(data, magicDOSEPS) {
		if len(data) < 30 {
			return nil, ErrCorruptData
		}
		start := binary.LittleEndian.Uint32(data[4:8])
		length := binary.LittleEndian.Uint32(data[8:12])
		if int64(start)+int64(length) > int64(len(data)) {
			return nil, ErrCorruptData
		}
		ps = data[start : start+length]
	}
	if !bytes.HasPrefix(ps, magicPS) {
		return nil, fmt.Errorf("%w: no PostScript payload", ErrCorruptData)
	}
	pic := &Picture{Format: FormatEPS, PS: append([]byte(nil), ps...)}
	bbox, ok := epsBoundingBox(ps)
	if !ok {
		return nil, fmt.Errorf("%w: missing %%%%BoundingBox", ErrCorruptData)
	}
	pic.BBox = bbox
	pic.Width = int(bbox[2] - bbox[0])
	pic.Height = int(bbox[3] - bbox[1])
	return pic, nil
}

func epsBoundingBox(ps []byte) ([4]float64, bool) {
	sc := bufio.NewScanner(bytes.NewReader(ps))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "%%BoundingBox:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "%%BoundingBox:"))
		if len(fields) == 1 && fields[0] == "(atend)" {
			continue
		}
		if len(fields) < 4 {
			return [4]float64{}, false
		}
		var bbox [4]float64
		for i := 0; i < 4; i++ {
			f, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return [4]float64{}, false
			}
			bbox[i] = f
		}
		return bbox, true
	}
	return [4]float64{}, false
}
