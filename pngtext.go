package aidetect

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// pngTextKeywords are the text-chunk keywords generators write their name or
// settings into.
var pngTextKeywords = map[string]bool{
	"Software":    true,
	"Source":      true,
	"Comment":     true,
	"Description": true,
	"parameters":  true,
}

// pngTextChunks returns tEXt, zTXt and iTXt entries whose keyword is in
// pngTextKeywords. Malformed chunks end the walk; whatever was read so far
// is returned.
func pngTextChunks(data []byte) map[string]string {
	out := make(map[string]string)
	if !bytes.HasPrefix(data, pngSignature) {
		return out
	}

	rest := data[len(pngSignature):]
	for len(rest) >= 12 {
		n := binary.BigEndian.Uint32(rest[:4])
		typ := string(rest[4:8])
		if uint64(n)+12 > uint64(len(rest)) {
			break
		}
		body := rest[8 : 8+n]
		rest = rest[12+n:]

		switch typ {
		case "tEXt":
			if k, v, ok := parseTEXt(body); ok && pngTextKeywords[k] {
				out[k] = v
			}
		case "zTXt":
			if k, v, ok := parseZTXt(body); ok && pngTextKeywords[k] {
				out[k] = v
			}
		case "iTXt":
			if k, v, ok := parseITXt(body); ok && pngTextKeywords[k] {
				out[k] = v
			}
		case "IEND":
			return out
		}
	}
	return out
}

func parseTEXt(body []byte) (string, string, bool) {
	k, v, ok := bytes.Cut(body, []byte{0})
	if !ok {
		return "", "", false
	}
	return string(k), string(v), true
}

func parseZTXt(body []byte) (string, string, bool) {
	k, rest, ok := bytes.Cut(body, []byte{0})
	if !ok || len(rest) < 1 {
		return "", "", false
	}
	v, err := inflate(rest[1:])
	if err != nil {
		return "", "", false
	}
	return string(k), v, true
}

// iTXt: keyword\0 flag method lang\0 translated\0 text
func parseITXt(body []byte) (string, string, bool) {
	k, rest, ok := bytes.Cut(body, []byte{0})
	if !ok || len(rest) < 2 {
		return "", "", false
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", "", false
	}
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", "", false
	}
	if !compressed {
		return string(k), string(rest), true
	}
	v, err := inflate(rest)
	if err != nil {
		return "", "", false
	}
	return string(k), v, true
}

func inflate(b []byte) (string, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxMetaValue))
	if err != nil {
		return "", err
	}
	return string(out), nil
}
