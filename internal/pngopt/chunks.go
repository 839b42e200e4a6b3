package pngopt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

var (
	// ErrNotPNG is returned when the input does not start with the PNG signature.
	ErrNotPNG = errors.New("not a PNG stream")
	// ErrCorrupt is returned when the chunk stream is truncated or fails its CRC.
	ErrCorrupt = errors.New("corrupt PNG stream")
)

type chunk struct {
	typ  string
	data []byte
}

// Chunks that affect how pixels are rendered. They survive metadata stripping.
var renderingChunks = map[string]bool{
	"iCCP": true,
	"sRGB": true,
	"gAMA": true,
	"cHRM": true,
	"cICP": true,
	"pHYs": true,
}

// Chunks tied to the original color type or palette layout. They are kept when
// the pixel data is passed through untouched and dropped on re-encode.
var layoutChunks = map[string]bool{
	"tRNS": true,
	"bKGD": true,
	"hIST": true,
	"sBIT": true,
	"sPLT": true,
}

var animationChunks = map[string]bool{
	"acTL": true,
	"fcTL": true,
	"fdAT": true,
}

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return bytes.HasPrefix(data, pngSignature)
}

func isCritical(typ string) bool {
	return typ[0] >= 'A' && typ[0] <= 'Z'
}

// safe-to-copy bit: lower-case fourth letter.
func isSafeToCopy(typ string) bool {
	return typ[3] >= 'a' && typ[3] <= 'z'
}

func readChunks(data []byte) ([]chunk, error) {
	if !IsPNG(data) {
		return nil, ErrNotPNG
	}
	var chunks []chunk
	rest := data[len(pngSignature):]
	for {
		if len(rest) < 12 {
			return nil, fmt.Errorf("%w: truncated chunk header", ErrCorrupt)
		}
		length := binary.BigEndian.Uint32(rest[:4])
		if uint64(length)+12 > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: chunk length %d exceeds stream", ErrCorrupt, length)
		}
		typ := string(rest[4:8])
		body := rest[8 : 8+length]
		sum := binary.BigEndian.Uint32(rest[8+length : 12+length])
		if crc32.ChecksumIEEE(rest[4:8+length]) != sum {
			return nil, fmt.Errorf("%w: bad CRC in %s chunk", ErrCorrupt, typ)
		}
		chunks = append(chunks, chunk{typ: typ, data: body})
		rest = rest[12+length:]
		if typ == "IEND" {
			return chunks, nil
		}
	}
}

func writeChunks(chunks []chunk) []byte {
	var buf bytes.Buffer
	buf.Write(pngSignature)
	var header [8]byte
	for _, c := range chunks {
		binary.BigEndian.PutUint32(header[:4], uint32(len(c.data)))
		copy(header[4:], c.typ)
		buf.Write(header[:])
		buf.Write(c.data)

		crc := crc32.NewIEEE()
		crc.Write(header[4:8])
		crc.Write(c.data)
		var sum [4]byte
		binary.BigEndian.PutUint32(sum[:], crc.Sum32())
		buf.Write(sum[:])
	}
	return buf.Bytes()
}

func isAnimated(chunks []chunk) bool {
	for _, c := range chunks {
		if c.typ == "acTL" {
			return true
		}
	}
	return false
}

func hasChunk(chunks []chunk, typ string) bool {
	for _, c := range chunks {
		if c.typ == typ {
			return true
		}
	}
	return false
}

// filterChunks drops metadata from a chunk stream without touching pixel data.
func filterChunks(chunks []chunk, strip bool) []chunk {
	if !strip {
		return chunks
	}
	kept := make([]chunk, 0, len(chunks))
	for _, c := range chunks {
		if isCritical(c.typ) || renderingChunks[c.typ] || layoutChunks[c.typ] || animationChunks[c.typ] {
			kept = append(kept, c)
		}
	}
	return kept
}

// carriedChunks returns the ancillary chunks that should follow the pixel data
// into a freshly encoded stream.
func carriedChunks(chunks []chunk, strip bool) []chunk {
	var carried []chunk
	for _, c := range chunks {
		switch {
		case isCritical(c.typ), layoutChunks[c.typ], animationChunks[c.typ]:
			continue
		case renderingChunks[c.typ]:
			carried = append(carried, c)
		case !strip && isSafeToCopy(c.typ):
			carried = append(carried, c)
		case !strip && c.typ == "tIME":
			carried = append(carried, c)
		}
	}
	return carried
}

// spliceAfterIHDR inserts extra chunks right after the IHDR chunk of encoded.
func spliceAfterIHDR(encoded []chunk, extra []chunk) []chunk {
	if len(extra) == 0 || len(encoded) == 0 {
		return encoded
	}
	out := make([]chunk, 0, len(encoded)+len(extra))
	out = append(out, encoded[0])
	out = append(out, extra...)
	out = append(out, encoded[1:]...)
	return out
}
