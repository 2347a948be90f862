package embedding

import (
	"encoding/binary"
	"math"

	"github.com/mfenderov/recall/internal/clip"
)

// Encode converts a vector to a little-endian float64 blob.
func Encode(v clip.Vector) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// Decode converts a blob produced by Encode back to a vector. Empty, truncated
// or foreign blobs, and blobs holding NaN or Inf values, report false so the
// caller regenerates the embedding.
func Decode(blob []byte) (clip.Vector, bool) {
	if len(blob) == 0 || len(blob)%8 != 0 {
		return nil, false
	}

	v := make(clip.Vector, len(blob)/8)
	for i := range v {
		f := math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		v[i] = f
	}
	return v, true
}
