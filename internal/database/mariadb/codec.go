package mariadb

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kozaktomas/face-attendance/internal/embedding"
)

// encodeEmbedding packs v as little-endian float32 values.
func encodeEmbedding(v embedding.Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding is the inverse of encodeEmbedding. dim must match the blob length.
func decodeEmbedding(data []byte, dim int) (embedding.Vector, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(data))
	}
	if len(data)/4 != dim {
		return nil, &embedding.DimensionMismatchError{Want: dim, Got: len(data) / 4}
	}
	v := make(embedding.Vector, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
