package store

import (
	"encoding/binary"
	"errors"
	"math"
)

// EncodeEmbedding encodes a []float32 into a little-endian []byte for storage.
func EncodeEmbedding(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// DecodeEmbedding decodes a stored embedding blob back into a []float32.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if b == nil {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, errors.New("invalid embedding blob length")
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
