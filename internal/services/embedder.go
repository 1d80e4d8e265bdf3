package services

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// HashEmbedder is the deterministic offline fallback for entity resolution:
// identical names map to identical vectors, different names are effectively
// orthogonal. It keeps the resolution tiers exercised without a model, at
// the cost of never finding fuzzy matches.
type HashEmbedder struct {
	Dim int
}

func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{Dim: 64} }

func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dim := h.Dim
	if dim <= 0 {
		dim = 64
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, dim)
		seed := sha256.Sum256([]byte(t))
		state := seed[:]
		for j := 0; j < dim; j++ {
			if j%8 == 0 && j > 0 {
				next := sha256.Sum256(state)
				state = next[:]
			}
			bits := binary.BigEndian.Uint32(state[(j%8)*4 : (j%8)*4+4])
			vec[j] = float32(bits%2000)/1000.0 - 1.0
		}
		out[i] = vec
	}
	return out, nil
}
