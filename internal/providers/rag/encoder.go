package rag

import (
	"context"
	"fmt"
	"math"
)

// Embedder is the raw text-to-vector dependency; *Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dims() int
}

// DualEncoder wraps an Embedder with the bge/e5 prefix convention: stored
// content is "passage:" encoded, retrieval probes are "query:" encoded.
// The two spaces are distinct; a vector from one must never be compared
// against raw text pushed through the other.
type DualEncoder struct {
	emb Embedder
}

func NewDualEncoder(emb Embedder) *DualEncoder {
	return &DualEncoder{emb: emb}
}

func (e *DualEncoder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	return e.encode(ctx, "query: "+text)
}

func (e *DualEncoder) EncodePassage(ctx context.Context, text string) ([]float32, error) {
	return e.encode(ctx, "passage: "+TruncateToBudget(text, PassageTokenBudget))
}

func (e *DualEncoder) Dims() int {
	return e.emb.Dims()
}

func (e *DualEncoder) encode(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.emb.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	normalize(vec)
	return vec, nil
}

// normalize scales the vector to unit length in place so dot product
// equals cosine similarity. Endpoints that already normalise make this a
// near no-op.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / n)
	}
}
