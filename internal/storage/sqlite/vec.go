package sqlite

import (
	"bytes"
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// serializeVector converts a float32 slice to a LittleEndian byte slice
// for BLOB storage.
func serializeVector(vec []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := binary.Write(buf, binary.LittleEndian, vec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize vector: %w", err)
	}
	return buf.Bytes(), nil
}

// deserializeVectorInto decodes a BLOB into dst, reusing its backing array
// when possible to avoid per-row allocations during a scan.
func deserializeVectorInto(dst []float32, blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(blob))
	}
	n := len(blob) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return dst, nil
}

func vectorNorm(vec []float32) float32 {
	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	return float32(math.Sqrt(float64(sum)))
}

// cosine returns the cosine similarity between the query and a stored
// vector. queryNorm is precomputed once per search sweep; the stored side
// is normalised per row because older rows may predate normalisation.
func cosine(query, stored []float32, queryNorm float32) float32 {
	if len(query) != len(stored) {
		return 0
	}
	var dot, storedSq float32
	for i := range query {
		dot += query[i] * stored[i]
		storedSq += stored[i] * stored[i]
	}
	denom := queryNorm * float32(math.Sqrt(float64(storedSq)))
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// idScore holds only the id and score during the scan phase; full rows are
// fetched afterwards for the top-K winners only.
type idScore struct {
	ID    string
	Score float32
}

// idScoreHeap is a min-heap on Score so the weakest candidate sits at the
// root and is evicted first.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int            { return len(h) }
func (h idScoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topKSimilar brute-force scans (id, embedding) rows produced by query and
// returns the top-K ids by cosine similarity, best first. Rows whose score
// does not clear threshold are dropped (pass a negative threshold to keep
// everything).
func topKSimilar(ctx context.Context, db *sql.DB, query string, vector []float32, topK int, threshold float32) ([]idScore, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := vectorNorm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &idScoreHeap{}
	heap.Init(h)

	var buf []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}

		buf, err = deserializeVectorInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if score <= threshold {
			continue
		}
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector rows: %w", err)
	}

	// Pop in ascending order, fill the result back to front.
	out := make([]idScore, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(idScore)
	}
	return out, nil
}
