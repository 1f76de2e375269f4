package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sandevgo/threadbot/internal/providers/rag"
	"github.com/sandevgo/threadbot/pkg/log"
)

// refDoc is one curated reference chunk held in memory with its
// passage vector.
type refDoc struct {
	name   string
	text   string
	vector []float32
}

// Library holds the operator-curated reference documents. They are
// loaded once at startup from a directory of plain-text files, split
// on blank-line paragraph boundaries and passage-encoded.
type Library struct {
	docs []refDoc
}

// Encoder is the slice of DualEncoder the library needs.
type Encoder interface {
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
	EncodePassage(ctx context.Context, text string) ([]float32, error)
}

// LoadLibrary reads every .txt file under dir. A missing directory is
// not an error: the bot simply runs without curated references.
func LoadLibrary(ctx context.Context, dir string, enc Encoder) (*Library, error) {
	lib := &Library{}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		log.FromCtx(ctx).Warn().Str("dir", dir).Msg("reference docs directory missing, continuing without")
		return lib, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reference docs dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read reference doc %s: %w", entry.Name(), err)
		}
		for i, chunk := range splitChunks(string(raw)) {
			vec, err := enc.EncodePassage(ctx, chunk)
			if err != nil {
				return nil, fmt.Errorf("failed to encode reference doc %s: %w", entry.Name(), err)
			}
			lib.docs = append(lib.docs, refDoc{
				name:   fmt.Sprintf("%s#%d", entry.Name(), i),
				text:   chunk,
				vector: vec,
			})
		}
	}

	log.FromCtx(ctx).Info().Int("chunks", len(lib.docs)).Str("dir", dir).Msg("reference library loaded")
	return lib, nil
}

// Search returns up to topK chunk texts scoring above cutoff against
// the query vector, best first. Vectors are unit length so the dot
// product is the cosine similarity.
func (l *Library) Search(queryVec []float32, cutoff float32, topK int) []string {
	type hit struct {
		score float32
		text  string
	}
	var hits []hit
	for _, d := range l.docs {
		if s := dot(queryVec, d.vector); s > cutoff {
			hits = append(hits, hit{score: s, text: d.text})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.text
	}
	return out
}

func (l *Library) Len() int { return len(l.docs) }

// splitChunks breaks a document on blank lines and packs consecutive
// paragraphs together up to the passage token budget.
func splitChunks(text string) []string {
	paras := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")

	var chunks []string
	var cur strings.Builder
	curTokens := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curTokens = 0
	}

	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n := rag.CountTokens(p)
		if curTokens > 0 && curTokens+n > rag.PassageTokenBudget {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
		curTokens += n
	}
	flush()
	return chunks
}

func dot(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
