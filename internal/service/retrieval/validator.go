package retrieval

import (
	"context"
	"fmt"

	"github.com/sandevgo/threadbot/internal/config"
	"github.com/sandevgo/threadbot/internal/core"
	"github.com/sandevgo/threadbot/pkg/log"
)

// Validator judges whether a drafted reply is corroborated by the
// stored comment corpus. A draft is reliable only when enough
// independent comments sit above the similarity cutoff; anything less
// and the orchestrator declines rather than posts.
type Validator struct {
	comments core.CommentsRepository
	enc      Encoder
	cfg      *config.RetrievalConfig
}

func NewValidator(comments core.CommentsRepository, enc Encoder, cfg *config.RetrievalConfig) *Validator {
	return &Validator{
		comments: comments,
		enc:      enc,
		cfg:      cfg,
	}
}

func (v *Validator) Validate(ctx context.Context, draft string) (core.Verdict, error) {
	clean := CleanText(draft)
	if clean == "" {
		return core.Verdict{}, nil
	}

	vec, err := v.enc.EncodeQuery(ctx, clean)
	if err != nil {
		return core.Verdict{}, fmt.Errorf("failed to encode draft: %w", err)
	}

	supporting, err := v.comments.SearchSimilarAbove(ctx, vec, v.cfg.ValidatorCutoff, v.cfg.ValidatorTopK)
	if err != nil {
		return core.Verdict{}, fmt.Errorf("failed to search supporting comments: %w", err)
	}

	verdict := core.Verdict{
		Reliable:     len(supporting) >= v.cfg.MinSupport,
		SupportCount: len(supporting),
		Supporting:   supporting,
	}
	log.FromCtx(ctx).Debug().
		Bool("reliable", verdict.Reliable).
		Int("support", verdict.SupportCount).
		Msg("draft validated against corpus")
	return verdict, nil
}
