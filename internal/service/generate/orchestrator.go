package generate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sandevgo/threadbot/internal/config"
	"github.com/sandevgo/threadbot/internal/core"
	"github.com/sandevgo/threadbot/internal/service/keypool"
	"github.com/sandevgo/threadbot/pkg/log"
)

// OutcomeKind is the terminal state of one generation run.
type OutcomeKind int

const (
	// OutcomeReply carries validated reply text ready to post.
	OutcomeReply OutcomeKind = iota
	// OutcomeQueryUser means the model wants the named user's public
	// history before answering; Text is the bare username.
	OutcomeQueryUser
	// OutcomeDecline means no reply should be posted.
	OutcomeDecline
)

// Outcome is the result of a full generation run. Verdict is populated
// only for OutcomeReply.
type Outcome struct {
	Kind    OutcomeKind
	Text    string
	Verdict core.Verdict
}

// KeyPool hands out rotated API credentials, blocking on short-term
// saturation and failing with keypool.ErrExhausted on daily exhaustion.
type KeyPool interface {
	Acquire(ctx context.Context) (int, string, error)
}

// Validator checks a drafted reply for corpus support.
type Validator interface {
	Validate(ctx context.Context, draft string) (core.Verdict, error)
}

// Task is one item to respond to. Context is the retrieval block (or
// core.NoContext); ExtraContext carries surrounding discussion such as
// a comment thread or a user's overview.
type Task struct {
	Title        string
	Body         string
	Images       []core.ImageAttachment
	Context      string
	ExtraContext string
}

// Orchestrator drives the attempt loop around one model task: acquire a
// credential, call the model, parse and validate, and decide between
// posting, asking for user history, and declining.
type Orchestrator struct {
	model       core.GenerativeModel
	pool        KeyPool
	validator   Validator
	instruction string

	maxAttempts  int
	attemptDelay time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(model core.GenerativeModel, pool KeyPool, validator Validator, instruction string, cfg *config.GeminiConfig) *Orchestrator {
	return &Orchestrator{
		model:        model,
		pool:         pool,
		validator:    validator,
		instruction:  instruction,
		maxAttempts:  cfg.MaxAttempts,
		attemptDelay: cfg.AttemptDelay,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Respond runs the attempt loop for one task. Every exit path other
// than a hard error resolves to an Outcome; exhausting all attempts is
// a decline, never an error.
func (o *Orchestrator) Respond(ctx context.Context, task Task) (Outcome, error) {
	logger := log.FromCtx(ctx)

	// No grounding material at all: don't spend a model call on an
	// answer the validator would reject anyway.
	if task.Context == core.NoContext && task.ExtraContext == "" {
		logger.Debug().Msg("no context available, declining without a model call")
		return Outcome{Kind: OutcomeDecline}, nil
	}

	prompt := buildPrompt(task)
	system := o.instruction + "\n\n" + responseContract()

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		keyIdx, key, err := o.pool.Acquire(ctx)
		if errors.Is(err, keypool.ErrExhausted) {
			logger.Warn().Msg("credential pool exhausted for the day, declining")
			return Outcome{Kind: OutcomeDecline}, nil
		}
		if err != nil {
			return Outcome{}, err
		}

		// The cheaper model is a last resort, not a first choice.
		tier := core.TierPrimary
		if attempt == o.maxAttempts {
			tier = core.TierFallback
		}

		raw, err := o.model.Generate(ctx, core.GenerateRequest{
			System: system,
			Prompt: prompt,
			Images: task.Images,
			Tier:   tier,
			APIKey: key,
		})
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Int("key", keyIdx).Msg("generation attempt failed")
			if err := o.delay(ctx, attempt); err != nil {
				return Outcome{}, err
			}
			continue
		}

		var resp core.ModelResponse
		if err := json.Unmarshal([]byte(raw), &resp); err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("model returned unparseable output")
			if err := o.delay(ctx, attempt); err != nil {
				return Outcome{}, err
			}
			continue
		}

		if resp.Declined() {
			logger.Info().Int("attempt", attempt).Msg("model declined the query")
			return Outcome{Kind: OutcomeDecline}, nil
		}
		if !resp.Valid() {
			logger.Warn().Int("attempt", attempt).Str("action", string(resp.Action)).Msg("model response has invalid shape")
			if err := o.delay(ctx, attempt); err != nil {
				return Outcome{}, err
			}
			continue
		}

		if resp.Action == core.ActionQueryUser {
			return Outcome{Kind: OutcomeQueryUser, Text: strings.TrimSpace(resp.Text)}, nil
		}

		verdict, err := o.validator.Validate(ctx, resp.Text)
		if err != nil {
			return Outcome{}, err
		}
		if !verdict.Reliable {
			logger.Info().Int("support", verdict.SupportCount).Msg("draft lacks corpus support, declining")
			return Outcome{Kind: OutcomeDecline, Verdict: verdict}, nil
		}

		return Outcome{
			Kind:    OutcomeReply,
			Text:    withAttribution(resp.Text),
			Verdict: verdict,
		}, nil
	}

	logger.Warn().Int("attempts", o.maxAttempts).Msg("all generation attempts spent, declining")
	return Outcome{Kind: OutcomeDecline}, nil
}

// delay paces consecutive attempts; the last attempt needs no pause.
func (o *Orchestrator) delay(ctx context.Context, attempt int) error {
	if attempt >= o.maxAttempts {
		return nil
	}
	return o.sleep(ctx, o.attemptDelay)
}

// withAttribution appends the bot signature exactly once.
func withAttribution(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasSuffix(text, strings.TrimSpace(core.AttributionSuffix)) {
		return text
	}
	return text + core.AttributionSuffix
}
