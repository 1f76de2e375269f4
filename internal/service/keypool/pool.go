package keypool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sandevgo/threadbot/internal/config"
	"github.com/sandevgo/threadbot/pkg/log"
)

// ErrExhausted means every key sits at its daily cap and the earliest
// reset is already behind us, which an evaluation sweep should have
// rolled over. It guards against clock weirdness; callers treat it as
// "no credential, give up on this item".
var ErrExhausted = errors.New("keypool: all keys exhausted")

type keyState struct {
	key string

	// Timestamps of grants inside the sliding per-minute window,
	// oldest first. Pruned on every evaluation.
	recent []time.Time

	dailyCount int
	dailyReset time.Time
}

// Pool rotates a fixed set of API keys round-robin, enforcing a
// per-minute sliding window and a daily cap on each key independently.
type Pool struct {
	mu      sync.Mutex
	keys    []*keyState
	next    int
	perMin  int
	daily   int
	window  time.Duration
	dayspan time.Duration

	// Injected for tests; real pools use the wall clock.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg *config.GeminiConfig) *Pool {
	p := &Pool{
		keys:    make([]*keyState, 0, len(cfg.APIKeys)),
		perMin:  cfg.RequestsPerMinute,
		daily:   cfg.DailyRequestLimit,
		window:  cfg.WindowLength,
		dayspan: cfg.DailyWindow,
		now:     time.Now,
		sleep:   sleepCtx,
	}
	start := time.Now()
	for _, k := range cfg.APIKeys {
		p.keys = append(p.keys, &keyState{
			key:        k,
			dailyReset: start.Add(cfg.DailyWindow),
		})
	}
	return p
}

// Acquire hands out the next usable key, sleeping and retrying while
// every key is rate-limited: the short per-minute window or, when all
// keys hit their daily cap, until the earliest daily reset. The
// rotation pointer advances on every key it evaluates, so consecutive
// calls spread load across the pool even when one key could have
// served both.
func (p *Pool) Acquire(ctx context.Context) (int, string, error) {
	for {
		grant, wait, err := p.evaluate()
		if err != nil {
			return 0, "", err
		}
		if grant != nil {
			return grant.index, grant.key, nil
		}
		log.FromCtx(ctx).Debug().Dur("wait", wait).Msg("key pool saturated, waiting")
		if err := p.sleep(ctx, wait); err != nil {
			return 0, "", err
		}
	}
}

// Size reports how many keys the pool rotates over.
func (p *Pool) Size() int {
	return len(p.keys)
}

type grant struct {
	index int
	key   string
}

// evaluate makes one sweep over the pool starting at the rotation
// pointer. Exactly one of the results is meaningful: a grant, a wait
// duration (until the soonest per-minute slot frees up, or until the
// earliest daily reset when every key is capped), or ErrExhausted.
func (p *Pool) evaluate() (*grant, time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	minWait := time.Duration(-1)

	for range p.keys {
		idx := p.next
		ks := p.keys[idx]
		p.next = (p.next + 1) % len(p.keys)

		if !now.Before(ks.dailyReset) {
			ks.dailyCount = 0
			ks.dailyReset = now.Add(p.dayspan)
		}
		ks.prune(now, p.window)

		if ks.dailyCount >= p.daily {
			continue
		}

		if len(ks.recent) < p.perMin {
			ks.recent = append(ks.recent, now)
			ks.dailyCount++
			return &grant{index: idx, key: ks.key}, 0, nil
		}

		// Minute-limited: its oldest grant leaving the window is when
		// this key becomes usable again.
		wait := ks.recent[0].Add(p.window).Sub(now)
		if wait < 0 {
			wait = 0
		}
		if minWait < 0 || wait < minWait {
			minWait = wait
		}
	}

	if minWait >= 0 {
		return nil, minWait, nil
	}

	// Every key is at its daily cap: the only thing worth waiting for
	// is the earliest reset.
	earliest := p.keys[0].dailyReset
	for _, ks := range p.keys[1:] {
		if ks.dailyReset.Before(earliest) {
			earliest = ks.dailyReset
		}
	}
	wait := earliest.Sub(now)
	if wait <= 0 {
		return nil, 0, ErrExhausted
	}
	return nil, wait, nil
}

func (ks *keyState) prune(now time.Time, window time.Duration) {
	cut := 0
	for cut < len(ks.recent) && now.Sub(ks.recent[cut]) >= window {
		cut++
	}
	if cut > 0 {
		ks.recent = append(ks.recent[:0], ks.recent[cut:]...)
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
