package poller

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sandevgo/threadbot/internal/config"
	"github.com/sandevgo/threadbot/internal/core"
	"github.com/sandevgo/threadbot/internal/service/ingest"
	"github.com/sandevgo/threadbot/pkg/log"
)

const seenMessagesCap = 1000

// InboxPoller watches the bot's private inbox. Messages are grouped by
// sender per cycle so someone who sends three messages in a row gets
// one considered answer instead of three.
type InboxPoller struct {
	platform  core.Platform
	ingestor  *ingest.Ingestor
	processor *Processor
	messages  core.MessagesRepository
	cfg       *config.AppConfig

	seen *seenSet

	cancel context.CancelFunc
	done   chan struct{}
}

func NewInboxPoller(platform core.Platform, ingestor *ingest.Ingestor, processor *Processor, messages core.MessagesRepository, cfg *config.AppConfig) *InboxPoller {
	return &InboxPoller{
		platform:  platform,
		ingestor:  ingestor,
		processor: processor,
		messages:  messages,
		cfg:       cfg,
		seen:      newSeenSet(seenMessagesCap),
		done:      make(chan struct{}),
	}
}

func (p *InboxPoller) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
	return nil
}

func (p *InboxPoller) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-time.After(10 * time.Second):
	}
	return nil
}

func (p *InboxPoller) run(ctx context.Context) {
	defer close(p.done)

	interval := time.Duration(p.cfg.PollInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *InboxPoller) cycle(ctx context.Context) {
	logger := log.FromCtx(ctx)

	msgs, err := p.platform.FetchNewMessages(ctx, p.cfg.MessageLimit)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch inbox")
		return
	}

	var fresh []core.DirectMessage
	for _, msg := range msgs {
		if p.seen.Has(msg.ID) {
			continue
		}
		// The in-memory set is bounded, storage is the durable dedup.
		stored, err := p.messages.HasMessage(ctx, msg.ID)
		if err != nil {
			logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to check message")
			continue
		}
		if stored {
			p.seen.Add(msg.ID)
			continue
		}
		fresh = append(fresh, msg)
	}
	if len(fresh) == 0 {
		return
	}

	logger.Info().Int("messages", len(fresh)).Msg("new direct messages")
	if _, err := p.ingestor.StoreMessages(ctx, fresh); err != nil {
		logger.Error().Err(err).Msg("failed to store messages")
	}

	if err := p.processor.ProcessMessages(ctx, groupBySender(fresh)); err != nil {
		return
	}

	for _, msg := range msgs {
		p.seen.Add(msg.ID)
	}
}

// groupBySender folds one cycle's messages into one item per sender:
// bodies joined oldest first, identified by the newest message so the
// reply lands on the latest one.
func groupBySender(msgs []core.DirectMessage) []core.DirectMessage {
	bySender := make(map[string][]core.DirectMessage)
	var senders []string
	for _, msg := range msgs {
		if _, ok := bySender[msg.Sender]; !ok {
			senders = append(senders, msg.Sender)
		}
		bySender[msg.Sender] = append(bySender[msg.Sender], msg)
	}

	out := make([]core.DirectMessage, 0, len(senders))
	for _, sender := range senders {
		group := bySender[sender]
		sort.SliceStable(group, func(i, j int) bool { return group[i].CreatedUTC < group[j].CreatedUTC })

		bodies := make([]string, 0, len(group))
		for _, msg := range group {
			bodies = append(bodies, msg.Body)
		}
		newest := group[len(group)-1]
		out = append(out, core.DirectMessage{
			ID:         newest.ID,
			Sender:     sender,
			Body:       strings.Join(bodies, "\n"),
			CreatedUTC: newest.CreatedUTC,
		})
	}
	return out
}
