package approval

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var ErrBrokerClosed = errors.New("approval broker is closed")

const timedOutComment = "timed out"

// pending is one in-flight approval. It resolves exactly once, by whichever
// of explicit reply, card callback, or timeout fires first.
type pending struct {
	id          string
	callID      string
	key         string
	command     string
	riskLevel   string
	riskReasons []string
	createdAt   time.Time

	cardID   string
	textMode bool

	timer *time.Timer
	done  chan Outcome
}

// Broker owns the pending-approval indices. Construct one per process and
// pass it by handle; there is no package-level state.
type Broker struct {
	channel Channel
	store   Store
	log     *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	byID   map[string]*pending
	byCard map[string]*pending
	// byKey holds each requester's pendings oldest-first.
	byKey  map[string][]*pending
	closed bool
}

type BrokerOption func(*Broker)

func WithStore(store Store) BrokerOption {
	return func(b *Broker) { b.store = store }
}

func WithTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func WithLogger(log *slog.Logger) BrokerOption {
	return func(b *Broker) {
		if log != nil {
			b.log = log
		}
	}
}

func NewBroker(channel Channel, opts ...BrokerOption) *Broker {
	b := &Broker{
		channel: channel,
		log:     slog.Default(),
		timeout: 5 * time.Minute,
		byID:    make(map[string]*pending),
		byCard:  make(map[string]*pending),
		byKey:   make(map[string][]*pending),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ask registers a pending approval, delivers the prompt over the channel,
// and blocks until one of the three resolution paths fires or ctx ends.
func (b *Broker) Ask(ctx context.Context, req Request) (Outcome, error) {
	if b.channel == nil {
		return Outcome{}, errors.New("approval broker has no channel")
	}

	p := &pending{
		id:          "apr_" + randHex(4),
		callID:      req.CallID,
		key:         strings.TrimSpace(req.Key),
		command:     req.Command,
		riskLevel:   string(req.RiskLevel),
		riskReasons: req.RiskReasons,
		createdAt:   time.Now().UTC(),
		done:        make(chan Outcome, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Outcome{}, ErrBrokerClosed
	}
	b.byID[p.id] = p
	b.byKey[p.key] = append(b.byKey[p.key], p)
	p.timer = time.AfterFunc(b.timeout, func() {
		b.resolve(p.id, Outcome{
			Decision: DecisionReject,
			Comment:  timedOutComment,
			Metadata: Metadata{
				Channel:   b.channel.Name(),
				Source:    SourceSystem,
				DecidedAt: time.Now().UTC(),
			},
		})
	})
	b.mu.Unlock()

	b.persistCreate(ctx, p)
	b.deliver(ctx, req, p)

	select {
	case out := <-p.done:
		return out, nil
	case <-ctx.Done():
		b.cancel(p.id)
		return Outcome{}, ctx.Err()
	}
}

// deliver tries the structured card first and downgrades to a plain-text
// prompt when the card cannot be rendered. The downgrade is one-way.
func (b *Broker) deliver(ctx context.Context, req Request, p *pending) {
	cardID, err := b.channel.SendCard(ctx, req, p.id)
	if err == nil && strings.TrimSpace(cardID) != "" {
		b.mu.Lock()
		if _, ok := b.byID[p.id]; ok {
			p.cardID = cardID
			b.byCard[cardID] = p
		}
		b.mu.Unlock()
		return
	}
	if err != nil {
		b.log.Warn("approval_card_send_error", "approval_id", p.id, "error", err.Error())
	}

	b.mu.Lock()
	p.textMode = true
	b.mu.Unlock()

	if err := b.channel.SendText(ctx, p.key, TextPrompt(req, p.id, b.timeout)); err != nil {
		b.log.Warn("approval_text_send_error", "approval_id", p.id, "error", err.Error())
	}
}

// PendingCount reports how many approvals are outstanding for a requester.
func (b *Broker) PendingCount(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byKey[strings.TrimSpace(key)])
}

// resolve honors the first resolution for id and makes every later one a
// no-op: presence in the primary index is the settled guard, and the winner
// removes the entry from all indices and clears its timer.
func (b *Broker) resolve(id string, out Outcome) bool {
	b.mu.Lock()
	p, ok := b.byID[id]
	if !ok {
		b.mu.Unlock()
		return false
	}
	b.removeLocked(p)
	b.mu.Unlock()

	p.done <- out
	b.persistResolve(context.Background(), p, out)
	b.log.Info("approval_resolved",
		"approval_id", p.id,
		"call_id", p.callID,
		"decision", string(out.Decision),
		"source", string(out.Metadata.Source),
	)
	return true
}

// cancel drops a pending approval without producing an outcome (caller gave
// up waiting).
func (b *Broker) cancel(id string) {
	b.mu.Lock()
	p, ok := b.byID[id]
	if ok {
		b.removeLocked(p)
	}
	b.mu.Unlock()
	if ok {
		b.persistResolve(context.Background(), p, Outcome{
			Decision: DecisionReject,
			Comment:  "canceled by requester",
			Metadata: Metadata{Source: SourceSystem, DecidedAt: time.Now().UTC()},
		})
	}
}

func (b *Broker) removeLocked(p *pending) {
	delete(b.byID, p.id)
	if p.cardID != "" {
		delete(b.byCard, p.cardID)
	}
	list := b.byKey[p.key]
	for i, q := range list {
		if q.id == p.id {
			b.byKey[p.key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.byKey[p.key]) == 0 {
		delete(b.byKey, p.key)
	}
	if p.timer != nil {
		p.timer.Stop()
	}
}

// Close rejects every outstanding approval and refuses new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*pending
	for _, p := range b.byID {
		all = append(all, p)
	}
	b.mu.Unlock()

	for _, p := range all {
		b.resolve(p.id, Outcome{
			Decision: DecisionReject,
			Comment:  "broker shutting down",
			Metadata: Metadata{Source: SourceSystem, DecidedAt: time.Now().UTC()},
		})
	}
}

func (b *Broker) persistCreate(ctx context.Context, p *pending) {
	if b.store == nil {
		return
	}
	err := b.store.Create(ctx, Record{
		ID:          p.id,
		CallID:      p.callID,
		Key:         p.key,
		Command:     p.command,
		RiskLevel:   p.riskLevel,
		RiskReasons: p.riskReasons,
		CreatedAt:   p.createdAt,
		Status:      RecordPending,
	})
	if err != nil {
		b.log.Warn("approval_store_create_error", "approval_id", p.id, "error", err.Error())
	}
}

func (b *Broker) persistResolve(ctx context.Context, p *pending, out Outcome) {
	if b.store == nil {
		return
	}
	if err := b.store.Resolve(ctx, p.id, out); err != nil {
		b.log.Warn("approval_store_resolve_error", "approval_id", p.id, "error", err.Error())
	}
}

func randHex(nbytes int) string {
	if nbytes <= 0 {
		nbytes = 4
	}
	buf := make([]byte, nbytes)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// lookupLocked finds a pending by approval id or card instance id.
func (b *Broker) lookupLocked(id string) (*pending, bool) {
	if p, ok := b.byID[id]; ok {
		return p, true
	}
	if p, ok := b.byCard[id]; ok {
		return p, true
	}
	return nil, false
}

func describePending(list []*pending) string {
	ids := make([]string, 0, len(list))
	for _, p := range list {
		ids = append(ids, fmt.Sprintf("%s (%s)", p.id, p.command))
	}
	return strings.Join(ids, ", ")
}
