package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quailyquaily/execguard/guard"
)

// fakeChannel records what the broker sends. With cards=false every
// SendCard fails, forcing the text downgrade path.
type fakeChannel struct {
	mu      sync.Mutex
	cards   bool
	nextNum int
	texts   []string
	cardIDs []string
}

func (c *fakeChannel) Name() string { return "fake" }

func (c *fakeChannel) SendCard(_ context.Context, _ Request, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cards {
		return "", errors.New("cards unsupported")
	}
	c.nextNum++
	id := fmt.Sprintf("card_%d", c.nextNum)
	c.cardIDs = append(c.cardIDs, id)
	return id, nil
}

func (c *fakeChannel) SendText(_ context.Context, _ string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeChannel) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func testRequest(key string) Request {
	return Request{
		CallID:       "call_" + key,
		Key:          key,
		Command:      "whoami",
		PolicyStatus: guard.StatusUnknown,
		RiskLevel:    guard.RiskLow,
	}
}

// ask runs Ask in a goroutine and waits until the approval is registered.
func ask(t *testing.T, b *Broker, req Request) <-chan Outcome {
	t.Helper()
	before := b.PendingCount(req.Key)
	out := make(chan Outcome, 1)
	go func() {
		o, err := b.Ask(context.Background(), req)
		if err != nil {
			t.Errorf("Ask: %v", err)
		}
		out <- o
	}()
	waitFor(t, func() bool { return b.PendingCount(req.Key) > before })
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestBrokerTimeout(t *testing.T) {
	ch := &fakeChannel{}
	b := NewBroker(ch, WithTimeout(50*time.Millisecond))

	out, err := b.Ask(context.Background(), testRequest("u1"))
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if out.Decision != DecisionReject {
		t.Fatalf("Decision = %s, want reject", out.Decision)
	}
	if out.Metadata.Source != SourceSystem {
		t.Fatalf("Source = %s, want system", out.Metadata.Source)
	}
	if out.Comment != timedOutComment {
		t.Fatalf("Comment = %q", out.Comment)
	}
	if b.PendingCount("u1") != 0 {
		t.Fatal("pending entry leaked after timeout")
	}
}

func TestBrokerReplyApprove(t *testing.T) {
	ch := &fakeChannel{}
	b := NewBroker(ch, WithTimeout(time.Minute))

	done := ask(t, b, testRequest("u1"))

	handled, resp := b.HandleReply(context.Background(), "u1", "approve looks fine", Metadata{})
	if !handled {
		t.Fatal("reply not handled")
	}
	if resp != "" {
		t.Fatalf("unexpected response %q", resp)
	}

	out := <-done
	if out.Decision != DecisionApprove {
		t.Fatalf("Decision = %s, want approve", out.Decision)
	}
	if out.Comment != "looks fine" {
		t.Fatalf("Comment = %q", out.Comment)
	}
	if out.Metadata.Source != SourceText {
		t.Fatalf("Source = %s, want text", out.Metadata.Source)
	}
}

func TestBrokerReplyFallsThroughWhenNothingPending(t *testing.T) {
	b := NewBroker(&fakeChannel{}, WithTimeout(time.Minute))
	handled, _ := b.HandleReply(context.Background(), "u1", "approve", Metadata{})
	if handled {
		t.Fatal("reply with zero pendings must fall through")
	}
}

func TestBrokerNonReplyFallsThrough(t *testing.T) {
	ch := &fakeChannel{}
	b := NewBroker(ch, WithTimeout(time.Minute))
	defer b.Close()
	_ = ask(t, b, testRequest("u1"))

	handled, _ := b.HandleReply(context.Background(), "u1", "what does this command do?", Metadata{})
	if handled {
		t.Fatal("ordinary text must fall through to the agent")
	}
}

func TestBrokerDisambiguation(t *testing.T) {
	ch := &fakeChannel{}
	b := NewBroker(ch, WithTimeout(time.Minute))

	first := ask(t, b, testRequest("u1"))
	_ = first
	second := ask(t, b, testRequest("u1"))

	// No id with two pending: ask for disambiguation, resolve nothing.
	handled, resp := b.HandleReply(context.Background(), "u1", "同意", Metadata{})
	if !handled {
		t.Fatal("ambiguous reply must be handled")
	}
	if !strings.Contains(resp, "apr_") {
		t.Fatalf("response %q should list pending ids", resp)
	}
	if b.PendingCount("u1") != 2 {
		t.Fatal("ambiguous reply must not resolve anything")
	}

	// Explicit id resolves only that one.
	b.mu.Lock()
	var secondID string
	for _, p := range b.byKey["u1"] {
		secondID = p.id // oldest-first: last is the most recent
	}
	b.mu.Unlock()

	handled, resp = b.HandleReply(context.Background(), "u1", "同意 "+secondID, Metadata{})
	if !handled || resp != "" {
		t.Fatalf("handled=%v resp=%q", handled, resp)
	}
	out := <-second
	if out.Decision != DecisionApprove {
		t.Fatalf("Decision = %s, want approve", out.Decision)
	}
	if b.PendingCount("u1") != 1 {
		t.Fatal("first approval must remain pending")
	}
	b.Close()
}

func TestBrokerForeignIDConsumed(t *testing.T) {
	ch := &fakeChannel{}
	b := NewBroker(ch, WithTimeout(time.Minute))
	defer b.Close()
	_ = ask(t, b, testRequest("u1"))

	b.mu.Lock()
	var id string
	for k := range b.byID {
		id = k
	}
	b.mu.Unlock()

	// Someone else referencing u1's approval id: acknowledged, consumed,
	// nothing resolved.
	handled, resp := b.HandleReply(context.Background(), "u2", "approve "+id, Metadata{})
	if !handled {
		t.Fatal("foreign id must be consumed, not fall through")
	}
	if !strings.Contains(resp, "not") {
		t.Fatalf("response %q should say not found/not yours", resp)
	}
	if b.PendingCount("u1") != 1 {
		t.Fatal("approval must remain pending")
	}

	// Unknown id likewise.
	handled, resp = b.HandleReply(context.Background(), "u1", "approve apr_00000000", Metadata{})
	if !handled || resp == "" {
		t.Fatalf("handled=%v resp=%q", handled, resp)
	}
}

func TestBrokerResolveIdempotent(t *testing.T) {
	ch := &fakeChannel{}
	b := NewBroker(ch, WithTimeout(time.Minute))
	done := ask(t, b, testRequest("u1"))

	b.mu.Lock()
	var id string
	for k := range b.byID {
		id = k
	}
	b.mu.Unlock()

	first := Outcome{Decision: DecisionApprove, Metadata: Metadata{Source: SourceText, DecidedAt: time.Now()}}
	if !b.resolve(id, first) {
		t.Fatal("first resolve must win")
	}
	// A near-simultaneous second signal is a safe no-op.
	if b.resolve(id, Outcome{Decision: DecisionReject, Metadata: Metadata{Source: SourceSystem}}) {
		t.Fatal("second resolve must be a no-op")
	}

	out := <-done
	if out.Decision != DecisionApprove {
		t.Fatalf("Decision = %s, first resolution must stand", out.Decision)
	}
}

func TestBrokerCardDowngradeToText(t *testing.T) {
	ch := &fakeChannel{} // cards unsupported
	b := NewBroker(ch, WithTimeout(time.Minute))
	defer b.Close()
	_ = ask(t, b, testRequest("u1"))

	waitFor(t, func() bool { return len(ch.sentTexts()) > 0 })
	texts := ch.sentTexts()
	if !strings.Contains(texts[0], "Approval required") {
		t.Fatalf("text prompt = %q", texts[0])
	}
	if !strings.Contains(texts[0], "whoami") {
		t.Fatal("prompt must present the command")
	}

	b.mu.Lock()
	for _, p := range b.byID {
		if !p.textMode {
			t.Error("pending must be flipped to text mode")
		}
		if p.cardID != "" {
			t.Error("no card id expected")
		}
	}
	b.mu.Unlock()
}

func TestBrokerCardDelivery(t *testing.T) {
	ch := &fakeChannel{cards: true}
	b := NewBroker(ch, WithTimeout(time.Minute))
	defer b.Close()
	done := ask(t, b, testRequest("u1"))

	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.byCard) == 1
	})

	handled, err := b.HandleCallback(context.Background(), map[string]any{
		"card_instance_id": "card_1",
		"action":           "approve",
		"approver_id":      "user_9",
	})
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if !handled {
		t.Fatal("callback not handled")
	}
	out := <-done
	if out.Decision != DecisionApprove {
		t.Fatalf("Decision = %s", out.Decision)
	}
	if out.Metadata.Source != SourceButton {
		t.Fatalf("Source = %s, want button", out.Metadata.Source)
	}
	if out.Metadata.ApproverID != "user_9" {
		t.Fatalf("ApproverID = %q", out.Metadata.ApproverID)
	}
}

func TestBrokerAskCanceledByContext(t *testing.T) {
	ch := &fakeChannel{}
	b := NewBroker(ch, WithTimeout(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Ask(ctx, testRequest("u1"))
		errCh <- err
	}()
	waitFor(t, func() bool { return b.PendingCount("u1") > 0 })
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if b.PendingCount("u1") != 0 {
		t.Fatal("pending entry leaked after cancel")
	}
}
