package approval

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/quailyquaily/execguard/internal/jsonutil"
)

var ErrUnrecognizedCallback = errors.New("unrecognized callback payload")

// callbackData is the normalized form of a card button press. Transports have
// shipped several payload shapes over time, with fields sometimes nested and
// individually JSON-encoded as strings, so extraction is isolated here and
// the state machine never sees the raw payload.
type callbackData struct {
	ApprovalID   string
	CardID       string
	CallID       string
	Action       string
	Command      string
	Comment      string
	ApproverID   string
	ApproverName string
}

func (d callbackData) ref() string {
	if d.ApprovalID != "" {
		return d.ApprovalID
	}
	return d.CardID
}

// extractors are tried in order; the first one that yields an id and an
// action wins.
var extractors = []func(map[string]any) (callbackData, bool){
	extractFlat,
	extractActionValue,
	extractTopValue,
}

func decodeCallback(payload map[string]any) (callbackData, error) {
	if payload == nil {
		return callbackData{}, ErrUnrecognizedCallback
	}
	for _, extract := range extractors {
		if d, ok := extract(payload); ok {
			return d, nil
		}
	}
	return callbackData{}, ErrUnrecognizedCallback
}

// extractFlat handles the current shape: all fields at the top level.
func extractFlat(m map[string]any) (callbackData, bool) {
	d := callbackData{
		ApprovalID:   getStr(m, "approval_id", "approvalId"),
		CardID:       getStr(m, "card_instance_id", "cardInstanceId", "card_id"),
		CallID:       getStr(m, "call_id", "callId"),
		Action:       strings.ToLower(getStr(m, "action", "decision")),
		Command:      getStr(m, "command", "edited_command", "editedCommand"),
		Comment:      getStr(m, "comment"),
		ApproverID:   getStr(m, "approver_id", "approverId", "user_id", "userId"),
		ApproverName: getStr(m, "approver_name", "approverName", "user_name", "userName"),
	}
	return d, d.ref() != "" && d.Action != ""
}

// extractActionValue handles card callbacks where the button payload sits
// under action.value, as a map or as a JSON-encoded string.
func extractActionValue(m map[string]any) (callbackData, bool) {
	action, ok := m["action"].(map[string]any)
	if !ok {
		return callbackData{}, false
	}
	value := asMap(action["value"])
	if value == nil {
		return callbackData{}, false
	}
	d, ok := extractFlat(value)
	if !ok {
		return callbackData{}, false
	}
	// Operator identity and the card id ride on the envelope, not the button.
	if d.ApproverID == "" {
		d.ApproverID = getStr(m, "open_id", "operator_id", "user_id")
	}
	if d.ApproverName == "" {
		d.ApproverName = getStr(m, "operator_name", "user_name")
	}
	if d.CardID == "" {
		d.CardID = getStr(m, "open_message_id", "card_instance_id", "message_id")
	}
	return d, d.ref() != "" && d.Action != ""
}

// extractTopValue handles the legacy shape: a JSON-encoded string under
// "value" at the top level.
func extractTopValue(m map[string]any) (callbackData, bool) {
	value := asMap(m["value"])
	if value == nil {
		return callbackData{}, false
	}
	d, ok := extractFlat(value)
	if !ok {
		return callbackData{}, false
	}
	if d.CardID == "" {
		d.CardID = getStr(m, "card_instance_id", "message_id")
	}
	return d, d.ref() != "" && d.Action != ""
}

// asMap accepts either a nested object or a JSON-encoded string holding one.
func asMap(v any) map[string]any {
	switch x := v.(type) {
	case map[string]any:
		return x
	case string:
		var out map[string]any
		if err := jsonutil.DecodeWithFallback(x, &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

func getStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// HandleCallback processes a card button press. A payload whose call id does
// not match the pending record is logged and ignored, not resolved, leaving
// the approval pending.
func (b *Broker) HandleCallback(ctx context.Context, payload map[string]any) (bool, error) {
	_ = ctx
	d, err := decodeCallback(payload)
	if err != nil {
		return false, err
	}

	var decision Decision
	switch d.Action {
	case "approve", "approved", "allow":
		decision = DecisionApprove
	case "reject", "rejected", "deny", "denied":
		decision = DecisionReject
	case "edit", "edited":
		decision = DecisionEdit
	default:
		return false, ErrUnrecognizedCallback
	}

	b.mu.Lock()
	p, ok := b.lookupLocked(d.ref())
	if !ok {
		b.mu.Unlock()
		b.log.Warn("approval_callback_unknown_id", "ref", d.ref())
		return false, nil
	}
	if d.CallID != "" && d.CallID != p.callID {
		b.mu.Unlock()
		b.log.Warn("approval_callback_call_id_mismatch",
			"approval_id", p.id, "have", p.callID, "got", d.CallID)
		return false, nil
	}
	id := p.id
	b.mu.Unlock()

	out := Outcome{
		Decision: decision,
		Command:  d.Command,
		Comment:  d.Comment,
		Metadata: Metadata{
			ApproverID:   d.ApproverID,
			ApproverName: d.ApproverName,
			Source:       SourceButton,
			DecidedAt:    time.Now().UTC(),
		},
	}
	if b.channel != nil {
		out.Metadata.Channel = b.channel.Name()
	}
	return b.resolve(id, out), nil
}
