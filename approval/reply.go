package approval

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var approveWords = map[string]bool{
	"approve": true, "approved": true, "yes": true, "y": true, "ok": true,
	"lgtm": true, "同意": true, "批准": true, "通过": true, "允许": true, "可以": true,
}

var rejectWords = map[string]bool{
	"reject": true, "rejected": true, "deny": true, "denied": true,
	"no": true, "n": true, "拒绝": true, "否决": true, "不行": true, "不同意": true,
}

var approvalIDRe = regexp.MustCompile(`^apr_[0-9a-f]{8}$`)

type parsedReply struct {
	decision Decision
	id       string
	comment  string
}

// parseReply matches the approve/reject grammar: a keyword, an optional
// approval id, and an optional trailing comment. Keywords are
// case-insensitive; a non-matching first word means the text is not an
// approval reply at all.
func parseReply(text string) (parsedReply, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return parsedReply{}, false
	}

	word := strings.ToLower(strings.TrimRight(fields[0], ".,!。，！"))
	var out parsedReply
	switch {
	case approveWords[word]:
		out.decision = DecisionApprove
	case rejectWords[word]:
		out.decision = DecisionReject
	default:
		return parsedReply{}, false
	}

	rest := fields[1:]
	if len(rest) > 0 && approvalIDRe.MatchString(strings.ToLower(rest[0])) {
		out.id = strings.ToLower(rest[0])
		rest = rest[1:]
	}
	out.comment = strings.Join(rest, " ")
	return out, true
}

// HandleReply processes a free-text message from a requester. It returns
// handled=false when the text is not an approval reply for this requester
// (the message then falls through to normal agent processing). When handled,
// response carries the broker's answer for the transport to show: empty on a
// clean resolution, a disambiguation prompt when more than one approval is
// pending and no id was given, or a not-found notice for a stale or foreign
// id (consumed so an approval-looking message never reaches the agent).
func (b *Broker) HandleReply(ctx context.Context, key string, text string, meta Metadata) (handled bool, response string) {
	_ = ctx
	reply, ok := parseReply(text)
	if !ok {
		return false, ""
	}
	key = strings.TrimSpace(key)

	b.mu.Lock()
	var target *pending
	if reply.id != "" {
		p, found := b.lookupLocked(reply.id)
		if !found || p.key != key {
			b.mu.Unlock()
			return true, fmt.Sprintf("Approval %s was not found or is not yours.", reply.id)
		}
		target = p
	} else {
		list := b.byKey[key]
		switch len(list) {
		case 0:
			b.mu.Unlock()
			return false, ""
		case 1:
			target = list[0]
		default:
			desc := describePending(list)
			b.mu.Unlock()
			return true, fmt.Sprintf("Multiple approvals are pending; reply with an id: %s", desc)
		}
	}
	id := target.id
	b.mu.Unlock()

	if meta.Source == "" {
		meta.Source = SourceText
	}
	if meta.DecidedAt.IsZero() {
		meta.DecidedAt = time.Now().UTC()
	}
	if meta.Channel == "" && b.channel != nil {
		meta.Channel = b.channel.Name()
	}

	resolved := b.resolve(id, Outcome{
		Decision: reply.decision,
		Comment:  reply.comment,
		Metadata: meta,
	})
	if !resolved {
		// Lost the race against another resolution path.
		return true, fmt.Sprintf("Approval %s is already resolved.", id)
	}
	return true, ""
}
