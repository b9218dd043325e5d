package approval

import "context"

type ctxKeyRequester struct{}

// Requester identifies who is asking for an execution, scoped to a
// conversation. It becomes the approval key pending entries are indexed by.
type Requester struct {
	Conversation string
	Sender       string
}

func (r Requester) Key() string {
	if r.Sender == "" {
		return r.Conversation
	}
	return r.Conversation + "/" + r.Sender
}

func WithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, ctxKeyRequester{}, r)
}

func RequesterFromContext(ctx context.Context) (Requester, bool) {
	if ctx == nil {
		return Requester{}, false
	}
	r, ok := ctx.Value(ctxKeyRequester{}).(Requester)
	return r, ok
}
