package mock

import (
	"context"
	"sync"

	"github.com/repairdesk/repairdesk/internal/line"
)

// PushCall records one Push invocation.
type PushCall struct {
	To       string
	Message  line.Message
	RetryKey string
}

// Pusher is a fake line.Pusher. Err, when set, fails every push; FailTo
// fails pushes to specific users.
type Pusher struct {
	mu     sync.Mutex
	Err    error
	FailTo map[string]error
	calls  []PushCall
}

// Push implements line.Pusher.
func (p *Pusher) Push(_ context.Context, to string, msg line.Message, retryKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, PushCall{To: to, Message: msg, RetryKey: retryKey})
	if err, ok := p.FailTo[to]; ok {
		return err
	}
	return p.Err
}

// SetErr changes the failure returned by later pushes.
func (p *Pusher) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

// Calls returns a copy of the recorded pushes.
func (p *Pusher) Calls() []PushCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PushCall(nil), p.calls...)
}
