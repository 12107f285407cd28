package confirmation_test

import (
	"context"
	"sync"
	"time"

	"github.com/frahmantamala/payconfirm/internal/confirmation"
)

type fakeInitiator struct {
	mu    sync.Mutex
	calls int
	token string
	err   error
	block chan struct{}
}

func (f *fakeInitiator) Initiate(ctx context.Context, phone string, amount int64, label string) (*confirmation.Initiation, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	token, err := f.token, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &confirmation.Initiation{IdempotencyToken: token, GatewayTransactionID: "TXN001"}, nil
}

func (f *fakeInitiator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type pollResult struct {
	snapshot *confirmation.Snapshot
	err      error
}

// fakeReader answers polls from a script, repeating the last entry.
type fakeReader struct {
	mu     sync.Mutex
	script []pollResult
	polls  []time.Time
	delay  time.Duration
	tokens []string
}

func (f *fakeReader) GetStatus(ctx context.Context, token string) (*confirmation.Snapshot, error) {
	f.mu.Lock()
	f.polls = append(f.polls, time.Now())
	f.tokens = append(f.tokens, token)
	var result pollResult
	if len(f.script) > 0 {
		result = f.script[0]
		if len(f.script) > 1 {
			f.script = f.script[1:]
		}
	} else {
		result = pollResult{snapshot: &confirmation.Snapshot{Status: confirmation.StatusPending}}
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result.snapshot, result.err
}

func (f *fakeReader) set(script ...pollResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = script
}

func (f *fakeReader) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.polls)
}

func (f *fakeReader) tokenList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func (f *fakeReader) pollTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.polls...)
}

func pending() pollResult {
	return pollResult{snapshot: &confirmation.Snapshot{Status: confirmation.StatusPending}}
}

func completed(receipt string) pollResult {
	return pollResult{snapshot: &confirmation.Snapshot{
		Status:            confirmation.StatusCompleted,
		ResultCode:        "0",
		ResultDescription: "The service request is processed successfully.",
		ReceiptNumber:     receipt,
	}}
}

func failed(description string) pollResult {
	return pollResult{snapshot: &confirmation.Snapshot{
		Status:            confirmation.StatusFailed,
		ResultCode:        "1032",
		ResultDescription: description,
	}}
}

// stateRecorder collects every state the observer sees.
type stateRecorder struct {
	mu     sync.Mutex
	states []confirmation.State
}

func (r *stateRecorder) record(s confirmation.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.states))
	for _, s := range r.states {
		names = append(names, s.Name())
	}
	return names
}
