package confirmation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/frahmantamala/payconfirm/internal"
	"github.com/frahmantamala/payconfirm/internal/core/common/validation"
)

var (
	ErrClosed            = errors.New("confirmation session closed")
	ErrInvalidTransition = errors.New("operation not allowed in the current state")
	// ErrNotFound is returned by a StatusReader when the token is unknown.
	ErrNotFound = errors.New("payment not found")
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Initiation struct {
	IdempotencyToken     string
	GatewayTransactionID string
	Message              string
}

type Initiator interface {
	Initiate(ctx context.Context, phone string, amount int64, label string) (*Initiation, error)
}

type Snapshot struct {
	Status            string
	ResultCode        string
	ResultDescription string
	ReceiptNumber     string
}

type StatusReader interface {
	GetStatus(ctx context.Context, token string) (*Snapshot, error)
}

type Config struct {
	MinimumAmount       int64
	PollInterval        time.Duration
	PollDeadline        time.Duration
	SuccessDisplayDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinimumAmount <= 0 {
		c.MinimumAmount = apperrors.DefaultMinimumAmount
	}
	if c.PollInterval <= 0 {
		c.PollInterval = apperrors.DefaultPollInterval
	}
	if c.PollDeadline <= 0 {
		c.PollDeadline = apperrors.DefaultPollDeadline
	}
	if c.SuccessDisplayDelay < 0 {
		c.SuccessDisplayDelay = 0
	}
	return c
}

// Session drives one payment from submission to a terminal state. Observers
// registered with OnChange run on the goroutine that caused the transition
// and must not call Close synchronously.
type Session struct {
	initiator Initiator
	reader    StatusReader
	config    Config
	logger    *slog.Logger

	mu         sync.Mutex
	notifyMu   sync.Mutex
	state      State
	closed     bool
	generation uint64
	onChange   func(State)
	onComplete func(Completed)

	ctx           context.Context
	cancel        context.CancelFunc
	pollCancel    context.CancelFunc
	pollWG        sync.WaitGroup
	completeTimer *time.Timer
	completeFired bool
}

func NewSession(initiator Initiator, reader StatusReader, config Config, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		initiator: initiator,
		reader:    reader,
		config:    config.withDefaults(),
		logger:    logger,
		state:     Idle{},
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Session) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// OnComplete registers the callback invoked once, SuccessDisplayDelay after
// the session reaches Completed.
func (s *Session) OnComplete(fn func(Completed)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit validates the input, then initiates the payment and starts polling.
// Invalid input leaves the session idle with the validation error and
// contacts nothing.
func (s *Session) Submit(ctx context.Context, phone string, amount int64, label string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.state.(Idle); !ok {
		s.mu.Unlock()
		return ErrInvalidTransition
	}

	if appErr := validation.ValidatePaymentRequest(phone, amount, label, s.config.MinimumAmount); appErr != nil {
		s.transitionLocked(Idle{Err: appErr})
		return appErr
	}

	s.generation++
	gen := s.generation
	s.transitionLocked(Initiating{})

	ictx, cancel := mergeCancel(ctx, s.ctx)
	defer cancel()

	initiation, err := s.initiator.Initiate(ictx, phone, amount, label)

	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrClosed
	}

	if err == nil && (initiation == nil || initiation.IdempotencyToken == "") {
		err = apperrors.GatewayRejected("no payment token was returned")
	}
	if err != nil {
		s.logger.Warn("payment initiation failed", "error", err)
		s.transitionLocked(Idle{Err: err})
		return err
	}

	pending := Pending{
		Token:    initiation.IdempotencyToken,
		Deadline: time.Now().Add(s.config.PollDeadline),
	}
	pctx, pcancel := context.WithCancel(s.ctx)
	s.pollCancel = pcancel
	s.pollWG.Add(1)
	go s.poll(pctx, gen, pending)

	s.transitionLocked(pending)
	return nil
}

// Retry returns a failed session to idle, discarding the token and error.
func (s *Session) Retry() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch st := s.state.(type) {
	case Failed:
	case Idle:
		if st.Err == nil {
			s.mu.Unlock()
			return nil
		}
	default:
		s.mu.Unlock()
		return ErrInvalidTransition
	}

	s.generation++
	s.stopPollLocked()
	s.transitionLocked(Idle{})
	return nil
}

// Close stops polling, the deadline and any pending completion callback.
// Nothing fires after Close returns. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	s.stopPollLocked()
	if s.completeTimer != nil {
		s.completeTimer.Stop()
	}
	s.mu.Unlock()

	s.cancel()
	s.pollWG.Wait()
}

func (s *Session) poll(ctx context.Context, gen uint64, pending Pending) {
	defer s.pollWG.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(time.Until(pending.Deadline))
	defer deadline.Stop()

	timedOut := Failed{Token: pending.Token, Reason: ReasonTimeout, Timeout: true}

	for {
		select {
		case <-ctx.Done():
			return

		case <-deadline.C:
			s.finish(gen, timedOut)
			return

		case <-ticker.C:
			if !time.Now().Before(pending.Deadline) {
				s.finish(gen, timedOut)
				return
			}

			next, done := s.pollOnce(ctx, pending)
			if ctx.Err() != nil {
				return
			}
			if !time.Now().Before(pending.Deadline) {
				s.finish(gen, timedOut)
				return
			}
			if done {
				s.finish(gen, next)
				return
			}
		}
	}
}

// pollOnce reads the status once. done reports whether next is terminal.
func (s *Session) pollOnce(ctx context.Context, pending Pending) (State, bool) {
	rctx, cancel := context.WithDeadline(ctx, pending.Deadline)
	defer cancel()

	snapshot, err := s.reader.GetStatus(rctx, pending.Token)
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Warn("payment token unknown to the ledger", "idempotency_token", pending.Token)
		return Failed{Token: pending.Token, Reason: ReasonNotFound}, true
	case err != nil:
		s.logger.Debug("status poll failed, will retry", "idempotency_token", pending.Token, "error", err)
		return nil, false
	}

	switch snapshot.Status {
	case StatusCompleted:
		return Completed{
			Token:       pending.Token,
			Receipt:     snapshot.ReceiptNumber,
			Description: snapshot.ResultDescription,
		}, true
	case StatusFailed:
		reason := snapshot.ResultDescription
		if reason == "" {
			reason = ReasonFailed
		}
		return Failed{Token: pending.Token, Reason: reason}, true
	default:
		return nil, false
	}
}

// finish applies a terminal state if the session is still in the pending
// generation that produced it.
func (s *Session) finish(gen uint64, next State) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	if _, ok := s.state.(Pending); !ok {
		s.mu.Unlock()
		return
	}
	s.stopPollLocked()

	if completed, ok := next.(Completed); ok {
		s.completeTimer = time.AfterFunc(s.config.SuccessDisplayDelay, func() {
			s.fireComplete(gen, completed)
		})
	}
	s.transitionLocked(next)
}

// stopPollLocked releases the poll context of the current generation.
func (s *Session) stopPollLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
}

func (s *Session) fireComplete(gen uint64, completed Completed) {
	s.mu.Lock()
	if s.closed || gen != s.generation || s.completeFired {
		s.mu.Unlock()
		return
	}
	s.completeFired = true
	fn := s.onComplete
	s.mu.Unlock()

	if fn != nil {
		fn(completed)
	}
}

// transitionLocked sets the state and notifies the observer in order. It
// must be called with s.mu held and releases it.
func (s *Session) transitionLocked(next State) {
	s.state = next
	fn := s.onChange
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.logger.Debug("confirmation state changed", "state", next.Name())
	if fn != nil {
		fn(next)
	}
}

// mergeCancel returns a context cancelled when either parent is done.
func mergeCancel(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
