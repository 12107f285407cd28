package confirmation

import (
	"context"
	"sync"
	"time"

	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payconfirm/pkg/logger"
)

type stubInitiator struct{}

func (stubInitiator) Initiate(ctx context.Context, phone string, amount int64, label string) (*Initiation, error) {
	return &Initiation{IdempotencyToken: "ws_CO_T1"}, nil
}

// stubReader answers every poll with status and keeps the poll contexts.
type stubReader struct {
	mu     sync.Mutex
	status string
	ctxs   []context.Context
}

func (r *stubReader) GetStatus(ctx context.Context, token string) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctxs = append(r.ctxs, ctx)
	return &Snapshot{Status: r.status, ResultDescription: "Request cancelled by user"}, nil
}

var _ = g.Describe("Session poll context", func() {
	var (
		reader  *stubReader
		session *Session
	)

	hasPollContext := func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()
		return session.pollCancel != nil
	}

	g.BeforeEach(func() {
		reader = &stubReader{status: StatusPending}
		session = NewSession(stubInitiator{}, reader, Config{
			PollInterval: 10 * time.Millisecond,
			PollDeadline: time.Second,
		}, logger.Discard())
	})

	g.AfterEach(func() {
		session.Close()
	})

	g.It("is held only while pending", func() {
		Expect(session.Submit(context.Background(), "0712345678", 105, "Standard Report")).To(Succeed())
		Expect(hasPollContext()).To(BeTrue())

		reader.mu.Lock()
		reader.status = StatusFailed
		reader.mu.Unlock()

		Eventually(session.State).Should(BeAssignableToTypeOf(Failed{}))
		Expect(hasPollContext()).To(BeFalse())

		Expect(session.Retry()).To(Succeed())
		Expect(hasPollContext()).To(BeFalse())
	})

	g.It("is released on close", func() {
		Expect(session.Submit(context.Background(), "0712345678", 105, "Standard Report")).To(Succeed())
		session.Close()
		Expect(hasPollContext()).To(BeFalse())
	})
})
