package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	paymentgatewaytypes "github.com/frahmantamala/payconfirm/internal/core/datamodel/paymentgateway"
)

// CallbackJob is one simulated payment waiting for its outcome callback.
type CallbackJob struct {
	CheckoutRequestID string
	TransactionID     string
	Phone             string
	Amount            int64
	CallbackURL       string
}

type Worker struct {
	ID         int
	WorkerPool chan chan CallbackJob
	JobChannel chan CallbackJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan CallbackJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan CallbackJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(CallbackJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "checkout_request_id", job.CheckoutRequestID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type SandboxConfig struct {
	APIKey         string
	CallbackURL    string
	MaxWorkers     int
	JobQueueSize   int
	WorkerPoolSize int
	// SuccessRate is the probability in [0,1] that a push completes.
	SuccessRate float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
	// CallbackAttempts bounds deliveries of one callback while the receiver answers 5xx.
	CallbackAttempts int
}

type failureOutcome struct {
	Code        string
	Description string
}

var sandboxFailures = []failureOutcome{
	{Code: "1032", Description: "Request cancelled by user"},
	{Code: "1037", Description: "DS timeout user cannot be reached"},
	{Code: "1", Description: "The balance is insufficient for the transaction"},
	{Code: "2001", Description: "The initiator information is invalid"},
}

// Sandbox is a local stand-in for the gateway. It accepts push requests,
// issues checkout request ids and delivers the outcome to the callback URL
// after a random delay through a bounded worker pool.
type Sandbox struct {
	config     SandboxConfig
	logger     *slog.Logger
	httpClient *http.Client

	jobQueue   chan CallbackJob
	workerPool chan chan CallbackJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewSandbox(config SandboxConfig, logger *slog.Logger) *Sandbox {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	workerPoolSize := config.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = maxWorkers
	}

	if config.MaxDelay < config.MinDelay {
		config.MaxDelay = config.MinDelay
	}
	if config.CallbackAttempts <= 0 {
		config.CallbackAttempts = 3
	}

	s := &Sandbox{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},

		maxWorkers: maxWorkers,
		jobQueue:   make(chan CallbackJob, jobQueueSize),
		workerPool: make(chan chan CallbackJob, workerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	s.startWorkerPool()

	return s
}

func (s *Sandbox) startWorkerPool() {
	s.once.Do(func() {
		for i := 0; i < s.maxWorkers; i++ {
			worker := NewWorker(i, s.workerPool, s.logger)
			worker.Start(s.ctx, &s.wg, s.processCallbackJob)
		}

		s.wg.Add(1)
		go s.dispatch()

		s.logger.Info("sandbox gateway worker pool started",
			"max_workers", s.maxWorkers,
			"queue_size", cap(s.jobQueue))
	})
}

func (s *Sandbox) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.jobQueue:
			select {
			case jobChannel := <-s.workerPool:
				select {
				case jobChannel <- job:
				case <-s.ctx.Done():
					s.logger.Info("dispatcher shutting down")
					return
				}
			case <-s.ctx.Done():
				s.logger.Info("dispatcher shutting down")
				return
			}
		case <-s.ctx.Done():
			s.logger.Info("dispatcher shutting down")
			return
		}
	}
}

// Shutdown stops the workers. Jobs still waiting for their delay are dropped.
func (s *Sandbox) Shutdown() {
	s.logger.Info("shutting down sandbox gateway")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("sandbox gateway shutdown complete")
}

func (s *Sandbox) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post(PushPath, s.HandlePush)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// HandlePush handles POST /v1/transactions/push-stk.
func (s *Sandbox) HandlePush(w http.ResponseWriter, r *http.Request) {
	if s.config.APIKey != "" && r.Header.Get("Authorization") != "Bearer "+s.config.APIKey {
		writeJSON(w, http.StatusUnauthorized, failure("invalid API key"))
		return
	}

	var req paymentgatewaytypes.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure("invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, failure(err.Error()))
		return
	}

	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = s.config.CallbackURL
	}

	job := CallbackJob{
		CheckoutRequestID: "ws_CO_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		TransactionID:     strings.ToUpper(uuid.New().String()[:10]),
		Phone:             req.Phone,
		Amount:            req.Amount,
		CallbackURL:       callbackURL,
	}

	select {
	case s.jobQueue <- job:
		s.logger.Info("sandbox: push accepted",
			"checkout_request_id", job.CheckoutRequestID,
			"amount", job.Amount,
			"queue_length", len(s.jobQueue))
	default:
		s.logger.Warn("sandbox: job queue full, rejecting push", "queue_capacity", cap(s.jobQueue))
		writeJSON(w, http.StatusServiceUnavailable, failure("gateway busy, please try again later"))
		return
	}

	success := true
	writeJSON(w, http.StatusOK, paymentgatewaytypes.PushResponse{
		Success:           &success,
		TransactionID:     job.TransactionID,
		CheckoutRequestID: job.CheckoutRequestID,
		Message:           "Success. Request accepted for processing",
	})
}

func (s *Sandbox) processCallbackJob(job CallbackJob) {
	delay := s.randomDelay()

	select {
	case <-time.After(delay):
	case <-s.ctx.Done():
		s.logger.Info("sandbox: callback job cancelled", "checkout_request_id", job.CheckoutRequestID)
		return
	}

	payload := s.outcome(job)
	s.logger.Info("sandbox: payment outcome decided",
		"checkout_request_id", job.CheckoutRequestID,
		"result_code", *payload.ResultCode,
		"delay_seconds", delay.Seconds())

	s.sendCallback(job, payload)
}

func (s *Sandbox) randomDelay() time.Duration {
	span := s.config.MaxDelay - s.config.MinDelay
	if span <= 0 {
		return s.config.MinDelay
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.config.MinDelay + time.Duration(s.rng.Int63n(int64(span)))
}

func (s *Sandbox) outcome(job CallbackJob) paymentgatewaytypes.CallbackPayload {
	s.rngMu.Lock()
	roll := s.rng.Float64()
	failed := sandboxFailures[s.rng.Intn(len(sandboxFailures))]
	receipt := fmt.Sprintf("S%09d", s.rng.Intn(1_000_000_000))
	s.rngMu.Unlock()

	payload := paymentgatewaytypes.CallbackPayload{
		CheckoutRequestID: job.CheckoutRequestID,
		TransactionID:     job.TransactionID,
		Amount:            json.Number(fmt.Sprintf("%d", job.Amount)),
		Phone:             job.Phone,
	}

	if roll < s.config.SuccessRate {
		code := paymentgatewaytypes.ResultCode("0")
		payload.ResultCode = &code
		payload.ResultDesc = "The service request is processed successfully."
		payload.MpesaReceiptNumber = receipt
		return payload
	}

	code := paymentgatewaytypes.ResultCode(failed.Code)
	payload.ResultCode = &code
	payload.ResultDesc = failed.Description
	return payload
}

// sendCallback delivers the outcome, retrying while the receiver answers 5xx.
func (s *Sandbox) sendCallback(job CallbackJob, payload paymentgatewaytypes.CallbackPayload) {
	if job.CallbackURL == "" {
		s.logger.Warn("sandbox: no callback url, dropping outcome", "checkout_request_id", job.CheckoutRequestID)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("sandbox: failed to marshal callback", "error", err)
		return
	}

	backoff := 500 * time.Millisecond
	for attempt := 1; attempt <= s.config.CallbackAttempts; attempt++ {
		status, err := s.postCallback(job.CallbackURL, body)
		switch {
		case err == nil && status < http.StatusInternalServerError:
			s.logger.Info("sandbox: callback delivered",
				"checkout_request_id", job.CheckoutRequestID,
				"status_code", status,
				"attempt", attempt)
			return
		case err != nil:
			s.logger.Warn("sandbox: callback failed",
				"checkout_request_id", job.CheckoutRequestID,
				"attempt", attempt,
				"error", err)
		default:
			s.logger.Warn("sandbox: callback receiver error",
				"checkout_request_id", job.CheckoutRequestID,
				"attempt", attempt,
				"status_code", status)
		}

		if attempt == s.config.CallbackAttempts {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-s.ctx.Done():
			return
		}
	}

	s.logger.Error("sandbox: giving up on callback", "checkout_request_id", job.CheckoutRequestID)
}

func (s *Sandbox) postCallback(url string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func failure(message string) paymentgatewaytypes.PushResponse {
	success := false
	return paymentgatewaytypes.PushResponse{Success: &success, Error: message}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
