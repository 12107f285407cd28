package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	errors "github.com/frahmantamala/payconfirm/internal"
	paymentgatewaytypes "github.com/frahmantamala/payconfirm/internal/core/datamodel/paymentgateway"
)

// PushPath is the gateway endpoint that triggers an STK push prompt.
const PushPath = "/v1/transactions/push-stk"

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the mobile-money gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config ClientConfig, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = errors.DefaultGatewayTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// PushSTK asks the gateway to prompt the phone for payment. Transport
// failures, timeouts and 5xx responses return errors.ErrGatewayUnavailable;
// 4xx responses, explicit failure payloads and responses without a checkout
// request id return errors.GatewayRejected.
func (c *Client) PushSTK(ctx context.Context, req *paymentgatewaytypes.PushRequest) (*paymentgatewaytypes.PushResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal push request: %w", err)
	}

	url := c.baseURL + PushPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.ErrGatewayUnavailable.WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("sending push request", "url", url, "phone", req.Phone, "amount", req.Amount)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("push request failed", "error", err, "url", url)
		return nil, errors.ErrGatewayUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.ErrGatewayUnavailable.WithCause(err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Error("gateway returned server error", "status", resp.StatusCode, "response", string(respBody))
		return nil, errors.ErrGatewayUnavailable.WithCause(fmt.Errorf("gateway status %d", resp.StatusCode))
	}

	var pushResp paymentgatewaytypes.PushResponse
	decodeErr := json.Unmarshal(respBody, &pushResp)

	if resp.StatusCode >= http.StatusBadRequest {
		reason := rejectionReason(&pushResp, decodeErr)
		if reason == "" {
			reason = fmt.Sprintf("gateway rejected the request (%d %s)", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		c.logger.Warn("gateway rejected push", "status", resp.StatusCode, "reason", reason)
		return nil, errors.GatewayRejected(reason)
	}

	if decodeErr != nil {
		c.logger.Error("failed to decode gateway response", "error", decodeErr, "response", string(respBody))
		return nil, errors.ErrGatewayUnavailable.WithCause(decodeErr)
	}

	if pushResp.Success != nil && !*pushResp.Success {
		reason := rejectionReason(&pushResp, nil)
		c.logger.Warn("gateway reported push failure", "reason", reason)
		return nil, errors.GatewayRejected(reason)
	}

	if pushResp.CheckoutRequestID == "" {
		return nil, errors.GatewayRejected("gateway did not return a checkout request id")
	}

	c.logger.Info("push prompt sent",
		"checkout_request_id", pushResp.CheckoutRequestID,
		"transaction_id", pushResp.TransactionID)

	return &pushResp, nil
}

func rejectionReason(resp *paymentgatewaytypes.PushResponse, decodeErr error) string {
	if decodeErr != nil {
		return ""
	}
	if resp.Error != "" {
		return resp.Error
	}
	return resp.Message
}
