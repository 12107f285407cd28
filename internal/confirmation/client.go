package confirmation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apperrors "github.com/frahmantamala/payconfirm/internal"
)

// APIClient implements Initiator and StatusReader against the payment HTTP API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = apperrors.DefaultGatewayTimeout
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type initiateBody struct {
	Phone  string `json:"phone"`
	Amount int64  `json:"amount"`
	Label  string `json:"label"`
}

type initiateResult struct {
	Success              bool   `json:"success"`
	IdempotencyToken     string `json:"idempotencyToken"`
	GatewayTransactionID string `json:"gatewayTransactionId"`
	Message              string `json:"message"`
}

type statusResult struct {
	Status            string `json:"status"`
	ResultCode        string `json:"resultCode"`
	ResultDescription string `json:"resultDescription"`
	ReceiptNumber     string `json:"receiptNumber"`
}

type errorEnvelope struct {
	Error *struct {
		Type    apperrors.ErrorType         `json:"type"`
		Code    apperrors.ErrorCode         `json:"code"`
		Message string                      `json:"message"`
		Details *apperrors.ValidationErrors `json:"details"`
	} `json:"error"`
}

func (c *APIClient) Initiate(ctx context.Context, phone string, amount int64, label string) (*Initiation, error) {
	var result initiateResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/initiate", initiateBody{Phone: phone, Amount: amount, Label: label}, &result); err != nil {
		return nil, err
	}
	return &Initiation{
		IdempotencyToken:     result.IdempotencyToken,
		GatewayTransactionID: result.GatewayTransactionID,
		Message:              result.Message,
	}, nil
}

// GetStatus returns ErrNotFound when the server reports the token unknown.
// Any other error, including a 404 from a wrong base URL, is transient from
// the session's point of view.
func (c *APIClient) GetStatus(ctx context.Context, token string) (*Snapshot, error) {
	var result statusResult
	path := "/api/v1/payments/" + url.PathEscape(token) + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.StatusCode == http.StatusNotFound && appErr.Code == apperrors.ErrCodePaymentNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, token)
		}
		return nil, err
	}
	return &Snapshot{
		Status:            result.Status,
		ResultCode:        result.ResultCode,
		ResultDescription: result.ResultDescription,
		ReceiptNumber:     result.ReceiptNumber,
	}, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, payload []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Error == nil {
		return apperrors.NewExternalError(fmt.Sprintf("server returned %d %s", status, http.StatusText(status)), "HTTP_ERROR", status)
	}

	appErr := &apperrors.AppError{
		Type:       env.Error.Type,
		Code:       env.Error.Code,
		Message:    env.Error.Message,
		StatusCode: status,
	}
	if env.Error.Details != nil && len(env.Error.Details.Errors) > 0 {
		appErr.Details = *env.Error.Details
	}
	return appErr
}
