package paymentgateway

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// PushRequest is the body of POST /v1/transactions/push-stk.
type PushRequest struct {
	Phone       string `json:"phone"`
	Amount      int64  `json:"amount"`
	BundleName  string `json:"bundleName"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

func (r *PushRequest) Validate() error {
	if r.Phone == "" {
		return errors.New("phone is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	if r.BundleName == "" {
		return errors.New("bundleName is required")
	}
	return nil
}

// PushResponse is the gateway's answer to a push request. Success is a
// pointer because some gateway versions omit it on 2xx responses.
type PushResponse struct {
	Success           *bool  `json:"success,omitempty"`
	TransactionID     string `json:"transactionId"`
	CheckoutRequestID string `json:"checkoutRequestID"`
	Message           string `json:"message,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ResultCode accepts both numeric and string result codes.
type ResultCode string

func (c *ResultCode) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*c = ResultCode(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("resultCode must be a number or string")
	}
	if i, err := n.Int64(); err == nil {
		*c = ResultCode(strconv.FormatInt(i, 10))
		return nil
	}
	*c = ResultCode(n.String())
	return nil
}

func (c ResultCode) IsSuccess() bool {
	return c == "0"
}

// CallbackPayload is what the gateway posts to the webhook. Both the M-PESA
// field names and the generic ones (idempotencyToken, resultDescription,
// receiptNumber) are accepted. Unknown fields are ignored.
type CallbackPayload struct {
	CheckoutRequestID  string      `json:"checkoutRequestID"`
	IdempotencyToken   string      `json:"idempotencyToken,omitempty"`
	TransactionID      string      `json:"transactionId,omitempty"`
	ResultCode         *ResultCode `json:"resultCode"`
	ResultDesc         string      `json:"resultDesc,omitempty"`
	ResultDescription  string      `json:"resultDescription,omitempty"`
	MpesaReceiptNumber string      `json:"mpesaReceiptNumber,omitempty"`
	ReceiptNumber      string      `json:"receiptNumber,omitempty"`
	Amount             json.Number `json:"amount,omitempty"`
	Phone              string      `json:"phone,omitempty"`
}

// Token returns the idempotency token the callback refers to.
func (p *CallbackPayload) Token() string {
	return firstNonEmpty(p.CheckoutRequestID, p.IdempotencyToken)
}

func (p *CallbackPayload) Description() string {
	return firstNonEmpty(p.ResultDesc, p.ResultDescription)
}

func (p *CallbackPayload) Receipt() string {
	return firstNonEmpty(p.MpesaReceiptNumber, p.ReceiptNumber)
}

func (p *CallbackPayload) Validate() error {
	if p.Token() == "" {
		return errors.New("checkoutRequestID or idempotencyToken is required")
	}
	if p.ResultCode == nil || *p.ResultCode == "" {
		return errors.New("resultCode is required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
