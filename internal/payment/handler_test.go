package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/payconfirm/internal"
	"github.com/frahmantamala/payconfirm/internal/core/datamodel/payment"
	"github.com/frahmantamala/payconfirm/internal/core/datamodel/paymentgateway"
	paymentpkg "github.com/frahmantamala/payconfirm/internal/payment"
	"github.com/frahmantamala/payconfirm/internal/transport"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

type errorEnvelope struct {
	Success bool `json:"success"`
	Error   struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			Errors []apperrors.ValidationError `json:"errors"`
		} `json:"details"`
	} `json:"error"`
}

var _ = ginkgo.Describe("Payment HTTP handlers", func() {
	var (
		repo    *mockPaymentRepository
		gateway *mockGateway
		router  chi.Router
	)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	decodeError := func(rec *httptest.ResponseRecorder) errorEnvelope {
		var env errorEnvelope
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &env)).To(gomega.Succeed())
		return env
	}

	ginkgo.BeforeEach(func() {
		repo = newMockPaymentRepository()
		gateway = &mockGateway{}
		service := paymentpkg.NewService(repo, gateway, nil, nil, logger.Discard(), paymentpkg.ServiceConfig{MinimumAmount: 10})

		base := transport.NewBaseHandler(logger.Discard())
		handler := paymentpkg.NewHandler(base, service)
		webhook := paymentpkg.NewWebhookHandler(base, service)

		router = chi.NewRouter()
		router.Post("/api/v1/payments/initiate", handler.InitiatePayment)
		router.Post("/api/v1/payments/status", handler.GetPaymentStatus)
		router.Get("/api/v1/payments/{token}/status", handler.GetPaymentStatusByToken)
		router.Post("/api/v1/payments/callback", webhook.HandlePaymentCallback)
	})

	ginkgo.Describe("POST /api/v1/payments/initiate", func() {
		ginkgo.It("returns the token on success", func() {
			rec := do(http.MethodPost, "/api/v1/payments/initiate", `{"phone":"0712345678","amount":105,"label":"Standard Report"}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			var resp paymentpkg.InitiateResponse
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Success).To(gomega.BeTrue())
			gomega.Expect(resp.IdempotencyToken).NotTo(gomega.BeEmpty())
			gomega.Expect(resp.Message).NotTo(gomega.BeEmpty())
		})

		ginkgo.It("returns field errors for invalid input", func() {
			rec := do(http.MethodPost, "/api/v1/payments/initiate", `{"phone":"12345","amount":5,"label":""}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))

			env := decodeError(rec)
			gomega.Expect(env.Success).To(gomega.BeFalse())
			gomega.Expect(env.Error.Type).To(gomega.Equal(string(apperrors.ErrorTypeValidation)))
			gomega.Expect(env.Error.Details.Errors).To(gomega.HaveLen(3))
			gomega.Expect(env.Error.Details.Errors[0].Code).To(gomega.Equal(string(apperrors.ErrCodeInvalidPhone)))
			gomega.Expect(env.Error.Details.Errors[1].Code).To(gomega.Equal(string(apperrors.ErrCodeAmountTooLow)))
			gomega.Expect(gateway.callCount()).To(gomega.BeZero())
		})

		ginkgo.It("rejects an unparseable body", func() {
			rec := do(http.MethodPost, "/api/v1/payments/initiate", `not json`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(apperrors.ErrCodeInvalidPayload)))
		})

		ginkgo.It("returns 502 when the gateway is unavailable", func() {
			gateway.err = apperrors.ErrGatewayUnavailable.WithCause(errors.New("connection refused"))

			rec := do(http.MethodPost, "/api/v1/payments/initiate", `{"phone":"0712345678","amount":105,"label":"Standard Report"}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadGateway))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(apperrors.ErrCodeGatewayUnavailable)))
		})

		ginkgo.It("returns 422 with the reason when the gateway rejects", func() {
			gateway.err = apperrors.GatewayRejected("Invalid phone number")

			rec := do(http.MethodPost, "/api/v1/payments/initiate", `{"phone":"0712345678","amount":105,"label":"Standard Report"}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnprocessableEntity))
			gomega.Expect(decodeError(rec).Error.Message).To(gomega.Equal("Invalid phone number"))
		})
	})

	ginkgo.Describe("status endpoints", func() {
		var token string

		ginkgo.BeforeEach(func() {
			rec := do(http.MethodPost, "/api/v1/payments/initiate", `{"phone":"0712345678","amount":105,"label":"Standard Report"}`)
			var resp paymentpkg.InitiateResponse
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			token = resp.IdempotencyToken
		})

		ginkgo.It("reads the status by POST body", func() {
			rec := do(http.MethodPost, "/api/v1/payments/status", `{"idempotencyToken":"`+token+`"}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			var resp paymentpkg.StatusResponse
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Status).To(gomega.Equal(payment.StatusPending))
			gomega.Expect(resp.Label).To(gomega.Equal("Standard Report"))
		})

		ginkgo.It("reads the status by path", func() {
			rec := do(http.MethodGet, "/api/v1/payments/"+token+"/status", "")
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("returns 404 for an unknown token", func() {
			rec := do(http.MethodGet, "/api/v1/payments/ws_CO_unknown/status", "")
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNotFound))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(apperrors.ErrCodePaymentNotFound)))
		})

		ginkgo.It("returns 400 when the token is missing", func() {
			rec := do(http.MethodPost, "/api/v1/payments/status", `{}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("POST /api/v1/payments/callback", func() {
		var token string

		ginkgo.BeforeEach(func() {
			resp, err := paymentpkg.NewService(repo, gateway, nil, nil, logger.Discard(), paymentpkg.ServiceConfig{}).
				Initiate(context.Background(), paymentpkg.InitiateRequest{Phone: "0712345678", Amount: 105, Label: "Standard Report"})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			token = resp.IdempotencyToken
		})

		ginkgo.It("acknowledges and applies a success callback", func() {
			rec := do(http.MethodPost, "/api/v1/payments/callback", `{"checkoutRequestID":"`+token+`","resultCode":0,"mpesaReceiptNumber":"QGR7ABCDEF"}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			var resp paymentpkg.CallbackResponse
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp).To(gomega.Equal(paymentpkg.CallbackResponse{Success: true, Outcome: payment.CallbackOutcomeApplied}))
		})

		ginkgo.It("applies a callback sent with the generic field names", func() {
			gateway.response = &paymentgateway.PushResponse{TransactionID: "TXN001", CheckoutRequestID: "T1"}
			rec := do(http.MethodPost, "/api/v1/payments/initiate", `{"phone":"0712345678","amount":105,"label":"Standard Report"}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			rec = do(http.MethodPost, "/api/v1/payments/callback", `{"idempotencyToken":"T1","resultCode":0,"receiptNumber":"QAB123"}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"outcome":"applied"`))

			rec = do(http.MethodGet, "/api/v1/payments/T1/status", "")
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var status paymentpkg.StatusResponse
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &status)).To(gomega.Succeed())
			gomega.Expect(status.Status).To(gomega.Equal(payment.StatusCompleted))
			gomega.Expect(status.ReceiptNumber).To(gomega.Equal("QAB123"))
		})

		ginkgo.It("acknowledges duplicates with 200", func() {
			body := `{"checkoutRequestID":"` + token + `","resultCode":"0"}`
			do(http.MethodPost, "/api/v1/payments/callback", body)
			rec := do(http.MethodPost, "/api/v1/payments/callback", body)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"outcome":"duplicate"`))
		})

		ginkgo.It("acknowledges unknown tokens with 200", func() {
			rec := do(http.MethodPost, "/api/v1/payments/callback", `{"checkoutRequestID":"ws_CO_unknown","resultCode":0}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"outcome":"unmatched"`))
		})

		ginkgo.It("returns 400 for malformed payloads", func() {
			rec := do(http.MethodPost, "/api/v1/payments/callback", `{"resultCode":0}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("returns 500 when the ledger cannot be updated", func() {
			repo.updateError = errors.New("connection reset")

			rec := do(http.MethodPost, "/api/v1/payments/callback", `{"checkoutRequestID":"`+token+`","resultCode":0}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusInternalServerError))
		})
	})
})
