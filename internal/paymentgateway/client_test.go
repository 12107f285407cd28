package paymentgateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/payconfirm/internal"
	paymentgatewaytypes "github.com/frahmantamala/payconfirm/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payconfirm/internal/paymentgateway"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

var _ = Describe("Client", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
		client  *paymentgateway.Client
		request *paymentgatewaytypes.PushRequest
	)

	BeforeEach(func() {
		handler = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		client = paymentgateway.NewClient(paymentgateway.ClientConfig{
			BaseURL: server.URL + "/",
			APIKey:  "sandbox-key",
			Timeout: 200 * time.Millisecond,
		}, logger.Discard())
		request = &paymentgatewaytypes.PushRequest{
			Phone:       "254712345678",
			Amount:      105,
			BundleName:  "Standard Report",
			CallbackURL: "http://localhost:8080/api/v1/payments/callback",
		}
	})

	AfterEach(func() {
		server.Close()
	})

	respond := func(status int, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}
	}

	It("posts the push request with the bearer key and returns the token", func() {
		var received paymentgatewaytypes.PushRequest
		var authHeader, path string
		handler = func(w http.ResponseWriter, r *http.Request) {
			authHeader = r.Header.Get("Authorization")
			path = r.URL.Path
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			respond(http.StatusOK, `{"success":true,"transactionId":"TXN001","checkoutRequestID":"ws_CO_001","message":"Success. Request accepted for processing"}`)(w, r)
		}

		resp, err := client.PushSTK(context.Background(), request)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.CheckoutRequestID).To(Equal("ws_CO_001"))
		Expect(resp.TransactionID).To(Equal("TXN001"))

		Expect(path).To(Equal(paymentgateway.PushPath))
		Expect(authHeader).To(Equal("Bearer sandbox-key"))
		Expect(received).To(Equal(*request))
	})

	It("accepts a 2xx response that omits the success flag", func() {
		handler = respond(http.StatusCreated, `{"transactionId":"TXN001","checkoutRequestID":"ws_CO_001"}`)

		resp, err := client.PushSTK(context.Background(), request)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.CheckoutRequestID).To(Equal("ws_CO_001"))
	})

	DescribeTable("classifies unavailability",
		func(status int, body string) {
			handler = respond(status, body)

			_, err := client.PushSTK(context.Background(), request)
			Expect(errors.Is(err, apperrors.ErrGatewayUnavailable)).To(BeTrue())
		},
		Entry("500", http.StatusInternalServerError, `{"error":"boom"}`),
		Entry("503", http.StatusServiceUnavailable, ``),
		Entry("garbled 200", http.StatusOK, `<html>`),
	)

	It("classifies a timeout as unavailable", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
			respond(http.StatusOK, `{"checkoutRequestID":"ws_CO_001"}`)(w, r)
		}

		_, err := client.PushSTK(context.Background(), request)
		Expect(errors.Is(err, apperrors.ErrGatewayUnavailable)).To(BeTrue())
	})

	It("classifies a refused connection as unavailable", func() {
		server.Close()

		_, err := client.PushSTK(context.Background(), request)
		Expect(errors.Is(err, apperrors.ErrGatewayUnavailable)).To(BeTrue())
	})

	DescribeTable("classifies rejections and keeps the reason",
		func(status int, body string, reason string) {
			handler = respond(status, body)

			_, err := client.PushSTK(context.Background(), request)
			Expect(errors.Is(err, apperrors.ErrGatewayRejected)).To(BeTrue())
			appErr, _ := apperrors.IsAppError(err)
			Expect(appErr.Message).To(ContainSubstring(reason))
		},
		Entry("400 with error", http.StatusBadRequest, `{"success":false,"error":"Invalid phone number"}`, "Invalid phone number"),
		Entry("401 without body", http.StatusUnauthorized, ``, "401"),
		Entry("failure payload on 200", http.StatusOK, `{"success":false,"message":"Insufficient float"}`, "Insufficient float"),
		Entry("missing token on 200", http.StatusOK, `{"success":true,"transactionId":"TXN001"}`, "checkout request id"),
	)
})
