package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/frahmantamala/payconfirm/internal"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

var _ = Describe("filterSensitiveBody", func() {
	It("masks phone numbers and filters secrets", func() {
		out := filterSensitiveBody([]byte(`{"phone":"254712345678","amount":105,"api_key":"sk_live","idempotencyToken":"ws_CO_1"}`))

		var parsed map[string]interface{}
		Expect(json.Unmarshal([]byte(out), &parsed)).To(Succeed())
		Expect(parsed["phone"]).To(Equal("2547*****678"))
		Expect(parsed["api_key"]).To(Equal("[FILTERED]"))
		Expect(parsed["idempotencyToken"]).To(Equal("ws_CO_1"))
		Expect(parsed["amount"]).To(BeNumerically("==", 105))
	})

	It("filters nested objects", func() {
		out := filterSensitiveBody([]byte(`{"payer":{"phone":"0712345678","password":"x"}}`))
		Expect(out).To(ContainSubstring(`"0712***678"`))
		Expect(out).NotTo(ContainSubstring(`"x"`))
	})

	It("leaves short values fully masked", func() {
		Expect(MaskPhone("12345")).To(Equal("*****"))
	})
})

var _ = Describe("filterSensitiveHeaders", func() {
	It("hides authorization headers", func() {
		headers := http.Header{}
		headers.Set("Authorization", "Bearer secret")
		headers.Set("Content-Type", "application/json")

		filtered := filterSensitiveHeaders(headers)
		Expect(filtered["Authorization"]).To(Equal("[FILTERED]"))
		Expect(filtered["Content-Type"]).To(Equal("application/json"))
	})
})

var _ = Describe("RequestID", func() {
	It("reuses the caller's id and exposes it to handlers and loggers", func() {
		var seenID string
		var scoped *slog.Logger
		handler := RequestID(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID = apperrors.RequestIDFromContext(r.Context())
			scoped = logger.From(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		Expect(seenID).To(Equal("req-123"))
		Expect(rec.Header().Get(RequestIDHeader)).To(Equal("req-123"))
		Expect(scoped).NotTo(BeNil())
	})

	It("issues an id when none is sent", func() {
		handler := RequestID(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(rec.Header().Get(RequestIDHeader)).To(HaveLen(36))
	})
})

var _ = Describe("RecoveryMiddleware", func() {
	It("renders a panic as an internal error envelope", func() {
		handler := RecoveryMiddleware(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments/initiate", nil))

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(rec.Body.String()).To(ContainSubstring(`"success":false`))
		Expect(rec.Body.String()).To(ContainSubstring(`"INTERNAL_ERROR"`))
		Expect(rec.Body.String()).NotTo(ContainSubstring("boom"))
	})
})

var _ = Describe("LoggingMiddleware", func() {
	It("logs the request and response with the request id and masked phone", func() {
		var buf bytes.Buffer
		base := slog.New(slog.NewJSONHandler(&buf, nil))

		handler := RequestID(base)(LoggingMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"success":true}`))
		})))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/initiate", strings.NewReader(`{"phone":"254712345678"}`))
		req.Header.Set(RequestIDHeader, "req-abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusAccepted))
		logs := buf.String()
		Expect(logs).To(ContainSubstring(`"request_id":"req-abc"`))
		Expect(logs).To(ContainSubstring(`"status_code":202`))
		Expect(logs).NotTo(ContainSubstring("254712345678"))
	})
})

var _ = Describe("CORS", func() {
	It("answers preflight requests", func() {
		handler := CORS("*")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/payments/initiate", nil))
		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
	})

	It("echoes only listed origins", func() {
		handler := CORS("https://app.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://app.example.com"))

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})
})

var _ = Describe("HTTPMetrics", func() {
	It("labels requests by route pattern", func() {
		reg := prometheus.NewRegistry()
		metrics := NewHTTPMetrics(reg)

		router := chi.NewRouter()
		router.Use(metrics.Middleware)
		router.Get("/api/v1/payments/{token}/status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		for _, token := range []string{"T1", "T2"} {
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+token+"/status", nil))
		}

		families, err := reg.Gather()
		Expect(err).NotTo(HaveOccurred())

		var found bool
		for _, family := range families {
			if family.GetName() != "payconfirm_http_requests_total" {
				continue
			}
			Expect(family.GetMetric()).To(HaveLen(1))
			metric := family.GetMetric()[0]
			Expect(metric.GetCounter().GetValue()).To(Equal(2.0))
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			Expect(labels).To(HaveKeyWithValue("route", "/api/v1/payments/{token}/status"))
			Expect(labels).To(HaveKeyWithValue("code", "404"))
			found = true
		}
		Expect(found).To(BeTrue())
	})
})

var _ = Describe("OpenAPIValidator", func() {
	const doc = `
openapi: 3.0.3
info:
  title: test
  version: 1.0.0
paths:
  /items:
    post:
      operationId: createItem
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [amount]
              properties:
                amount:
                  type: integer
      responses:
        '200':
          description: ok
  /hooks:
    post:
      operationId: receiveHook
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [id]
      responses:
        '200':
          description: ok
`
	var handler http.Handler

	BeforeEach(func() {
		spec, err := LoadOpenAPI(context.Background(), []byte(doc))
		Expect(err).NotTo(HaveOccurred())
		validator, err := OpenAPIValidator(spec, logger.Discard(), "receiveHook")
		Expect(err).NotTo(HaveOccurred())
		handler = validator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	})

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	It("passes matching requests", func() {
		Expect(post("/items", `{"amount":105}`).Code).To(Equal(http.StatusOK))
	})

	It("rejects requests that break the schema", func() {
		rec := post("/items", `{"amount":"105"}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Body.String()).To(ContainSubstring(string(apperrors.ErrCodeInvalidPayload)))
	})

	It("skips listed operations and undocumented routes", func() {
		Expect(post("/hooks", `{}`).Code).To(Equal(http.StatusOK))
		Expect(post("/metrics", `anything`).Code).To(Equal(http.StatusOK))
	})

	It("refuses an invalid document", func() {
		_, err := LoadOpenAPI(context.Background(), []byte("openapi: 3.0.3\npaths: {}\n"))
		Expect(err).To(HaveOccurred())
	})
})
