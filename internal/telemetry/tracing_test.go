package telemetry_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel"

	"github.com/frahmantamala/payconfirm/internal/telemetry"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

var _ = Describe("InitTracer", func() {
	It("leaves the global provider alone when disabled", func() {
		before := otel.GetTracerProvider()

		shutdown, err := telemetry.InitTracer(context.Background(), telemetry.TracingConfig{Enabled: false}, logger.Discard())
		Expect(err).NotTo(HaveOccurred())
		Expect(shutdown(context.Background())).To(Succeed())
		Expect(otel.GetTracerProvider()).To(BeIdenticalTo(before))
	})
})
