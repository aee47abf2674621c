package scenarios_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/embedworks/monocle/internal/consumer"
	"github.com/embedworks/monocle/internal/provider"
)

var _ = Describe("Prefetch warm-up", Serial, func() {
	Context("when prefetching with a scalar size", func() {
		It("primes the unbounded pass plus every scalar expansion", func() {
			e := newEngine()

			e.enricher.Prefetch(context.Background(), "see "+contentURL, []consumer.Size{consumer.Scalar(300)})

			Expect(e.queueMembers()).To(ConsistOf(
				e.requestURL(provider.Options{}),
				e.requestURL(provider.Options{MaxWidth: 300}),
				e.requestURL(provider.Options{MaxHeight: 300}),
				e.requestURL(provider.Options{MaxWidth: 300, MaxHeight: 300}),
			))
		})
	})

	Context("when prefetching with explicit pairs", func() {
		It("primes one entry per pair on top of the unbounded pass", func() {
			e := newEngine()

			e.enricher.Prefetch(context.Background(), contentURL, []consumer.Size{
				consumer.Pair(640, 480),
				consumer.Pair(320, 240),
			})

			Expect(e.queueMembers()).To(ConsistOf(
				e.requestURL(provider.Options{}),
				e.requestURL(provider.Options{MaxWidth: 640, MaxHeight: 480}),
				e.requestURL(provider.Options{MaxWidth: 320, MaxHeight: 240}),
			))
		})
	})
})
