package scenarios_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/valyala/fasthttp"

	"github.com/embedworks/monocle/internal/provider"
)

var _ = Describe("Resource refresh lifecycle", Serial, func() {
	Context("when a resource is seen for the first time", func() {
		It("serves a placeholder, refreshes once, then serves the real resource", func() {
			e := newEngine()
			ctx := context.Background()

			By("Answering 404 on the cold miss")
			first := e.doGet(oembedURI(""))
			Expect(first.Response.StatusCode()).To(Equal(fasthttp.StatusNotFound))

			By("Scheduling exactly one refresh for the canonical request URL")
			members := e.queueMembers()
			Expect(members).To(ConsistOf(e.requestURL(provider.Options{})))

			By("Claiming and running the refresh task")
			requestURL := members[0]
			removed, err := e.redis.ZRem(ctx, queueKey, requestURL)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(1)))
			Expect(e.fetcher.Refresh(ctx, requestURL)).To(Succeed())
			Expect(e.providerHits.Load()).To(Equal(int64(1)))

			By("Serving the fetched resource on the second request")
			second := e.doGet(oembedURI(""))
			Expect(second.Response.StatusCode()).To(Equal(fasthttp.StatusOK))
			Expect(string(second.Response.Body())).To(ContainSubstring(`"type":"photo"`))
			Expect(string(second.Response.Body())).To(ContainSubstring(`"url":"https://cdn.example.com/7.jpg"`))

			By("Not scheduling another refresh for a fresh resource")
			Expect(e.queueMembers()).To(BeEmpty())
		})
	})

	Context("when a cached resource has outlived its TTL", func() {
		It("serves the stale copy, re-dates it, and refreshes only once", func() {
			e := newEngine()
			ctx := context.Background()
			e.seedResource(2 * time.Hour)

			By("Serving the stale resource immediately")
			resp := e.doGet(oembedURI(""))
			Expect(resp.Response.StatusCode()).To(Equal(fasthttp.StatusOK))
			Expect(string(resp.Response.Body())).To(ContainSubstring(`"type":"photo"`))

			By("Scheduling a single refresh")
			Expect(e.queueMembers()).To(ConsistOf(e.requestURL(provider.Options{})))
			Expect(e.enqueuer.count.Load()).To(Equal(int64(1)))

			By("Re-dating the cached entry so later readers see it fresh")
			cached, err := e.cache.Get(ctx, e.requestURL(provider.Options{}))
			Expect(err).NotTo(HaveOccurred())
			Expect(cached).NotTo(BeNil())
			Expect(cached.IsStale(time.Minute, time.Hour)).To(BeFalse())

			By("Not scheduling again on the next request")
			again := e.doGet(oembedURI(""))
			Expect(again.Response.StatusCode()).To(Equal(fasthttp.StatusOK))
			Expect(e.enqueuer.count.Load()).To(Equal(int64(1)))
			Expect(e.queueMembers()).To(HaveLen(1))
		})
	})

	Context("when many consumers miss the same URL at once", func() {
		It("schedules at most two refreshes and primes a single queue entry", func() {
			e := newEngine()
			ctx := context.Background()

			p := e.registry.Match(ctx, contentURL)
			Expect(p).NotTo(BeNil())

			parallel(16, func() {
				res, err := p.GetResource(ctx, contentURL, provider.Options{})
				Expect(err).NotTo(HaveOccurred())
				Expect(res).NotTo(BeNil())
			})

			Expect(e.queueMembers()).To(HaveLen(1))
			Expect(e.enqueuer.count.Load()).To(BeNumerically("<=", 2))
		})
	})
})
