package scenarios_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/valyala/fasthttp"
)

var _ = Describe("Public OEmbed endpoint", Serial, func() {
	Context("when the consumer asks for a non-JSON format", func() {
		It("answers 501 without touching the cache", func() {
			e := newEngine()

			resp := e.doGet(oembedURI("&format=xml"))

			Expect(resp.Response.StatusCode()).To(Equal(fasthttp.StatusNotImplemented))
			Expect(e.queueMembers()).To(BeEmpty())
		})
	})

	Context("when the consumer sends a JSONP callback", func() {
		It("wraps the payload in the callback", func() {
			e := newEngine()
			e.seedResource(0)

			resp := e.doGet(oembedURI("&callback=cb"))

			Expect(resp.Response.StatusCode()).To(Equal(fasthttp.StatusOK))
			Expect(string(resp.Response.Header.ContentType())).To(Equal("application/javascript"))

			body := string(resp.Response.Body())
			Expect(strings.HasPrefix(body, "cb(")).To(BeTrue(), "body should start with the callback")
			Expect(strings.HasSuffix(body, ")")).To(BeTrue(), "body should close the call")
			Expect(body).To(ContainSubstring(`"type":"photo"`))
		})

		It("rejects callback names that could inject script", func() {
			e := newEngine()
			e.seedResource(0)

			resp := e.doGet(oembedURI("&callback=alert(1)//"))
			Expect(resp.Response.StatusCode()).To(Equal(fasthttp.StatusBadRequest))
		})
	})
})
