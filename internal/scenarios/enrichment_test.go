package scenarios_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/embedworks/monocle/internal/provider"
)

var _ = Describe("Content enrichment", Serial, func() {
	Context("when enriching plain text", func() {
		It("replaces matched URLs with rendered embeds and leaves the rest alone", func() {
			e := newEngine()
			e.seedResource(0)

			text := "Look at " + contentURL + " and https://elsewhere.example.net/x too"
			enriched := e.enricher.Enrich(context.Background(), text, provider.Options{})

			Expect(enriched).To(ContainSubstring("<img "))
			Expect(enriched).To(ContainSubstring(`src="https://cdn.example.com/7.jpg"`))
			Expect(enriched).To(ContainSubstring("https://elsewhere.example.net/x too"))
			Expect(strings.Count(enriched, contentURL)).To(Equal(0), "the matched URL should be consumed")
		})

		It("passes the text through untouched when the resource is still a placeholder", func() {
			e := newEngine()

			text := "Look at " + contentURL
			enriched := e.enricher.Enrich(context.Background(), text, provider.Options{})

			Expect(enriched).To(Equal(text))
			Expect(e.queueMembers()).To(HaveLen(1), "the miss should still schedule a refresh")
		})
	})

	Context("when enriching HTML", func() {
		It("skips URLs that already live inside an anchor", func() {
			e := newEngine()
			e.seedResource(0)

			markup := `<p>Linked <a href="` + contentURL + `">` + contentURL + `</a> and bare ` + contentURL + `</p>`
			enriched, err := e.enricher.Devour(context.Background(), markup, provider.Options{})
			Expect(err).NotTo(HaveOccurred())

			Expect(strings.Count(enriched, "<img ")).To(Equal(1), "only the bare occurrence is embedded")
			Expect(enriched).To(ContainSubstring(`href="` + contentURL + `"`))
			Expect(enriched).To(ContainSubstring(">" + contentURL + "</a>"))
		})

		It("keeps surrounding markup intact", func() {
			e := newEngine()
			e.seedResource(0)

			markup := `<div class="post"><p>Intro</p><p>` + contentURL + `</p></div>`
			enriched, err := e.enricher.Devour(context.Background(), markup, provider.Options{})
			Expect(err).NotTo(HaveOccurred())

			Expect(enriched).To(ContainSubstring(`<div class="post">`))
			Expect(enriched).To(ContainSubstring("<p>Intro</p>"))
			Expect(enriched).To(ContainSubstring("<img "))
		})
	})
})
