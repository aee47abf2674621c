// Package consumer finds embeddable URLs in text and HTML and replaces
// them with rendered OEmbed fragments. It is the read side of the
// engine: everything it needs comes from the registry and the cache, so
// enrichment never waits on a remote provider.
package consumer

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/events"
	"github.com/embedworks/monocle/internal/metrics"
	"github.com/embedworks/monocle/internal/provider"
	"github.com/embedworks/monocle/internal/registry"
	"github.com/embedworks/monocle/internal/render"
)

// urlPattern matches absolute http(s) URLs in free text. Trailing
// punctuation that commonly ends a sentence is excluded from the match.
var urlPattern = regexp.MustCompile(`(?i)https?://[-A-Za-z0-9+&@#/%?=~_()|!:,.;]*[-A-Za-z0-9+&@#/%=~_|]`)

// Config controls one consumer's behavior.
type Config struct {
	// SkipInternal leaves URLs claimed by internal providers untouched.
	// Used when the consumed content is rendered by the application
	// itself, which can embed its own objects directly.
	SkipInternal bool
}

// Consumer replaces matched URLs with embeds.
type Consumer struct {
	registry  *registry.Registry
	renderer  *render.Renderer
	emitter   events.Emitter
	collector *metrics.Collector
	logger    *zap.Logger
	cfg       Config
}

// New builds a Consumer. Emitter and collector may be nil.
func New(
	reg *registry.Registry,
	renderer *render.Renderer,
	emitter events.Emitter,
	collector *metrics.Collector,
	cfg Config,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		registry:  reg,
		renderer:  renderer,
		emitter:   emitter,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
	}
}

// Enrich replaces every matched URL in text with its rendered embed.
// URLs no provider claims pass through untouched, as does any URL whose
// resolution or rendering fails: enrichment degrades per-URL, never for
// the whole text.
func (c *Consumer) Enrich(ctx context.Context, text string, opts provider.Options) string {
	start := time.Now()
	c.emitPass(events.TypePreConsume, "text", 0)
	defer func() {
		c.collector.RecordConsume("text", time.Since(start))
		c.emitPass(events.TypePostConsume, "text", time.Since(start).Seconds())
	}()

	replacements := c.resolveAll(ctx, text, opts)
	if len(replacements) == 0 {
		return text
	}

	return urlPattern.ReplaceAllStringFunc(text, func(match string) string {
		if html, ok := replacements[match]; ok {
			return html
		}
		return match
	})
}

// resolveAll matches, resolves and renders every unique URL in text,
// in first-occurrence order. The result maps each URL to its embed.
func (c *Consumer) resolveAll(ctx context.Context, text string, opts provider.Options) map[string]string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	replacements := make(map[string]string)
	seen := make(map[string]bool, len(matches))

	for _, rawURL := range matches {
		if seen[rawURL] {
			continue
		}
		seen[rawURL] = true

		if html, ok := c.resolveOne(ctx, rawURL, opts); ok {
			replacements[rawURL] = html
		}
	}

	return replacements
}

// resolveOne resolves a single URL to its embed HTML. Returns false
// when the URL should pass through untouched.
func (c *Consumer) resolveOne(ctx context.Context, rawURL string, opts provider.Options) (string, bool) {
	p := c.registry.Match(ctx, rawURL)
	if p == nil {
		return "", false
	}
	if c.cfg.SkipInternal && p.IsInternal() {
		return "", false
	}

	c.collector.RecordMatchedURL(p.Name())
	c.emit(events.TypePreConsume, p.Name(), rawURL, 0)
	start := time.Now()

	res, err := p.GetResource(ctx, rawURL, opts)
	if err != nil {
		c.logger.Warn("Failed to resolve matched url, leaving it untouched",
			zap.String("provider", p.Name()),
			zap.String("url", rawURL),
			zap.Error(err))
		return "", false
	}

	html, err := c.renderer.Render(res)
	if err != nil {
		c.logger.Warn("Failed to render resource, leaving url untouched",
			zap.String("provider", p.Name()),
			zap.String("url", rawURL),
			zap.Error(err))
		return "", false
	}

	c.collector.RecordEmbed(p.ResourceType())
	c.emit(events.TypePostConsume, p.Name(), rawURL, time.Since(start).Seconds())

	return string(html), true
}

// emitPass brackets a whole enrichment pass. The per-URL events inside
// carry provider attribution; the pass pair carries the content kind.
func (c *Consumer) emitPass(eventType, kind string, elapsed float64) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(&events.Event{
		EventType: eventType,
		Key:       kind,
		Elapsed:   elapsed,
		CreatedAt: time.Now().UTC(),
	})
}

func (c *Consumer) emit(eventType, providerName, rawURL string, elapsed float64) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(&events.Event{
		EventType: eventType,
		Provider:  providerName,
		URL:       rawURL,
		Elapsed:   elapsed,
		CreatedAt: time.Now().UTC(),
	})
}
