package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/provider"
)

// Size is one prefetch size constraint. A pair constrains both
// dimensions at once; a scalar stands for every way a single bound can
// be requested and expands to (s,0), (0,s) and (s,s).
type Size struct {
	width  int
	height int
	scalar bool
}

// Pair builds a Size constraining both dimensions.
func Pair(width, height int) Size {
	return Size{width: width, height: height}
}

// Scalar builds a Size constraining either or both dimensions to side.
func Scalar(side int) Size {
	return Size{width: side, scalar: true}
}

func (s Size) expand() []provider.Options {
	if s.scalar {
		return []provider.Options{
			{MaxWidth: s.width},
			{MaxHeight: s.width},
			{MaxWidth: s.width, MaxHeight: s.width},
		}
	}
	return []provider.Options{{MaxWidth: s.width, MaxHeight: s.height}}
}

// Prefetch resolves every embeddable URL in text ahead of consumption,
// once unconstrained and once per expanded size, so the later Enrich
// call finds every variant already primed or cached. Resolution
// failures are logged and skipped; prefetching is advisory.
func (c *Consumer) Prefetch(ctx context.Context, text string, sizes []Size) {
	start := time.Now()
	defer func() {
		c.collector.RecordConsume("prefetch", time.Since(start))
	}()

	optionsSet := []provider.Options{{}}
	for _, size := range sizes {
		optionsSet = append(optionsSet, size.expand()...)
	}

	seen := make(map[string]bool)
	for _, rawURL := range urlPattern.FindAllString(text, -1) {
		if seen[rawURL] {
			continue
		}
		seen[rawURL] = true

		p := c.registry.Match(ctx, rawURL)
		if p == nil {
			continue
		}
		if c.cfg.SkipInternal && p.IsInternal() {
			continue
		}

		for _, opts := range optionsSet {
			if _, err := p.GetResource(ctx, rawURL, opts); err != nil {
				c.logger.Debug("Prefetch resolution failed",
					zap.String("provider", p.Name()),
					zap.String("url", rawURL),
					zap.Error(err))
			}
		}
	}
}
