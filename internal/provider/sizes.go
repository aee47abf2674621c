package provider

import "github.com/embedworks/monocle/pkg/types"

// NearestAllowedSize maps a requested size onto a provider's allowed
// dimension grid. The requested size is first clamped to the consumer's
// maxwidth/maxheight, then snapped to the largest allowed dimension
// fitting inside it, ordered by width and then height. When no allowed
// dimension fits (or there is no grid at all) the clamped size passes
// through unchanged.
func NearestAllowedSize(width, height, maxWidth, maxHeight int, allowed []types.Dimension) (int, int) {
	if maxWidth > 0 && width > maxWidth {
		width = maxWidth
	}
	if maxHeight > 0 && height > maxHeight {
		height = maxHeight
	}

	var best types.Dimension
	found := false
	for _, d := range allowed {
		if d.Width > width || d.Height > height {
			continue
		}
		if !found || d.Width > best.Width || (d.Width == best.Width && d.Height > best.Height) {
			best = d
			found = true
		}
	}

	if !found {
		return width, height
	}
	return best.Width, best.Height
}
