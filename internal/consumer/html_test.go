package consumer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedworks/monocle/internal/events"
	"github.com/embedworks/monocle/internal/provider"
)

func htmlConsumer(t *testing.T) (*Consumer, *fakeProvider) {
	t.Helper()
	p := &fakeProvider{
		name:   "photos",
		prefix: "https://photos.example.com/",
		res:    photoResource(photoURL),
	}
	return newConsumer(t, Config{}, nil, p), p
}

func TestDevourReplacesURLInText(t *testing.T) {
	c, _ := htmlConsumer(t)

	out, err := c.Devour(context.Background(), "<p>Look at "+photoURL+" now</p>", provider.Options{})
	require.NoError(t, err)

	assert.Equal(t,
		`<p>Look at <img src="https://cdn.example.com/42.jpg" width="640" height="480" alt="Photo 42"/> now</p>`,
		out)
}

func TestDevourKeepsSurroundingMarkup(t *testing.T) {
	c, _ := htmlConsumer(t)

	markup := `<div class="post"><h1>Title</h1><p>` + photoURL + `</p></div>`
	out, err := c.Devour(context.Background(), markup, provider.Options{})
	require.NoError(t, err)

	assert.Contains(t, out, `<div class="post"><h1>Title</h1><p><img `)
}

func TestDevourSkipsAnchoredText(t *testing.T) {
	c, p := htmlConsumer(t)

	markup := `<p><a href="` + photoURL + `">` + photoURL + `</a></p>`
	out, err := c.Devour(context.Background(), markup, provider.Options{})
	require.NoError(t, err)

	assert.Equal(t, markup, out)
	assert.Equal(t, 0, p.callCount())
}

func TestDevourSkipsTextNestedInsideAnchor(t *testing.T) {
	c, p := htmlConsumer(t)

	markup := `<a href="/x"><span>see ` + photoURL + `</span></a>`
	out, err := c.Devour(context.Background(), markup, provider.Options{})
	require.NoError(t, err)

	assert.Equal(t, markup, out)
	assert.Equal(t, 0, p.callCount())
}

func TestDevourIgnoresAttributeURLs(t *testing.T) {
	c, p := htmlConsumer(t)

	markup := `<img src="` + photoURL + `"/>`
	out, err := c.Devour(context.Background(), markup, provider.Options{})
	require.NoError(t, err)

	assert.Equal(t, markup, out)
	assert.Equal(t, 0, p.callCount())
}

func TestDevourEscapesSurroundingText(t *testing.T) {
	c, _ := htmlConsumer(t)

	out, err := c.Devour(context.Background(), "<p>a &amp; b "+photoURL+"</p>", provider.Options{})
	require.NoError(t, err)

	assert.Contains(t, out, "a &amp; b <img ")
}

func TestDevourPlainTextInput(t *testing.T) {
	c, _ := htmlConsumer(t)

	out, err := c.Devour(context.Background(), "just "+photoURL, provider.Options{})
	require.NoError(t, err)

	assert.Equal(t, `just <img src="https://cdn.example.com/42.jpg" width="640" height="480" alt="Photo 42"/>`, out)
}

func TestDevourBracketsPass(t *testing.T) {
	emitter := &capturedEvents{}
	c := newConsumer(t, Config{}, emitter)

	_, err := c.Devour(context.Background(), "<p>nothing embeddable</p>", provider.Options{})
	require.NoError(t, err)

	require.Equal(t, []string{events.TypePreConsume, events.TypePostConsume}, emitter.types())
	assert.Equal(t, "html", emitter.events[0].Key)
	assert.Equal(t, "html", emitter.events[1].Key)
}
