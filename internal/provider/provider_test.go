package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestURLCanonicalForm(t *testing.T) {
	got := RequestURL("http://photos.example.com/oembed", "https://photos.example.com/p/42", Options{
		MaxWidth:  640,
		MaxHeight: 480,
	})

	// url.Values.Encode sorts parameters, so equal requests always
	// produce identical strings.
	assert.Equal(t,
		"http://photos.example.com/oembed?format=json&maxheight=480&maxwidth=640&url=https%3A%2F%2Fphotos.example.com%2Fp%2F42",
		got)
}

func TestRequestURLAlwaysRequestsJSON(t *testing.T) {
	got := RequestURL("http://api.example.com/oembed", "http://videos.example.com/v/7", Options{})
	assert.Equal(t, "http://api.example.com/oembed?format=json&url=http%3A%2F%2Fvideos.example.com%2Fv%2F7", got)
}

func TestRequestURLOmitsZeroDimensions(t *testing.T) {
	got := RequestURL("http://photos.example.com/oembed", "https://photos.example.com/p/42", Options{})
	assert.Equal(t,
		"http://photos.example.com/oembed?format=json&url=https%3A%2F%2Fphotos.example.com%2Fp%2F42",
		got)

	widthOnly := RequestURL("http://photos.example.com/oembed", "https://photos.example.com/p/42", Options{MaxWidth: 300})
	assert.Contains(t, widthOnly, "maxwidth=300")
	assert.NotContains(t, widthOnly, "maxheight")
}

func TestRequestURLEndpointWithQuery(t *testing.T) {
	got := RequestURL("http://api.example.com/oembed?key=abc", "https://example.com/a", Options{})
	assert.Equal(t, "http://api.example.com/oembed?key=abc&format=json&url=https%3A%2F%2Fexample.com%2Fa", got)
}

func TestContentURLRoundTrip(t *testing.T) {
	contentURL := "https://photos.example.com/p/42?size=large"
	requestURL := RequestURL("http://photos.example.com/oembed", contentURL, Options{MaxWidth: 100})

	got, err := ContentURL(requestURL)
	require.NoError(t, err)
	assert.Equal(t, contentURL, got)
}

func TestContentURLMissing(t *testing.T) {
	_, err := ContentURL("http://photos.example.com/oembed?maxwidth=100")
	assert.Error(t, err)
}
