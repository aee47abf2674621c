// Package render turns OEmbed resources into embeddable HTML fragments.
// Each resource type has its own template; the built-in set can be
// overridden per deployment with a template directory.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/embedworks/monocle/pkg/oembed"
)

//go:embed templates/*.html
var builtinTemplates embed.FS

// Config controls template loading and invalid-resource handling.
type Config struct {
	// TemplateDir overrides the built-in templates when set. The
	// directory must contain one <type>.html per supported type.
	TemplateDir string

	// UrlizeInvalid renders invalid resources as plain links instead of
	// passing the bare URL through as text.
	UrlizeInvalid bool
}

// Renderer renders resources to HTML using per-type templates.
type Renderer struct {
	templates     *template.Template
	urlizeInvalid bool
	logger        *zap.Logger
}

// New loads templates and builds a Renderer.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	var templates *template.Template
	var err error

	if cfg.TemplateDir != "" {
		templates, err = template.ParseGlob(filepath.Join(cfg.TemplateDir, "*.html"))
		if err != nil {
			return nil, fmt.Errorf("failed to load templates from %s: %w", cfg.TemplateDir, err)
		}
	} else {
		templates, err = template.ParseFS(builtinTemplates, "templates/*.html")
		if err != nil {
			return nil, fmt.Errorf("failed to load built-in templates: %w", err)
		}
	}

	for _, typ := range oembed.Types {
		if templates.Lookup(typ+".html") == nil {
			return nil, fmt.Errorf("missing template for resource type %q", typ)
		}
	}

	return &Renderer{
		templates:     templates,
		urlizeInvalid: cfg.UrlizeInvalid,
		logger:        logger,
	}, nil
}

// Render produces the HTML fragment for a resource. Invalid resources
// (placeholders, incomplete responses) render as a plain link or as the
// bare URL depending on configuration.
func (r *Renderer) Render(res *oembed.Resource) (template.HTML, error) {
	if !res.IsValid() {
		return r.renderInvalid(res)
	}

	return r.execute(res.Type()+".html", renderContext{res: res})
}

func (r *Renderer) renderInvalid(res *oembed.Resource) (template.HTML, error) {
	if !r.urlizeInvalid {
		return template.HTML(template.HTMLEscapeString(res.URL)), nil
	}
	// Render through the link template with no data so the output is a
	// plain anchor to the original URL.
	return r.execute("link.html", renderContext{res: &oembed.Resource{URL: res.URL}})
}

func (r *Renderer) execute(name string, ctx renderContext) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, ctx); err != nil {
		return "", fmt.Errorf("failed to render %s for %s: %w", name, ctx.res.URL, err)
	}
	return template.HTML(strings.TrimSpace(buf.String())), nil
}

// renderContext is what templates see.
type renderContext struct {
	res *oembed.Resource
}

// URL is the original content URL.
func (c renderContext) URL() string {
	return c.res.URL
}

// Attr returns a response document attribute, or nil when absent.
func (c renderContext) Attr(name string) any {
	v := c.res.Get(name)
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}

// Title returns the resource title, falling back to the content URL.
func (c renderContext) Title() string {
	if title, ok := c.res.Get("title").(string); ok && title != "" {
		return title
	}
	return c.res.URL
}

// Embed returns the provider-supplied html attribute unescaped. Only
// the video and rich templates use it; those types require the
// attribute by definition.
func (c renderContext) Embed() template.HTML {
	s, _ := c.res.Get("html").(string)
	return template.HTML(s)
}
