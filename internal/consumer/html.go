package consumer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/embedworks/monocle/internal/events"
	"github.com/embedworks/monocle/internal/provider"
)

// Devour enriches an HTML fragment in place: URLs appearing in text
// nodes are replaced with embeds while the surrounding markup is kept
// intact. Text inside anchors is never touched, a linked URL is already
// presented the way its author wanted.
func (c *Consumer) Devour(ctx context.Context, markup string, opts provider.Options) (string, error) {
	start := time.Now()
	c.emitPass(events.TypePreConsume, "html", 0)
	defer func() {
		c.collector.RecordConsume("html", time.Since(start))
		c.emitPass(events.TypePostConsume, "html", time.Since(start).Seconds())
	}()

	root := bodyNode()
	nodes, err := html.ParseFragment(strings.NewReader(markup), bodyNode())
	if err != nil {
		return "", fmt.Errorf("failed to parse html fragment: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	// Collect first, then mutate: splicing replaces text nodes with
	// freshly parsed siblings that must not be scanned again.
	for _, textNode := range collectTextNodes(root) {
		if insideAnchor(textNode) {
			continue
		}
		c.enrichTextNode(ctx, textNode, opts)
	}

	var buf bytes.Buffer
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if err := html.Render(&buf, child); err != nil {
			return "", fmt.Errorf("failed to render enriched html: %w", err)
		}
	}
	return buf.String(), nil
}

// enrichTextNode replaces the text node with parsed embed markup when
// any of its URLs resolve. Parse failures leave the node untouched.
func (c *Consumer) enrichTextNode(ctx context.Context, textNode *html.Node, opts provider.Options) {
	replacements := c.resolveAll(ctx, textNode.Data, opts)
	if len(replacements) == 0 {
		return
	}

	enriched := spliceText(textNode.Data, replacements)
	fragment, err := html.ParseFragment(strings.NewReader(enriched), bodyNode())
	if err != nil {
		c.logger.Warn("Failed to parse enriched text, keeping original",
			zap.Error(err))
		return
	}

	parent := textNode.Parent
	for _, n := range fragment {
		parent.InsertBefore(n, textNode)
	}
	parent.RemoveChild(textNode)
}

// spliceText rebuilds text with embeds substituted for replaced URLs.
// The text around embeds is escaped so it survives the re-parse.
func spliceText(text string, replacements map[string]string) string {
	var b strings.Builder
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		embed, ok := replacements[match]
		if !ok {
			continue
		}
		b.WriteString(html.EscapeString(text[last:loc[0]]))
		b.WriteString(embed)
		last = loc[1]
	}
	b.WriteString(html.EscapeString(text[last:]))
	return b.String()
}

func bodyNode() *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
}

func collectTextNodes(root *html.Node) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			found = append(found, n)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return found
}

func insideAnchor(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.A {
			return true
		}
	}
	return false
}
