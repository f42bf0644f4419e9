// Package markdown renders CMS rich text bodies to sanitized HTML.
package markdown

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts Markdown to HTML and sanitizes the result.
type Renderer struct {
	md        goldmark.Markdown
	sanitizer *bluemonday.Policy
}

// Option configures the Renderer.
type Option func(*rendererOptions)

type rendererOptions struct {
	style     string
	hardWraps bool
	policy    *bluemonday.Policy
}

// WithHighlightStyle sets the chroma style for fenced code blocks.
// An empty style disables highlighting.
func WithHighlightStyle(style string) Option {
	return func(o *rendererOptions) { o.style = style }
}

// WithHardWraps renders single newlines as <br>.
func WithHardWraps() Option {
	return func(o *rendererOptions) { o.hardWraps = true }
}

// WithPolicy replaces the sanitization policy.
func WithPolicy(p *bluemonday.Policy) Option {
	return func(o *rendererOptions) { o.policy = p }
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	o := rendererOptions{style: "github"}
	for _, opt := range opts {
		opt(&o)
	}

	exts := []goldmark.Extender{extension.GFM}
	if o.style != "" {
		exts = append(exts, highlighting.NewHighlighting(highlighting.WithStyle(o.style)))
	}

	renderOpts := []goldmark.Option{}
	if o.hardWraps {
		renderOpts = append(renderOpts, goldmark.WithRendererOptions(html.WithHardWraps()))
	}

	md := goldmark.New(append([]goldmark.Option{
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	}, renderOpts...)...)

	policy := o.policy
	if policy == nil {
		policy = Sanitizer()
	}
	return &Renderer{md: md, sanitizer: policy}
}

// highlightStyles are the CSS properties chroma emits for inline styles.
var highlightStyles = []string{
	"color", "background-color", "font-weight", "font-style", "text-decoration",
}

// Sanitizer returns the policy applied to rendered bodies.
func Sanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()

	// Highlighter output and heading anchors.
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span", "div")
	p.AllowStyles(highlightStyles...).OnElements("pre", "span")
	p.AllowAttrs("id").Matching(bluemonday.Paragraph).OnElements("h1", "h2", "h3", "h4", "h5", "h6")

	return p
}

// markdocTag matches Markdoc tag syntax such as {% callout %} or {% image /%}.
var markdocTag = regexp.MustCompile(`\{%.*?%\}`)

// Convert renders Markdown source to sanitized HTML.
func (r *Renderer) Convert(source string) (string, error) {
	source = markdocTag.ReplaceAllString(source, "")

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return r.sanitizer.Sanitize(buf.String()), nil
}

// Render validates a rich text node and renders it. The node must be a
// non-blank string; anything else renders nothing and reports false.
func (r *Renderer) Render(node any) (template.HTML, bool) {
	source, ok := node.(string)
	if !ok || strings.TrimSpace(source) == "" {
		return "", false
	}

	out, err := r.Convert(source)
	if err != nil {
		return "", false
	}
	// Sanitized above.
	return template.HTML(out), true
}
