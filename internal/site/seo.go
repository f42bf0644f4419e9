package site

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// siteURL returns the public origin from the seo singleton, or the
// configured fallback. The bool reports whether seo supplied it.
func (s *Site) siteURL(seo map[string]any) (string, bool) {
	if u := strings.TrimSuffix(str(seo, "siteUrl"), "/"); u != "" {
		return u, true
	}
	return s.baseURL, false
}

// boolOr returns a boolean field, or def when absent.
func boolOr(fields map[string]any, key string, def bool) bool {
	if b, ok := fields[key].(bool); ok {
		return b
	}
	return def
}

func (s *Site) handleRobots(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	seo, err := s.singleton("seo")
	if err != nil {
		s.serverError(w, "seo", err)
		return
	}

	index := boolOr(seo, "robotsIndex", true)
	follow := boolOr(seo, "robotsFollow", true)

	var b strings.Builder
	b.WriteString("User-Agent: *\n")
	if index && follow {
		b.WriteString("Allow: /\n")
	}
	if !index {
		b.WriteString("Disallow: /\n")
	}
	if base, ok := s.siteURL(seo); ok {
		fmt.Fprintf(&b, "\nSitemap: %s/sitemap.xml\n", base)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func (s *Site) handleSitemap(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	seo, err := s.singleton("seo")
	if err != nil {
		s.serverError(w, "seo", err)
		return
	}
	base, _ := s.siteURL(seo)

	slugs, err := s.reader.List("products")
	if err != nil {
		s.serverError(w, "products", err)
		return
	}

	lastMod := s.now().UTC().Format(time.RFC3339)
	entry := func(path, freq string, priority float64) sitemapURL {
		return sitemapURL{
			Loc:        base + path,
			LastMod:    lastMod,
			ChangeFreq: freq,
			Priority:   fmt.Sprintf("%.1f", priority),
		}
	}

	set := urlSet{
		Xmlns: sitemapNS,
		URLs: []sitemapURL{
			entry("", "weekly", 1),
			entry("/products", "weekly", 0.9),
			entry("/reviews", "weekly", 0.8),
			entry("/contact", "monthly", 0.7),
		},
	}
	for _, slug := range slugs {
		set.URLs = append(set.URLs, entry("/products/"+slug, "monthly", 0.8))
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		s.serverError(w, "sitemap", err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}
