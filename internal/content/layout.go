// Package content reads the CMS content tree from disk.
//
// The layout follows the admin UI's storage format: each collection is a
// directory of entries named by slug, and each singleton is an index.yaml
// inside its own directory.
package content

import (
	"errors"
	"regexp"
)

var (
	// ErrNotFound is returned when an entry, collection or singleton does not exist.
	ErrNotFound = errors.New("content: not found")
	// ErrInvalidSlug is returned for slugs that are not a single safe path segment.
	ErrInvalidSlug = errors.New("content: invalid slug")
)

// Format is the on-disk encoding of a collection's entries.
type Format int

const (
	// FormatYAML entries are <slug>.yaml documents.
	FormatYAML Format = iota
	// FormatMarkdoc entries are <slug>.mdoc files with YAML front matter
	// and a rich text body.
	FormatMarkdoc
)

func (f Format) ext() string {
	if f == FormatMarkdoc {
		return ".mdoc"
	}
	return ".yaml"
}

// Collection describes a directory of entries.
type Collection struct {
	Name   string
	Dir    string
	Format Format
	// BodyField receives the document body for Markdoc entries.
	BodyField string
}

// Singleton describes a single-entry document.
type Singleton struct {
	Name string
	Dir  string
}

// Collections are the content collections served by the site.
var Collections = []Collection{
	{Name: "posts", Dir: "posts", Format: FormatMarkdoc, BodyField: "content"},
	{Name: "products", Dir: "products", Format: FormatMarkdoc, BodyField: "description"},
	{Name: "productCategories", Dir: "product-categories", Format: FormatYAML},
	{Name: "services", Dir: "services", Format: FormatMarkdoc, BodyField: "description"},
	{Name: "reviews", Dir: "reviews", Format: FormatYAML},
}

// Singletons are the single-entry documents served by the site.
var Singletons = []Singleton{
	{Name: "home", Dir: "home"},
	{Name: "footer", Dir: "footer"},
	{Name: "contact", Dir: "contact"},
	{Name: "seo", Dir: "seo"},
	{Name: "productSettings", Dir: "product-settings"},
	{Name: "serviceSettings", Dir: "service-settings"},
	{Name: "reviewsBottom", Dir: "reviews-bottom"},
}

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidSlug reports whether slug is safe to use as a file name.
func ValidSlug(slug string) bool {
	return len(slug) <= 200 && slugPattern.MatchString(slug)
}

func findCollection(name string) (Collection, bool) {
	for _, c := range Collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

func findSingleton(name string) (Singleton, bool) {
	for _, s := range Singletons {
		if s.Name == name {
			return s, true
		}
	}
	return Singleton{}, false
}
