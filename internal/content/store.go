package content

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Entry is a decoded content document.
// Fields is shared with the cache and must not be modified.
type Entry struct {
	Collection string         `json:"collection,omitempty"`
	Singleton  string         `json:"singleton,omitempty"`
	Slug       string         `json:"slug,omitempty"`
	Fields     map[string]any `json:"fields"`
}

// String returns a string field, or "" when absent or not a string.
func (e Entry) String(field string) string {
	s, _ := e.Fields[field].(string)
	return s
}

// Reader is read access to the content tree.
type Reader interface {
	List(collection string) ([]string, error)
	Read(collection, slug string) (Entry, error)
	Singleton(name string) (Entry, error)
}

// Store reads entries from a content directory and caches them until
// Invalidate is called.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	root   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entry
	lists   map[string][]string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:    dir,
		logger:  logger,
		entries: make(map[string]Entry),
		lists:   make(map[string][]string),
	}
}

// Root returns the content directory.
func (s *Store) Root() string {
	return s.root
}

// List returns the sorted slugs of a collection. A collection whose
// directory does not exist yet is empty.
func (s *Store) List(collection string) ([]string, error) {
	c, ok := findCollection(collection)
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, ErrNotFound)
	}

	s.mu.RLock()
	cached, hit := s.lists[collection]
	s.mu.RUnlock()
	if hit {
		return append([]string(nil), cached...), nil
	}

	dirEntries, err := os.ReadDir(filepath.Join(s.root, c.Dir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	slugs := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.HasSuffix(name, c.Format.ext()) {
			continue
		}
		slug := strings.TrimSuffix(name, c.Format.ext())
		if ValidSlug(slug) {
			slugs = append(slugs, slug)
		}
	}
	sort.Strings(slugs)

	s.mu.Lock()
	s.lists[collection] = slugs
	s.mu.Unlock()

	return append([]string(nil), slugs...), nil
}

// Read returns a collection entry by slug.
func (s *Store) Read(collection, slug string) (Entry, error) {
	c, ok := findCollection(collection)
	if !ok {
		return Entry{}, fmt.Errorf("collection %q: %w", collection, ErrNotFound)
	}
	if !ValidSlug(slug) {
		return Entry{}, fmt.Errorf("%q: %w", slug, ErrInvalidSlug)
	}

	key := collection + "/" + slug
	if e, hit := s.cached(key); hit {
		return e, nil
	}

	path := filepath.Join(s.root, c.Dir, slug+c.Format.ext())
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("%s/%s: %w", collection, slug, ErrNotFound)
		}
		return Entry{}, fmt.Errorf("read %s/%s: %w", collection, slug, err)
	}

	var fields map[string]any
	if c.Format == FormatMarkdoc {
		fields, err = parseMarkdoc(data, c.BodyField)
	} else {
		fields, err = parseYAML(data)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("decode %s/%s: %w", collection, slug, err)
	}

	e := Entry{Collection: collection, Slug: slug, Fields: fields}
	s.store(key, e)
	return e, nil
}

// Singleton returns a singleton document by name.
func (s *Store) Singleton(name string) (Entry, error) {
	sg, ok := findSingleton(name)
	if !ok {
		return Entry{}, fmt.Errorf("singleton %q: %w", name, ErrNotFound)
	}

	key := "singleton:" + name
	if e, hit := s.cached(key); hit {
		return e, nil
	}

	data, err := os.ReadFile(filepath.Join(s.root, sg.Dir, "index.yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("singleton %q: %w", name, ErrNotFound)
		}
		return Entry{}, fmt.Errorf("read singleton %s: %w", name, err)
	}

	fields, err := parseYAML(data)
	if err != nil {
		return Entry{}, fmt.Errorf("decode singleton %s: %w", name, err)
	}

	e := Entry{Singleton: name, Fields: fields}
	s.store(key, e)
	return e, nil
}

// Invalidate drops every cached entry and listing.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.lists = make(map[string][]string)
	s.mu.Unlock()
}

// OnContentChanged implements Subscriber.
func (s *Store) OnContentChanged(event ChangeEvent) {
	s.logger.Debug("Content changed, invalidating cache", "dirs", event.ChangedDirs)
	s.Invalidate()
}

func (s *Store) cached(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *Store) store(key string, e Entry) {
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
}

func parseYAML(data []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	// A null document resets the map.
	if fields == nil {
		fields = make(map[string]any)
	}
	return fields, nil
}

const frontMatterDelim = "---"

// parseMarkdoc splits a document into YAML front matter and body. The body
// is stored under bodyField.
func parseMarkdoc(data []byte, bodyField string) (map[string]any, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	var front, body []byte
	if rest, ok := bytes.CutPrefix(data, []byte(frontMatterDelim+"\n")); ok {
		if bytes.HasPrefix(rest, []byte(frontMatterDelim)) {
			body = rest[len(frontMatterDelim):]
		} else {
			end := bytes.Index(rest, []byte("\n"+frontMatterDelim))
			if end < 0 {
				return nil, errors.New("unterminated front matter")
			}
			front = rest[:end]
			body = rest[end+1+len(frontMatterDelim):]
		}
		body = bytes.TrimPrefix(body, []byte("\n"))
	} else {
		body = data
	}

	fields, err := parseYAML(front)
	if err != nil {
		return nil, err
	}
	if bodyField != "" {
		fields[bodyField] = strings.TrimSpace(string(body))
	}
	return fields, nil
}
