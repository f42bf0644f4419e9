package content

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, root, rel, data string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "products/hair-oil.mdoc", "---\nname: Hair Oil\nprice: 12\n---\n# Shine\n\nNourishing oil.\n")
	writeFile(t, root, "products/body-butter.mdoc", "---\nname: Body Butter\n---\nWhipped.\n")
	writeFile(t, root, "products/notes.txt", "ignored")
	writeFile(t, root, "services/braids.mdoc", "---\ntitle: Braids\nduration: 3h\n---\nKnotless or box.\n")
	writeFile(t, root, "product-categories/skin-care.yaml", "category_name: Skin Care\nsub_categories:\n  - sub_category_name: Cleansers\n")
	writeFile(t, root, "seo/index.yaml", "siteUrl: https://example.com\nrobotsIndex: true\n")
	writeFile(t, root, "product-settings/index.yaml", "title: Our products\n")
	return root
}

func TestStore_List(t *testing.T) {
	s := NewStore(newTestTree(t), nil)

	got, err := s.List("products")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"body-butter", "hair-oil"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List(products) = %v, want %v", got, want)
	}

	empty, err := s.List("reviews")
	if err != nil {
		t.Fatalf("List(reviews): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("missing directory should list empty, got %v", empty)
	}

	if _, err := s.List("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown collection error = %v, want ErrNotFound", err)
	}
}

func TestStore_ReadMarkdoc(t *testing.T) {
	s := NewStore(newTestTree(t), nil)

	e, err := s.Read("products", "hair-oil")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if e.String("name") != "Hair Oil" {
		t.Errorf("name = %q", e.String("name"))
	}
	if e.Fields["price"] != 12 {
		t.Errorf("price = %#v, want 12", e.Fields["price"])
	}
	if e.String("description") != "# Shine\n\nNourishing oil." {
		t.Errorf("description = %q", e.String("description"))
	}
}

func TestStore_ReadYAML(t *testing.T) {
	s := NewStore(newTestTree(t), nil)

	e, err := s.Read("productCategories", "skin-care")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if e.Collection != "productCategories" || e.Slug != "skin-care" {
		t.Errorf("entry identity = %s/%s", e.Collection, e.Slug)
	}
	if e.String("category_name") != "Skin Care" {
		t.Errorf("category_name = %q", e.String("category_name"))
	}
	subs, ok := e.Fields["sub_categories"].([]any)
	if !ok || len(subs) != 1 {
		t.Fatalf("sub_categories = %#v", e.Fields["sub_categories"])
	}
	if sub, _ := subs[0].(map[string]any); sub["sub_category_name"] != "Cleansers" {
		t.Errorf("nested field = %#v", subs[0])
	}
}

func TestStore_ServiceBody(t *testing.T) {
	s := NewStore(newTestTree(t), nil)

	e, err := s.Read("services", "braids")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if e.String("duration") != "3h" || e.String("description") != "Knotless or box." {
		t.Errorf("fields = %+v", e.Fields)
	}
}

func TestStore_ReadErrors(t *testing.T) {
	s := NewStore(newTestTree(t), nil)

	tests := []struct {
		name       string
		collection string
		slug       string
		want       error
	}{
		{"missing entry", "products", "ghost", ErrNotFound},
		{"unknown collection", "widgets", "x", ErrNotFound},
		{"traversal", "products", "../seo/index", ErrInvalidSlug},
		{"dotted", "products", "..", ErrInvalidSlug},
		{"empty", "products", "", ErrInvalidSlug},
		{"separator", "products", "a/b", ErrInvalidSlug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Read(tt.collection, tt.slug)
			if !errors.Is(err, tt.want) {
				t.Errorf("Read(%q, %q) error = %v, want %v", tt.collection, tt.slug, err, tt.want)
			}
		})
	}
}

func TestStore_Singleton(t *testing.T) {
	s := NewStore(newTestTree(t), nil)

	seo, err := s.Singleton("seo")
	if err != nil {
		t.Fatalf("Singleton(seo): %v", err)
	}
	if seo.String("siteUrl") != "https://example.com" || seo.Fields["robotsIndex"] != true {
		t.Errorf("seo = %+v", seo.Fields)
	}

	ps, err := s.Singleton("productSettings")
	if err != nil {
		t.Fatalf("Singleton(productSettings): %v", err)
	}
	if ps.String("title") != "Our products" {
		t.Errorf("title = %q", ps.String("title"))
	}

	if _, err := s.Singleton("footer"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing singleton error = %v", err)
	}
	if _, err := s.Singleton("bogus"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown singleton error = %v", err)
	}
}

func TestStore_CacheAndInvalidate(t *testing.T) {
	root := newTestTree(t)
	s := NewStore(root, nil)

	if _, err := s.Read("services", "braids"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, root, "services/braids.mdoc", "---\ntitle: Box Braids\n---\n")

	cached, _ := s.Read("services", "braids")
	if cached.String("title") != "Braids" {
		t.Errorf("expected cached value, got %q", cached.String("title"))
	}

	s.OnContentChanged(ChangeEvent{ChangedDirs: []string{filepath.Join(root, "services")}})

	fresh, _ := s.Read("services", "braids")
	if fresh.String("title") != "Box Braids" {
		t.Errorf("expected fresh value after invalidation, got %q", fresh.String("title"))
	}
}

func TestParseMarkdoc(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantBody string
		wantErr  bool
	}{
		{"front matter and body", "---\ntitle: A\n---\nBody", "Body", false},
		{"empty front matter", "---\n---\nBody", "Body", false},
		{"null front matter", "---\nnull\n---\nBody\n", "Body", false},
		{"tilde front matter", "---\n~\n---\nBody", "Body", false},
		{"blank front matter", "---\n\n---\nBody", "Body", false},
		{"crlf", "---\r\ntitle: A\r\n---\r\nBody\r\n", "Body", false},
		{"no front matter", "Just text", "Just text", false},
		{"unterminated", "---\ntitle: A\nBody", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := parseMarkdoc([]byte(tt.in), "content")
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if fields["content"] != tt.wantBody {
				t.Errorf("body = %q, want %q", fields["content"], tt.wantBody)
			}
		})
	}
}

func TestStore_NullDocuments(t *testing.T) {
	root := newTestTree(t)
	writeFile(t, root, "products/p.mdoc", "---\nnull\n---\nbody\n")
	writeFile(t, root, "footer/index.yaml", "~\n")
	s := NewStore(root, nil)

	p, err := s.Read("products", "p")
	if err != nil {
		t.Fatalf("Read(products, p): %v", err)
	}
	if p.String("description") != "body" {
		t.Errorf("description = %q, want %q", p.String("description"), "body")
	}

	footer, err := s.Singleton("footer")
	if err != nil {
		t.Fatalf("Singleton(footer): %v", err)
	}
	if footer.Fields == nil {
		t.Error("null singleton should yield empty fields, not nil")
	}
}

func TestValidSlug(t *testing.T) {
	for _, s := range []string{"hair-oil", "a", "Item_2"} {
		if !ValidSlug(s) {
			t.Errorf("ValidSlug(%q) = false", s)
		}
	}
	for _, s := range []string{"", ".", "..", "-lead", "a/b", `a\b`, "a.b", "über"} {
		if ValidSlug(s) {
			t.Errorf("ValidSlug(%q) = true", s)
		}
	}
}
