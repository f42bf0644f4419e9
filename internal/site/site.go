// Package site serves the public storefront pages from the content tree.
package site

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/M-Creative-ltd/TanteBeauty/internal/content"
	"github.com/M-Creative-ltd/TanteBeauty/internal/markdown"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	defaultPrimaryColor   = "#014b3c"
	defaultSecondaryColor = "#fff7f5"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{3,8}$`)

// Site renders the public pages.
type Site struct {
	reader   content.Reader
	renderer *markdown.Renderer
	baseURL  string
	pages    map[string]*template.Template
	logger   *slog.Logger
	now      func() time.Time
}

// New parses the page templates. baseURL is the fallback public origin
// used when the seo singleton has no siteUrl.
func New(reader content.Reader, renderer *markdown.Renderer, baseURL string, logger *slog.Logger) (*Site, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Site{
		reader:   reader,
		renderer: renderer,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		pages:    make(map[string]*template.Template),
		logger:   logger,
		now:      time.Now,
	}

	for _, name := range []string{"home", "products", "product", "reviews", "contact", "notfound"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		s.pages[name] = t
	}
	return s, nil
}

// Register adds the public routes to mux.
func (s *Site) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/products", s.handleProducts)
	mux.HandleFunc("/products/", s.handleProduct)
	mux.HandleFunc("/reviews", s.handleReviews)
	mux.HandleFunc("/contact", s.handleContact)
	mux.HandleFunc("/robots.txt", s.handleRobots)
	mux.HandleFunc("/sitemap.xml", s.handleSitemap)
}

type theme struct {
	Primary   string
	Secondary string
}

type page struct {
	Title  string
	Theme  theme
	Footer string
	Data   any
}

func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// singleton returns the singleton's fields, or nil when it does not exist.
func (s *Site) singleton(name string) (map[string]any, error) {
	e, err := s.reader.Singleton(name)
	if errors.Is(err, content.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e.Fields, nil
}

func (s *Site) render(w http.ResponseWriter, status int, name, title string, data any) {
	p := page{Title: title, Theme: theme{Primary: defaultPrimaryColor, Secondary: defaultSecondaryColor}, Data: data}

	if home, err := s.singleton("home"); err == nil && home != nil {
		t := object(home, "theme")
		if c := str(t, "primaryColor"); hexColor.MatchString(c) {
			p.Theme.Primary = c
		}
		if c := str(t, "secondaryColor"); hexColor.MatchString(c) {
			p.Theme.Secondary = c
		}
	}
	if footer, err := s.singleton("footer"); err == nil && footer != nil {
		p.Footer = str(footer, "copyright")
	}

	var buf bytes.Buffer
	if err := s.pages[name].ExecuteTemplate(&buf, "layout", p); err != nil {
		s.logger.Error("Failed to render page", "page", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Site) serverError(w http.ResponseWriter, what string, err error) {
	s.logger.Error("Failed to load content", "what", what, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Site) notFound(w http.ResponseWriter) {
	s.render(w, http.StatusNotFound, "notfound", "Not found", nil)
}

type homeSection struct {
	Heading string
	Body    template.HTML
}

type homeData struct {
	Heading    string
	Subheading string
	CTALabel   string
	CTATarget  string
	Sections   []homeSection
}

func (s *Site) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.notFound(w)
		return
	}
	if !allowRead(w, r) {
		return
	}

	home, err := s.singleton("home")
	if err != nil {
		s.serverError(w, "home", err)
		return
	}

	hero := object(home, "hero")
	data := homeData{
		Heading:    str(hero, "heading"),
		Subheading: str(hero, "subheading"),
		CTALabel:   str(hero, "ctaLabel"),
		CTATarget:  localOrHTTP(str(hero, "ctaTarget")),
	}
	if data.Heading == "" {
		data.Heading = "Tante Beauty"
	}

	intro := object(home, "intro")
	if body, ok := s.renderer.Render(intro["copy"]); ok {
		data.Sections = append(data.Sections, homeSection{Body: body})
	}
	for _, key := range []string{"why", "philosophy", "source", "promise"} {
		sec := object(home, key)
		if body, ok := s.renderer.Render(sec["body"]); ok {
			data.Sections = append(data.Sections, homeSection{Heading: str(sec, "heading"), Body: body})
		}
	}

	s.render(w, http.StatusOK, "home", "Home", data)
}

type productLink struct {
	Slug  string
	Name  string
	order int
}

type serviceCard struct {
	Title       string
	Category    string
	Description template.HTML
	order       int
}

type productsData struct {
	Heading         string
	Subtitle        string
	Products        []productLink
	ServicesHeading string
	Services        []serviceCard
}

func (s *Site) handleProducts(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	settings, err := s.singleton("productSettings")
	if err != nil {
		s.serverError(w, "productSettings", err)
		return
	}
	serviceSettings, err := s.singleton("serviceSettings")
	if err != nil {
		s.serverError(w, "serviceSettings", err)
		return
	}

	data := productsData{
		Heading:         str(settings, "heading"),
		Subtitle:        str(settings, "subtitle"),
		ServicesHeading: str(serviceSettings, "heading"),
	}
	if data.Heading == "" {
		data.Heading = "Our Products"
	}
	if data.ServicesHeading == "" {
		data.ServicesHeading = "Our Services"
	}

	entries, err := s.readAll("products")
	if err != nil {
		s.serverError(w, "products", err)
		return
	}
	for _, e := range entries {
		name := e.String("name")
		if name == "" {
			name = e.Slug
		}
		data.Products = append(data.Products, productLink{Slug: e.Slug, Name: name, order: integer(e.Fields, "displayOrder")})
	}
	sort.SliceStable(data.Products, func(i, j int) bool { return data.Products[i].order < data.Products[j].order })

	services, err := s.readAll("services")
	if err != nil {
		s.serverError(w, "services", err)
		return
	}
	for _, e := range services {
		desc, _ := s.renderer.Render(e.Fields["description"])
		data.Services = append(data.Services, serviceCard{
			Title:       e.String("title"),
			Category:    e.String("categoryLabel"),
			Description: desc,
			order:       integer(e.Fields, "displayOrder"),
		})
	}
	sort.SliceStable(data.Services, func(i, j int) bool { return data.Services[i].order < data.Services[j].order })

	s.render(w, http.StatusOK, "products", data.Heading, data)
}

type productData struct {
	Name        string
	Image       string
	Description template.HTML
	OrderURL    string
}

func (s *Site) handleProduct(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	slug := strings.TrimPrefix(r.URL.Path, "/products/")
	e, err := s.reader.Read("products", slug)
	if errors.Is(err, content.ErrNotFound) || errors.Is(err, content.ErrInvalidSlug) {
		s.notFound(w)
		return
	}
	if err != nil {
		s.serverError(w, "product "+slug, err)
		return
	}

	data := productData{
		Name:  e.String("name"),
		Image: e.String("mainImage"),
	}
	if data.Name == "" {
		data.Name = slug
	}
	data.Description, _ = s.renderer.Render(e.Fields["description"])

	contact, err := s.singleton("contact")
	if err != nil {
		s.serverError(w, "contact", err)
		return
	}
	data.OrderURL = whatsAppURL(str(contact, "phoneNumber"), "Hello, I would like to order *"+data.Name+"*")

	s.render(w, http.StatusOK, "product", data.Name, data)
}

type review struct {
	Name        string
	Location    string
	Testimonial string
	order       int
}

type reviewsData struct {
	Featured *review
	Reviews  []review
}

func (s *Site) handleReviews(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	entries, err := s.readAll("reviews")
	if err != nil {
		s.serverError(w, "reviews", err)
		return
	}

	var data reviewsData
	for _, e := range entries {
		rv := review{
			Name:        e.String("name"),
			Location:    e.String("location"),
			Testimonial: e.String("testimonial"),
			order:       integer(e.Fields, "displayOrder"),
		}
		if rv.Name == "" {
			rv.Name = e.String("customerName")
		}
		if featured, _ := e.Fields["featured"].(bool); featured && data.Featured == nil {
			f := rv
			data.Featured = &f
			continue
		}
		data.Reviews = append(data.Reviews, rv)
	}
	sort.SliceStable(data.Reviews, func(i, j int) bool { return data.Reviews[i].order < data.Reviews[j].order })

	s.render(w, http.StatusOK, "reviews", "Reviews", data)
}

type contactData struct {
	Found       bool
	Phone       string
	Email       string
	Address     string
	WhatsAppURL string
}

func (s *Site) handleContact(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	contact, err := s.singleton("contact")
	if err != nil {
		s.serverError(w, "contact", err)
		return
	}

	data := contactData{
		Found:   contact != nil,
		Phone:   str(contact, "phoneNumber"),
		Email:   str(contact, "emailAddress"),
		Address: str(contact, "mailingAddress"),
	}
	data.WhatsAppURL = whatsAppURL(data.Phone, "Hello, Tante Beauty")

	s.render(w, http.StatusOK, "contact", "Contact", data)
}

// readAll loads every entry of a collection, skipping entries that fail
// to decode.
func (s *Site) readAll(collection string) ([]content.Entry, error) {
	slugs, err := s.reader.List(collection)
	if err != nil {
		return nil, err
	}
	out := make([]content.Entry, 0, len(slugs))
	for _, slug := range slugs {
		e, err := s.reader.Read(collection, slug)
		if err != nil {
			s.logger.Warn("Skipping unreadable entry", "collection", collection, "slug", slug, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// whatsAppURL builds a click-to-chat link, or "" without a phone number.
func whatsAppURL(phone, message string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if digits == "" {
		return ""
	}
	return "https://wa.me/" + digits + "?text=" + url.PathEscape(message)
}

// localOrHTTP keeps local paths and http(s) URLs; anything else is dropped.
func localOrHTTP(target string) string {
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		return target
	}
	if u, err := url.Parse(target); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return target
	}
	return ""
}

func object(fields map[string]any, key string) map[string]any {
	m, _ := fields[key].(map[string]any)
	return m
}

func str(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func integer(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
