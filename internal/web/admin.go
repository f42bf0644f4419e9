package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/M-Creative-ltd/TanteBeauty/internal/auth"
	"github.com/M-Creative-ltd/TanteBeauty/internal/content"
	"github.com/M-Creative-ltd/TanteBeauty/internal/logging"
	"github.com/M-Creative-ltd/TanteBeauty/internal/markdown"
)

const (
	adminRoot    = "/keystatic"
	adminAPIRoot = "/api/keystatic"
)

// Admin serves the protected admin shell and its read-only content API.
// Requests reach it only after passing the gate.
type Admin struct {
	reader     content.Reader
	renderer   *markdown.Renderer
	logoutPath string
	shell      *template.Template
	logger     *slog.Logger
}

// NewAdmin creates the admin surface over reader.
func NewAdmin(reader content.Reader, renderer *markdown.Renderer, logoutPath string) (*Admin, error) {
	shell, err := template.ParseFS(assetFS, "templates/admin.html")
	if err != nil {
		return nil, err
	}
	return &Admin{
		reader:     reader,
		renderer:   renderer,
		logoutPath: logoutPath,
		shell:      shell,
		logger:     logging.Web(),
	}, nil
}

// Register adds the admin routes to mux.
func (a *Admin) Register(mux *http.ServeMux) {
	mux.HandleFunc(adminRoot, a.handleShell)
	mux.HandleFunc(adminRoot+"/", a.handleShell)
	mux.HandleFunc(adminAPIRoot+"/collections/{name}", a.handleCollection)
	mux.HandleFunc(adminAPIRoot+"/collections/{name}/{slug}", a.handleEntry)
	mux.HandleFunc(adminAPIRoot+"/singletons/{name}", a.handleSingleton)
	mux.HandleFunc(adminAPIRoot+"/preview", a.handlePreview)
}

type collectionRow struct {
	Name    string
	Count   int
	Err     bool
	APIPath string
}

type singletonRow struct {
	Name    string
	APIPath string
}

func (a *Admin) handleShell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, "GET, HEAD")
		return
	}

	username, _ := auth.UsernameFromContext(r.Context())
	data := struct {
		Username    string
		LogoutPath  string
		Collections []collectionRow
		Singletons  []singletonRow
	}{Username: username, LogoutPath: a.logoutPath}

	for _, c := range content.Collections {
		row := collectionRow{Name: c.Name, APIPath: adminAPIRoot + "/collections/" + c.Name}
		slugs, err := a.reader.List(c.Name)
		if err != nil {
			a.logger.Warn("Failed to list collection", "collection", c.Name, "error", err)
			row.Err = true
		}
		row.Count = len(slugs)
		data.Collections = append(data.Collections, row)
	}
	for _, s := range content.Singletons {
		data.Singletons = append(data.Singletons, singletonRow{
			Name:    s.Name,
			APIPath: adminAPIRoot + "/singletons/" + s.Name,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := a.shell.Execute(w, data); err != nil {
		a.logger.Error("Failed to render admin shell", "error", err)
	}
}

// writeContentError maps reader errors to HTTP statuses.
func (a *Admin) writeContentError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, content.ErrNotFound):
		writeErrorJSON(w, http.StatusNotFound, "Not found")
	case errors.Is(err, content.ErrInvalidSlug):
		writeErrorJSON(w, http.StatusBadRequest, "Invalid slug")
	default:
		a.logger.Error("Content read failed", "what", what, "error", err)
		writeErrorJSON(w, http.StatusInternalServerError, msgInternalError)
	}
}

func entryJSON(e content.Entry) map[string]any {
	out := map[string]any{"fields": e.Fields}
	if e.Singleton != "" {
		out["singleton"] = e.Singleton
	} else {
		out["collection"] = e.Collection
		out["slug"] = e.Slug
	}
	return out
}

func (a *Admin) handleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	name := r.PathValue("name")
	slugs, err := a.reader.List(name)
	if err != nil {
		a.writeContentError(w, name, err)
		return
	}
	if slugs == nil {
		slugs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"collection": name, "slugs": slugs})
}

func (a *Admin) handleEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	name, slug := r.PathValue("name"), r.PathValue("slug")
	e, err := a.reader.Read(name, slug)
	if err != nil {
		a.writeContentError(w, name+"/"+slug, err)
		return
	}
	writeJSON(w, http.StatusOK, entryJSON(e))
}

func (a *Admin) handleSingleton(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	name := r.PathValue("name")
	e, err := a.reader.Singleton(name)
	if err != nil {
		a.writeContentError(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, entryJSON(e))
}

// handlePreview renders a rich text body the way the public site would.
// The request is {"body": "..."}; any non-string or blank body is rejected.
func (a *Admin) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		writeErrorJSON(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var req struct {
		Body any `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	html, ok := a.renderer.Render(req.Body)
	if !ok {
		writeErrorJSON(w, http.StatusBadRequest, "body must be a non-empty string")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": string(html)})
}
