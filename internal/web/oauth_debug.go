package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/M-Creative-ltd/TanteBeauty/internal/logging"
)

const githubExchangeTimeout = 15 * time.Second

// GitHubDebug exchanges a GitHub OAuth code once and reports whether a
// token came back. It exists to diagnose the CMS's GitHub app setup and
// never returns the token itself.
type GitHubDebug struct {
	conf   oauth2.Config
	client *http.Client
	logger *slog.Logger
}

// NewGitHubDebug creates the debug exchange for the given OAuth app.
func NewGitHubDebug(clientID, clientSecret string) *GitHubDebug {
	return &GitHubDebug{
		conf: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     github.Endpoint,
		},
		client: &http.Client{Timeout: githubExchangeTimeout},
		logger: logging.OAuth(),
	}
}

// Register adds the debug route to mux.
func (g *GitHubDebug) Register(mux *http.ServeMux) {
	mux.HandleFunc(adminAPIRoot+"/debug-github", g.ServeHTTP)
}

func (g *GitHubDebug) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeErrorJSON(w, http.StatusBadRequest, "No code provided")
		return
	}

	envCheck := map[string]bool{
		"hasClientId":     g.conf.ClientID != "",
		"hasClientSecret": g.conf.ClientSecret != "",
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, g.client)
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		resp := map[string]any{
			"error":    "GitHub code exchange failed",
			"envCheck": envCheck,
		}
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.ErrorCode != "" {
			resp["githubError"] = rerr.ErrorCode
		}
		g.logger.Warn("GitHub code exchange failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	g.logger.Info("GitHub code exchange succeeded", "token_type", tok.Type())
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Debug callback check",
		"tokenReceived": tok.AccessToken != "",
		"tokenType":     tok.Type(),
		"scope":         tok.Extra("scope"),
		"envCheck":      envCheck,
	})
}
