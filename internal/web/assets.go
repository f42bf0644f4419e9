package web

import "embed"

//go:embed templates/*.html static/*.js
var assetFS embed.FS
