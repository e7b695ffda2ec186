// Package dashboard embeds the bridge's single-page web UI.
//
// The page lists every entity grouped by category, updates live from the
// SSE stream and exposes button entities as POST actions.
package dashboard

import "embed"

// Assets holds assets/index.html. The server substitutes {{.Title}}.
//
//go:embed assets/*
var Assets embed.FS
