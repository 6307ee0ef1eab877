// Package web provides the embedded HTML assets for the retouch UI.
package web

import "embed"

// Templates holds the server-rendered page templates.
//
//go:embed templates
var Templates embed.FS
