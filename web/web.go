// Package web embeds the board's HTML templates and static assets so the
// server ships as a single binary.
package web

import "embed"

//go:embed templates/*.html
var Templates embed.FS

//go:embed static
var Static embed.FS
