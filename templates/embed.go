// Package templates embeds the starter loop definition and skill documents
// written by loopline init.
package templates

import "embed"

//go:embed loop.yaml skills
var FS embed.FS
