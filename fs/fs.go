// Package appfs embeds non-Go assets shipped with the binary.
package appfs

import "embed"

//go:embed migrations templates
var FS embed.FS
