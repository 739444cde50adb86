package embed

import "embed"

// Assets holds the client scripts and images served under /_mailview/.
//
//go:embed *.js *.svg
var Assets embed.FS
