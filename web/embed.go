// Package web holds the single-page chat UI served at "/".
package web

import _ "embed"

//go:embed index.html
var IndexHTML []byte
