// Package pixel embeds the browser collector script served at /pixel.js.
package pixel

import _ "embed"

//go:embed pixel.js
var Script []byte
