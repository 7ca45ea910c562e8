// Package config embeds the default configuration shipped with the binary.
package config

import _ "embed"

// Default holds config/defaults.yaml.
//
//go:embed defaults.yaml
var Default []byte
