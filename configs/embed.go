// Package configs provides the embedded configuration template for
// dtagent. The template is embedded at build time so `dtagent config
// init` works in every distribution, binary releases included.
package configs

import _ "embed"

// ConfigTemplate is the annotated starting config written by
// `dtagent config init` to ~/.dtagent/config.yaml.
//
//go:embed config.example.yaml
var ConfigTemplate string
