// Package api holds the OpenAPI document for the payment HTTP API.
package api

import _ "embed"

//go:embed openapi.yml
var Spec []byte
