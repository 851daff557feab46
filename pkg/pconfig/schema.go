// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package pconfig

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Schema returns the JSON schema of the config file (yaml field names, unknown keys rejected
// like Load does).
func Schema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(&Config{})
	rtn, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling config schema: %w", err)
	}
	return rtn, nil
}

// Yaml renders the config in config file form.
func (c *Config) Yaml() ([]byte, error) {
	return yaml.Marshal(c)
}
