// Package schema compiles the embedded JSON Schemas used by the gating
// checks (C14) once at package init and exposes a single Validate entry
// point, mirroring the source implementation's Draft7Validator usage.
package schema

import (
	"bytes"
	"embed"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed release.json canonical_object.json chunk.json content_source.json
var schemaFS embed.FS

var compiled = map[string]*jsonschema.Schema{}

func init() {
	names := []string{"release.json", "canonical_object.json", "chunk.json", "content_source.json"}
	for _, name := range names {
		c := jsonschema.NewCompiler()
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			panic(fmt.Sprintf("schema: reading embedded %s: %v", name, err))
		}
		if err := c.AddResource(name, bytes.NewReader(data)); err != nil {
			panic(fmt.Sprintf("schema: adding resource %s: %v", name, err))
		}
		sch, err := c.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("schema: compiling %s: %v", name, err))
		}
		compiled[name] = sch
	}
}

// Validate checks instance (a JSON-decoded value, e.g. map[string]any)
// against the named embedded schema, returning a single combined error
// listing every violation, sorted for deterministic output.
func Validate(schemaName string, instance any) error {
	sch, ok := compiled[schemaName]
	if !ok {
		return fmt.Errorf("schema: unknown schema %q", schemaName)
	}
	if err := sch.Validate(instance); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("schema validation errors: %s", formatValidationError(verr))
		}
		return err
	}
	return nil
}

func formatValidationError(verr *jsonschema.ValidationError) string {
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			msgs = append(msgs, fmt.Sprintf("%v: %s", e.InstanceLocation, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	sort.Strings(msgs)
	out := ""
	for i, m := range msgs {
		if i > 0 {
			out += "; "
		}
		out += m
	}
	return out
}
