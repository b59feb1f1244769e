// Package validate checks screen config payloads at the HTTP boundary,
// before anything is decoded into the store's types.
package validate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"sdui/internal/screen"
)

//go:embed screen_config.schema.json
var screenConfigSchema []byte

const schemaURL = "mem://sdui/screen_config.schema.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true
		if err := c.AddResource(schemaURL, bytes.NewReader(screenConfigSchema)); err != nil {
			compileErr = err
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// ScreenConfig validates a full or partial config body. It returns a
// *screen.ValidationError listing every violation, or nil.
func ScreenConfig(raw []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return screen.Invalid("", "malformed JSON: %v", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return screen.Invalid("", "screen config must be a JSON object")
	}
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile screen config schema: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return toValidation(err)
	}
	return nil
}

func toValidation(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return screen.Invalid("", "%v", err)
	}
	seen := map[string]bool{}
	out := &screen.ValidationError{}
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		fe := screen.FieldError{Path: pointerToPath(e.InstanceLocation), Message: e.Message}
		k := fe.Path + "\x00" + fe.Message
		if seen[k] {
			return
		}
		seen[k] = true
		out.Errors = append(out.Errors, fe)
	}
	walk(ve)
	sort.SliceStable(out.Errors, func(i, j int) bool { return out.Errors[i].Path < out.Errors[j].Path })
	return out
}

// pointerToPath turns "/layout/sections/0/id" into "layout.sections[0].id".
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	var b strings.Builder
	for i, part := range strings.Split(ptr, "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		if isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
