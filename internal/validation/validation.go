// Package validation turns raw form input into typed records or a
// field-keyed set of messages. Structural rules live in JSON Schema
// documents; rules that depend on the clock are checked in Go.
package validation

import (
	"errors"
	"path"
	"sort"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// FieldErrors maps a form field to its messages.
type FieldErrors map[string][]string

// Add appends msg to field unless it is already recorded.
func (f FieldErrors) Add(field, msg string) {
	for _, existing := range f[field] {
		if existing == msg {
			return
		}
	}
	f[field] = append(f[field], msg)
}

// Fields returns the names of fields with errors in sorted order.
func (f FieldErrors) Fields() []string {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// messages maps field and failing keyword to the message shown to users.
type messages map[string]map[string]string

func (m messages) lookup(field, keyword string) string {
	if byKeyword, ok := m[field]; ok {
		if msg, ok := byKeyword[keyword]; ok {
			return msg
		}
		if msg, ok := byKeyword["*"]; ok {
			return msg
		}
	}
	return "Invalid value"
}

// check validates doc against schema and records every leaf failure.
func check(schema *jsonschema.Schema, doc map[string]interface{}, msgs messages, errs FieldErrors) {
	err := schema.Validate(doc)
	if err == nil {
		return
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		errs.Add("form", err.Error())
		return
	}
	collect(ve, msgs, errs)
}

func collect(ve *jsonschema.ValidationError, msgs messages, errs FieldErrors) {
	if ve == nil {
		return
	}
	if len(ve.Causes) == 0 {
		field := strings.TrimPrefix(ve.InstanceLocation, "/")
		if i := strings.IndexByte(field, '/'); i >= 0 {
			field = field[:i]
		}
		if field == "" {
			field = "form"
		}
		errs.Add(field, msgs.lookup(field, path.Base(ve.KeywordLocation)))
		return
	}
	for _, cause := range ve.Causes {
		collect(cause, msgs, errs)
	}
}
