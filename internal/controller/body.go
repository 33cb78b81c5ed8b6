package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const todoBodySchemaURL = "todo-body.json"

const todoBodySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "title": {"type": ["string", "null"]},
    "completed": {"type": "boolean"}
  }
}`

var todoBody = mustCompile(todoBodySchemaURL, todoBodySchema)

func mustCompile(url, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("controller: add schema %s: %v", url, err))
	}
	s, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("controller: compile schema %s: %v", url, err))
	}
	return s
}

// todoFields is a decoded todo request body. A JSON null title is kept as an
// empty string so it fails validation instead of reading as "not supplied".
type todoFields struct {
	Title     *string
	Completed *bool
}

// bodyError is returned for a body that is not JSON or does not match the schema.
type bodyError struct {
	Detail string
}

func (e *bodyError) Error() string { return "invalid request body: " + e.Detail }

// decodeTodoBody parses raw as a todo body. An empty body is treated as {}.
func decodeTodoBody(raw []byte) (todoFields, error) {
	var fields todoFields
	if len(bytes.TrimSpace(raw)) == 0 {
		return fields, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fields, &bodyError{Detail: "malformed JSON"}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fields, &bodyError{Detail: "unexpected data after JSON value"}
	}
	if err := todoBody.Validate(doc); err != nil {
		return fields, &bodyError{Detail: schemaDetail(err)}
	}

	obj := doc.(map[string]any)
	if v, ok := obj["title"]; ok {
		title, _ := v.(string)
		fields.Title = &title
	}
	if v, ok := obj["completed"]; ok {
		completed := v.(bool)
		fields.Completed = &completed
	}
	return fields, nil
}

func schemaDetail(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var msgs []string
	collectSchemaErrors(ve, &msgs)
	return strings.Join(msgs, "; ")
}

func collectSchemaErrors(err *jsonschema.ValidationError, msgs *[]string) {
	if len(err.Causes) == 0 {
		loc := strings.TrimPrefix(err.InstanceLocation, "/")
		if loc == "" {
			*msgs = append(*msgs, err.Message)
			return
		}
		*msgs = append(*msgs, loc+": "+err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, msgs)
	}
}
