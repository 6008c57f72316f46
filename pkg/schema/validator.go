// Package schema validates generated documents against named JSON Schemas.
//
// The validator knows nothing about any document type. Schemas are
// registered by name, either at construction (the built-in set embedded
// from schemas/) or at runtime with Register.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	fgerrors "github.com/randalmurphal/casefile/pkg/flowgraph/errors"
	"github.com/randalmurphal/casefile/pkg/flowgraph/registry"
	"github.com/xeipuuv/gojsonschema"
)

// Built-in schema names.
const (
	Arcs          = "arcs"
	Outline       = "outline"
	Article       = "article"
	Evaluation    = "evaluation"
	CurationBatch = "curation-batch"
)

//go:embed schemas/*.json
var builtins embed.FS

// Issue is one normalized validation failure.
type Issue struct {
	// Path is a JSON pointer to the offending value, "" for the root.
	Path    string `json:"path"`
	Message string `json:"message"`
	// Keyword is the JSON Schema keyword that failed, e.g. "required".
	Keyword string `json:"keyword"`
	// MissingProperty is set for "required" failures.
	MissingProperty string `json:"missingProperty,omitempty"`
}

// String renders the issue for logs and error records.
func (i Issue) String() string {
	p := i.Path
	if p == "" {
		p = "/"
	}
	return fmt.Sprintf("%s: %s (%s)", p, i.Message, i.Keyword)
}

// Result is the outcome of one validation. Errors is nil when Valid.
type Result struct {
	Valid  bool    `json:"valid"`
	Errors []Issue `json:"errors"`
}

// UnknownSchemaError is returned when validating against a name that was
// never registered. It is not a validation failure.
type UnknownSchemaError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownSchemaError) Error() string {
	return fmt.Sprintf("schema %q is not registered", e.Name)
}

type entry struct {
	raw      json.RawMessage
	compiled *gojsonschema.Schema
}

// Validator holds compiled schemas. It is safe for concurrent use.
type Validator struct {
	schemas *registry.Registry[string, entry]
}

// New creates a validator with no schemas.
func New() *Validator {
	return &Validator{schemas: registry.New[string, entry]("schema")}
}

// NewDefault creates a validator preloaded with the built-in schemas.
func NewDefault() (*Validator, error) {
	v := New()
	files, err := builtins.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read built-in schemas: %w", err)
	}
	for _, f := range files {
		data, err := builtins.ReadFile(path.Join("schemas", f.Name()))
		if err != nil {
			return nil, fmt.Errorf("read built-in schema %s: %w", f.Name(), err)
		}
		name := strings.TrimSuffix(f.Name(), ".json")
		if err := v.Register(name, data); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Register compiles and stores a schema under name, replacing any existing
// one. A malformed schema is rejected immediately.
//
// Object schemas that leave additionalProperties unset at the top level
// are made strict: unknown top-level keys fail validation.
func (v *Validator) Register(name string, schema []byte) error {
	if name == "" {
		return fmt.Errorf("register schema: name is required")
	}
	strict, err := strictTopLevel(schema)
	if err != nil {
		return fmt.Errorf("register schema %q: %w", name, err)
	}

	loader := gojsonschema.NewSchemaLoader()
	loader.Validate = true
	compiled, err := loader.Compile(gojsonschema.NewBytesLoader(strict))
	if err != nil {
		return fmt.Errorf("register schema %q: %w", name, err)
	}
	v.schemas.Register(name, entry{raw: strict, compiled: compiled})
	return nil
}

func strictTopLevel(schema []byte) (json.RawMessage, error) {
	var doc map[string]any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, fmt.Errorf("malformed schema: %w", err)
	}
	if doc["type"] != "object" {
		return schema, nil
	}
	if _, ok := doc["additionalProperties"]; ok {
		return schema, nil
	}
	doc["additionalProperties"] = false
	return json.Marshal(doc)
}

// Has reports whether name is registered.
func (v *Validator) Has(name string) bool {
	return v.schemas.Has(name)
}

// Names returns the registered schema names in order.
func (v *Validator) Names() []string {
	return v.schemas.Keys()
}

// Schema returns the registered schema document, suitable for a
// schema-constrained worker request.
func (v *Validator) Schema(name string) (json.RawMessage, error) {
	e, ok := v.schemas.Get(name)
	if !ok {
		return nil, &UnknownSchemaError{Name: name}
	}
	return e.raw, nil
}

// Validate checks doc against the named schema. doc may be any value that
// marshals to JSON, including json.RawMessage.
func (v *Validator) Validate(name string, doc any) (*Result, error) {
	e, ok := v.schemas.Get(name)
	if !ok {
		return nil, &UnknownSchemaError{Name: name}
	}

	var loader gojsonschema.JSONLoader
	switch d := doc.(type) {
	case json.RawMessage:
		loader = gojsonschema.NewBytesLoader(d)
	case []byte:
		loader = gojsonschema.NewBytesLoader(d)
	default:
		loader = gojsonschema.NewGoLoader(doc)
	}

	res, err := e.compiled.Validate(loader)
	if err != nil {
		// The document itself could not be read, which is a shape failure.
		return &Result{Errors: []Issue{{Message: err.Error(), Keyword: "type"}}}, nil
	}
	if res.Valid() {
		return &Result{Valid: true}, nil
	}

	out := &Result{Errors: make([]Issue, 0, len(res.Errors()))}
	for _, re := range res.Errors() {
		out.Errors = append(out.Errors, toIssue(re))
	}
	return out, nil
}

// Check validates doc and converts a failure into a
// *errors.SchemaViolationError, which is categorized as a contract error.
func (v *Validator) Check(name string, doc any) error {
	res, err := v.Validate(name, doc)
	if err != nil {
		return err
	}
	if res.Valid {
		return nil
	}
	issues := make([]string, len(res.Errors))
	for i, is := range res.Errors {
		issues[i] = is.String()
	}
	return &fgerrors.SchemaViolationError{Schema: name, Issues: issues}
}

// keywords maps gojsonschema error types to JSON Schema keywords.
var keywords = map[string]string{
	"required":                        "required",
	"additional_property_not_allowed": "additionalProperties",
	"invalid_type":                    "type",
	"enum":                            "enum",
	"const":                           "const",
	"string_gte":                      "minLength",
	"string_lte":                      "maxLength",
	"pattern":                         "pattern",
	"format":                          "format",
	"array_min_items":                 "minItems",
	"array_max_items":                 "maxItems",
	"unique":                          "uniqueItems",
	"number_gte":                      "minimum",
	"number_gt":                       "exclusiveMinimum",
	"number_lte":                      "maximum",
	"number_lt":                       "exclusiveMaximum",
	"number_any_of":                   "anyOf",
	"number_one_of":                   "oneOf",
	"number_all_of":                   "allOf",
	"number_not":                      "not",
	"array_min_properties":            "minProperties",
	"array_max_properties":            "maxProperties",
}

func toIssue(re gojsonschema.ResultError) Issue {
	keyword, ok := keywords[re.Type()]
	if !ok {
		keyword = re.Type()
	}
	is := Issue{
		Path:    pointer(re.Field()),
		Message: re.Description(),
		Keyword: keyword,
	}
	if keyword == "required" {
		if p, ok := re.Details()["property"].(string); ok {
			is.MissingProperty = p
		}
	}
	return is
}

// pointer converts a gojsonschema field path ("(root)", "arcs.0.title")
// to a JSON pointer ("", "/arcs/0/title").
func pointer(field string) string {
	if field == "" || field == "(root)" {
		return ""
	}
	field = strings.TrimPrefix(field, "(root).")
	parts := strings.Split(field, ".")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(strings.ReplaceAll(p, "~", "~0"), "/", "~1")
	}
	return "/" + strings.Join(parts, "/")
}
