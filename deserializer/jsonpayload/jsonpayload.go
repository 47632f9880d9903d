// Package jsonpayload converts JSON object payloads, the format most SSO
// servers use for their user-info responses.
package jsonpayload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/MrEthical07/goSSO/deserializer"
	"github.com/MrEthical07/goSSO/identity"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultIDField is the identifier field used when Config.IDField is empty.
const DefaultIDField = "uid"

// Config controls how payload fields map onto the identity.
type Config struct {
	// IDField names the identifier field. Dots address nested objects, so
	// "user.id" reads {"user": {"id": ...}}.
	IDField string

	// ExposeID keeps a top-level identifier field among the attributes.
	ExposeID bool

	// Required lists top-level fields that must be present with the given kind.
	Required map[string]identity.Kind

	// Schema is an optional JSON Schema document the payload must satisfy.
	Schema string
}

// Deserializer implements deserializer.Deserializer for JSON payloads. It
// holds only configuration fixed at construction and is safe for concurrent use.
type Deserializer struct {
	idField  string
	idPath   []string
	exposeID bool
	required []requiredField
	schema   *jsonschema.Schema
}

type requiredField struct {
	name string
	kind identity.Kind
}

var _ deserializer.Deserializer = (*Deserializer)(nil)

// New validates cfg and compiles its schema.
func New(cfg Config) (*Deserializer, error) {
	field := strings.TrimSpace(cfg.IDField)
	if field == "" {
		field = DefaultIDField
	}
	path := strings.Split(field, ".")
	for _, part := range path {
		if part == "" {
			return nil, fmt.Errorf("jsonpayload: invalid id field %q", cfg.IDField)
		}
	}

	d := &Deserializer{
		idField:  field,
		idPath:   path,
		exposeID: cfg.ExposeID,
	}

	for name, kind := range cfg.Required {
		if name == "" {
			return nil, errors.New("jsonpayload: required field name cannot be empty")
		}
		if kind > identity.KindObject {
			return nil, fmt.Errorf("jsonpayload: required field %q has invalid kind %d", name, kind)
		}
		d.required = append(d.required, requiredField{name: name, kind: kind})
	}
	sort.Slice(d.required, func(i, j int) bool { return d.required[i].name < d.required[j].name })

	if strings.TrimSpace(cfg.Schema) != "" {
		schema, err := compileSchema(cfg.Schema)
		if err != nil {
			return nil, fmt.Errorf("jsonpayload: %w", err)
		}
		d.schema = schema
	}

	return d, nil
}

func compileSchema(doc string) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse schema JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)

	const schemaURL = "urn:gosso:payload-schema"
	if err := compiler.AddResource(schemaURL, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// IDField returns the configured identifier field.
func (d *Deserializer) IDField() string { return d.idField }

// Deserialize implements deserializer.Deserializer.
func (d *Deserializer) Deserialize(payload string) (identity.Identity, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, deserializer.Malformed(errors.New("empty payload"))
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, deserializer.Malformed(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, deserializer.Malformed(errors.New("trailing data after JSON value"))
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, deserializer.Malformed(fmt.Errorf("payload is a JSON %s, want object", kindOf(raw)))
	}

	// The identifier is checked first so that a schema requiring it still
	// reports an absent id as MissingIdentifier.
	id, err := d.extractID(obj)
	if err != nil {
		return nil, err
	}

	if d.schema != nil {
		if err := d.schema.Validate(raw); err != nil {
			return nil, &deserializer.Error{Kind: deserializer.KindTypeMismatch, Err: err}
		}
	}

	for _, req := range d.required {
		v, present := obj[req.name]
		if !present {
			return nil, deserializer.TypeMismatch(req.name, req.kind.String(), "absent")
		}
		if got := kindOf(v); got != req.kind {
			return nil, deserializer.TypeMismatch(req.name, req.kind.String(), got.String())
		}
	}

	attrs := make(map[string]any, len(obj))
	for k, v := range obj {
		attrs[k] = v
	}
	if !d.exposeID && len(d.idPath) == 1 {
		delete(attrs, d.idField)
	}

	ident, err := identity.NewFromMap(id, attrs)
	if err != nil {
		return nil, deserializer.Malformed(err)
	}
	return ident, nil
}

func (d *Deserializer) extractID(obj map[string]any) (string, error) {
	var cur any = obj
	for i, part := range d.idPath {
		m, ok := cur.(map[string]any)
		if !ok {
			parent := strings.Join(d.idPath[:i], ".")
			return "", deserializer.TypeMismatch(parent, identity.KindObject.String(), kindOf(cur).String())
		}
		next, present := m[part]
		if !present || next == nil {
			return "", deserializer.MissingIdentifier(d.idField, nil)
		}
		cur = next
	}

	switch v := cur.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", deserializer.MissingIdentifier(d.idField, errors.New("identifier is blank"))
		}
		return v, nil
	case json.Number:
		text := string(v)
		if strings.ContainsAny(text, ".eE") {
			return "", deserializer.TypeMismatch(d.idField, "string or integer", "fractional number")
		}
		return text, nil
	default:
		return "", deserializer.TypeMismatch(d.idField, "string or integer", kindOf(cur).String())
	}
}

func kindOf(v any) identity.Kind {
	switch v.(type) {
	case nil:
		return identity.KindNull
	case string:
		return identity.KindString
	case json.Number, float64:
		return identity.KindNumber
	case bool:
		return identity.KindBool
	case []any:
		return identity.KindList
	case map[string]any:
		return identity.KindObject
	default:
		return identity.KindNull
	}
}
