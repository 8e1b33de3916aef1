// Package schema implements the declarative entity metadata — EntitySchema
// and EntitySchemaField — along with DDL and JSON projection. The
// field-kind polymorphism is a narrow switch over FieldType (DDL projection
// in dbpool, column decoding in entity, multipart form coercion in
// schemamutation): no per-field-kind interface exists.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FieldType enumerates the valid kinds an EntitySchemaField may declare.
type FieldType string

const (
	FieldXML    FieldType = "xml"
	FieldString FieldType = "string"
	FieldDouble FieldType = "double"
	FieldDate   FieldType = "date"
	FieldInt8   FieldType = "int8"
	FieldUint8  FieldType = "uint8"
	FieldInt16  FieldType = "int16"
	FieldUint16 FieldType = "uint16"
	FieldInt32  FieldType = "int32"
	FieldUint32 FieldType = "uint32"
	FieldInt64  FieldType = "int64"
	FieldUint64 FieldType = "uint64"
	FieldBlob   FieldType = "blob"
	FieldJSON   FieldType = "json"
	FieldBool   FieldType = "bool"
	FieldFile   FieldType = "file"
	FieldFiles  FieldType = "files"
)

// ValidFieldTypes lists every FieldType accepted by schema validation.
var ValidFieldTypes = map[FieldType]bool{
	FieldXML: true, FieldString: true, FieldDouble: true, FieldDate: true,
	FieldInt8: true, FieldUint8: true, FieldInt16: true, FieldUint16: true,
	FieldInt32: true, FieldUint32: true, FieldInt64: true, FieldUint64: true,
	FieldBlob: true, FieldJSON: true, FieldBool: true, FieldFile: true, FieldFiles: true,
}

// IsFileType reports whether t is a file-bearing field kind.
func IsFileType(t FieldType) bool { return t == FieldFile || t == FieldFiles }

// EntityType is one of base, auth, or view.
type EntityType string

const (
	TypeBase EntityType = "base"
	TypeAuth EntityType = "auth"
	TypeView EntityType = "view"
)

// Field is one EntitySchemaField.
type Field struct {
	Name        string         `json:"name"`
	Type        FieldType      `json:"type"`
	Required    bool           `json:"required"`
	PrimaryKey  bool           `json:"primary_key"`
	System      bool           `json:"system"`
	Unique      bool           `json:"unique"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

// MinValue returns the `min_value` constraint, if present.
func (f Field) MinValue() (float64, bool) {
	v, ok := f.Constraints["min_value"]
	if !ok {
		return 0, false
	}
	f64, ok := toFloat(v)
	return f64, ok
}

// MaxValue returns the `max_value` constraint, if present.
func (f Field) MaxValue() (float64, bool) {
	v, ok := f.Constraints["max_value"]
	if !ok {
		return 0, false
	}
	f64, ok := toFloat(v)
	return f64, ok
}

// Validator returns the `validator` constraint (e.g. "@email"), if present.
func (f Field) Validator() (string, bool) {
	v, ok := f.Constraints["validator"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// DefaultValue returns the `default_value` constraint, if present.
func (f Field) DefaultValue() (any, bool) {
	v, ok := f.Constraints["default_value"]
	return v, ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Schema is one EntitySchema, persisted as a row in _tables and cached in
// the in-memory entityMap.
type Schema struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       EntityType `json:"type"`
	System     bool       `json:"system"`
	HasAPI     bool       `json:"has_api"`
	Fields     []Field    `json:"fields"`
	ListRule   string     `json:"list_rule"`
	GetRule    string     `json:"get_rule"`
	AddRule    string     `json:"add_rule"`
	UpdateRule string     `json:"update_rule"`
	DeleteRule string     `json:"delete_rule"`
	ViewQuery  string     `json:"view_query,omitempty"`
}

// DeriveID produces the stable `mt_`-prefixed identifier for a given
// entity name by hashing it.
func DeriveID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return "mt_" + hex.EncodeToString(sum[:])[:12]
}

// BaseFields are present on every entity type and may not be redefined by
// user input.
func BaseFields() []Field {
	return []Field{
		{Name: "id", Type: FieldString, PrimaryKey: true, System: true, Required: true},
		{Name: "created", Type: FieldDate, System: true},
		{Name: "updated", Type: FieldDate, System: true},
	}
}

// AuthFields extends BaseFields with the fields every auth entity carries.
func AuthFields() []Field {
	fields := BaseFields()
	return append(fields,
		Field{Name: "name", Type: FieldString},
		Field{Name: "email", Type: FieldString, Required: true, Unique: true,
			Constraints: map[string]any{"validator": "@email"}},
		Field{Name: "password", Type: FieldString, Required: true,
			Constraints: map[string]any{"validator": "@password"}},
	)
}

// New constructs a Schema, prepending the built-in field set for the given
// type and dropping any user-supplied field that collides with a built-in
// name (built-ins may not be redefined).
func New(name string, typ EntityType, userFields []Field) Schema {
	var builtins []Field
	if typ == TypeAuth {
		builtins = AuthFields()
	} else {
		builtins = BaseFields()
	}

	builtinNames := make(map[string]bool, len(builtins))
	for _, f := range builtins {
		builtinNames[f.Name] = true
	}

	fields := make([]Field, 0, len(builtins)+len(userFields))
	fields = append(fields, builtins...)

	for _, f := range userFields {
		if builtinNames[strings.ToLower(f.Name)] {
			continue
		}
		fields = append(fields, f)
	}

	return Schema{
		ID:     DeriveID(name),
		Name:   name,
		Type:   typ,
		Fields: fields,
		HasAPI: true,
	}
}

// FieldByName returns the field with the given name, if any.
func (s Schema) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// RuleFor returns the rule string governing the given operation.
func (s Schema) RuleFor(op string) string {
	switch op {
	case "list":
		return s.ListRule
	case "get":
		return s.GetRule
	case "add":
		return s.AddRule
	case "update":
		return s.UpdateRule
	case "delete":
		return s.DeleteRule
	}
	return ""
}

// IsSystem reports whether name is one of the three system entities that
// may never be renamed or dropped.
func IsSystem(name string) bool {
	switch name {
	case "_admins", "_tables", "_settings":
		return true
	default:
		return false
	}
}
