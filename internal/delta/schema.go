package delta

import (
	"encoding/json"
	"fmt"

	"deltaframe/internal/dataframe"
)

// Schema is the ordered column list of a table version
type Schema struct {
	Fields []dataframe.Field `json:"fields"`
}

type structType struct {
	Type   string        `json:"type"`
	Fields []structField `json:"fields"`
}

type structField struct {
	Name     string          `json:"name"`
	Type     json.RawMessage `json:"type"`
	Nullable bool            `json:"nullable"`
}

// ParseSchema parses a metaData schemaString. Nested types keep their
// kind ("struct", "array", "map") as the field type.
func ParseSchema(schemaString string) (Schema, error) {
	var root structType
	if err := json.Unmarshal([]byte(schemaString), &root); err != nil {
		return Schema{}, fmt.Errorf("%w: invalid schema string: %v", ErrCorruptLog, err)
	}
	if root.Type != "struct" {
		return Schema{}, fmt.Errorf("%w: schema root is %q, expected struct", ErrCorruptLog, root.Type)
	}

	fields := make([]dataframe.Field, 0, len(root.Fields))
	for _, f := range root.Fields {
		typeName, err := fieldTypeName(f.Type)
		if err != nil {
			return Schema{}, fmt.Errorf("%w: field %s: %v", ErrCorruptLog, f.Name, err)
		}
		fields = append(fields, dataframe.Field{Name: f.Name, Type: typeName, Nullable: f.Nullable})
	}
	return Schema{Fields: fields}, nil
}

func fieldTypeName(raw json.RawMessage) (string, error) {
	var primitive string
	if err := json.Unmarshal(raw, &primitive); err == nil {
		return primitive, nil
	}
	var complexType struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &complexType); err != nil {
		return "", err
	}
	if complexType.Type == "" {
		return "", fmt.Errorf("missing type")
	}
	return complexType.Type, nil
}

// Names returns the column names in schema order
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a column by name
func (s Schema) Field(name string) (dataframe.Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return dataframe.Field{}, false
}
