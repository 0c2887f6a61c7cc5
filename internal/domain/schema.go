package domain

// FieldType describes the value type a target field expects.
type FieldType string

// Supported target field types.
const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
	FieldTypeEmail   FieldType = "email"
	FieldTypePhone   FieldType = "phone"
)

// SchemaField is one field of a target schema.
// Fields are owned by the schema registry and immutable per schema version.
type SchemaField struct {
	Name        string    `json:"name" validate:"required,min=1,max=128"`
	DisplayName string    `json:"display_name,omitempty"`
	Description string    `json:"description,omitempty"`
	Type        FieldType `json:"type" validate:"required,oneof=string number boolean date email phone"`
	Required    bool      `json:"required"`
	Aliases     []string  `json:"aliases,omitempty"` // Declared alternate names
}

// TargetSchema is an ordered collection of fields for one entity.
// Version is a content hash; any file change produces a new version, which
// invalidates derived indexes (embeddings, lexical search).
type TargetSchema struct {
	EntityName string        `json:"entity_name" validate:"required,min=1,max=128"`
	Version    string        `json:"version"`
	Fields     []SchemaField `json:"fields" validate:"required,min=1,dive"`
}

// Field returns the schema field with the given name, or nil.
func (s *TargetSchema) Field(name string) *SchemaField {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// RequiredFields returns the names of all required fields in schema order.
func (s *TargetSchema) RequiredFields() []string {
	var names []string
	for i := range s.Fields {
		if s.Fields[i].Required {
			names = append(names, s.Fields[i].Name)
		}
	}
	return names
}
