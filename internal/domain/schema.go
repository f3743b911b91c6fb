package domain

// FieldType enumerates the declared types a schema field can carry.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInt       FieldType = "int"
	TypeDouble    FieldType = "double"
	TypeBool      FieldType = "bool"
	TypeDate      FieldType = "date"
	TypeTimestamp FieldType = "timestamp"
)

// FieldDef declares one field of a table schema.
type FieldDef struct {
	Name     string    `yaml:"name"`
	Type     FieldType `yaml:"type"`
	Nullable bool      `yaml:"nullable"`

	// Derived marks a field computed during the silver transform rather
	// than cast from the raw source. Derived fields are always nullable.
	Derived bool `yaml:"derived,omitempty"`
}

// TableSchema is the canonical, ordered field definition for one source table.
// Schemas are static configuration: loaded once at process start, read-only
// at runtime, versioned by table name.
type TableSchema struct {
	Name string `yaml:"name"`

	// NaturalKey names the field(s) forming the deterministic business key
	// used for deduplication and dimension identity.
	NaturalKey []string `yaml:"natural_key"`

	// OrderingField decides which duplicate wins: the record with the
	// greatest value in this field is kept, first-seen winning ties.
	// Empty means the lineage timestamp (_ingested_at).
	OrderingField string `yaml:"ordering_field"`

	// BusinessDateField is the date field that drives silver partitioning.
	BusinessDateField string `yaml:"business_date_field"`

	Fields []FieldDef `yaml:"fields"`
}

// FieldIndex returns the position of the named field, or -1 when absent.
func (s *TableSchema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Field returns the definition of the named field.
func (s *TableSchema) Field(name string) (FieldDef, bool) {
	i := s.FieldIndex(name)
	if i < 0 {
		return FieldDef{}, false
	}
	return s.Fields[i], true
}

// FieldNames returns the declared field names in declared order.
func (s *TableSchema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// SourceFields returns the non-derived fields: the shape expected from the
// raw extract, in declared order.
func (s *TableSchema) SourceFields() []FieldDef {
	out := make([]FieldDef, 0, len(s.Fields))
	for _, f := range s.Fields {
		if !f.Derived {
			out = append(out, f)
		}
	}
	return out
}
