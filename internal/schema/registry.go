// Package schema implements the schema registry: canonical field definitions
// and types per source table, loaded once at process start.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"shoplake/internal/domain"
)

//go:embed defaults.yaml
var defaultSchemas []byte

// Registry resolves table names to their canonical schema definition.
// Read-only after construction; there is no mutation API.
type Registry struct {
	tables map[string]*domain.TableSchema
}

type schemaFile struct {
	Tables []domain.TableSchema `yaml:"tables"`
}

// NewRegistry builds a registry from the embedded default schemas.
func NewRegistry() (*Registry, error) {
	return parse(defaultSchemas)
}

// NewRegistryFromFile builds a registry from an external YAML schema file.
func NewRegistryFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("read schema file %s: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Registry, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schemas: %w", err)
	}

	tables := make(map[string]*domain.TableSchema, len(f.Tables))
	for i := range f.Tables {
		t := f.Tables[i]
		if t.Name == "" {
			return nil, domain.ErrSchema("schema entry %d has no table name", i)
		}
		if len(t.Fields) == 0 {
			return nil, domain.ErrSchema("table %q declares no fields", t.Name)
		}
		if _, dup := tables[t.Name]; dup {
			return nil, domain.ErrSchema("duplicate schema for table %q", t.Name)
		}
		seen := make(map[string]bool, len(t.Fields))
		for j := range t.Fields {
			fd := &t.Fields[j]
			if seen[fd.Name] {
				return nil, domain.ErrSchema("table %q declares field %q twice", t.Name, fd.Name)
			}
			seen[fd.Name] = true
			if !validType(fd.Type) {
				return nil, domain.ErrSchema("table %q field %q has unknown type %q", t.Name, fd.Name, fd.Type)
			}
			if fd.Derived {
				// Derived fields are computed after the null policy runs.
				fd.Nullable = true
			}
		}
		for _, k := range t.NaturalKey {
			if !seen[k] {
				return nil, domain.ErrSchema("table %q natural key field %q is not declared", t.Name, k)
			}
		}
		if t.BusinessDateField != "" && !seen[t.BusinessDateField] {
			return nil, domain.ErrSchema("table %q business date field %q is not declared", t.Name, t.BusinessDateField)
		}
		tables[t.Name] = &t
	}
	return &Registry{tables: tables}, nil
}

// Get returns the schema for the named table, or *domain.UnknownTableError
// when no definition exists.
func (r *Registry) Get(table string) (*domain.TableSchema, error) {
	s, ok := r.tables[table]
	if !ok {
		return nil, &domain.UnknownTableError{Table: table}
	}
	return s, nil
}

// Tables returns all registered table names, sorted.
func (r *Registry) Tables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validType(t domain.FieldType) bool {
	switch t {
	case domain.TypeString, domain.TypeInt, domain.TypeDouble,
		domain.TypeBool, domain.TypeDate, domain.TypeTimestamp:
		return true
	}
	return false
}
