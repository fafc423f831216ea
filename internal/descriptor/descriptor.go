// Package descriptor loads entity descriptors from YAML files and Go structs.
package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vitebski/mysql-schema-sync/pkg/models"
	"go.yaml.in/yaml/v3"
)

// ErrInvalidDescriptor is returned for malformed descriptors
var ErrInvalidDescriptor = errors.New("invalid descriptor")

type file struct {
	Entities []entitySpec `yaml:"entities"`
}

type entitySpec struct {
	Name      string      `yaml:"name"`
	Table     string      `yaml:"table"`
	DependsOn []string    `yaml:"dependsOn"`
	Uniques   [][]string  `yaml:"uniques"`
	Fields    []fieldSpec `yaml:"fields"`
}

type fieldSpec struct {
	Name       string       `yaml:"name"`
	Type       string       `yaml:"type"`
	Column     string       `yaml:"column"`
	Length     int          `yaml:"length"`
	Precision  int          `yaml:"precision"`
	Scale      int          `yaml:"scale"`
	Definition string       `yaml:"definition"`
	NotNull    bool         `yaml:"notNull"`
	Validation []string     `yaml:"validation"`
	Default    *defaultSpec `yaml:"default"`
	Unique     bool         `yaml:"unique"`
	ID         bool         `yaml:"id"`
	Generated  string       `yaml:"generated"`
	Temporal   string       `yaml:"temporal"`
	Enum       string       `yaml:"enum"`
	Lob        bool         `yaml:"lob"`
}

// defaultSpec accepts either a scalar literal or {value, keyword}
type defaultSpec struct {
	Value   string `yaml:"value"`
	Keyword bool   `yaml:"keyword"`
}

func (d *defaultSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		d.Value = node.Value
		return nil
	}
	type plain defaultSpec
	return node.Decode((*plain)(d))
}

// LoadFile reads entity descriptors from a YAML file
func LoadFile(path string) ([]*models.EntityDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor file: %w", err)
	}
	entities, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entities, nil
}

// Parse decodes entity descriptors from YAML. Unknown field types are kept as
// unsupported so the failure surfaces for that entity alone during synchronization.
func Parse(data []byte) ([]*models.EntityDescriptor, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	entities := make([]*models.EntityDescriptor, 0, len(f.Entities))
	for i, es := range f.Entities {
		entity, err := es.toEntity()
		if err != nil {
			return nil, fmt.Errorf("entity #%d: %w", i+1, err)
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (es entitySpec) toEntity() (*models.EntityDescriptor, error) {
	name := strings.TrimSpace(es.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is required", ErrInvalidDescriptor)
	}

	entity := &models.EntityDescriptor{
		Name:         name,
		Table:        strings.TrimSpace(es.Table),
		DependsOn:    es.DependsOn,
		UniqueGroups: es.Uniques,
		Fields:       make([]models.FieldDescriptor, 0, len(es.Fields)),
	}

	for _, fs := range es.Fields {
		field, err := fs.toField()
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		entity.Fields = append(entity.Fields, field)
	}
	return entity, nil
}

func (fs fieldSpec) toField() (models.FieldDescriptor, error) {
	name := strings.TrimSpace(fs.Name)
	if name == "" {
		return models.FieldDescriptor{}, fmt.Errorf("%w: field name is required", ErrInvalidDescriptor)
	}

	typ, _ := models.ParseSemanticType(fs.Type)
	field := models.FieldDescriptor{
		Name:          name,
		ColumnName:    strings.TrimSpace(fs.Column),
		Type:          typ,
		TypeName:      fs.Type,
		NotNull:       fs.NotNull,
		NotNullHint:   hasNotNullHint(fs.Validation),
		Length:        fs.Length,
		Precision:     fs.Precision,
		Scale:         fs.Scale,
		HasColumnMeta: fs.Column != "" || fs.Length > 0 || fs.Precision > 0 || fs.Scale > 0 ||
			fs.NotNull || fs.Unique || fs.Definition != "",
		Definition:    fs.Definition,
		Unique:        fs.Unique,
		PrimaryKey:    fs.ID,
		LargeObject:   fs.Lob,
	}
	if fs.Default != nil {
		field.Default = &models.DefaultValue{Value: fs.Default.Value, Keyword: fs.Default.Keyword}
	}

	var err error
	if field.KeyGeneration, err = parseKeyGeneration(fs.Generated); err != nil {
		return field, fmt.Errorf("field %s: %w", name, err)
	}
	if field.Temporal, err = parseTemporal(fs.Temporal); err != nil {
		return field, fmt.Errorf("field %s: %w", name, err)
	}
	if field.Temporal == models.TemporalUnset && field.Type == models.TypeDateTime {
		// type: date and type: time imply their granularity
		field.Temporal, _ = parseTemporal(fs.Type)
	}
	if field.EnumEncoding, err = parseEnumEncoding(fs.Enum); err != nil {
		return field, fmt.Errorf("field %s: %w", name, err)
	}
	if field.EnumEncoding != models.EnumUnset && fs.Type == "" {
		field.Type = models.TypeEnum
		field.TypeName = "enum"
	}

	return field, nil
}

func parseKeyGeneration(s string) (models.KeyGeneration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return models.KeyGenerationUnset, nil
	case "identity", "auto", "auto_increment":
		return models.KeyGenerationIdentity, nil
	case "none", "assigned", "sequence", "table", "uuid":
		return models.KeyGenerationNone, nil
	}
	return models.KeyGenerationUnset, fmt.Errorf("%w: unknown key generation %q", ErrInvalidDescriptor, s)
}

func parseTemporal(s string) (models.TemporalGranularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return models.TemporalUnset, nil
	case "date":
		return models.TemporalDate, nil
	case "time":
		return models.TemporalTime, nil
	case "datetime", "timestamp":
		return models.TemporalDateTime, nil
	}
	return models.TemporalUnset, fmt.Errorf("%w: unknown temporal granularity %q", ErrInvalidDescriptor, s)
}

func parseEnumEncoding(s string) (models.EnumEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return models.EnumUnset, nil
	case "ordinal":
		return models.EnumOrdinal, nil
	case "name", "string":
		return models.EnumName, nil
	}
	return models.EnumUnset, fmt.Errorf("%w: unknown enum encoding %q", ErrInvalidDescriptor, s)
}

// hasNotNullHint reports whether any validation hint implies a non-null column
func hasNotNullHint(hints []string) bool {
	for _, h := range hints {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "notnull", "notblank", "notempty", "required":
			return true
		}
	}
	return false
}
