package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-schema-sync/internal/resolver"
	"github.com/vitebski/mysql-schema-sync/pkg/models"
)

var (
	// ErrDuplicateColumn is returned when two fields resolve to the same column name
	ErrDuplicateColumn = errors.New("duplicate column name")
	// ErrCompositePrimaryKey is returned when more than one field is a primary key
	ErrCompositePrimaryKey = errors.New("composite primary keys are not supported")
)

// TableBuilder builds table metadata from entity descriptors
type TableBuilder struct {
	Resolver *resolver.TypeResolver
	Logger   *logrus.Logger
}

// NewTableBuilder creates a new table metadata builder
func NewTableBuilder(r *resolver.TypeResolver, logger *logrus.Logger) *TableBuilder {
	return &TableBuilder{
		Resolver: r,
		Logger:   logger,
	}
}

// Build resolves every field of the entity and assembles the table metadata.
// Any unresolvable field fails the whole table.
func (tb *TableBuilder) Build(entity *models.EntityDescriptor) (*models.TableMeta, error) {
	table := entity.TableName()
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("entity %q has no table name", entity.Name)
	}

	meta := &models.TableMeta{
		Table:   table,
		Columns: make([]models.ColumnMeta, 0, len(entity.Fields)),
	}
	seen := make(map[string]string, len(entity.Fields))

	for i := range entity.Fields {
		field := &entity.Fields[i]

		columnType, err := tb.Resolver.Resolve(field)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", entity.Name, err)
		}

		name := ColumnName(field)
		if other, exists := seen[name]; exists {
			return nil, fmt.Errorf("entity %s: fields %s and %s both map to column %s: %w",
				entity.Name, other, field.Name, name, ErrDuplicateColumn)
		}
		seen[name] = field.Name

		if field.PrimaryKey {
			if meta.PrimaryKey != "" {
				return nil, fmt.Errorf("entity %s: %w", entity.Name, ErrCompositePrimaryKey)
			}
			meta.PrimaryKey = name
		}

		meta.Columns = append(meta.Columns, models.ColumnMeta{
			Name:  name,
			Type:  columnType,
			Field: field.Name,
		})
		tb.Logger.Debugf("Resolved %s.%s -> %s %s", table, field.Name, name, columnType)
	}

	meta.Uniques = uniqueGroups(entity)
	return meta, nil
}

// ColumnName returns the underscored column name of a field, honouring an
// explicit column name override
func ColumnName(field *models.FieldDescriptor) string {
	name := strings.TrimSpace(field.ColumnName)
	if name == "" {
		name = field.Name
	}
	return models.CamelToUnderline(name)
}

func uniqueGroups(entity *models.EntityDescriptor) []string {
	var uniques []string
	seen := make(map[string]bool)

	add := func(group string) {
		if group == "" || seen[group] {
			return
		}
		seen[group] = true
		uniques = append(uniques, group)
	}

	for _, group := range entity.UniqueGroups {
		var names []string
		for _, n := range group {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		add(strings.Join(names, ","))
	}
	for _, f := range entity.Fields {
		if f.Unique {
			add(f.Name)
		}
	}

	return uniques
}
