// Package resolver maps entity field descriptors to MySQL column definitions.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vitebski/mysql-schema-sync/pkg/models"
)

// Mode selects the resolution cascade
type Mode int

const (
	// ModeStrict bakes auto_increment into key column types and never emits
	// null or default fragments.
	ModeStrict Mode = iota
	// ModeMapAll composes primary key, not null and default fragments onto the
	// base column type.
	ModeMapAll
)

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "map-all"
}

// ParseMode parses "strict" or "map-all"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return ModeStrict, nil
	case "map-all", "mapall", "", "permissive":
		return ModeMapAll, nil
	}
	return ModeMapAll, fmt.Errorf("unknown resolver mode: %s", s)
}

// ErrUnsupportedFieldType is returned when a field matches no resolution rule
var ErrUnsupportedFieldType = errors.New("unsupported field type")

// UnsupportedFieldTypeError carries the offending field and type name
type UnsupportedFieldTypeError struct {
	Field    string
	TypeName string
}

func (e *UnsupportedFieldTypeError) Error() string {
	return fmt.Sprintf("field %s: type %s cannot be mapped to a column type", e.Field, e.TypeName)
}

func (e *UnsupportedFieldTypeError) Unwrap() error {
	return ErrUnsupportedFieldType
}

// Options controls the resolver
type Options struct {
	Mode Mode
	// MappingAll enables not null and default fragments in ModeMapAll.
	MappingAll bool
	// UseGeneratedKeys makes keys without an explicit strategy auto increment.
	UseGeneratedKeys bool
}

// DefaultOptions is the permissive map-all resolver
func DefaultOptions() Options {
	return Options{Mode: ModeMapAll, MappingAll: true}
}

// TypeResolver resolves column types for field descriptors
type TypeResolver struct {
	opts Options
}

// NewTypeResolver creates a new type resolver
func NewTypeResolver(opts Options) *TypeResolver {
	return &TypeResolver{opts: opts}
}

// Options returns the resolver options
func (r *TypeResolver) Options() Options {
	return r.opts
}

// Resolve returns the column type string for a field
func (r *TypeResolver) Resolve(f *models.FieldDescriptor) (string, error) {
	if r.opts.Mode == ModeStrict {
		return r.resolveStrict(f)
	}
	return r.resolveMapAll(f)
}

func (r *TypeResolver) resolveStrict(f *models.FieldDescriptor) (string, error) {
	const autoKey = " not null auto_increment primary key"

	if typ, ok := baseType(f); ok {
		return typ, nil
	}

	switch f.Type {
	case models.TypeInteger64:
		if f.PrimaryKey {
			return "bigint(20)" + autoKey, nil
		}
		return fmt.Sprintf("bigint(%d)", bigintLength(f.Length)), nil
	case models.TypeInteger32:
		if f.PrimaryKey {
			return "int(11)" + autoKey, nil
		}
		return "int(11)", nil
	case models.TypeString:
		if f.PrimaryKey {
			return "bigint(20)" + autoKey, nil
		}
		return varchar(f.Length, 255), nil
	case models.TypeEnum:
		if f.EnumEncoding == models.EnumName {
			return varchar(f.Length, 2), nil
		}
		return "int(2)", nil
	case models.TypeDecimal:
		return numeric("decimal", f.Precision, f.Scale, 19, 2), nil
	case models.TypeFloat:
		return numeric("float", f.Precision, f.Scale, 9, 2), nil
	case models.TypeDouble:
		return numeric("double", f.Precision, f.Scale, 19, 2), nil
	}

	return "", unsupported(f)
}

func (r *TypeResolver) resolveMapAll(f *models.FieldDescriptor) (string, error) {
	var notNull, defaultStr string

	if r.opts.MappingAll {
		if f.Default != nil {
			notNull = "NOT NULL"
			defaultStr = "DEFAULT " + defaultLiteral(f.Default)
		}
		if f.NotNullHint || f.NotNull {
			notNull = "NOT NULL"
		}

		if def := strings.TrimSpace(f.Definition); def != "" {
			upper := strings.ToUpper(def)
			if notNull != "" && !strings.Contains(upper, notNull) {
				def += " " + notNull
			}
			if defaultStr != "" && !strings.Contains(upper, strings.ToUpper(defaultStr)) {
				def += " " + defaultStr
			}
			return def, nil
		}
	}

	columnType, ok := baseType(f)
	if !ok {
		switch f.Type {
		case models.TypeInteger64:
			columnType = fmt.Sprintf("bigint(%d)", bigintLength(f.Length))
		case models.TypeInteger32:
			columnType = "int(11)"
		case models.TypeString:
			if f.PrimaryKey {
				columnType = "bigint(20)"
			} else {
				columnType = varchar(f.Length, 255)
			}
		case models.TypeEnum:
			// Name encoding is deliberately not honoured here.
			columnType = "int(2)"
		case models.TypeDecimal:
			columnType = r.mapAllNumeric("decimal", f, 19)
		case models.TypeFloat:
			columnType = r.mapAllNumeric("float", f, 9)
		case models.TypeDouble:
			columnType = r.mapAllNumeric("double", f, 19)
		default:
			return "", unsupported(f)
		}
	}

	parts := []string{columnType}
	if r.opts.MappingAll {
		parts = append(parts, notNull, defaultStr)
	}
	parts = append(parts, r.primaryKeyFragment(f))

	return joinFragments(parts), nil
}

// mapAllNumeric keeps the map-all quirk: with column metadata present an
// unset scale falls back to the precision default, not to 2.
func (r *TypeResolver) mapAllNumeric(name string, f *models.FieldDescriptor, defPrecision int) string {
	if !f.HasColumnMeta {
		return fmt.Sprintf("%s(%d,2)", name, defPrecision)
	}
	return numeric(name, f.Precision, f.Scale, defPrecision, defPrecision)
}

func (r *TypeResolver) primaryKeyFragment(f *models.FieldDescriptor) string {
	if !f.PrimaryKey {
		return ""
	}
	switch f.KeyGeneration {
	case models.KeyGenerationIdentity:
		return "AUTO_INCREMENT PRIMARY KEY"
	case models.KeyGenerationUnset:
		if r.opts.UseGeneratedKeys {
			return "AUTO_INCREMENT PRIMARY KEY"
		}
	}
	return "PRIMARY KEY"
}

// baseType covers the rules shared by both cascades: large objects, booleans
// and temporal values.
func baseType(f *models.FieldDescriptor) (string, bool) {
	if f.LargeObject || f.Type == models.TypeLargeObject {
		if f.Type == models.TypeString {
			return "longtext", true
		}
		return "blob", true
	}

	switch f.Type {
	case models.TypeBoolean:
		return "bit(1)", true
	case models.TypeDateTime:
		switch f.Temporal {
		case models.TemporalDate:
			return "date", true
		case models.TemporalTime:
			return "time", true
		}
		return "datetime", true
	}

	return "", false
}

func bigintLength(length int) int {
	if length > 0 && length < 255 {
		return length
	}
	return 32
}

func varchar(length, def int) string {
	if length <= 0 {
		length = def
	}
	return fmt.Sprintf("varchar(%d)", length)
}

func numeric(name string, precision, scale, defPrecision, defScale int) string {
	if precision == 0 {
		precision = defPrecision
	}
	if scale == 0 {
		scale = defScale
	}
	return fmt.Sprintf("%s(%d,%d)", name, precision, scale)
}

func defaultLiteral(d *models.DefaultValue) string {
	if d.Keyword {
		return d.Value
	}
	return "'" + strings.ReplaceAll(d.Value, "'", "''") + "'"
}

func joinFragments(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func unsupported(f *models.FieldDescriptor) error {
	typeName := f.TypeName
	if typeName == "" {
		typeName = f.Type.String()
	}
	return &UnsupportedFieldTypeError{Field: f.Name, TypeName: typeName}
}
