package descriptor

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/vitebski/mysql-schema-sync/pkg/models"
)

// Tabler overrides the table name of a struct entity
type Tabler interface {
	TableName() string
}

// UniqueGrouper declares composite unique groups by field name
type UniqueGrouper interface {
	UniqueGroups() [][]string
}

// Dependent declares entities that must be synchronized first
type Dependent interface {
	DependsOn() []string
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// FromStructs builds one descriptor per struct value
func FromStructs(values ...interface{}) ([]*models.EntityDescriptor, error) {
	entities := make([]*models.EntityDescriptor, 0, len(values))
	for _, v := range values {
		entity, err := FromStruct(v)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// FromStruct builds an entity descriptor from a struct and its tags.
//
// Field metadata is read from the `schema` tag, a semicolon separated list of
// key or key:value items:
//
//	column:name  primaryKey  autoIncrement[:false]  size:n  precision:n  scale:n
//	not null  unique  lob  temporal:date|time|datetime  enum:name|ordinal
//	default:value  type:<full column definition>
//
// A `validate:"required"` tag marks the column non-null. Embedded structs are
// flattened and `schema:"-"` skips a field.
func FromStruct(v interface{}) (*models.EntityDescriptor, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a struct", ErrInvalidDescriptor, v)
	}

	entity := &models.EntityDescriptor{Name: t.Name()}
	if entity.Name == "" {
		return nil, fmt.Errorf("%w: anonymous struct", ErrInvalidDescriptor)
	}

	ptr := reflect.New(t).Interface()
	if tb, ok := ptr.(Tabler); ok {
		entity.Table = tb.TableName()
	}
	if ug, ok := ptr.(UniqueGrouper); ok {
		entity.UniqueGroups = ug.UniqueGroups()
	}
	if dep, ok := ptr.(Dependent); ok {
		entity.DependsOn = dep.DependsOn()
	}

	if err := collectFields(t, entity); err != nil {
		return nil, fmt.Errorf("entity %s: %w", entity.Name, err)
	}
	return entity, nil
}

func collectFields(t reflect.Type, entity *models.EntityDescriptor) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, tagged := sf.Tag.Lookup("schema")
		if tag == "-" {
			continue
		}

		ft := sf.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}

		if sf.Anonymous && ft.Kind() == reflect.Struct && ft != timeType && ft != decimalType {
			if err := collectFields(ft, entity); err != nil {
				return err
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		field := models.FieldDescriptor{
			Name:        FieldName(sf.Name),
			NotNullHint: requiredHint(sf.Tag.Get("validate")),
		}
		field.Type, field.TypeName = semanticType(ft)

		if tagged {
			if err := applyTag(&field, tag); err != nil {
				return fmt.Errorf("field %s: %w", sf.Name, err)
			}
		}

		entity.Fields = append(entity.Fields, field)
	}
	return nil
}

func semanticType(t reflect.Type) (models.SemanticType, string) {
	switch t {
	case timeType:
		return models.TypeDateTime, t.String()
	case decimalType:
		return models.TypeDecimal, t.String()
	}

	switch t.Kind() {
	case reflect.Bool:
		return models.TypeBoolean, t.String()
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return models.TypeInteger32, t.String()
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		return models.TypeInteger64, t.String()
	case reflect.String:
		return models.TypeString, t.String()
	case reflect.Float32:
		return models.TypeFloat, t.String()
	case reflect.Float64:
		return models.TypeDouble, t.String()
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return models.TypeLargeObject, t.String()
		}
	}
	return models.TypeUnsupported, t.String()
}

func applyTag(field *models.FieldDescriptor, tag string) error {
	for _, item := range strings.Split(tag, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, _ := strings.Cut(item, ":")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "column":
			field.ColumnName = value
			field.HasColumnMeta = true
		case "primarykey", "id":
			field.PrimaryKey = true
		case "autoincrement":
			field.KeyGeneration = models.KeyGenerationIdentity
			if value == "false" {
				field.KeyGeneration = models.KeyGenerationNone
			}
		case "size", "length":
			field.Length, err = strconv.Atoi(value)
			field.HasColumnMeta = true
		case "precision":
			field.Precision, err = strconv.Atoi(value)
			field.HasColumnMeta = true
		case "scale":
			field.Scale, err = strconv.Atoi(value)
			field.HasColumnMeta = true
		case "not null", "notnull":
			field.NotNull = true
			field.HasColumnMeta = true
		case "unique":
			field.Unique = true
			field.HasColumnMeta = true
		case "lob":
			field.LargeObject = true
		case "temporal":
			field.Temporal, err = parseTemporal(value)
		case "enum":
			field.EnumEncoding, err = parseEnumEncoding(value)
			field.Type = models.TypeEnum
		case "default":
			field.Default = parseDefault(value)
		case "type":
			field.Definition = value
			field.HasColumnMeta = true
		default:
			return fmt.Errorf("%w: unknown tag item %q", ErrInvalidDescriptor, item)
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, item, err)
		}
	}
	return nil
}

var defaultKeywords = map[string]bool{
	"CURRENT_TIMESTAMP": true,
	"CURRENT_DATE":      true,
	"CURRENT_TIME":      true,
	"NOW()":             true,
	"NULL":              true,
}

// parseDefault treats SQL keywords as unquoted defaults and strips quotes
// from quoted literals
func parseDefault(value string) *models.DefaultValue {
	if defaultKeywords[strings.ToUpper(value)] {
		return &models.DefaultValue{Value: strings.ToUpper(value), Keyword: true}
	}
	if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
		value = value[1 : len(value)-1]
	}
	return &models.DefaultValue{Value: value}
}

func requiredHint(validate string) bool {
	var hints []string
	for _, item := range strings.Split(validate, ",") {
		name, _, _ := strings.Cut(item, "=")
		hints = append(hints, name)
	}
	return hasNotNullHint(hints)
}

// FieldName converts a Go field name to the lower camel case descriptor name,
// treating initialisms as one word: UserID becomes userId, URLPath urlPath.
func FieldName(name string) string {
	runes := []rune(name)
	out := make([]rune, 0, len(runes))

	for i := 0; i < len(runes); {
		if !unicode.IsUpper(runes[i]) {
			out = append(out, runes[i])
			i++
			continue
		}

		j := i
		for j < len(runes) && unicode.IsUpper(runes[j]) {
			j++
		}
		// An upper-case run followed by lower case ends with the next word's initial.
		end := j
		if j < len(runes) && j-i > 1 {
			end = j - 1
		}

		for k := i; k < end; k++ {
			if k == i && i > 0 {
				out = append(out, runes[k])
			} else {
				out = append(out, unicode.ToLower(runes[k]))
			}
		}
		i = end
		if end == j-1 {
			out = append(out, runes[end])
			i = j
		}
	}
	return string(out)
}
