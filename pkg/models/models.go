package models

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// SemanticType is the language-neutral type of an entity field
type SemanticType int

const (
	TypeUnsupported SemanticType = iota
	TypeBoolean
	TypeInteger32
	TypeInteger64
	TypeString
	TypeDateTime
	TypeDecimal
	TypeFloat
	TypeDouble
	TypeEnum
	TypeLargeObject
)

var semanticTypeNames = map[SemanticType]string{
	TypeUnsupported: "unsupported",
	TypeBoolean:     "boolean",
	TypeInteger32:   "int32",
	TypeInteger64:   "int64",
	TypeString:      "string",
	TypeDateTime:    "datetime",
	TypeDecimal:     "decimal",
	TypeFloat:       "float",
	TypeDouble:      "double",
	TypeEnum:        "enum",
	TypeLargeObject: "lob",
}

func (t SemanticType) String() string {
	if name, ok := semanticTypeNames[t]; ok {
		return name
	}
	return "SemanticType(" + strconv.Itoa(int(t)) + ")"
}

// ParseSemanticType maps a descriptor type name to a SemanticType.
// Unknown names map to TypeUnsupported and ok=false.
func ParseSemanticType(name string) (SemanticType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bool", "boolean":
		return TypeBoolean, true
	case "int", "int32", "integer":
		return TypeInteger32, true
	case "int64", "long", "bigint":
		return TypeInteger64, true
	case "string", "text":
		return TypeString, true
	case "datetime", "date", "time", "timestamp":
		return TypeDateTime, true
	case "decimal", "bigdecimal":
		return TypeDecimal, true
	case "float", "float32":
		return TypeFloat, true
	case "double", "float64":
		return TypeDouble, true
	case "enum":
		return TypeEnum, true
	case "lob", "bytes", "blob":
		return TypeLargeObject, true
	}
	return TypeUnsupported, false
}

// KeyGeneration is the primary key generation strategy
type KeyGeneration int

const (
	// KeyGenerationUnset means no strategy was declared; UseGeneratedKeys decides.
	KeyGenerationUnset KeyGeneration = iota
	KeyGenerationIdentity
	// KeyGenerationNone is an explicit non-identity strategy.
	KeyGenerationNone
)

// TemporalGranularity selects date, time or datetime columns
type TemporalGranularity int

const (
	TemporalUnset TemporalGranularity = iota
	TemporalDate
	TemporalTime
	TemporalDateTime
)

// EnumEncoding selects how enum values are stored
type EnumEncoding int

const (
	EnumUnset EnumEncoding = iota
	EnumOrdinal
	EnumName
)

// DefaultValue is a column default. Keyword defaults (CURRENT_TIMESTAMP) are emitted unquoted.
type DefaultValue struct {
	Value   string
	Keyword bool
}

// FieldDescriptor describes one entity field and its metadata tags
type FieldDescriptor struct {
	Name       string
	ColumnName string
	Type       SemanticType
	TypeName   string

	NotNull     bool
	NotNullHint bool
	Default     *DefaultValue

	Length        int
	Precision     int
	Scale         int
	HasColumnMeta bool
	Definition    string
	Unique        bool

	PrimaryKey    bool
	KeyGeneration KeyGeneration
	Temporal      TemporalGranularity
	LargeObject   bool
	EnumEncoding  EnumEncoding
}

// EntityDescriptor describes one entity and the table it maps to
type EntityDescriptor struct {
	Name         string
	Table        string
	Fields       []FieldDescriptor
	UniqueGroups [][]string
	DependsOn    []string
}

// TableName returns the explicit table name or the underscored entity name
func (e *EntityDescriptor) TableName() string {
	if strings.TrimSpace(e.Table) != "" {
		return e.Table
	}
	return CamelToUnderline(e.Name)
}

// HasField reports whether the entity declares a field with the given name
func (e *EntityDescriptor) HasField(name string) bool {
	for _, f := range e.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// ColumnMeta is one desired column
type ColumnMeta struct {
	Name  string
	Type  string
	Field string
}

// TableMeta is the desired schema for one table
type TableMeta struct {
	Table      string
	Columns    []ColumnMeta
	Uniques    []string
	PrimaryKey string
}

// HasColumn reports whether the desired schema contains the column
func (tm *TableMeta) HasColumn(name string) bool {
	for _, c := range tm.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Fingerprint hashes the desired schema so runs can tell when it changed
func (tm *TableMeta) Fingerprint() string {
	h := xxh3.New()
	h.WriteString(tm.Table)
	for _, c := range tm.Columns {
		h.WriteString("\x00" + c.Name + "\x01" + c.Type)
	}
	for _, u := range tm.Uniques {
		h.WriteString("\x02" + u)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// Column is a column as reported by the live catalog
type Column struct {
	Name       string
	DataType   string
	ColumnType string
	IsNullable bool
	ColumnKey  string
	Extra      string
}

// TableResult is the outcome of synchronizing one entity
type TableResult struct {
	Entity         string
	Table          string
	Fingerprint    string
	Created        bool
	AddedColumns   []string
	AddedUniques   []string
	SkippedUniques []string
	Warnings       []string
	Statements     []string
	// DryRun marks results whose statements were never executed
	DryRun bool
	Err    error
}

// Failed reports whether the table could not be synchronized
func (r *TableResult) Failed() bool {
	return r.Err != nil
}

// Changed reports whether any DDL was issued for the table
func (r *TableResult) Changed() bool {
	return len(r.Statements) > 0
}
