package generator

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/vitebski/mysql-schema-sync/pkg/models"
)

const createTableTemplate = `CREATE TABLE {{quote .Table}} (
{{- range $i, $c := .Columns}}{{if $i}},{{end}}
  {{quote $c.Name}} {{$c.Type}}
{{- end}}
{{- if .PrimaryKey}},
  PRIMARY KEY ({{quote .PrimaryKey}})
{{- end}}
) ENGINE={{.Engine}} DEFAULT CHARSET={{.Charset}};`

var mysqlTemplate = template.Must(template.New("mysql").
	Funcs(template.FuncMap{"quote": QuoteIdentifier}).
	Parse(createTableTemplate))

// DDLGenerator renders DDL statements for MySQL
type DDLGenerator struct {
	Engine  string
	Charset string
}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator() *DDLGenerator {
	return &DDLGenerator{
		Engine:  "InnoDB",
		Charset: "utf8mb4",
	}
}

type createTableModel struct {
	Table      string
	Columns    []models.ColumnMeta
	PrimaryKey string
	Engine     string
	Charset    string
}

// RenderCreateTable renders the full CREATE TABLE statement for the table metadata.
// A separate PRIMARY KEY clause is emitted only when no column type already
// declares the key inline.
func (g *DDLGenerator) RenderCreateTable(meta *models.TableMeta) (string, error) {
	table := strings.TrimSpace(meta.Table)
	if table == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(meta.Columns) == 0 {
		return "", fmt.Errorf("ddl: table %s has no columns", table)
	}

	inlineKey := false
	for _, c := range meta.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", table)
		}
		if strings.TrimSpace(c.Type) == "" {
			return "", fmt.Errorf("ddl: column %s missing type", c.Name)
		}
		if strings.Contains(strings.ToLower(c.Type), "primary key") {
			inlineKey = true
		}
	}

	model := createTableModel{
		Table:   table,
		Columns: meta.Columns,
		Engine:  g.Engine,
		Charset: g.Charset,
	}
	if !inlineKey && meta.HasColumn(meta.PrimaryKey) {
		model.PrimaryKey = meta.PrimaryKey
	}

	var sb strings.Builder
	if err := mysqlTemplate.Execute(&sb, model); err != nil {
		return "", fmt.Errorf("ddl: render %s: %w", table, err)
	}
	return sb.String(), nil
}

// AddColumn renders ALTER TABLE ... ADD COLUMN
func (g *DDLGenerator) AddColumn(table string, col models.ColumnMeta) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", QuoteIdentifier(table), QuoteIdentifier(col.Name), col.Type)
}

// AddUnique renders ALTER TABLE ... ADD UNIQUE for a comma-joined group of
// field names and returns the statement with the constraint name.
func (g *DDLGenerator) AddUnique(table, group string) (stmt, name string) {
	columns := UniqueColumns(group)
	name = UniqueName(group)
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdentifier(c)
	}
	stmt = fmt.Sprintf("ALTER TABLE %s ADD UNIQUE %s(%s);", QuoteIdentifier(table), QuoteIdentifier(name), strings.Join(quoted, ","))
	return stmt, name
}

// UniqueColumns returns the underscored column names of a unique group
func UniqueColumns(group string) []string {
	parts := strings.Split(group, ",")
	columns := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			columns = append(columns, models.CamelToUnderline(p))
		}
	}
	return columns
}

// UniqueName returns the constraint name unique_<col>_<col> for a unique group
func UniqueName(group string) string {
	return "unique_" + strings.Join(UniqueColumns(group), "_")
}

// QuoteIdentifier quotes a MySQL identifier with backticks
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
