package generator

import (
	"strings"
	"testing"

	"github.com/vitebski/mysql-schema-sync/pkg/models"
)

func TestRenderCreateTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		meta        models.TableMeta
		wantSQL     string
		wantErr     bool
		errContains string
	}{
		{
			name:        "empty table name returns error",
			meta:        models.TableMeta{Columns: []models.ColumnMeta{{Name: "id", Type: "int(11)"}}},
			wantErr:     true,
			errContains: "table name must not be empty",
		},
		{
			name:        "no columns returns error",
			meta:        models.TableMeta{Table: "user"},
			wantErr:     true,
			errContains: "has no columns",
		},
		{
			name:        "column with empty type returns error",
			meta:        models.TableMeta{Table: "user", Columns: []models.ColumnMeta{{Name: "id"}}},
			wantErr:     true,
			errContains: "missing type",
		},
		{
			name: "inline primary key",
			meta: models.TableMeta{
				Table: "user",
				Columns: []models.ColumnMeta{
					{Name: "id", Type: "bigint(20) not null auto_increment primary key"},
					{Name: "first_name", Type: "varchar(64)"},
				},
				PrimaryKey: "id",
			},
			wantSQL: "CREATE TABLE `user` (\n" +
				"  `id` bigint(20) not null auto_increment primary key,\n" +
				"  `first_name` varchar(64)\n" +
				") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
		},
		{
			name: "separate primary key clause",
			meta: models.TableMeta{
				Table: "tag",
				Columns: []models.ColumnMeta{
					{Name: "code", Type: "json"},
					{Name: "label", Type: "varchar(255)"},
				},
				PrimaryKey: "code",
			},
			wantSQL: "CREATE TABLE `tag` (\n" +
				"  `code` json,\n" +
				"  `label` varchar(255),\n" +
				"  PRIMARY KEY (`code`)\n" +
				") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
		},
		{
			name: "no primary key",
			meta: models.TableMeta{
				Table:   "audit",
				Columns: []models.ColumnMeta{{Name: "note", Type: "longtext"}},
			},
			wantSQL: "CREATE TABLE `audit` (\n  `note` longtext\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
		},
	}

	g := NewDDLGenerator()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := g.RenderCreateTable(&tt.meta)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("error %q does not contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantSQL {
				t.Errorf("SQL mismatch\nwant:\n%s\n\ngot:\n%s", tt.wantSQL, got)
			}
		})
	}
}

func TestAddColumn(t *testing.T) {
	g := NewDDLGenerator()
	got := g.AddColumn("user", models.ColumnMeta{Name: "nick_name", Type: "varchar(32)"})
	want := "ALTER TABLE `user` ADD COLUMN `nick_name` varchar(32)"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestAddUnique(t *testing.T) {
	g := NewDDLGenerator()

	stmt, name := g.AddUnique("user", "firstName,lastName")
	if name != "unique_first_name_last_name" {
		t.Errorf("Expected constraint name 'unique_first_name_last_name', got '%s'", name)
	}
	want := "ALTER TABLE `user` ADD UNIQUE `unique_first_name_last_name`(`first_name`,`last_name`);"
	if stmt != want {
		t.Errorf("Expected %q, got %q", want, stmt)
	}

	stmt, name = g.AddUnique("user", "email")
	if name != "unique_email" || stmt != "ALTER TABLE `user` ADD UNIQUE `unique_email`(`email`);" {
		t.Errorf("Unexpected single-column unique: %s / %s", name, stmt)
	}

	// reserved words are valid column names once quoted
	stmt, name = g.AddUnique("purchase", "order,key")
	want = "ALTER TABLE `purchase` ADD UNIQUE `unique_order_key`(`order`,`key`);"
	if name != "unique_order_key" || stmt != want {
		t.Errorf("Expected %q, got %q (%s)", want, stmt, name)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	if got := QuoteIdentifier("we`ird"); got != "`we``ird`" {
		t.Errorf("Expected embedded backtick to be doubled, got %s", got)
	}
}
