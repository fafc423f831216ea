package models

import "testing"

func TestCamelToUnderline(t *testing.T) {
	cases := map[string]string{
		"firstName":   "first_name",
		"id":          "id",
		"UserAccount": "user_account",
		"createdAtMs": "created_at_ms",
		"already_low": "already_low",
		"":            "",
	}
	for in, want := range cases {
		if got := CamelToUnderline(in); got != want {
			t.Errorf("Expected CamelToUnderline(%q) to be %q, got %q", in, want, got)
		}
	}
}

func TestUnderlineToCamel(t *testing.T) {
	cases := map[string]string{
		"first_name":   "firstName",
		"id":           "id",
		"CREATED_AT":   "createdAt",
		"_leading":     "leading",
		"double__gap":  "doubleGap",
		"legacy_flag_": "legacyFlag",
	}
	for in, want := range cases {
		if got := UnderlineToCamel(in); got != want {
			t.Errorf("Expected UnderlineToCamel(%q) to be %q, got %q", in, want, got)
		}
	}
}

func TestEntityTableName(t *testing.T) {
	e := EntityDescriptor{Name: "OrderItem"}
	if e.TableName() != "order_item" {
		t.Errorf("Expected table name to be 'order_item', got '%s'", e.TableName())
	}

	e.Table = "t_order_item"
	if e.TableName() != "t_order_item" {
		t.Errorf("Expected table name to be 't_order_item', got '%s'", e.TableName())
	}
}

func TestParseSemanticType(t *testing.T) {
	if typ, ok := ParseSemanticType("Long"); !ok || typ != TypeInteger64 {
		t.Errorf("Expected Long to parse as int64, got %s (ok=%v)", typ, ok)
	}
	if typ, ok := ParseSemanticType("map"); ok || typ != TypeUnsupported {
		t.Errorf("Expected map to be unsupported, got %s (ok=%v)", typ, ok)
	}
}

func TestFingerprintChangesWithSchema(t *testing.T) {
	a := TableMeta{Table: "user", Columns: []ColumnMeta{{Name: "id", Type: "int(11)"}}}
	b := TableMeta{Table: "user", Columns: []ColumnMeta{{Name: "id", Type: "int(11)"}}}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("Expected identical schemas to share a fingerprint")
	}

	b.Columns = append(b.Columns, ColumnMeta{Name: "name", Type: "varchar(255)"})
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("Expected fingerprint to change when a column is added")
	}
}
