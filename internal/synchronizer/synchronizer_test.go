package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-schema-sync/internal/builder"
	"github.com/vitebski/mysql-schema-sync/internal/generator"
	"github.com/vitebski/mysql-schema-sync/internal/resolver"
	"github.com/vitebski/mysql-schema-sync/pkg/models"
)

var (
	createRe    = regexp.MustCompile("^CREATE TABLE `([^`]+)`")
	columnRe    = regexp.MustCompile("^\\s*`([^`]+)`")
	addColumnRe = regexp.MustCompile("^ALTER TABLE `([^`]+)` ADD COLUMN `([^`]+)`")
	addUniqueRe = regexp.MustCompile("^ALTER TABLE `([^`]+)` ADD UNIQUE `([^`]+)`\\(")
)

// fakeHandle is an in-memory catalog that applies the DDL it is given
type fakeHandle struct {
	tables   map[string][]string
	indexes  map[string]map[string]bool
	executed []string
	failOn   func(stmt string) error
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		tables:  make(map[string][]string),
		indexes: make(map[string]map[string]bool),
	}
}

func (f *fakeHandle) DatabaseName() string { return "test" }

func (f *fakeHandle) TableExists(_ context.Context, table string) (bool, error) {
	_, ok := f.tables[table]
	return ok, nil
}

func (f *fakeHandle) ColumnExists(_ context.Context, table, column string) (bool, error) {
	for _, c := range f.tables[table] {
		if c == column {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeHandle) IndexExists(_ context.Context, table, index string) (bool, error) {
	return f.indexes[table][index], nil
}

func (f *fakeHandle) GetColumns(_ context.Context, table string) ([]models.Column, error) {
	var columns []models.Column
	for _, c := range f.tables[table] {
		columns = append(columns, models.Column{Name: c})
	}
	return columns, nil
}

func (f *fakeHandle) ExecuteDDL(_ context.Context, stmt string) error {
	f.executed = append(f.executed, stmt)
	if f.failOn != nil {
		if err := f.failOn(stmt); err != nil {
			return err
		}
	}

	if m := createRe.FindStringSubmatch(stmt); m != nil {
		var columns []string
		for _, line := range strings.Split(stmt, "\n")[1:] {
			if c := columnRe.FindStringSubmatch(line); c != nil {
				columns = append(columns, c[1])
			}
		}
		f.tables[m[1]] = columns
		return nil
	}
	if m := addColumnRe.FindStringSubmatch(stmt); m != nil {
		f.tables[m[1]] = append(f.tables[m[1]], m[2])
		return nil
	}
	if m := addUniqueRe.FindStringSubmatch(stmt); m != nil {
		if f.indexes[m[1]] == nil {
			f.indexes[m[1]] = make(map[string]bool)
		}
		f.indexes[m[1]][m[2]] = true
		return nil
	}
	return fmt.Errorf("unexpected statement: %s", stmt)
}

type recordingSink struct {
	statements []string
	planned    []string
	warnings   []string
}

func (r *recordingSink) Statement(_, stmt string)   { r.statements = append(r.statements, stmt) }
func (r *recordingSink) Planned(_, stmt string)     { r.planned = append(r.planned, stmt) }
func (r *recordingSink) Warning(_, message string) { r.warnings = append(r.warnings, message) }

func userEntity() *models.EntityDescriptor {
	return &models.EntityDescriptor{
		Name: "User",
		Fields: []models.FieldDescriptor{
			{Name: "id", Type: models.TypeInteger64, PrimaryKey: true, KeyGeneration: models.KeyGenerationIdentity},
			{Name: "firstName", Type: models.TypeString, Length: 64},
			{Name: "email", Type: models.TypeString, Unique: true},
		},
		UniqueGroups: [][]string{{"firstName", "email"}},
	}
}

func newTestSynchronizer(db SchemaHandle, sink AuditSink, opts Options) *SchemaSynchronizer {
	logger := createTestLogger()
	tb := builder.NewTableBuilder(resolver.NewTypeResolver(resolver.DefaultOptions()), logger)
	return NewSchemaSynchronizer(db, tb, generator.NewDDLGenerator(), sink, opts, logger)
}

func TestSynchronizeCreatesTableAndIsIdempotent(t *testing.T) {
	db := newFakeHandle()
	sink := &recordingSink{}

	ss := newTestSynchronizer(db, sink, Options{})
	if !ss.SynchronizeSchema(context.Background(), []*models.EntityDescriptor{userEntity()}) {
		t.Fatalf("Expected first run to succeed: %v", ss.Results[0].Err)
	}

	result := ss.Results[0]
	if !result.Created {
		t.Error("Expected table to be created")
	}
	if len(result.Statements) != 3 {
		t.Fatalf("Expected CREATE plus two ADD UNIQUE, got %d: %v", len(result.Statements), result.Statements)
	}
	if !strings.HasPrefix(result.Statements[0], "CREATE TABLE `user`") {
		t.Errorf("Unexpected first statement: %s", result.Statements[0])
	}
	if got := strings.Join(result.AddedUniques, ","); got != "unique_first_name_email,unique_email" {
		t.Errorf("Unexpected uniques: %s", got)
	}
	if got := strings.Join(db.tables["user"], ","); got != "id,first_name,email" {
		t.Errorf("Unexpected live columns: %s", got)
	}
	if len(sink.statements) != 3 {
		t.Errorf("Expected sink to see 3 statements, got %d", len(sink.statements))
	}

	executed := len(db.executed)
	again := newTestSynchronizer(db, sink, Options{})
	if !again.SynchronizeSchema(context.Background(), []*models.EntityDescriptor{userEntity()}) {
		t.Fatalf("Expected second run to succeed: %v", again.Results[0].Err)
	}
	if len(db.executed) != executed {
		t.Errorf("Expected no DDL on second run, got %v", db.executed[executed:])
	}
	if again.Results[0].Changed() {
		t.Errorf("Expected second run to report no changes: %+v", again.Results[0])
	}
	if len(again.Results[0].SkippedUniques) != 2 {
		t.Errorf("Expected both uniques to be skipped, got %v", again.Results[0].SkippedUniques)
	}
}

func TestSynchronizeAddsMissingColumnsAndWarnsOnDrift(t *testing.T) {
	db := newFakeHandle()
	db.tables["user"] = []string{"id", "first_name", "legacy_flag"}
	db.indexes["user"] = map[string]bool{"unique_first_name_email": true, "unique_email": true}
	sink := &recordingSink{}

	ss := newTestSynchronizer(db, sink, Options{})
	if !ss.SynchronizeSchema(context.Background(), []*models.EntityDescriptor{userEntity()}) {
		t.Fatalf("Expected success: %v", ss.Results[0].Err)
	}

	result := ss.Results[0]
	if result.Created {
		t.Error("Existing table must not be recreated")
	}
	if len(db.executed) != 1 || db.executed[0] != "ALTER TABLE `user` ADD COLUMN `email` varchar(255)" {
		t.Errorf("Expected a single ADD COLUMN for email, got %v", db.executed)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "legacy_flag") {
		t.Errorf("Expected one drift warning for legacy_flag, got %v", result.Warnings)
	}
	if len(sink.warnings) != 1 {
		t.Errorf("Expected sink to receive one warning, got %v", sink.warnings)
	}
	if got := strings.Join(db.tables["user"], ","); got != "id,first_name,legacy_flag,email" {
		t.Errorf("Drift check must not drop columns, got %s", got)
	}
}

func TestSynchronizeCompleteTableIssuesNoAlter(t *testing.T) {
	db := newFakeHandle()
	db.tables["user"] = []string{"id", "first_name", "email"}
	db.indexes["user"] = map[string]bool{"unique_first_name_email": true, "unique_email": true}

	ss := newTestSynchronizer(db, nil, Options{})
	if !ss.SynchronizeSchema(context.Background(), []*models.EntityDescriptor{userEntity()}) {
		t.Fatalf("Expected success: %v", ss.Results[0].Err)
	}
	if len(db.executed) != 0 {
		t.Errorf("Expected no DDL, got %v", db.executed)
	}
	if len(ss.Results[0].Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", ss.Results[0].Warnings)
	}
}

func TestSynchronizeSwallowsDuplicateConstraint(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"duplicate key name", &mysql.MySQLError{Number: 1061, Message: "Duplicate key name 'unique_email'"}},
		{"duplicate entry", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@b' for key 'unique_email'"}},
		{"message prefix", errors.New("Duplicate key name 'unique_email'")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newFakeHandle()
			db.failOn = func(stmt string) error {
				if strings.Contains(stmt, "ADD UNIQUE") {
					return tt.err
				}
				return nil
			}

			ss := newTestSynchronizer(db, nil, Options{})
			if !ss.SynchronizeSchema(context.Background(), []*models.EntityDescriptor{userEntity()}) {
				t.Fatalf("Expected duplicate to be swallowed, got %v", ss.Results[0].Err)
			}
			result := ss.Results[0]
			if len(result.SkippedUniques) != 2 || len(result.AddedUniques) != 0 {
				t.Errorf("Expected both uniques skipped, got added=%v skipped=%v", result.AddedUniques, result.SkippedUniques)
			}
			if len(result.Statements) != 1 {
				t.Errorf("Only the CREATE should be reported, got %v", result.Statements)
			}
		})
	}
}

func TestSynchronizeUniqueFailureIsReported(t *testing.T) {
	db := newFakeHandle()
	db.failOn = func(stmt string) error {
		if strings.Contains(stmt, "ADD UNIQUE") {
			return &mysql.MySQLError{Number: 1072, Message: "Key column 'email' doesn't exist in table"}
		}
		return nil
	}

	ss := newTestSynchronizer(db, nil, Options{})
	if ss.SynchronizeSchema(context.Background(), []*models.EntityDescriptor{userEntity()}) {
		t.Fatal("Expected failure")
	}
	var ddlErr *DDLError
	if !errors.As(ss.Results[0].Err, &ddlErr) || !strings.Contains(ddlErr.Statement, "ADD UNIQUE") {
		t.Errorf("Expected DDLError for ADD UNIQUE, got %v", ss.Results[0].Err)
	}
}

func TestSynchronizeColumnFailureAborts(t *testing.T) {
	failFirstName := func(stmt string) error {
		if strings.Contains(stmt, "ADD COLUMN `first_name`") {
			return &mysql.MySQLError{Number: 1118, Message: "Row size too large"}
		}
		return nil
	}

	db := newFakeHandle()
	db.tables["user"] = []string{"id"}
	db.failOn = failFirstName

	ss := newTestSynchronizer(db, nil, Options{})
	if ss.SynchronizeSchema(context.Background(), []*models.EntityDescriptor{userEntity()}) {
		t.Fatal("Expected failure")
	}
	if !ss.FailedTables["user"] {
		t.Error("Expected user to be marked failed")
	}
	if len(db.executed) != 1 {
		t.Errorf("Expected loop to stop after first failure, got %v", db.executed)
	}

	err := ss.Results[0].Err
	if !errors.Is(err, ErrDDLExecution) {
		t.Errorf("Expected ErrDDLExecution, got %v", err)
	}
	var ddlErr *DDLError
	if !errors.As(err, &ddlErr) || ddlErr.Table != "user" || ddlErr.Column != "first_name" {
		t.Errorf("Expected table and column context, got %v", err)
	}
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != 1118 {
		t.Errorf("Expected driver error to be preserved, got %v", err)
	}

	db = newFakeHandle()
	db.tables["user"] = []string{"id"}
	db.failOn = failFirstName

	ss = newTestSynchronizer(db, nil, Options{ContinueOnError: true})
	if ss.SynchronizeSchema(context.Background(), []*models.EntityDescriptor{userEntity()}) {
		t.Fatal("Expected failure with ContinueOnError")
	}
	if got := strings.Join(ss.Results[0].AddedColumns, ","); got != "email" {
		t.Errorf("Expected email to be added after first_name failed, got %s", got)
	}
}

func TestSynchronizeIsolatesUnsupportedEntity(t *testing.T) {
	bad := &models.EntityDescriptor{
		Name: "Attachment",
		Fields: []models.FieldDescriptor{
			{Name: "id", Type: models.TypeInteger64, PrimaryKey: true},
			{Name: "payload", Type: models.TypeUnsupported, TypeName: "Map"},
		},
	}

	db := newFakeHandle()
	ss := newTestSynchronizer(db, nil, Options{})
	if ss.SynchronizeSchema(context.Background(), []*models.EntityDescriptor{bad, userEntity()}) {
		t.Fatal("Expected overall failure")
	}

	if !ss.FailedTables["attachment"] {
		t.Error("Expected attachment to be marked failed")
	}
	if !errors.Is(ss.Results[0].Err, resolver.ErrUnsupportedFieldType) {
		t.Errorf("Expected unsupported type error, got %v", ss.Results[0].Err)
	}
	if _, ok := db.tables["attachment"]; ok {
		t.Error("Attachment table must not be created")
	}
	if _, ok := db.tables["user"]; !ok {
		t.Error("User table should still be created")
	}
}

func TestSynchronizeDryRun(t *testing.T) {
	db := newFakeHandle()
	sink := &recordingSink{}

	ss := newTestSynchronizer(db, sink, Options{DryRun: true})
	if !ss.SynchronizeSchema(context.Background(), []*models.EntityDescriptor{userEntity()}) {
		t.Fatalf("Expected success: %v", ss.Results[0].Err)
	}
	if len(db.executed) != 0 {
		t.Errorf("Dry run must not execute DDL, got %v", db.executed)
	}
	if len(ss.Results[0].Statements) != 3 || len(sink.planned) != 3 {
		t.Errorf("Expected 3 planned statements, got %v", ss.Results[0].Statements)
	}
	if len(sink.statements) != 0 {
		t.Errorf("Dry run must not report executed statements, got %v", sink.statements)
	}
	if !ss.Results[0].DryRun {
		t.Error("Expected result to be marked as dry run")
	}
}

func TestSynchronizeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	db := newFakeHandle()
	ss := newTestSynchronizer(db, nil, Options{})
	if ss.SynchronizeSchema(ctx, []*models.EntityDescriptor{userEntity()}) {
		t.Fatal("Expected failure on cancelled context")
	}
	if !errors.Is(ss.Results[0].Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", ss.Results[0].Err)
	}
	if len(db.executed) != 0 {
		t.Errorf("Expected no DDL, got %v", db.executed)
	}
}

func TestProgressCallback(t *testing.T) {
	db := newFakeHandle()
	ss := newTestSynchronizer(db, nil, Options{})

	var seen []string
	ss.OnProgress = func(result *models.TableResult) {
		seen = append(seen, result.Table)
	}

	order := &models.EntityDescriptor{
		Name:   "PurchaseOrder",
		Fields: []models.FieldDescriptor{{Name: "id", Type: models.TypeInteger64, PrimaryKey: true}},
	}
	ss.SynchronizeSchema(context.Background(), []*models.EntityDescriptor{userEntity(), order})

	if strings.Join(seen, ",") != "user,purchase_order" {
		t.Errorf("Unexpected progress order: %v", seen)
	}
}

func TestIsDuplicateConstraint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"dup key name", &mysql.MySQLError{Number: 1061}, true},
		{"dup entry", &mysql.MySQLError{Number: 1062}, true},
		{"table exists", &mysql.MySQLError{Number: 1050, Message: "Duplicate table"}, false},
		{"plain duplicate", errors.New("Duplicate key name 'x'"), true},
		{"plain other", errors.New("connection refused"), false},
		{"wrapped", &DDLError{Table: "t", Err: &mysql.MySQLError{Number: 1061}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicateConstraint(tt.err); got != tt.want {
				t.Errorf("IsDuplicateConstraint(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := MultiSink{a, nil, b}

	sink.Statement("user", "CREATE TABLE `user` (...)")
	sink.Planned("user", "ALTER TABLE `user` ADD COLUMN `nick` varchar(32)")
	sink.Warning("user", "drift")

	for _, r := range []*recordingSink{a, b} {
		if len(r.statements) != 1 || len(r.planned) != 1 || len(r.warnings) != 1 {
			t.Errorf("Expected one entry of each kind, got %v %v %v", r.statements, r.planned, r.warnings)
		}
	}
}

// Helper function to create a test logger
func createTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests
	return logger
}
