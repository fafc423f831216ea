package synchronizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-schema-sync/internal/builder"
	"github.com/vitebski/mysql-schema-sync/internal/generator"
	"github.com/vitebski/mysql-schema-sync/pkg/models"
)

// SchemaHandle is the live database as seen by the synchronizer
type SchemaHandle interface {
	DatabaseName() string
	TableExists(ctx context.Context, table string) (bool, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)
	IndexExists(ctx context.Context, table, index string) (bool, error)
	GetColumns(ctx context.Context, table string) ([]models.Column, error)
	ExecuteDDL(ctx context.Context, stmt string) error
}

// Options controls how deltas are applied
type Options struct {
	// ContinueOnError keeps adding the remaining columns after a failed
	// ADD COLUMN and reports all failures together.
	ContinueOnError bool
	// DryRun reports statements without executing them.
	DryRun bool
}

// SchemaSynchronizer converges live tables to the schema derived from entity descriptors
type SchemaSynchronizer struct {
	DB           SchemaHandle
	Builder      *builder.TableBuilder
	Generator    *generator.DDLGenerator
	Sink         AuditSink
	Options      Options
	Results      []*models.TableResult
	FailedTables map[string]bool
	OnProgress   func(result *models.TableResult)
	Logger       *logrus.Logger
}

// NewSchemaSynchronizer creates a new schema synchronizer
func NewSchemaSynchronizer(
	db SchemaHandle,
	tableBuilder *builder.TableBuilder,
	ddlGenerator *generator.DDLGenerator,
	sink AuditSink,
	opts Options,
	logger *logrus.Logger,
) *SchemaSynchronizer {
	if sink == nil {
		sink = discardSink{}
	}
	return &SchemaSynchronizer{
		DB:           db,
		Builder:      tableBuilder,
		Generator:    ddlGenerator,
		Sink:         sink,
		Options:      opts,
		FailedTables: make(map[string]bool),
		Logger:       logger,
	}
}

// SynchronizeSchema synchronizes every entity in order. A failing entity does
// not stop the others.
func (ss *SchemaSynchronizer) SynchronizeSchema(ctx context.Context, entities []*models.EntityDescriptor) bool {
	success := true

	for _, entity := range entities {
		var result *models.TableResult
		if err := ctx.Err(); err != nil {
			result = &models.TableResult{Entity: entity.Name, Table: entity.TableName(), Err: err}
		} else {
			result = ss.SynchronizeEntity(ctx, entity)
		}

		ss.Results = append(ss.Results, result)
		if result.Failed() {
			ss.FailedTables[result.Table] = true
			success = false
			ss.Logger.Errorf("Failed to synchronize %s: %v", result.Table, result.Err)
		}

		if ss.OnProgress != nil {
			ss.OnProgress(result)
		}
	}

	return success
}

// SynchronizeEntity builds the desired table metadata for one entity and
// applies the missing deltas
func (ss *SchemaSynchronizer) SynchronizeEntity(ctx context.Context, entity *models.EntityDescriptor) *models.TableResult {
	result := &models.TableResult{Entity: entity.Name, Table: entity.TableName(), DryRun: ss.Options.DryRun}

	meta, err := ss.Builder.Build(entity)
	if err != nil {
		result.Err = err
		return result
	}
	result.Table = meta.Table
	result.Fingerprint = meta.Fingerprint()

	ss.Logger.Infof("Synchronizing table: %s", meta.Table)
	result.Err = ss.synchronizeTable(ctx, entity, meta, result)
	return result
}

func (ss *SchemaSynchronizer) synchronizeTable(ctx context.Context, entity *models.EntityDescriptor, meta *models.TableMeta, result *models.TableResult) error {
	table := meta.Table

	exists, err := ss.DB.TableExists(ctx, table)
	if err != nil {
		return fmt.Errorf("check table %s: %w", table, err)
	}

	if !exists {
		stmt, err := ss.Generator.RenderCreateTable(meta)
		if err != nil {
			return err
		}
		if err := ss.execute(ctx, result, stmt); err != nil {
			return &DDLError{Table: table, Statement: stmt, Err: err}
		}
		result.Created = true
	} else if err := ss.addMissingColumns(ctx, meta, result); err != nil {
		return err
	}

	if err := ss.reportDrift(ctx, entity, meta, result); err != nil {
		return err
	}

	return ss.addUniques(ctx, meta, result)
}

func (ss *SchemaSynchronizer) addMissingColumns(ctx context.Context, meta *models.TableMeta, result *models.TableResult) error {
	var errs []error

	for _, col := range meta.Columns {
		exists, err := ss.DB.ColumnExists(ctx, meta.Table, col.Name)
		if err != nil {
			return fmt.Errorf("check column %s.%s: %w", meta.Table, col.Name, err)
		}
		if exists {
			continue
		}

		stmt := ss.Generator.AddColumn(meta.Table, col)
		if err := ss.execute(ctx, result, stmt); err != nil {
			ddlErr := &DDLError{Table: meta.Table, Column: col.Name, Statement: stmt, Err: err}
			if !ss.Options.ContinueOnError {
				return ddlErr
			}
			ss.Logger.Errorf("Failed to add column: %v", ddlErr)
			errs = append(errs, ddlErr)
			continue
		}
		result.AddedColumns = append(result.AddedColumns, col.Name)
	}

	return errors.Join(errs...)
}

// reportDrift warns about live columns that no field maps to. It never issues DDL.
func (ss *SchemaSynchronizer) reportDrift(ctx context.Context, entity *models.EntityDescriptor, meta *models.TableMeta, result *models.TableResult) error {
	columns, err := ss.DB.GetColumns(ctx, meta.Table)
	if err != nil {
		return fmt.Errorf("list columns of %s: %w", meta.Table, err)
	}

	for _, col := range columns {
		field := models.UnderlineToCamel(col.Name)
		if entity.HasField(field) || meta.HasColumn(col.Name) {
			continue
		}
		message := fmt.Sprintf("Column [%s --> %s] in table %s does not exist in entity %s",
			col.Name, field, meta.Table, entity.Name)
		result.Warnings = append(result.Warnings, message)
		ss.Sink.Warning(meta.Table, message)
		ss.Logger.Warning(message)
	}

	return nil
}

func (ss *SchemaSynchronizer) addUniques(ctx context.Context, meta *models.TableMeta, result *models.TableResult) error {
	for _, group := range meta.Uniques {
		stmt, name := ss.Generator.AddUnique(meta.Table, group)

		exists, err := ss.DB.IndexExists(ctx, meta.Table, name)
		if err != nil {
			return fmt.Errorf("check index %s.%s: %w", meta.Table, name, err)
		}
		if exists {
			result.SkippedUniques = append(result.SkippedUniques, name)
			continue
		}

		if err := ss.execute(ctx, result, stmt); err != nil {
			if !IsDuplicateConstraint(err) {
				return &DDLError{Table: meta.Table, Statement: stmt, Err: err}
			}
			if isDuplicateEntry(err) {
				ss.Logger.Warningf("Unique %s on %s not created, existing rows collide: %v", name, meta.Table, err)
			} else {
				ss.Logger.Debugf("Unique %s on %s already exists", name, meta.Table)
			}
			result.SkippedUniques = append(result.SkippedUniques, name)
			continue
		}
		result.AddedUniques = append(result.AddedUniques, name)
	}

	return nil
}

// execute runs one statement and reports it once it has been applied.
// In a dry run the statement is only reported as planned.
func (ss *SchemaSynchronizer) execute(ctx context.Context, result *models.TableResult, stmt string) error {
	if ss.Options.DryRun {
		result.Statements = append(result.Statements, stmt)
		ss.Sink.Planned(result.Table, stmt)
		ss.Logger.WithField("dry_run", true).Info(stmt)
		return nil
	}

	if err := ss.DB.ExecuteDDL(ctx, stmt); err != nil {
		return err
	}
	result.Statements = append(result.Statements, stmt)
	ss.Sink.Statement(result.Table, stmt)
	ss.Logger.Info(stmt)
	return nil
}
