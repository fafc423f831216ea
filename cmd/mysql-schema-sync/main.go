package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gosuri/uiprogress"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vitebski/mysql-schema-sync/internal/analyzer"
	"github.com/vitebski/mysql-schema-sync/internal/builder"
	"github.com/vitebski/mysql-schema-sync/internal/config"
	"github.com/vitebski/mysql-schema-sync/internal/connector"
	"github.com/vitebski/mysql-schema-sync/internal/descriptor"
	"github.com/vitebski/mysql-schema-sync/internal/generator"
	"github.com/vitebski/mysql-schema-sync/internal/journal"
	"github.com/vitebski/mysql-schema-sync/internal/resolver"
	"github.com/vitebski/mysql-schema-sync/internal/synchronizer"
	"github.com/vitebski/mysql-schema-sync/internal/utils"
	"github.com/vitebski/mysql-schema-sync/pkg/models"
)

// errSyncFailed signals a run where at least one table failed; details are
// already in the log and the summary
var errSyncFailed = errors.New("synchronization failed")

type app struct {
	v            *viper.Viper
	cfgFile      string
	envFile      string
	progress     bool
	historyLimit int

	cfg    *config.Config
	logger *logrus.Logger
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errSyncFailed) {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:   "mysql-schema-sync",
		Short: "Keep a MySQL schema in sync with entity descriptors",
		Long: `MySQL Schema Sync

Derives table definitions from entity descriptors and brings a live MySQL
schema up to date: missing tables are created, missing columns and unique
constraints are added, and columns no entity maps to are reported.
Nothing is ever dropped or modified.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "Config file (default: ./schema-sync.yaml)")
	flags.StringVarP(&a.envFile, "env-file", "e", ".env", "Path to .env file")
	flags.StringP("host", "H", "", "MySQL host (default: localhost)")
	flags.StringP("user", "u", "", "MySQL user (default: root)")
	flags.StringP("password", "p", "", "MySQL password")
	flags.StringP("database", "d", "", "MySQL database name")
	flags.StringP("port", "P", "", "MySQL port (default: 3306)")
	flags.StringP("entities", "f", "", "Entity descriptor file (default: entities.yaml)")
	flags.String("mode", "", "Type resolver mode (strict, map-all)")
	flags.Bool("mapping-all", true, "Emit NOT NULL and DEFAULT fragments in map-all mode")
	flags.Bool("generated-keys", false, "Treat primary keys without a strategy as auto increment")
	flags.Bool("dry-run", false, "Print the DDL that would run without executing it")
	flags.Bool("continue-on-error", false, "Keep adding columns after a failed ADD COLUMN")
	flags.Duration("timeout", 0, "Deadline for the whole run (0 = none)")
	flags.String("journal", "", "Record DDL to this SQLite journal file")
	flags.String("gen-log", "", "Write executed DDL and drift warnings to this file")
	flags.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")

	if err := config.BindFlags(a.v, flags); err != nil {
		panic(err)
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize every entity in the descriptor file (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd.Context())
		},
	}
	syncCmd.Flags().BoolVar(&a.progress, "progress", false, "Show a progress bar")
	rootCmd.Flags().BoolVar(&a.progress, "progress", false, "Show a progress bar")

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the synchronization order and resolved column types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPlan()
		},
	}

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Print the CREATE TABLE statement of every entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRender()
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print the latest journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistory()
		},
	}
	historyCmd.Flags().IntVarP(&a.historyLimit, "limit", "n", 50, "Number of entries to show")

	rootCmd.AddCommand(syncCmd, planCmd, renderCmd, historyCmd)
	return rootCmd
}

func (a *app) setup() error {
	a.logger = utils.SetupLogging(a.v.GetString("log.level"))

	// .env must be loaded before the config is read so MYSQL_* values apply
	utils.LoadEnvironmentVariables(a.envFile, a.logger)

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Infof("Using config file: %s", used)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		a.logger.SetLevel(level)
	}

	a.cfg = cfg
	return nil
}

func (a *app) newTableBuilder() (*builder.TableBuilder, error) {
	mode, err := resolver.ParseMode(a.cfg.Sync.Mode)
	if err != nil {
		return nil, err
	}
	r := resolver.NewTypeResolver(resolver.Options{
		Mode:             mode,
		MappingAll:       a.cfg.Sync.MappingAll,
		UseGeneratedKeys: a.cfg.Sync.UseGeneratedKeys,
	})
	a.logger.Debugf("Type resolver mode: %s", mode)
	return builder.NewTableBuilder(r, a.logger), nil
}

func (a *app) newDDLGenerator() *generator.DDLGenerator {
	g := generator.NewDDLGenerator()
	if a.cfg.Sync.Engine != "" {
		g.Engine = a.cfg.Sync.Engine
	}
	if a.cfg.Sync.Charset != "" {
		g.Charset = a.cfg.Sync.Charset
	}
	return g
}

// loadEntities reads the descriptor file and analyzes entity dependencies
func (a *app) loadEntities() (*analyzer.SchemaAnalyzer, error) {
	entities, err := descriptor.LoadFile(a.cfg.Sync.Entities)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("no entities found in %s", a.cfg.Sync.Entities)
	}
	a.logger.Infof("Loaded %d entities from %s", len(entities), a.cfg.Sync.Entities)

	schemaAnalyzer := analyzer.NewSchemaAnalyzer(entities, a.logger)
	if err := schemaAnalyzer.AnalyzeSchema(); err != nil {
		return nil, fmt.Errorf("failed to analyze entities: %w", err)
	}
	return schemaAnalyzer, nil
}

func (a *app) runSync(ctx context.Context) error {
	if a.cfg.Sync.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Sync.Timeout)
		defer cancel()
	}

	schemaAnalyzer, err := a.loadEntities()
	if err != nil {
		return err
	}
	ordered, _ := schemaAnalyzer.GetSyncOrder()

	tableBuilder, err := a.newTableBuilder()
	if err != nil {
		return err
	}

	m := a.cfg.MySQL
	if !utils.ValidateConnectionParams(m.Host, m.User, m.Password, m.Database, m.Port, a.logger) {
		return fmt.Errorf("invalid connection parameters")
	}

	db := connector.NewDatabaseConnector(m.Host, m.User, m.Password, m.Database, m.Port, a.logger)
	if err := db.Connect(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Disconnect()

	sinks := synchronizer.MultiSink{}

	if a.cfg.Log.GenLog != "" {
		genLogger, closer, err := utils.SetupGenLog(a.cfg.Log.GenLog)
		if err != nil {
			return err
		}
		defer closer.Close()
		sinks = append(sinks, &utils.GenLogSink{Logger: genLogger})
	}

	var j *journal.Journal
	if a.cfg.Journal.Enabled {
		j, err = journal.Open(a.cfg.Journal.Path, a.logger)
		if err != nil {
			return err
		}
		defer j.Close()
		runID, err := j.BeginRun(db.DatabaseName())
		if err != nil {
			return err
		}
		a.logger.Debugf("Journal run %s", runID)
		sinks = append(sinks, j)
	}

	ss := synchronizer.NewSchemaSynchronizer(db, tableBuilder, a.newDDLGenerator(), sinks, synchronizer.Options{
		DryRun:          a.cfg.Sync.DryRun,
		ContinueOnError: a.cfg.Sync.ContinueOnError,
	}, a.logger)

	var bar *uiprogress.Bar
	if a.progress {
		uiprogress.Start()
		bar = uiprogress.AddBar(len(ordered)).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(b *uiprogress.Bar) string {
			return "Synchronizing: "
		})
	}

	ss.OnProgress = func(result *models.TableResult) {
		if j != nil {
			if err := j.RecordResult(result); err != nil {
				a.logger.Errorf("Error writing journal: %v", err)
			}
		}
		if bar != nil {
			bar.Incr()
		}
	}

	if a.cfg.Sync.DryRun {
		a.logger.Info("Dry-run mode active: no DDL will be executed")
	}
	a.logger.Info("Starting schema synchronization...")
	success := ss.SynchronizeSchema(ctx, ordered)

	if bar != nil {
		uiprogress.Stop()
	}

	utils.PrintSummary(os.Stdout, ss.Results, a.cfg.Sync.DryRun)

	if !success {
		return errSyncFailed
	}
	return nil
}

func (a *app) runPlan() error {
	schemaAnalyzer, err := a.loadEntities()
	if err != nil {
		return err
	}
	tableBuilder, err := a.newTableBuilder()
	if err != nil {
		return err
	}

	utils.PrintPlan(os.Stdout, schemaAnalyzer, tableBuilder)
	return nil
}

func (a *app) runRender() error {
	schemaAnalyzer, err := a.loadEntities()
	if err != nil {
		return err
	}
	tableBuilder, err := a.newTableBuilder()
	if err != nil {
		return err
	}
	ddlGenerator := a.newDDLGenerator()

	ordered, _ := schemaAnalyzer.GetSyncOrder()
	failed := 0
	for _, entity := range ordered {
		meta, err := tableBuilder.Build(entity)
		if err != nil {
			a.logger.Errorf("Failed to build %s: %v", entity.Name, err)
			failed++
			continue
		}
		stmt, err := ddlGenerator.RenderCreateTable(meta)
		if err != nil {
			a.logger.Errorf("Failed to render %s: %v", meta.Table, err)
			failed++
			continue
		}
		fmt.Println(stmt)
		fmt.Println()
	}

	if failed > 0 {
		return fmt.Errorf("%d entities could not be rendered", failed)
	}
	return nil
}

func (a *app) runHistory() error {
	path := a.cfg.Journal.Path
	if path == "" {
		path = config.DefaultJournalPath
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("journal not found: %s", path)
	}

	j, err := journal.Open(path, a.logger)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.History(a.historyLimit)
	if err != nil {
		return err
	}

	utils.PrintHistory(os.Stdout, entries)
	return nil
}
