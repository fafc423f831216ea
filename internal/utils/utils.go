package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-schema-sync/internal/analyzer"
	"github.com/vitebski/mysql-schema-sync/internal/builder"
	"github.com/vitebski/mysql-schema-sync/internal/journal"
	"github.com/vitebski/mysql-schema-sync/pkg/models"
)

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	// Create a new logger
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("SCHEMA_SYNC_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	// Parse log level
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	// Configure logger
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// SetupGenLog opens the gen log, a separate logger that records executed DDL
// and drift warnings. The returned closer releases the file.
func SetupGenLog(path string) (*logrus.Logger, io.Closer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create gen log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open gen log: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: true,
		DisableQuote:  true,
	})
	logger.SetOutput(f)

	return logger, f, nil
}

// GenLogSink writes statements and drift warnings to the gen log
type GenLogSink struct {
	Logger *logrus.Logger
}

func (s *GenLogSink) Statement(table, stmt string) {
	s.Logger.WithField("table", table).Info(stmt)
}

func (s *GenLogSink) Planned(table, stmt string) {
	s.Logger.WithFields(logrus.Fields{"table": table, "dry_run": true}).Info(stmt)
}

func (s *GenLogSink) Warning(table, message string) {
	s.Logger.WithField("table", table).Warn(message)
}

// LoadEnvironmentVariables loads environment variables from .env file
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	// Check if a sample .env file exists but not the actual .env file
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
	}

	// Load environment variables from .env file if it exists
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warningf("Error loading %s file: %v", envFile, err)
		} else {
			logger.Infof("Loaded environment variables from %s", envFile)
		}
	} else {
		logger.Debugf("No %s file found, using existing environment variables", envFile)
	}

	// The password may legitimately be empty
	requiredVars := []string{"MYSQL_HOST", "MYSQL_USER", "MYSQL_DATABASE"}
	var missingVars []string

	for _, v := range requiredVars {
		if os.Getenv(v) == "" {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		logger.Debugf("Environment variables not set: %s", strings.Join(missingVars, ", "))
		return false
	}

	// Log all available MYSQL_* and SCHEMA_SYNC_* environment variables (for debugging)
	if logger.Level == logrus.DebugLevel {
		for _, env := range os.Environ() {
			if strings.HasPrefix(env, "MYSQL_") || strings.HasPrefix(env, "SCHEMA_SYNC_") {
				parts := strings.SplitN(env, "=", 2)
				if len(parts) == 2 {
					// Mask password
					if parts[0] == "MYSQL_PASSWORD" {
						logger.Debugf("%s=********", parts[0])
					} else {
						logger.Debugf("%s=%s", parts[0], parts[1])
					}
				}
			}
		}
	}

	return true
}

// ValidateConnectionParams validates database connection parameters
func ValidateConnectionParams(host, user, password, database, port string, logger *logrus.Logger) bool {
	if host == "" {
		logger.Error("Database host is required")
		return false
	}

	if user == "" {
		logger.Error("Database user is required")
		return false
	}

	if password == "" { // Empty password is allowed
		logger.Warning("Database password is empty")
	}

	if database == "" {
		logger.Error("Database name is required")
		return false
	}

	if _, err := strconv.Atoi(port); err != nil {
		logger.Errorf("Invalid port number: %s", port)
		return false
	}

	return true
}

// PrintSummary prints a summary of the synchronization run
func PrintSummary(w io.Writer, results []*models.TableResult, dryRun bool) {
	var created, altered, unchanged, warnings int
	var failed []*models.TableResult

	for _, r := range results {
		warnings += len(r.Warnings)
		switch {
		case r.Failed():
			failed = append(failed, r)
		case r.Created:
			created++
		case r.Changed():
			altered++
		default:
			unchanged++
		}
	}

	title := "SCHEMA SYNCHRONIZATION SUMMARY"
	if dryRun {
		title += " (DRY RUN)"
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Total tables processed: %d\n", len(results))
	fmt.Fprintf(w, "Created tables: %d\n", created)
	fmt.Fprintf(w, "Altered tables: %d\n", altered)
	fmt.Fprintf(w, "Unchanged tables: %d\n", unchanged)
	fmt.Fprintf(w, "Failed tables: %d\n", len(failed))
	fmt.Fprintf(w, "Drift warnings: %d\n", warnings)

	if len(failed) > 0 {
		fmt.Fprintln(w, "\nFailed tables:")
		for _, r := range failed {
			fmt.Fprintf(w, "  - %s: %v\n", r.Table, r.Err)
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
}

// PrintPlan prints the synchronization order and the resolved columns of
// every entity without contacting the database
func PrintPlan(w io.Writer, schemaAnalyzer *analyzer.SchemaAnalyzer, tableBuilder *builder.TableBuilder) {
	ordered, circular := schemaAnalyzer.GetSyncOrder()

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(w, "SCHEMA SYNCHRONIZATION PLAN")
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "\n1. BASIC STATISTICS")
	fmt.Fprintf(w, "   Total entities: %d\n", len(ordered))
	fmt.Fprintf(w, "   Entities in circular dependencies: %d\n", len(circular))

	if len(circular) > 0 {
		fmt.Fprintln(w, "\n2. CIRCULAR DEPENDENCIES")
		for _, cycle := range schemaAnalyzer.DirectCircularDeps {
			fmt.Fprintf(w, "   %s\n", strings.Join(cycle, " <-> "))
		}
	}

	if len(schemaAnalyzer.UnknownDeps) > 0 {
		fmt.Fprintln(w, "\n3. UNKNOWN DEPENDENCIES")
		var names []string
		for name := range schemaAnalyzer.UnknownDeps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "   %s -> %s\n", name, strings.Join(schemaAnalyzer.UnknownDeps[name], ", "))
		}
	}

	fmt.Fprintln(w, "\n4. SYNCHRONIZATION ORDER")
	for i, entity := range ordered {
		category := "Standalone"
		if circular[entity.Name] {
			category = "Circular"
		} else if len(entity.DependsOn) > 0 {
			category = "Dependent"
		}
		fmt.Fprintf(w, "   %3d. %s -> %s (%s)\n", i+1, entity.Name, entity.TableName(), category)

		meta, err := tableBuilder.Build(entity)
		if err != nil {
			fmt.Fprintf(w, "        ERROR: %v\n", err)
			continue
		}
		for _, col := range meta.Columns {
			fmt.Fprintf(w, "        %-24s %s\n", col.Name, col.Type)
		}
		for _, group := range meta.Uniques {
			fmt.Fprintf(w, "        unique (%s)\n", group)
		}
		fmt.Fprintf(w, "        fingerprint %s\n", meta.Fingerprint())
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

// PrintHistory prints journal entries, newest first
func PrintHistory(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No journal entries")
		return
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s  %-9s %-24s %s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.Table, e.Text)
		if e.Fingerprint != "" {
			line += "  [" + e.Fingerprint + "]"
		}
		fmt.Fprintln(w, line)
	}
}
