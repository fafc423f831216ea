package connector

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-schema-sync/pkg/models"
)

// DatabaseConnector handles the database connection, catalog probes and DDL execution
type DatabaseConnector struct {
	Host     string
	User     string
	Password string
	Database string
	Port     string
	DB       *sql.DB
	Logger   *logrus.Logger
}

// NewDatabaseConnector creates a new database connector
func NewDatabaseConnector(host, user, password, database, port string, logger *logrus.Logger) *DatabaseConnector {
	if host == "" {
		host = getEnvOrDefault("MYSQL_HOST", "localhost")
	}
	if user == "" {
		user = getEnvOrDefault("MYSQL_USER", "root")
	}
	if password == "" {
		password = getEnvOrDefault("MYSQL_PASSWORD", "")
	}
	if database == "" {
		database = getEnvOrDefault("MYSQL_DATABASE", "")
	}
	if port == "" {
		port = getEnvOrDefault("MYSQL_PORT", "3306")
	}

	return &DatabaseConnector{
		Host:     host,
		User:     user,
		Password: password,
		Database: database,
		Port:     port,
		Logger:   logger,
	}
}

// DSN returns the driver data source name for the connector settings
func (dc *DatabaseConnector) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = dc.User
	cfg.Passwd = dc.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(dc.Host, dc.Port)
	cfg.DBName = dc.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// Connect establishes a connection to the MySQL database
func (dc *DatabaseConnector) Connect() error {
	if dc.Database == "" {
		return fmt.Errorf("database name must be provided either as an argument or as MYSQL_DATABASE environment variable")
	}

	db, err := sql.Open("mysql", dc.DSN())
	if err != nil {
		dc.Logger.Errorf("Error connecting to MySQL database: %v", err)
		return err
	}

	// Test the connection
	err = db.Ping()
	if err != nil {
		dc.Logger.Errorf("Error pinging MySQL database: %v", err)
		db.Close()
		return err
	}

	dc.DB = db
	dc.Logger.Infof("Connected to MySQL database: %s", dc.Database)
	return nil
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		err := dc.DB.Close()
		if err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Info("MySQL connection closed")
		}
		dc.DB = nil
	}
}

// DatabaseName returns the active schema name
func (dc *DatabaseConnector) DatabaseName() string {
	return dc.Database
}

// TableExists reports whether the table exists in the active schema
func (dc *DatabaseConnector) TableExists(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = ?
		AND table_name = ?
	`
	return dc.exists(ctx, query, dc.Database, table)
}

// ColumnExists reports whether the table has the column
func (dc *DatabaseConnector) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM information_schema.columns
		WHERE table_schema = ?
		AND table_name = ?
		AND column_name = ?
	`
	return dc.exists(ctx, query, dc.Database, table, column)
}

// IndexExists reports whether the table has an index with the given name
func (dc *DatabaseConnector) IndexExists(ctx context.Context, table, index string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM information_schema.statistics
		WHERE table_schema = ?
		AND table_name = ?
		AND index_name = ?
	`
	return dc.exists(ctx, query, dc.Database, table, index)
}

func (dc *DatabaseConnector) exists(ctx context.Context, query string, params ...interface{}) (bool, error) {
	if err := dc.ensureConnected(); err != nil {
		return false, err
	}

	var count int64
	if err := dc.DB.QueryRowContext(ctx, query, params...).Scan(&count); err != nil {
		dc.Logger.Errorf("Error executing probe: %v", err)
		return false, err
	}
	return count > 0, nil
}

// GetColumns returns the live columns of a table in ordinal order
func (dc *DatabaseConnector) GetColumns(ctx context.Context, table string) ([]models.Column, error) {
	query := `
		SELECT
			column_name AS column_name,
			data_type AS data_type,
			column_type AS column_type,
			is_nullable AS is_nullable,
			column_key AS column_key,
			extra AS extra
		FROM information_schema.columns
		WHERE table_schema = ?
		AND table_name = ?
		ORDER BY ordinal_position
	`
	rows, err := dc.ExecuteQuery(ctx, query, dc.Database, table)
	if err != nil {
		return nil, err
	}

	columns := make([]models.Column, 0, len(rows))
	for _, row := range rows {
		// MySQL 8 labels information_schema columns in upper case
		row = lowerKeys(row)
		columns = append(columns, models.Column{
			Name:       asString(row["column_name"]),
			DataType:   asString(row["data_type"]),
			ColumnType: asString(row["column_type"]),
			IsNullable: asString(row["is_nullable"]) == "YES",
			ColumnKey:  asString(row["column_key"]),
			Extra:      asString(row["extra"]),
		})
	}
	return columns, nil
}

// ExecuteDDL executes a single DDL statement
func (dc *DatabaseConnector) ExecuteDDL(ctx context.Context, stmt string) error {
	_, err := dc.ExecuteStatement(ctx, stmt)
	return err
}

// ExecuteQuery executes a SQL query and returns the results
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	if err := dc.ensureConnected(); err != nil {
		return nil, err
	}

	rows, err := dc.DB.QueryContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		dc.Logger.Errorf("Error getting columns: %v", err)
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			dc.Logger.Errorf("Error scanning row: %v", err)
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			// Convert []byte to string for text fields
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, err
	}

	return results, nil
}

// ExecuteStatement executes a SQL statement and returns the number of affected rows
func (dc *DatabaseConnector) ExecuteStatement(ctx context.Context, query string, params ...interface{}) (int64, error) {
	if err := dc.ensureConnected(); err != nil {
		return 0, err
	}

	result, err := dc.DB.ExecContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Debugf("Error executing statement: %v", err)
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		dc.Logger.Errorf("Error getting affected rows: %v", err)
		return 0, err
	}

	return affected, nil
}

func (dc *DatabaseConnector) ensureConnected() error {
	if dc.DB == nil {
		return dc.Connect()
	}
	return nil
}

func lowerKeys(row map[string]interface{}) map[string]interface{} {
	lowered := make(map[string]interface{}, len(row))
	for k, v := range row {
		lowered[strings.ToLower(k)] = v
	}
	return lowered
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

