package synchronizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers treated as "constraint already present"
const (
	erDupKeyName = 1061 // ER_DUP_KEYNAME
	erDupEntry   = 1062 // ER_DUP_ENTRY
)

// ErrDDLExecution is the sentinel for failed DDL statements
var ErrDDLExecution = errors.New("ddl execution failed")

// DDLError describes a failed DDL statement with its table and column context
type DDLError struct {
	Table     string
	Column    string
	Statement string
	Err       error
}

func (e *DDLError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("table %s, column %s: %q: %v", e.Table, e.Column, e.Statement, e.Err)
	}
	return fmt.Sprintf("table %s: %q: %v", e.Table, e.Statement, e.Err)
}

func (e *DDLError) Unwrap() []error {
	return []error{ErrDDLExecution, e.Err}
}

// IsDuplicateConstraint reports whether a failed ADD UNIQUE means the
// constraint (or a conflicting key) already exists. Driver errors are
// classified by server error number; other errors fall back to the
// "Duplicate" message prefix.
func IsDuplicateConstraint(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == erDupKeyName || myErr.Number == erDupEntry
	}
	return strings.HasPrefix(err.Error(), "Duplicate")
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == erDupEntry
}
