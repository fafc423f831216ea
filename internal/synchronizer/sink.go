package synchronizer

// AuditSink receives every executed DDL statement and every drift warning.
// Planned receives the statements of a dry run instead of Statement.
type AuditSink interface {
	Statement(table, stmt string)
	Planned(table, stmt string)
	Warning(table, message string)
}

// MultiSink fans out to several sinks
type MultiSink []AuditSink

func (m MultiSink) Statement(table, stmt string) {
	for _, s := range m {
		if s != nil {
			s.Statement(table, stmt)
		}
	}
}

func (m MultiSink) Planned(table, stmt string) {
	for _, s := range m {
		if s != nil {
			s.Planned(table, stmt)
		}
	}
}

func (m MultiSink) Warning(table, message string) {
	for _, s := range m {
		if s != nil {
			s.Warning(table, message)
		}
	}
}

type discardSink struct{}

func (discardSink) Statement(string, string) {}
func (discardSink) Planned(string, string)   {}
func (discardSink) Warning(string, string)   {}
