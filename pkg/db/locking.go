package db

import "gorm.io/gorm"

// LockRow appends a FOR UPDATE clause on dialects that support row locks.
// SQLite serializes writers at the connection level, so the clause is
// omitted there rather than producing a syntax error.
func LockRow(tx *gorm.DB, query string) string {
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return query + " FOR UPDATE"
	default:
		return query
	}
}
