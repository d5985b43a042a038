package index

import (
	"strings"
)

// Store provides the index operations. It works over a *DB directly or over
// an open *sql.Tx, which is how ingest keeps a whole tape in one
// transaction.
type Store struct {
	q Querier
}

// NewStore creates a store over a database or transaction.
func NewStore(q Querier) *Store {
	return &Store{q: q}
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
