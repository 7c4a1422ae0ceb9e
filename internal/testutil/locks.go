package testutil

import (
	"slices"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// RowLocks records the order in which tables first have rows locked, either
// by SELECT ... FOR UPDATE or by an UPDATE.
type RowLocks struct {
	mu     sync.Mutex
	tables []string
}

// RecordRowLocks watches db for row locks on the given tables.
func RecordRowLocks(t *testing.T, db *gorm.DB, tables ...string) *RowLocks {
	t.Helper()

	rl := &RowLocks{}
	record := func(tx *gorm.DB) {
		if !slices.Contains(tables, tx.Statement.Table) {
			return
		}
		rl.mu.Lock()
		defer rl.mu.Unlock()
		if !slices.Contains(rl.tables, tx.Statement.Table) {
			rl.tables = append(rl.tables, tx.Statement.Table)
		}
	}

	suffix := uuid.NewString()
	queryName, updateName := "testutil:locks_query_"+suffix, "testutil:locks_update_"+suffix
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register(queryName, func(tx *gorm.DB) {
		if _, ok := tx.Statement.Clauses["FOR"]; ok {
			record(tx)
		}
	}))
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register(updateName, record))
	t.Cleanup(func() {
		_ = db.Callback().Query().Remove(queryName)
		_ = db.Callback().Update().Remove(updateName)
	})
	return rl
}

// Order returns each watched table once, in the order it was first locked.
func (r *RowLocks) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.tables)
}

func (r *RowLocks) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = nil
}
