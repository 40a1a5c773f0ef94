package sheetdb

// Statement is one SQL statement plus its positional parameters, the
// unit of work the daemon gateway accepts.
type Statement struct {
	SQL    string
	Params []any
}

// Batch groups statements bound for one category database. Within a
// single ExecBatch call statements execute in array order, wrapped in
// an implicit transaction when there is more than one.
type Batch struct {
	DBName     string
	Statements []Statement
}

// LocalExecBatcher satisfies ExecBatcher by running statements
// directly against a writer Connection's *sql.DB, with the same
// single-statement-fast-path/implicit-transaction semantics the HTTP
// gateway uses. Administrative tools (migration, schema commands) use
// this to operate on a category database without going through a
// running daemon — the two are mutually exclusive against one
// database file, never concurrent.
type LocalExecBatcher struct {
	conn *Connection
}

// NewLocalExecBatcher wraps conn for direct, in-process execution.
func NewLocalExecBatcher(conn *Connection) *LocalExecBatcher {
	return &LocalExecBatcher{conn: conn}
}

// ExecBatch implements ExecBatcher.
func (b *LocalExecBatcher) ExecBatch(dbName string, stmts []Statement) (int64, error) {
	if len(stmts) == 0 {
		return 0, nil
	}
	if len(stmts) == 1 {
		res, err := b.conn.DB().Exec(stmts[0].SQL, stmts[0].Params...)
		if err != nil {
			return 0, Sqlite(err)
		}
		n, _ := res.RowsAffected()
		return n, nil
	}

	tx, err := b.conn.DB().Begin()
	if err != nil {
		return 0, Sqlite(err)
	}
	var total int64
	for _, st := range stmts {
		res, err := tx.Exec(st.SQL, st.Params...)
		if err != nil {
			_ = tx.Rollback()
			return 0, Sqlite(err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, Sqlite(err)
	}
	return total, nil
}
