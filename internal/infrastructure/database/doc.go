// Package database owns the SQLite file backing the audit trail.
//
// Open configures the connection for this system's write pattern: a
// single long-lived process appending audit events while operators
// read history, so WAL mode, a busy timeout and a single-connection
// pool. Migrate applies the embedded schema files (migrations.Files)
// in filename order; the audit schema is append-only, so there is no
// rollback machinery.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Files); err != nil {
//	    return err
//	}
//
// All repository queries use parameterised statements and the file is
// chmod'd to 0600.
package database
