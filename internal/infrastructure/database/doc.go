// Package database provides the SQLite connection and schema migrations for
// the controls service.
//
// Control records (kind, name and the serialized entity model) live in a
// single STRICT table created by the migrations package. The connection is
// opened in WAL mode with a busy timeout and a single-connection pool.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT, and
// every .up.sql has a matching .down.sql.
package database
