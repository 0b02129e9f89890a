// Package database provides SQLite connectivity for the message historian.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Additive schema migrations read from an fs.FS
//   - Connection lifecycle
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Historian.SQLite)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
