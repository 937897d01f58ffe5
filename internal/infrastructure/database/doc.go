// Package database provides the SQLite store behind the session journal.
//
// This package manages:
//   - Opening the database file in WAL mode with a busy timeout
//   - Applying embedded schema migrations in version order
//   - Health checks
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to 0600
//
// Usage:
//
//	db, err := database.Open(cfg.Journal)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
