// Package migration applies versioned SQL schema changes to a SQLite database.
//
// Migration files are read from an fs.FS (normally an embed.FS compiled into
// the binary) and must be named {version}_{description}.sql, for example
// "001_calendar_schema.sql". Each file runs inside its own transaction and is
// recorded in the schema_migrations table so it is applied only once.
//
// Example usage:
//
//	manager := migration.NewMigrationManager(
//		migration.NewFileScanner(), migration.NewSQLiteExecutor(db, logger),
//		migrations.Files, ".", logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
