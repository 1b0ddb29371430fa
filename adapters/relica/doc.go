// Package relica provides the SQL message store using Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// MessageRepository implements chatrelay.MessageRepository on MySQL, PostgreSQL or
// SQLite. Apply chatrelay.ApplyMigrations first to create the message table.
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/chatrelay"
//	    "github.com/coregx/chatrelay/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/chat?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := chatrelay.ApplyMigrations(ctx, db, "chat_"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// driverName should be "mysql", "postgres", or "sqlite3"
//	store := relica.NewMessageRepository(db, "mysql")
//
//	handlers, err := chatrelay.NewCommandHandlers(
//	    chatrelay.WithHandlersRepository(store),
//	    ...
//	)
package relica
