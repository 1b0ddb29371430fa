package chatrelay

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	script := `-- header comment
CREATE TABLE a (id INT);

-- second
CREATE TABLE b (id INT);
`
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"}, splitStatements(script))
}

func TestApplyMigrations_SQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db, "test_"))
	require.NoError(t, ApplyMigrations(ctx, db, "test_"), "migrations must be re-runnable")

	_, err = db.ExecContext(ctx,
		`INSERT INTO test_message (id, channel_id, email, content) VALUES (?, ?, ?, ?)`,
		"m1", "c1", "ann@example.com", "hello")
	require.NoError(t, err)

	var channelType, messageType string
	err = db.QueryRowContext(ctx,
		`SELECT channel_type, message_type FROM test_message WHERE id = ?`, "m1").
		Scan(&channelType, &messageType)
	require.NoError(t, err)
	assert.Equal(t, "TEXT", channelType)
	assert.Equal(t, "MESSAGE", messageType)
}
