package introspect

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ddl := []string{
		`CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			name TEXT,
			status TEXT DEFAULT 'active'
		)`,
		`CREATE TABLE posts (
			id INTEGER PRIMARY KEY,
			user_id INTEGER REFERENCES users(id) ON DELETE CASCADE,
			title VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE logs (message TEXT)`,
		`CREATE TABLE tags (name TEXT PRIMARY KEY)`,
		`CREATE TABLE memberships (
			user_id INTEGER,
			team_id INTEGER,
			PRIMARY KEY (user_id, team_id)
		)`,
		`CREATE INDEX idx_posts_title ON posts(title)`,
		`CREATE VIEW recent_posts AS SELECT id, title FROM posts ORDER BY id DESC LIMIT 10`,
	}
	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func TestSQLitePing(t *testing.T) {
	intro := NewSQLite(newSQLiteDB(t))
	assert.NoError(t, intro.Ping(context.Background()))
	assert.Equal(t, "sqlite", intro.Dialect())
}

func TestSQLiteListTables(t *testing.T) {
	intro := NewSQLite(newSQLiteDB(t))

	tables, err := intro.ListTables(context.Background())
	require.NoError(t, err)

	var names []string
	for _, ref := range tables {
		names = append(names, ref.Name)
	}
	assert.Equal(t, []string{"logs", "memberships", "posts", "tags", "users"}, names)
}

func TestSQLiteListColumns(t *testing.T) {
	intro := NewSQLite(newSQLiteDB(t))

	columns, err := intro.ListColumns(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, columns, 4)

	id := columns[0]
	assert.Equal(t, "id", id.Name)
	assert.True(t, id.IsPrimaryKey)
	assert.False(t, id.Nullable)

	email := columns[1]
	assert.Equal(t, "email", email.Name)
	assert.False(t, email.Nullable)

	name := columns[2]
	assert.True(t, name.Nullable)
	assert.Nil(t, name.Default)

	status := columns[3]
	require.NotNil(t, status.Default)
	assert.Contains(t, *status.Default, "active")
}

func TestSQLiteColumnTypeParams(t *testing.T) {
	intro := NewSQLite(newSQLiteDB(t))

	columns, err := intro.ListColumns(context.Background(), "posts")
	require.NoError(t, err)

	title := columns[2]
	assert.Equal(t, "VARCHAR(255)", title.Type)
	require.NotNil(t, title.MaxLength)
	assert.Equal(t, 255, *title.MaxLength)
}

func TestSQLiteAutoIncrementTiers(t *testing.T) {
	intro := NewSQLite(newSQLiteDB(t))
	ctx := context.Background()

	t.Run("declared AUTOINCREMENT", func(t *testing.T) {
		columns, err := intro.ListColumns(ctx, "users")
		require.NoError(t, err)
		assert.True(t, columns[0].IsAutoIncrement)
	})

	t.Run("INTEGER PRIMARY KEY rowid alias", func(t *testing.T) {
		columns, err := intro.ListColumns(ctx, "posts")
		require.NoError(t, err)
		assert.True(t, columns[0].IsAutoIncrement)
	})

	t.Run("no declared key uses implicit rowid", func(t *testing.T) {
		columns, err := intro.ListColumns(ctx, "logs")
		require.NoError(t, err)
		require.Len(t, columns, 2, "synthetic rowid column appended")

		rowid := columns[1]
		assert.Equal(t, "rowid", rowid.Name)
		assert.True(t, rowid.IsPrimaryKey)
		assert.True(t, rowid.IsAutoIncrement)
	})

	t.Run("non-integer key does not auto-increment", func(t *testing.T) {
		columns, err := intro.ListColumns(ctx, "tags")
		require.NoError(t, err)
		require.Len(t, columns, 1)
		assert.True(t, columns[0].IsPrimaryKey)
		assert.False(t, columns[0].IsAutoIncrement)
	})

	t.Run("composite key does not auto-increment", func(t *testing.T) {
		columns, err := intro.ListColumns(ctx, "memberships")
		require.NoError(t, err)
		require.Len(t, columns, 2, "no synthetic rowid for declared keys")
		for _, col := range columns {
			assert.True(t, col.IsPrimaryKey)
			assert.False(t, col.IsAutoIncrement)
		}
	})
}

func TestSQLiteListIndexes(t *testing.T) {
	intro := NewSQLite(newSQLiteDB(t))
	ctx := context.Background()

	indexes, err := intro.ListIndexes(ctx, "posts")
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	assert.Equal(t, "idx_posts_title", indexes[0].Name)
	assert.Equal(t, []string{"title"}, indexes[0].Columns)
	assert.False(t, indexes[0].Unique)

	// The UNIQUE column constraint on users.email is backed by an
	// auto-created index.
	indexes, err = intro.ListIndexes(ctx, "users")
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	assert.Equal(t, []string{"email"}, indexes[0].Columns)
	assert.True(t, indexes[0].Unique)

	// The index implementing a declared primary key is not reported.
	indexes, err = intro.ListIndexes(ctx, "memberships")
	require.NoError(t, err)
	assert.Empty(t, indexes)
}

func TestSQLiteListForeignKeys(t *testing.T) {
	intro := NewSQLite(newSQLiteDB(t))

	fks, err := intro.ListForeignKeys(context.Background(), "posts")
	require.NoError(t, err)
	require.Len(t, fks, 1)

	fk := fks[0]
	assert.Equal(t, "fk_posts_user_id", fk.Name)
	assert.Equal(t, "user_id", fk.Column)
	assert.Equal(t, "users", fk.ReferencedTable)
	assert.Equal(t, "id", fk.ReferencedColumn)
	assert.Equal(t, "CASCADE", fk.OnDelete)

	fks, err = intro.ListForeignKeys(context.Background(), "users")
	require.NoError(t, err)
	assert.Empty(t, fks)
}

func TestSQLiteListViews(t *testing.T) {
	intro := NewSQLite(newSQLiteDB(t))

	views, err := intro.ListViews(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)

	view := views[0]
	assert.Equal(t, "recent_posts", view.Name)
	assert.Contains(t, view.Definition, "CREATE VIEW")

	var names []string
	for _, col := range view.Columns {
		names = append(names, col.Name)
	}
	assert.Equal(t, []string{"id", "title"}, names, "views carry no rowid")
}

func TestIntrospectorFactory(t *testing.T) {
	db := newSQLiteDB(t)

	intro, err := New("sqlite3", db)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", intro.Dialect())

	intro, err = New("postgres", db)
	require.NoError(t, err)
	assert.Equal(t, "postgres", intro.Dialect())

	_, err = New("oracle", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dialect")
}
