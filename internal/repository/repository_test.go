package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflectdb/reflectdb/internal/schema"
)

func testSchema() *schema.SchemaInfo {
	return &schema.SchemaInfo{
		Tables: []schema.TableInfo{
			{
				Name: "users",
				Columns: []schema.ColumnInfo{
					{Name: "id", Type: "INTEGER", IsPrimaryKey: true, IsAutoIncrement: true},
					{Name: "email", Type: "TEXT"},
					{Name: "name", Type: "TEXT", Nullable: true},
				},
				PrimaryKey: []string{"id"},
				Indexes: []schema.IndexInfo{
					{Name: "idx_users_email", Columns: []string{"email"}, Unique: true},
				},
			},
			{
				Name: "memberships",
				Columns: []schema.ColumnInfo{
					{Name: "user_id", Type: "INTEGER"},
					{Name: "team_id", Type: "INTEGER"},
					{Name: "role", Type: "TEXT", Nullable: true},
				},
				PrimaryKey: []string{"user_id", "team_id"},
			},
		},
	}
}

func newMockRepo(t *testing.T, table, dialect string) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	info := testSchema()
	tableInfo, ok := info.Table(table)
	require.True(t, ok)

	repo := New(tableInfo, info, NewSQLExecutor(db, nil), DialectFor(dialect), nil)
	return repo, mock
}

func TestFindByID(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectQuery(`SELECT * FROM "users" WHERE "id" = ?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow(int64(1), "a@b.c", "Ada"))

	user, err := repo.FindByID(context.Background(), int64(1))
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", user["email"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectQuery(`SELECT * FROM "users" WHERE "id" = ?`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}))

	_, err := repo.FindByID(context.Background(), int64(99))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFindByIDCompositeKey(t *testing.T) {
	repo, mock := newMockRepo(t, "memberships", "sqlite")

	mock.ExpectQuery(`SELECT * FROM "memberships" WHERE "user_id" = ? AND "team_id" = ?`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "team_id", "role"}).
			AddRow(int64(1), int64(2), "admin"))

	row, err := repo.FindByID(context.Background(), int64(1), int64(2))
	require.NoError(t, err)
	assert.Equal(t, "admin", row["role"])
}

func TestFindByIDWrongValueCount(t *testing.T) {
	repo, _ := newMockRepo(t, "memberships", "sqlite")

	_, err := repo.FindByID(context.Background(), int64(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "expected 2 primary key value(s), got 1")
}

func TestFindAll(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectQuery(`SELECT * FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow(int64(1), "a@b.c", "Ada").
			AddRow(int64(2), "b@c.d", "Bob"))

	users, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestFindBy(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectQuery(`SELECT * FROM "users" WHERE "email" = ? LIMIT 1`).
		WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow(int64(1), "a@b.c", "Ada"))

	user, err := repo.FindBy(context.Background(), "email", "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user["id"])
}

func TestFindByUnknownColumn(t *testing.T) {
	repo, _ := newMockRepo(t, "users", "sqlite")

	_, err := repo.FindBy(context.Background(), "nickname", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))
	// Lookup misses enumerate the valid alternatives.
	assert.Contains(t, err.Error(), "email")
	assert.Contains(t, err.Error(), "name")
}

func TestFindManyBy(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectQuery(`SELECT * FROM "users" WHERE "name" = ?`).
		WithArgs("Ada").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow(int64(1), "a@b.c", "Ada").
			AddRow(int64(3), "c@d.e", "Ada"))

	users, err := repo.FindManyBy(context.Background(), "name", "Ada")
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestGeneratedFinders(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	// One FindBy/FindManyBy pair per non-key column.
	assert.Equal(t, []string{"FindByEmail", "FindByName", "FindManyByEmail", "FindManyByName"},
		repo.FinderNames())

	info, ok := repo.Finder("FindByEmail")
	require.True(t, ok)
	assert.True(t, info.Unique, "email carries a unique index")

	info, ok = repo.Finder("FindByName")
	require.True(t, ok)
	assert.False(t, info.Unique)

	mock.ExpectQuery(`SELECT * FROM "users" WHERE "email" = ? LIMIT 1`).
		WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow(int64(1), "a@b.c", "Ada"))

	result, err := repo.CallFinder(context.Background(), "FindByEmail", "a@b.c")
	require.NoError(t, err)
	entity, ok := result.(Entity)
	require.True(t, ok)
	assert.Equal(t, "a@b.c", entity["email"])

	_, err = repo.CallFinder(context.Background(), "FindByNickname", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFinderNotFound))
	assert.Contains(t, err.Error(), "FindByEmail")
}

func TestCreateSQLite(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectExec(`INSERT INTO "users" ("email", "name") VALUES (?, ?)`).
		WithArgs("a@b.c", "Ada").
		WillReturnResult(sqlmock.NewResult(7, 1))

	created, err := repo.Create(context.Background(), Entity{"email": "a@b.c", "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), created["id"], "generated key merged into the result")
	assert.Equal(t, "a@b.c", created["email"])
}

func TestCreatePostgresReturning(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "postgres")

	mock.ExpectQuery(`INSERT INTO "users" ("email", "name") VALUES ($1, $2) RETURNING *`).
		WithArgs("a@b.c", "Ada").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow(int64(7), "a@b.c", "Ada"))

	created, err := repo.Create(context.Background(), Entity{"email": "a@b.c", "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), created["id"])
}

func TestCreateMissingRequiredColumn(t *testing.T) {
	repo, _ := newMockRepo(t, "users", "sqlite")

	// email is non-nullable with no default; id is auto-incrementing and
	// name is nullable, so neither is required.
	_, err := repo.Create(context.Background(), Entity{"name": "Ada"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Errors, 1)
	assert.Equal(t, "email", ve.Errors[0].Column)
}

func TestCreateUnknownColumn(t *testing.T) {
	repo, _ := newMockRepo(t, "users", "sqlite")

	_, err := repo.Create(context.Background(), Entity{"email": "a@b.c", "nickname": "ada"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))
}

func TestUpdate(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectExec(`UPDATE "users" SET "email" = ?, "name" = ? WHERE "id" = ?`).
		WithArgs("new@b.c", "Ada", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.Update(context.Background(), Entity{"id": int64(1), "email": "new@b.c", "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "new@b.c", updated["email"])
}

func TestUpdateMissingRecord(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectExec(`UPDATE "users" SET "email" = ? WHERE "id" = ?`).
		WithArgs("x@y.z", int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Update(context.Background(), Entity{"id": int64(99), "email": "x@y.z"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateWithoutPrimaryKey(t *testing.T) {
	repo, _ := newMockRepo(t, "users", "sqlite")

	_, err := repo.Update(context.Background(), Entity{"email": "x@y.z"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestDelete(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = ?`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.Delete(context.Background(), int64(1))
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestDeleteMissingRecordIsNotAnError(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = ?`).
		WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), int64(99))
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCount(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectQuery(`SELECT COUNT(*) AS n FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(42)))

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestExists(t *testing.T) {
	repo, mock := newMockRepo(t, "users", "sqlite")

	mock.ExpectQuery(`SELECT EXISTS(SELECT 1 FROM "users" WHERE "id" = ?) AS present`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"present"}).AddRow(int64(1)))

	present, err := repo.Exists(context.Background(), int64(1))
	require.NoError(t, err)
	assert.True(t, present)
}

func TestFactoryCachesRepositories(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	factory := NewFactory(testSchema(), NewSQLExecutor(db, nil), DialectFor("sqlite"), nil)

	first, err := factory.Get("users")
	require.NoError(t, err)
	second, err := factory.Get("users")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, factory.Size())
}

func TestFactoryUnknownTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	factory := NewFactory(testSchema(), NewSQLExecutor(db, nil), DialectFor("sqlite"), nil)

	_, err = factory.Get("ghosts")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTableNotFound))
	assert.Contains(t, err.Error(), "memberships, users")
}

func TestFactoryReset(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	factory := NewFactory(testSchema(), NewSQLExecutor(db, nil), DialectFor("sqlite"), nil)
	_, err = factory.Get("users")
	require.NoError(t, err)

	factory.Reset(&schema.SchemaInfo{})
	assert.Equal(t, 0, factory.Size())
	_, err = factory.Get("users")
	assert.True(t, errors.Is(err, ErrTableNotFound))
}

func TestConvertDBError(t *testing.T) {
	assert.NoError(t, ConvertDBError(nil))

	plain := errors.New("boom")
	assert.Equal(t, plain, ConvertDBError(plain))
}

func TestDialect(t *testing.T) {
	pg := DialectFor("postgres")
	assert.True(t, pg.SupportsReturning)
	assert.Equal(t, "$1", pg.Placeholder(1))
	assert.Equal(t, "$2, $3", pg.Placeholders(2, 2))

	lite := DialectFor("sqlite")
	assert.False(t, lite.SupportsReturning)
	assert.Equal(t, "?", lite.Placeholder(5))
	assert.Equal(t, "?, ?, ?", lite.Placeholders(1, 3))
}
