package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/yourusername/account-portal/internal/accounts/migrations"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"

	pgUniqueViolation = "23505"
)

const accountColumns = `id, username, email, password_hash, is_active, date_joined, last_login`

// OpenDB はデータベースへ接続し、マイグレーションを適用します。
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := Migrate(ctx, db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return db, nil
}

// Migrate は埋め込み済みのマイグレーションを実行します。
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(driver); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// SQLRepository は database/sql 経由で PostgreSQL / SQLite にアカウントを保存します。
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// NewSQLRepository は SQLRepository を作成します。
func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{db: db, driver: driver}
}

// rebind は $N 形式のプレースホルダーを SQLite の ?N 形式へ変換します。
func (r *SQLRepository) rebind(query string) string {
	if r.driver == DriverSQLite {
		return strings.ReplaceAll(query, "$", "?")
	}
	return query
}

func (r *SQLRepository) Create(ctx context.Context, account *Account) error {
	query := `INSERT INTO accounts (` + accountColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		account.ID, account.Username, account.Email, account.PasswordHash,
		account.IsActive, account.DateJoined.UTC(), nullTime(account.LastLogin))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *SQLRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return r.getOne(ctx, query, username)
}

func (r *SQLRepository) getOne(ctx context.Context, query string, arg any) (*Account, error) {
	account := &Account{}
	var lastLogin sql.NullTime
	err := r.db.QueryRowContext(ctx, r.rebind(query), arg).Scan(
		&account.ID, &account.Username, &account.Email, &account.PasswordHash,
		&account.IsActive, &account.DateJoined, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	account.DateJoined = account.DateJoined.UTC()
	if lastLogin.Valid {
		account.LastLogin = lastLogin.Time.UTC()
	}
	return account, nil
}

func (r *SQLRepository) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1 AND id <> $2)`

	var taken bool
	if err := r.db.QueryRowContext(ctx, r.rebind(query), username, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return taken, nil
}

func (r *SQLRepository) Update(ctx context.Context, account *Account) error {
	query := `UPDATE accounts
		 SET username = $2, email = $3, password_hash = $4, is_active = $5
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		account.ID, account.Username, account.Email, account.PasswordHash, account.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepository) RecordLogin(ctx context.Context, id string, prev, at time.Time) error {
	query := `UPDATE accounts
		 SET last_login = $2
		 WHERE id = $1 AND last_login IS NOT DISTINCT FROM $3`

	res, err := r.db.ExecContext(ctx, r.rebind(query), id, nullTime(at), nullTime(prev))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n > 0 {
		return nil
	}

	// 0件の場合はアカウント不在と競合を区別する
	var exists bool
	query = `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrLoginConflict
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
