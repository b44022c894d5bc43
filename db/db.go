package db

//nolint:golint,revive
import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/omni/question-oracle/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

type DB struct {
	cfg *config.DBConfig
	db  *sqlx.DB
}

func (db *DB) Migrate() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("can't read embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, db.dbURL("pgx"))
	if err != nil {
		return fmt.Errorf("can't connect to postgres database: %w", err)
	}
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("can't apply postgres database migrations: %w", err)
	}
	return nil
}

func (db *DB) dbURL(prefix string) string {
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s", prefix, db.cfg.User, db.cfg.Password, db.cfg.Host, db.cfg.Port, db.cfg.DB)
}

func NewDB(cfg *config.DBConfig) (*DB, error) {
	db := &DB{
		cfg: cfg,
	}
	conn, err := sqlx.ConnectContext(context.Background(), "pgx", db.dbURL("postgres"))
	if err != nil {
		return nil, fmt.Errorf("can't connect to postgres database: %w", err)
	}
	conn.SetMaxIdleConns(3)
	conn.SetMaxOpenConns(10)
	db.db = conn
	return db, nil
}

func ConnectToDBAndMigrate(cfg *config.DBConfig) (*DB, error) {
	db, err := NewDB(cfg)
	if err != nil {
		return nil, err
	}
	err = db.Migrate()
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (res sql.Result, err error) {
	defer func(done func(error)) { done(err) }(observeQuery(callerQueryName(2)))
	return db.db.ExecContext(ctx, query, args...)
}

func (db *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) (err error) {
	defer func(done func(error)) { done(err) }(observeQuery(callerQueryName(2)))
	err = db.db.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return err
}

func (db *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) (err error) {
	defer func(done func(error)) { done(err) }(observeQuery(callerQueryName(2)))
	return db.db.SelectContext(ctx, dest, query, args...)
}

type queryName struct {
	repo   string
	method string
}

// callerQueryName labels a query by the repository method issuing it, e.g.
// postgres.(*answersRepo).Ensure becomes {answers, Ensure}.
func callerQueryName(skip int) queryName {
	res := queryName{repo: "unknown", method: "unknown"}
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return res
	}
	details := runtime.FuncForPC(pc)
	if details == nil {
		return res
	}
	name := details.Name()
	name = name[strings.LastIndex(name, "/")+1:]
	parts := strings.Split(name, ".")
	res.method = parts[len(parts)-1]
	if len(parts) == 3 {
		receiver := strings.TrimSuffix(strings.TrimPrefix(parts[1], "(*"), ")")
		res.repo = strings.TrimSuffix(receiver, "Repo")
	}
	return res
}
