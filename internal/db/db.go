package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // The database driver
	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
)

// DB is the global database connection.
var DB *sqlx.DB

//go:embed schema.sql
var schema string

// InitDB initializes the database connection.
func InitDB(dbURL string) {
	var err error
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	DB, err = sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err = DB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	log.Println("Database connection established")
}

// ApplySchema creates missing tables and indexes. Every statement is idempotent.
func ApplySchema(ctx context.Context, conn *sqlx.DB) error {
	_, err := conn.ExecContext(ctx, schema)
	return err
}

// Store groups the queries used by the API, the worker and the pipeline.
type Store struct {
	db *sqlx.DB
}

func New(conn *sqlx.DB) *Store {
	return &Store{db: conn}
}

// withTx runs fn inside a transaction and commits only if fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("Error rolling back transaction: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// notFound translates sql.ErrNoRows into the API's NotFound error.
func notFound(err error, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(key)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// expectOneRow turns a zero-row update into errOnZero.
func expectOneRow(res sql.Result, errOnZero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errOnZero
	}
	return nil
}
