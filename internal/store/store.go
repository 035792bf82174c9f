package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andresmejia3/proctor/internal/types"
	"github.com/jackc/pgx/v5"
)

// EmbeddingDim is the size of a face_recognition encoding.
const EmbeddingDim = 128

// Store is the enrollment registry: reference identities kept in PostgreSQL with pgvector.
// A monitoring session only reads it, once, before the first frame.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables and vector extension if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS known_identities (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			embedding VECTOR(128) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// vecToString formats a float slice into a PostgreSQL vector string format "[1.0,2.0,...]"
func vecToString(vec []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%f", v)
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector is the inverse of vecToString for pgvector's text output.
func parseVector(s string) ([]float64, error) {
	s = strings.Trim(s, "[]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vec := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad vector component %d: %w", i, err)
		}
		vec[i] = v
	}
	return vec, nil
}

// CreateIdentity enrolls a named reference embedding and returns its ID.
func (s *Store) CreateIdentity(ctx context.Context, name string, vec []float64) (int, error) {
	if len(vec) != EmbeddingDim {
		return 0, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), EmbeddingDim)
	}
	var id int
	err := s.conn.QueryRow(ctx,
		"INSERT INTO known_identities (name, embedding) VALUES ($1, $2::vector) RETURNING id",
		name, vecToString(vec)).Scan(&id)
	return id, err
}

// LoadEnrollments returns every enrolled identity in enrollment order.
// The order matters: the first matching identity wins the label.
func (s *Store) LoadEnrollments(ctx context.Context) ([]types.Identity, error) {
	rows, err := s.conn.Query(ctx, "SELECT id, name, embedding::text, created_at FROM known_identities ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Identity
	for rows.Next() {
		var (
			ident  types.Identity
			vecStr string
		)
		if err := rows.Scan(&ident.ID, &ident.Name, &vecStr, &ident.CreatedAt); err != nil {
			return nil, err
		}
		if ident.Embedding, err = parseVector(vecStr); err != nil {
			return nil, fmt.Errorf("identity %d: %w", ident.ID, err)
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

// ListIdentities returns identity metadata without embeddings.
func (s *Store) ListIdentities(ctx context.Context) ([]types.Identity, error) {
	rows, err := s.conn.Query(ctx, "SELECT id, name, created_at FROM known_identities ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Identity
	for rows.Next() {
		var ident types.Identity
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

// ErrIdentityNotFound is returned when an operation targets a missing ID.
var ErrIdentityNotFound = errors.New("identity not found")

// RenameIdentity updates the name of a known identity.
func (s *Store) RenameIdentity(ctx context.Context, id int, newName string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE known_identities SET name = $1 WHERE id = $2", newName, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS known_identities CASCADE;`)
	return err
}
