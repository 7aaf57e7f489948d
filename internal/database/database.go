package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"intro-eligibility-api/internal/models"
)

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			has_intro_offer INTEGER NOT NULL,
			intro_offer_type TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS receipts (
			user_id TEXT PRIMARY KEY,
			blob BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS intro_redemptions (
			user_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			redeemed_at TEXT NOT NULL,
			PRIMARY KEY (user_id, product_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_redemptions_user ON intro_redemptions(user_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// UpsertProducts creates or updates catalog products in a single transaction.
func (db *DB) UpsertProducts(ctx context.Context, products []models.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO products (
		id, display_name, has_intro_offer, intro_offer_type, updated_at
	) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		display_name = excluded.display_name,
		has_intro_offer = excluded.has_intro_offer,
		intro_offer_type = excluded.intro_offer_type,
		updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	upserted := 0
	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.ID, p.DisplayName, p.HasIntroOffer, p.IntroOfferType, now); err != nil {
			return 0, fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
		}
		upserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return upserted, nil
}

// GetProducts returns the catalog products for the given identifiers.
// Unknown identifiers are simply absent from the result.
func (db *DB) GetProducts(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := `SELECT id, display_name, has_intro_offer, intro_offer_type, created_at, updated_at
		FROM products WHERE id IN (` + placeholders + `)`

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		var createdAt, updatedAt string

		if err := rows.Scan(&p.ID, &p.DisplayName, &p.HasIntroOffer, &p.IntroOfferType, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}

		// CURRENT_TIMESTAMP rows use SQLite's datetime format, explicit
		// writes use RFC3339; tolerate both.
		p.CreatedAt = parseTimestamp(createdAt)
		p.UpdatedAt = parseTimestamp(updatedAt)

		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// UpsertReceipt stores the receipt blob for a user, replacing any previous one.
func (db *DB) UpsertReceipt(ctx context.Context, userID string, blob []byte) error {
	query := `INSERT INTO receipts (user_id, blob, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			blob = excluded.blob,
			updated_at = excluded.updated_at`

	_, err := db.conn.ExecContext(ctx, query, userID, blob, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert receipt: %w", err)
	}

	return nil
}

// GetReceipt returns the stored receipt blob for a user, or nil when the
// user has none.
func (db *DB) GetReceipt(ctx context.Context, userID string) ([]byte, error) {
	var blob []byte
	err := db.conn.QueryRowContext(ctx, `SELECT blob FROM receipts WHERE user_id = ?`, userID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query receipt: %w", err)
	}

	return blob, nil
}

// RecordRedemption marks the product's intro offer as consumed by the user.
// Recording the same redemption twice is a no-op.
func (db *DB) RecordRedemption(ctx context.Context, userID, productID string, redeemedAt time.Time) error {
	query := `INSERT INTO intro_redemptions (user_id, product_id, redeemed_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, product_id) DO NOTHING`

	_, err := db.conn.ExecContext(ctx, query, userID, productID, redeemedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record redemption: %w", err)
	}

	return nil
}

// GetRedeemedProducts returns the subset of ids whose intro offer the user
// has already consumed.
func (db *DB) GetRedeemedProducts(ctx context.Context, userID string, ids []string) (map[string]bool, error) {
	redeemed := make(map[string]bool)
	if len(ids) == 0 {
		return redeemed, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := `SELECT product_id FROM intro_redemptions
		WHERE user_id = ? AND product_id IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		if err := rows.Scan(&productID); err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		redeemed[productID] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating redemptions: %w", err)
	}

	return redeemed, nil
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
