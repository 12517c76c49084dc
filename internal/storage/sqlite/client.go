package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/storage/codec"
	"github.com/restaurant-agent/backend/internal/storage/models"
	"github.com/restaurant-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

// NewClientFromDB wraps an already opened database handle.
func NewClientFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS restaurants (
		id INTEGER PRIMARY KEY,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		location TEXT,
		country TEXT,
		opening_hours TEXT,
		latitude REAL,
		longitude REAL,
		rating REAL
	);
	CREATE INDEX IF NOT EXISTS idx_restaurants_seq ON restaurants(seq);

	CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		restaurant_id INTEGER NOT NULL,
		restaurant_name TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		FOREIGN KEY (restaurant_id) REFERENCES restaurants(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_reviews_restaurant ON reviews(restaurant_id);

	CREATE TABLE IF NOT EXISTS chat_turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		message TEXT NOT NULL,
		intent TEXT NOT NULL,
		response TEXT,
		recommendation_count INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON chat_turns(session_id, created_at);
	`

	_, err := c.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// UpsertRestaurant inserts or updates a restaurant. A new restaurant is placed
// after every existing one in directory order; updates keep their position.
func (c *Client) UpsertRestaurant(ctx context.Context, r *models.Restaurant) error {
	query := `
		INSERT INTO restaurants (id, seq, name, location, country, opening_hours, latitude, longitude, rating)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM restaurants), ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			country = excluded.country,
			opening_hours = excluded.opening_hours,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			rating = excluded.rating
	`

	_, err := c.db.ExecContext(ctx, query,
		r.ID,
		r.Name,
		r.Location,
		r.Country,
		r.OpeningHours,
		nullFloat(r.Latitude),
		nullFloat(r.Longitude),
		nullFloat(r.Rating),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert restaurant %d: %w", r.ID, err)
	}

	return nil
}

// ListRestaurants returns every restaurant in directory order.
func (c *Client) ListRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	query := `SELECT id, name, location, country, opening_hours, latitude, longitude, rating FROM restaurants ORDER BY seq`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list restaurants: %w", err)
	}
	defer rows.Close()

	var restaurants []models.Restaurant
	for rows.Next() {
		var r models.Restaurant
		var location, country, hours sql.NullString
		var lat, lon, rating sql.NullFloat64

		if err := rows.Scan(&r.ID, &r.Name, &location, &country, &hours, &lat, &lon, &rating); err != nil {
			return nil, fmt.Errorf("failed to scan restaurant: %w", err)
		}

		r.Location = location.String
		r.Country = country.String
		r.OpeningHours = hours.String
		r.Latitude = floatPtr(lat)
		r.Longitude = floatPtr(lon)
		r.Rating = floatPtr(rating)
		restaurants = append(restaurants, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate restaurants: %w", err)
	}

	return restaurants, nil
}

func (c *Client) InsertReview(ctx context.Context, review *models.Review) error {
	query := `INSERT INTO reviews (restaurant_id, restaurant_name, text, embedding) VALUES (?, ?, ?, ?)`

	var blob []byte
	if len(review.Embedding) > 0 {
		blob = codec.EncodeEmbedding(review.Embedding)
	}

	res, err := c.db.ExecContext(ctx, query, review.RestaurantID, review.RestaurantName, review.Text, blob)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		review.ID = id
	}

	return nil
}

// DeleteReviews removes all reviews so an import can be replayed.
func (c *Client) DeleteReviews(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM reviews`); err != nil {
		return fmt.Errorf("failed to delete reviews: %w", err)
	}
	return nil
}

// ListReviews returns every review in insertion order.
func (c *Client) ListReviews(ctx context.Context) ([]models.Review, error) {
	query := `SELECT id, restaurant_id, restaurant_name, text, embedding FROM reviews ORDER BY id`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var r models.Review
		var text sql.NullString
		var blob []byte

		if err := rows.Scan(&r.ID, &r.RestaurantID, &r.RestaurantName, &text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}

		r.Text = text.String
		r.Embedding, err = codec.DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("review %d: %w", r.ID, err)
		}
		reviews = append(reviews, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}

	return reviews, nil
}

func (c *Client) InsertTurnRecord(ctx context.Context, record *models.TurnRecord) error {
	query := `
		INSERT INTO chat_turns (id, session_id, message, intent, response, recommendation_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		record.ID,
		record.SessionID,
		record.Message,
		record.Intent,
		record.Response,
		record.RecommendationCount,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn record: %w", err)
	}

	logger.Debug("Turn recorded",
		zap.String("turn_id", record.ID),
		zap.String("session_id", record.SessionID),
		zap.String("intent", record.Intent),
	)

	return nil
}

func (c *Client) GetTurnHistory(ctx context.Context, sessionID string, limit int) ([]models.TurnRecord, error) {
	query := `
		SELECT id, session_id, message, intent, response, recommendation_count, latency_ms, created_at
		FROM chat_turns
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get turn history: %w", err)
	}
	defer rows.Close()

	var records []models.TurnRecord
	for rows.Next() {
		var r models.TurnRecord
		var response sql.NullString
		var createdAt int64

		err := rows.Scan(&r.ID, &r.SessionID, &r.Message, &r.Intent, &response, &r.RecommendationCount, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Response = response.String
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn history: %w", err)
	}

	return records, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
