package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/grainlly/fraudline/internal/config"
)

// Sentinel errors returned by the report repository
var (
	ErrNotFound         = errors.New("report not found")
	ErrDuplicateCallSID = errors.New("report with this call SID already exists")
	ErrMissingFields    = errors.New("report is missing required fields")
)

// Call status values as reported by the telephony provider
const (
	CallStatusInitiated  = "initiated"
	CallStatusRinging    = "ringing"
	CallStatusInProgress = "in-progress"
	CallStatusCompleted  = "completed"
	CallStatusBusy       = "busy"
	CallStatusFailed     = "failed"
	CallStatusNoAnswer   = "no-answer"
	CallStatusCanceled   = "canceled"
)

// Complaint languages
const (
	LanguageEnglish = "en-US"
	LanguageHindi   = "hi-IN"
)

// Fraud severity labels
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
	SeverityNoFraud  = "no-fraud"
)

// FraudReport is one phone-call complaint. CallSID is the provider-assigned
// call identifier and the sole key used by webhook updates.
type FraudReport struct {
	ID            string     `db:"id" json:"id"`
	Aadhaar       string     `db:"aadhaar" json:"aadhaar"`
	Name          string     `db:"name" json:"name"`
	Mobile        string     `db:"mobile" json:"mobile"`
	CallSID       string     `db:"call_sid" json:"callSid"`
	CallStatus    string     `db:"call_status" json:"callStatus"`
	Language      string     `db:"language" json:"language"`
	RecordingURL  *string    `db:"recording_url" json:"recordingUrl,omitempty"`
	Transcript    *string    `db:"transcript" json:"transcript,omitempty"`
	FraudSummary  *string    `db:"fraud_summary" json:"fraudSummary,omitempty"`
	FraudSeverity string     `db:"fraud_severity" json:"fraudSeverity"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	CompletedAt   *time.Time `db:"completed_at" json:"completedAt,omitempty"`
}

// ReportUpdate is a partial update applied by call SID. Only non-nil fields
// are written, so concurrent webhook events touching disjoint fields merge
// last-write-wins without conflicting.
type ReportUpdate struct {
	CallStatus    *string
	Language      *string
	RecordingURL  *string
	Transcript    *string
	FraudSummary  *string
	FraudSeverity *string
	CompletedAt   *time.Time
}

// ReportStats aggregates report counts for metrics collection
type ReportStats struct {
	Total     int `db:"total" json:"total"`
	Initiated int `db:"initiated" json:"initiated"`
	Completed int `db:"completed" json:"completed"`
	Failed    int `db:"failed" json:"failed"`
	Critical  int `db:"critical" json:"critical"`
	High      int `db:"high" json:"high"`
	Medium    int `db:"medium" json:"medium"`
	Low       int `db:"low" json:"low"`
}

// Connect establishes a database connection
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// RunMigrations runs database migrations
func RunMigrations(cfg config.DatabaseConfig) error {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
