package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ReportRepository handles fraud report data operations
type ReportRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sqlx.DB, logger *slog.Logger) *ReportRepository {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new fraud report. The call SID is unique; inserting a
// second report for the same call fails without touching the first.
func (r *ReportRepository) Create(ctx context.Context, report *FraudReport) error {
	if report.Aadhaar == "" || report.Name == "" || report.Mobile == "" || report.CallSID == "" {
		return ErrMissingFields
	}

	if report.CallStatus == "" {
		report.CallStatus = CallStatusInitiated
	}
	if report.Language == "" {
		report.Language = LanguageEnglish
	}
	if report.FraudSeverity == "" {
		report.FraudSeverity = SeverityMedium
	}
	report.CreatedAt = time.Now()

	query := `
		INSERT INTO fraud_reports (
			id, aadhaar, name, mobile, call_sid, call_status,
			language, fraud_severity, created_at
		) VALUES (
			:id, :aadhaar, :name, :mobile, :call_sid, :call_status,
			:language, :fraud_severity, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, report)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateCallSID, report.CallSID)
		}
		r.logger.Error("Failed to create report", "call_sid", report.CallSID, "error", err)
		return fmt.Errorf("failed to create report: %w", err)
	}

	r.logger.Info("Report created", "report_id", report.ID, "call_sid", report.CallSID)
	return nil
}

// GetByCallSID retrieves a report by its call SID
func (r *ReportRepository) GetByCallSID(ctx context.Context, callSID string) (*FraudReport, error) {
	query := `SELECT * FROM fraud_reports WHERE call_sid = $1`

	var report FraudReport
	err := r.db.GetContext(ctx, &report, query, callSID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get report by call SID", "call_sid", callSID, "error", err)
		return nil, fmt.Errorf("failed to get report by call SID: %w", err)
	}

	return &report, nil
}

// UpdateByCallSID applies a partial update to the report owning the call SID.
// A missing report is a no-op success: the provider may deliver events for
// calls this service never persisted, and those updates are dropped.
func (r *ReportRepository) UpdateByCallSID(ctx context.Context, callSID string, update ReportUpdate) error {
	sets, args := buildUpdateSet(update)
	if len(sets) == 0 {
		return nil
	}

	args = append(args, callSID)
	query := fmt.Sprintf(
		"UPDATE fraud_reports SET %s WHERE call_sid = $%d",
		strings.Join(sets, ", "), len(args),
	)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update report", "call_sid", callSID, "error", err)
		return fmt.Errorf("failed to update report: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		r.logger.Warn("Update matched no report, dropping", "call_sid", callSID)
		return nil
	}

	r.logger.Info("Report updated", "call_sid", callSID)
	return nil
}

// likeEscaper neutralizes LIKE wildcards in caller-supplied fragments
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// FindByRecordingSID resolves a recording reference fragment back to its
// owning report
func (r *ReportRepository) FindByRecordingSID(ctx context.Context, fragment string) (*FraudReport, error) {
	query := `
		SELECT * FROM fraud_reports
		WHERE recording_url LIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT 1`

	var report FraudReport
	err := r.db.GetContext(ctx, &report, query, likeEscaper.Replace(fragment))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to find report by recording", "fragment", fragment, "error", err)
		return nil, fmt.Errorf("failed to find report by recording: %w", err)
	}

	return &report, nil
}

// List retrieves all reports, newest first
func (r *ReportRepository) List(ctx context.Context) ([]*FraudReport, error) {
	query := `SELECT * FROM fraud_reports ORDER BY created_at DESC`

	var reports []*FraudReport
	err := r.db.SelectContext(ctx, &reports, query)
	if err != nil {
		r.logger.Error("Failed to list reports", "error", err)
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	return reports, nil
}

// GetStats retrieves report counts for metrics
func (r *ReportRepository) GetStats(ctx context.Context) (*ReportStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COUNT(CASE WHEN call_status = 'initiated' THEN 1 END) as initiated,
			COUNT(CASE WHEN call_status = 'completed' THEN 1 END) as completed,
			COUNT(CASE WHEN call_status IN ('busy', 'failed', 'no-answer', 'canceled') THEN 1 END) as failed,
			COUNT(CASE WHEN fraud_severity = 'critical' THEN 1 END) as critical,
			COUNT(CASE WHEN fraud_severity = 'high' THEN 1 END) as high,
			COUNT(CASE WHEN fraud_severity = 'medium' THEN 1 END) as medium,
			COUNT(CASE WHEN fraud_severity = 'low' THEN 1 END) as low
		FROM fraud_reports`

	var stats ReportStats
	err := r.db.GetContext(ctx, &stats, query)
	if err != nil {
		r.logger.Error("Failed to get report stats", "error", err)
		return nil, fmt.Errorf("failed to get report stats: %w", err)
	}

	return &stats, nil
}

// buildUpdateSet turns the non-nil fields of a ReportUpdate into SET clauses
// with positional args
func buildUpdateSet(update ReportUpdate) ([]string, []interface{}) {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.CallStatus != nil {
		add("call_status", *update.CallStatus)
	}
	if update.Language != nil {
		add("language", *update.Language)
	}
	if update.RecordingURL != nil {
		add("recording_url", *update.RecordingURL)
	}
	if update.Transcript != nil {
		add("transcript", *update.Transcript)
	}
	if update.FraudSummary != nil {
		add("fraud_summary", *update.FraudSummary)
	}
	if update.FraudSeverity != nil {
		add("fraud_severity", *update.FraudSeverity)
	}
	if update.CompletedAt != nil {
		add("completed_at", *update.CompletedAt)
	}

	return sets, args
}
