// Package calls places outbound complaint calls and creates the initial
// report record for each.
package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/grainlly/fraudline/internal/config"
	"github.com/grainlly/fraudline/internal/database"
	"github.com/grainlly/fraudline/internal/ledger"
)

// ErrRateLimited is returned when the outbound call budget is exhausted
var ErrRateLimited = errors.New("outbound call rate limit exceeded")

// Identity recorded on manually triggered test calls
const (
	testAadhaar = "123456789012"
	testName    = "Test User"
)

// Dialer places calls with the telephony provider
type Dialer interface {
	CreateCall(ctx context.Context, to, voiceURL, statusCallbackURL string) (string, error)
}

// ContactResolver maps a citizen identifier to registered contact details
type ContactResolver interface {
	Resolve(ctx context.Context, aadhaar string) (*ledger.Consumer, error)
}

// ReportCreator persists the initial report row
type ReportCreator interface {
	Create(ctx context.Context, report *database.FraudReport) error
}

// Initiator triggers outbound calls and creates their report records
type Initiator struct {
	config   *config.Config
	logger   *slog.Logger
	dialer   Dialer
	resolver ContactResolver
	store    ReportCreator
	limiter  *rate.Limiter
}

// NewInitiator creates a new call initiator
func NewInitiator(
	cfg *config.Config,
	logger *slog.Logger,
	dialer Dialer,
	resolver ContactResolver,
	store ReportCreator,
) *Initiator {
	return &Initiator{
		config:   cfg,
		logger:   logger,
		dialer:   dialer,
		resolver: resolver,
		store:    store,
		limiter: rate.NewLimiter(
			rate.Limit(cfg.Calls.RateLimitPerMin)/60,
			cfg.Calls.RateLimitBurst,
		),
	}
}

// InitiateTestCall places a manual test call to a raw phone number
func (i *Initiator) InitiateTestCall(ctx context.Context, phoneNumber string) (*database.FraudReport, error) {
	formatted := formatPhone(phoneNumber)
	return i.placeCall(ctx, testAadhaar, testName, formatted)
}

// InitiateFraudReportCall resolves the citizen identifier on the ledger and
// places the complaint call. No call is placed and no report is created when
// the resolution is rejected.
func (i *Initiator) InitiateFraudReportCall(ctx context.Context, aadhaar string) (*database.FraudReport, error) {
	consumer, err := i.resolver.Resolve(ctx, aadhaar)
	if err != nil {
		return nil, err
	}

	return i.placeCall(ctx, aadhaar, consumer.Name, consumer.Mobile)
}

func (i *Initiator) placeCall(ctx context.Context, aadhaar, name, mobile string) (*database.FraudReport, error) {
	if !i.limiter.Allow() {
		i.logger.Warn("Outbound call rejected by rate limiter", "to", mobile)
		return nil, ErrRateLimited
	}

	base := i.config.Twilio.PublicBaseURL
	callSID, err := i.dialer.CreateCall(ctx, mobile, base+"/api/voice", base+"/api/call-status")
	if err != nil {
		return nil, fmt.Errorf("failed to place call: %w", err)
	}

	report := &database.FraudReport{
		ID:         uuid.NewString(),
		Aadhaar:    aadhaar,
		Name:       name,
		Mobile:     mobile,
		CallSID:    callSID,
		CallStatus: database.CallStatusInitiated,
	}

	if err := i.store.Create(ctx, report); err != nil {
		// The call is already in flight; surface the store failure to the
		// caller rather than pretending the report exists.
		i.logger.Error("Call placed but report creation failed",
			"call_sid", callSID, "error", err)
		return nil, err
	}

	i.logger.Info("Call initiated", "call_sid", callSID, "aadhaar", aadhaar)
	return report, nil
}

func formatPhone(phone string) string {
	trimmed := strings.TrimSpace(phone)
	if strings.HasPrefix(trimmed, "+") {
		return trimmed
	}
	return "+" + trimmed
}
