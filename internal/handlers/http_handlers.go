package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/grainlly/fraudline/internal/calls"
	"github.com/grainlly/fraudline/internal/classifier"
	"github.com/grainlly/fraudline/internal/config"
	"github.com/grainlly/fraudline/internal/database"
	"github.com/grainlly/fraudline/internal/ledger"
	"github.com/grainlly/fraudline/internal/telephony"
)

// ReportStore is the persistence surface the handlers need
type ReportStore interface {
	GetByCallSID(ctx context.Context, callSID string) (*database.FraudReport, error)
	UpdateByCallSID(ctx context.Context, callSID string, update database.ReportUpdate) error
	FindByRecordingSID(ctx context.Context, fragment string) (*database.FraudReport, error)
	List(ctx context.Context) ([]*database.FraudReport, error)
}

// CallInitiator places outbound calls and creates their reports
type CallInitiator interface {
	InitiateTestCall(ctx context.Context, phoneNumber string) (*database.FraudReport, error)
	InitiateFraudReportCall(ctx context.Context, aadhaar string) (*database.FraudReport, error)
}

// Telephony is the provider surface used by the read endpoints
type Telephony interface {
	StreamRecording(ctx context.Context, recordingSID string) (io.ReadCloser, error)
	FetchAccount(ctx context.Context) (*telephony.Account, error)
}

// MetricsRecorder counts webhook, call and classification events
type MetricsRecorder interface {
	RecordWebhookEvent(endpoint, outcome string)
	RecordCallInitiated(kind, result string)
	RecordClassification(severity string)
}

// HTTPHandler handles HTTP requests for the fraud line service
type HTTPHandler struct {
	config     *config.Config
	logger     *slog.Logger
	store      ReportStore
	initiator  CallInitiator
	telephony  Telephony
	classifier *classifier.Classifier
	metrics    MetricsRecorder
	validate   *validator.Validate
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	cfg *config.Config,
	logger *slog.Logger,
	store ReportStore,
	initiator CallInitiator,
	tel Telephony,
	cls *classifier.Classifier,
	collector MetricsRecorder,
) *HTTPHandler {
	return &HTTPHandler{
		config:     cfg,
		logger:     logger,
		store:      store,
		initiator:  initiator,
		telephony:  tel,
		classifier: cls,
		metrics:    collector,
		validate:   validator.New(),
	}
}

// RegisterRoutes registers HTTP routes
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.handleRoot).Methods("GET")
	router.HandleFunc("/health", h.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Provider webhooks (form-encoded, always acknowledged)
	api.HandleFunc("/voice", h.handleVoice).Methods("POST")
	api.HandleFunc("/language", h.handleLanguage).Methods("POST")
	api.HandleFunc("/recording-complete", h.handleRecordingComplete).Methods("POST")
	api.HandleFunc("/transcription-callback", h.handleTranscription).Methods("POST")
	api.HandleFunc("/call-status", h.handleCallStatus).Methods("POST")

	// Management endpoints (JSON)
	api.HandleFunc("/make-test-call", h.handleMakeTestCall).Methods("POST")
	api.HandleFunc("/report-fraud", h.handleReportFraud).Methods("POST")
	api.HandleFunc("/reports", h.handleListReports).Methods("GET")
	api.HandleFunc("/recording/{recordingSid}", h.handleRecording).Methods("GET")
	api.HandleFunc("/recording-details/{recordingSid}", h.handleRecordingDetails).Methods("GET")
	api.HandleFunc("/audio-player", h.handleAudioPlayer).Methods("GET")

	// Operational introspection
	api.HandleFunc("/debug", h.handleDebug).Methods("GET")
	api.HandleFunc("/test-twilio", h.handleTestTwilio).Methods("GET")
}

func (h *HTTPHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Ration Distribution Fraud Reporting API",
		"status":  "online",
	})
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "fraudline",
	})
}

// Call initiation endpoints

type makeTestCallRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,min=8"`
}

func (h *HTTPHandler) handleMakeTestCall(w http.ResponseWriter, r *http.Request) {
	var req makeTestCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Phone number is required")
		return
	}

	report, err := h.initiator.InitiateTestCall(r.Context(), req.PhoneNumber)
	if err != nil {
		h.metrics.RecordCallInitiated("test", "error")
		h.writeInitiationError(w, err, "Failed to make call")
		return
	}

	h.metrics.RecordCallInitiated("test", "ok")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Test call initiated",
		"callSid": report.CallSID,
	})
}

type reportFraudRequest struct {
	Aadhaar string `json:"aadhaar" validate:"required,numeric"`
}

func (h *HTTPHandler) handleReportFraud(w http.ResponseWriter, r *http.Request) {
	var req reportFraudRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Aadhaar number is required")
		return
	}

	report, err := h.initiator.InitiateFraudReportCall(r.Context(), req.Aadhaar)
	if err != nil {
		h.metrics.RecordCallInitiated("fraud-report", "error")
		switch {
		case errors.Is(err, ledger.ErrConsumerNotFound):
			h.writeError(w, http.StatusNotFound, "Consumer not found with this Aadhaar number")
		case errors.Is(err, ledger.ErrInvalidMobile):
			h.writeError(w, http.StatusBadRequest, "Valid mobile number not found for this Aadhaar")
		default:
			h.writeInitiationError(w, err, "Internal server error")
		}
		return
	}

	h.metrics.RecordCallInitiated("fraud-report", "ok")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      "Call initiated successfully",
		"callSid":      report.CallSID,
		"consumerName": report.Name,
		"reportId":     report.ID,
	})
}

// Report read endpoints

type reportView struct {
	*database.FraudReport
	PlayableRecordingURL string `json:"playableRecordingUrl,omitempty"`
}

func (h *HTTPHandler) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to fetch reports", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Error fetching reports")
		return
	}

	views := make([]reportView, 0, len(reports))
	for _, report := range reports {
		view := reportView{FraudReport: report}
		if sid := recordingSIDFromURL(report.RecordingURL); sid != "" {
			view.PlayableRecordingURL = h.config.Twilio.PublicBaseURL + "/api/recording/" + sid
		}
		views = append(views, view)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"reports": views,
	})
}

func (h *HTTPHandler) handleRecording(w http.ResponseWriter, r *http.Request) {
	recordingSID := mux.Vars(r)["recordingSid"]

	body, err := h.telephony.StreamRecording(r.Context(), recordingSID)
	if err != nil {
		h.logger.Error("Failed to stream recording", "recording_sid", recordingSID, "error", err)
		http.Error(w, "Error fetching recording", http.StatusBadGateway)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if _, err := io.Copy(w, body); err != nil {
		// Headers are gone; nothing left to do but log the broken pipe
		h.logger.Warn("Recording stream interrupted", "recording_sid", recordingSID, "error", err)
	}
}

func (h *HTTPHandler) handleRecordingDetails(w http.ResponseWriter, r *http.Request) {
	recordingSID := mux.Vars(r)["recordingSid"]

	report, err := h.store.FindByRecordingSID(r.Context(), recordingSID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Recording not found")
			return
		}
		h.logger.Error("Failed to fetch recording details", "recording_sid", recordingSID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Error fetching recording details")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"transcript":    stringOrEmpty(report.Transcript),
		"fraudSummary":  stringOrEmpty(report.FraudSummary),
		"fraudSeverity": report.FraudSeverity,
		"language":      report.Language,
	})
}

// Operational endpoints

func (h *HTTPHandler) handleDebug(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"environment":      h.config.Environment,
		"baseUrl":          h.config.Twilio.PublicBaseURL,
		"twilioAccountSid": maskSID(h.config.Twilio.AccountSID),
		"twilioAuthToken":  presenceLabel(h.config.Twilio.AuthToken),
		"twilioPhone":      valueOrNotSet(h.config.Twilio.PhoneNumber),
		"ledgerConfigured": h.config.LedgerConfigured(),
		"geminiApiKey":     presenceLabel(h.config.AI.GeminiAPIKey),
	})
}

func (h *HTTPHandler) handleTestTwilio(w http.ResponseWriter, r *http.Request) {
	account, err := h.telephony.FetchAccount(r.Context())
	if err != nil {
		h.logger.Error("Twilio credential probe failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"accountName": account.FriendlyName,
		"status":      account.Status,
	})
}

// Helper methods

func (h *HTTPHandler) writeInitiationError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, calls.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many outbound calls, try again later")
	case errors.Is(err, telephony.ErrNotConfigured):
		h.writeError(w, http.StatusInternalServerError, "Twilio credentials not configured")
	default:
		h.logger.Error("Call initiation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   message,
			"details": err.Error(),
		})
	}
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// recordingSIDFromURL extracts the recording SID from the last path segment
// of a stored recording reference
func recordingSIDFromURL(recordingURL *string) string {
	if recordingURL == nil || *recordingURL == "" {
		return ""
	}
	parts := strings.Split(strings.TrimRight(*recordingURL, "/"), "/")
	return parts[len(parts)-1]
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func maskSID(sid string) string {
	if sid == "" {
		return "not set"
	}
	if len(sid) <= 4 {
		return sid + "..."
	}
	return sid[:4] + "..."
}

func presenceLabel(value string) string {
	if value == "" {
		return "not set"
	}
	return "is set (hidden)"
}

func valueOrNotSet(value string) string {
	if value == "" {
		return "not set"
	}
	return value
}
