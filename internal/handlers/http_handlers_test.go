package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/grainlly/fraudline/internal/calls"
	"github.com/grainlly/fraudline/internal/classifier"
	"github.com/grainlly/fraudline/internal/config"
	"github.com/grainlly/fraudline/internal/database"
	"github.com/grainlly/fraudline/internal/ledger"
	"github.com/grainlly/fraudline/internal/telephony"
)

// Fakes

type fakeReportStore struct {
	reports   map[string]*database.FraudReport
	updates   []database.ReportUpdate
	updateErr error
	getErr    error
	listErr   error
}

func newFakeReportStore() *fakeReportStore {
	return &fakeReportStore{reports: make(map[string]*database.FraudReport)}
}

func (f *fakeReportStore) GetByCallSID(ctx context.Context, callSID string) (*database.FraudReport, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	report, ok := f.reports[callSID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return report, nil
}

func (f *fakeReportStore) UpdateByCallSID(ctx context.Context, callSID string, update database.ReportUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, update)
	report, ok := f.reports[callSID]
	if !ok {
		return nil // orphan events are dropped
	}
	if update.CallStatus != nil {
		report.CallStatus = *update.CallStatus
	}
	if update.Language != nil {
		report.Language = *update.Language
	}
	if update.RecordingURL != nil {
		report.RecordingURL = update.RecordingURL
	}
	if update.Transcript != nil {
		report.Transcript = update.Transcript
	}
	if update.FraudSummary != nil {
		report.FraudSummary = update.FraudSummary
	}
	if update.FraudSeverity != nil {
		report.FraudSeverity = *update.FraudSeverity
	}
	if update.CompletedAt != nil {
		report.CompletedAt = update.CompletedAt
	}
	return nil
}

func (f *fakeReportStore) FindByRecordingSID(ctx context.Context, fragment string) (*database.FraudReport, error) {
	for _, report := range f.reports {
		if report.RecordingURL != nil && strings.Contains(*report.RecordingURL, fragment) {
			return report, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeReportStore) List(ctx context.Context) ([]*database.FraudReport, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*database.FraudReport
	for _, report := range f.reports {
		out = append(out, report)
	}
	return out, nil
}

type fakeRecorder struct {
	webhookEvents   map[string]int
	calls           map[string]int
	classifications map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		webhookEvents:   make(map[string]int),
		calls:           make(map[string]int),
		classifications: make(map[string]int),
	}
}

func (f *fakeRecorder) RecordWebhookEvent(endpoint, outcome string) {
	f.webhookEvents[endpoint+"/"+outcome]++
}

func (f *fakeRecorder) RecordCallInitiated(kind, result string) {
	f.calls[kind+"/"+result]++
}

func (f *fakeRecorder) RecordClassification(severity string) {
	f.classifications[severity]++
}

type fakeInitiator struct {
	report  *database.FraudReport
	testErr error
	reptErr error
}

func (f *fakeInitiator) InitiateTestCall(ctx context.Context, phoneNumber string) (*database.FraudReport, error) {
	if f.testErr != nil {
		return nil, f.testErr
	}
	return f.report, nil
}

func (f *fakeInitiator) InitiateFraudReportCall(ctx context.Context, aadhaar string) (*database.FraudReport, error) {
	if f.reptErr != nil {
		return nil, f.reptErr
	}
	return f.report, nil
}

type fakeTelephony struct {
	streamData string
	streamErr  error
	account    *telephony.Account
	accountErr error
}

func (f *fakeTelephony) StreamRecording(ctx context.Context, recordingSID string) (io.ReadCloser, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return io.NopCloser(strings.NewReader(f.streamData)), nil
}

func (f *fakeTelephony) FetchAccount(ctx context.Context) (*telephony.Account, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return f.account, nil
}

// Harness

type testHarness struct {
	handler   *HTTPHandler
	router    *mux.Router
	store     *fakeReportStore
	initiator *fakeInitiator
	telephony *fakeTelephony
	recorder  *fakeRecorder
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := &config.Config{
		Environment: "test",
		Twilio: config.TwilioConfig{
			AccountSID:    "AC0123456789abcdef",
			AuthToken:     "secret-token",
			PhoneNumber:   "+15005550006",
			PublicBaseURL: "https://fraudline.example.com",
		},
		Ledger: config.LedgerConfig{
			RPCURL:          "http://localhost:8545",
			ContractAddress: "0xabc",
		},
		Calls: config.CallsConfig{MaxRecordingLength: 60},
	}

	store := newFakeReportStore()
	initiator := &fakeInitiator{}
	tel := &fakeTelephony{}
	recorder := newFakeRecorder()

	handler := NewHTTPHandler(cfg, logger, store, initiator, tel, classifier.New(logger), recorder)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	return &testHarness{
		handler:   handler,
		router:    router,
		store:     store,
		initiator: initiator,
		telephony: tel,
		recorder:  recorder,
	}
}

func (h *testHarness) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func sampleReport(callSID string) *database.FraudReport {
	return &database.FraudReport{
		ID:            "11111111-2222-3333-4444-555555555555",
		Aadhaar:       "123456789012",
		Name:          "Ramesh Kumar",
		Mobile:        "+919876543210",
		CallSID:       callSID,
		CallStatus:    database.CallStatusInitiated,
		Language:      database.LanguageEnglish,
		FraudSeverity: database.SeverityMedium,
		CreatedAt:     time.Now(),
	}
}

// Management endpoints

func TestHandleMakeTestCall(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newTestHarness(t)
		h.initiator.report = sampleReport("CA123")

		rec := h.postJSON(t, "/api/make-test-call", map[string]string{"phoneNumber": "+919876543210"})

		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.True(t, gjson.Get(body, "success").Bool())
		assert.Equal(t, "CA123", gjson.Get(body, "callSid").String())
	})

	t.Run("missing phone number", func(t *testing.T) {
		h := newTestHarness(t)

		rec := h.postJSON(t, "/api/make-test-call", map[string]string{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, gjson.Get(rec.Body.String(), "success").Bool())
	})

	t.Run("rate limited", func(t *testing.T) {
		h := newTestHarness(t)
		h.initiator.testErr = calls.ErrRateLimited

		rec := h.postJSON(t, "/api/make-test-call", map[string]string{"phoneNumber": "+919876543210"})

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("telephony not configured", func(t *testing.T) {
		h := newTestHarness(t)
		h.initiator.testErr = telephony.ErrNotConfigured

		rec := h.postJSON(t, "/api/make-test-call", map[string]string{"phoneNumber": "+919876543210"})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "not configured")
	})
}

func TestHandleReportFraud(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newTestHarness(t)
		h.initiator.report = sampleReport("CA456")

		rec := h.postJSON(t, "/api/report-fraud", map[string]string{"aadhaar": "123456789012"})

		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.True(t, gjson.Get(body, "success").Bool())
		assert.Equal(t, "CA456", gjson.Get(body, "callSid").String())
		assert.Equal(t, "Ramesh Kumar", gjson.Get(body, "consumerName").String())
		assert.Equal(t, "11111111-2222-3333-4444-555555555555", gjson.Get(body, "reportId").String())
	})

	t.Run("missing aadhaar", func(t *testing.T) {
		h := newTestHarness(t)

		rec := h.postJSON(t, "/api/report-fraud", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-numeric aadhaar", func(t *testing.T) {
		h := newTestHarness(t)

		rec := h.postJSON(t, "/api/report-fraud", map[string]string{"aadhaar": "not-a-number"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("consumer not found", func(t *testing.T) {
		h := newTestHarness(t)
		h.initiator.reptErr = ledger.ErrConsumerNotFound

		rec := h.postJSON(t, "/api/report-fraud", map[string]string{"aadhaar": "999999999999"})

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Consumer not found")
	})

	t.Run("invalid mobile", func(t *testing.T) {
		h := newTestHarness(t)
		h.initiator.reptErr = ledger.ErrInvalidMobile

		rec := h.postJSON(t, "/api/report-fraud", map[string]string{"aadhaar": "123456789012"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "mobile")
	})

	t.Run("provider failure", func(t *testing.T) {
		h := newTestHarness(t)
		h.initiator.reptErr = errors.New("twilio exploded")

		rec := h.postJSON(t, "/api/report-fraud", map[string]string{"aadhaar": "123456789012"})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "twilio exploded")
	})
}

// Report read endpoints

func TestHandleListReports(t *testing.T) {
	t.Run("derives playable url from recording reference", func(t *testing.T) {
		h := newTestHarness(t)
		report := sampleReport("CA123")
		url := "https://api.twilio.com/2010-04-01/Accounts/AC123/Recordings/RE789"
		report.RecordingURL = &url
		h.store.reports["CA123"] = report

		rec := h.get("/api/reports")

		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.True(t, gjson.Get(body, "success").Bool())
		reports := gjson.Get(body, "reports").Array()
		require.Len(t, reports, 1)
		assert.Equal(t,
			"https://fraudline.example.com/api/recording/RE789",
			reports[0].Get("playableRecordingUrl").String())
	})

	t.Run("report without recording has no playable url", func(t *testing.T) {
		h := newTestHarness(t)
		h.store.reports["CA123"] = sampleReport("CA123")

		rec := h.get("/api/reports")

		reports := gjson.Get(rec.Body.String(), "reports").Array()
		require.Len(t, reports, 1)
		assert.False(t, reports[0].Get("playableRecordingUrl").Exists())
	})

	t.Run("store failure", func(t *testing.T) {
		h := newTestHarness(t)
		h.store.listErr = errors.New("db down")

		rec := h.get("/api/reports")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleRecording(t *testing.T) {
	t.Run("streams audio with caching headers", func(t *testing.T) {
		h := newTestHarness(t)
		h.telephony.streamData = "mp3-bytes"

		rec := h.get("/api/recording/RE789")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
		assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "mp3-bytes", rec.Body.String())
	})

	t.Run("provider failure", func(t *testing.T) {
		h := newTestHarness(t)
		h.telephony.streamErr = errors.New("recording unavailable")

		rec := h.get("/api/recording/RE789")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestHandleRecordingDetails(t *testing.T) {
	t.Run("returns classification for matching report", func(t *testing.T) {
		h := newTestHarness(t)
		report := sampleReport("CA123")
		url := "https://api.twilio.com/Recordings/RE789"
		transcript := "I was given less ration"
		summary := "Complaint Analysis: ..."
		report.RecordingURL = &url
		report.Transcript = &transcript
		report.FraudSummary = &summary
		report.FraudSeverity = database.SeverityMedium
		report.Language = database.LanguageHindi
		h.store.reports["CA123"] = report

		rec := h.get("/api/recording-details/RE789")

		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Equal(t, transcript, gjson.Get(body, "transcript").String())
		assert.Equal(t, summary, gjson.Get(body, "fraudSummary").String())
		assert.Equal(t, database.SeverityMedium, gjson.Get(body, "fraudSeverity").String())
		assert.Equal(t, database.LanguageHindi, gjson.Get(body, "language").String())
	})

	t.Run("unknown recording", func(t *testing.T) {
		h := newTestHarness(t)

		rec := h.get("/api/recording-details/RE000")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Recording not found")
	})
}

func TestHandleAudioPlayer(t *testing.T) {
	t.Run("renders player page", func(t *testing.T) {
		h := newTestHarness(t)

		rec := h.get("/api/audio-player?sid=RE789")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "https://fraudline.example.com/api/recording/RE789")
	})

	t.Run("missing sid", func(t *testing.T) {
		h := newTestHarness(t)

		rec := h.get("/api/audio-player")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// Operational endpoints

func TestHandleDebug(t *testing.T) {
	h := newTestHarness(t)

	rec := h.get("/api/debug")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "AC01...", gjson.Get(body, "twilioAccountSid").String())
	assert.Equal(t, "is set (hidden)", gjson.Get(body, "twilioAuthToken").String())
	assert.Equal(t, "not set", gjson.Get(body, "geminiApiKey").String())
	assert.True(t, gjson.Get(body, "ledgerConfigured").Bool())
	assert.Equal(t, "https://fraudline.example.com", gjson.Get(body, "baseUrl").String())
	// The token itself never leaves the process
	assert.NotContains(t, body, "secret-token")
}

func TestHandleTestTwilio(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newTestHarness(t)
		h.telephony.account = &telephony.Account{FriendlyName: "Fraudline", Status: "active"}

		rec := h.get("/api/test-twilio")

		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Equal(t, "Fraudline", gjson.Get(body, "accountName").String())
		assert.Equal(t, "active", gjson.Get(body, "status").String())
	})

	t.Run("bad credentials", func(t *testing.T) {
		h := newTestHarness(t)
		h.telephony.accountErr = errors.New("authentication failed")

		rec := h.get("/api/test-twilio")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleRootAndHealth(t *testing.T) {
	h := newTestHarness(t)

	rec := h.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "online", gjson.Get(rec.Body.String(), "status").String())

	rec = h.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", gjson.Get(rec.Body.String(), "status").String())
}
