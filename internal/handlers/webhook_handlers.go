package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/grainlly/fraudline/internal/database"
	"github.com/grainlly/fraudline/internal/telephony"
)

// Provider webhooks. These are called by Twilio during a live call, so
// every handler acknowledges the event even when the internal update
// fails; a 5xx here would break the caller's experience mid-call.

func (h *HTTPHandler) handleVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("Failed to parse voice webhook form", "error", err)
	}
	h.logger.Info("Incoming voice webhook", "call_sid", r.PostFormValue("CallSid"))
	h.metrics.RecordWebhookEvent("voice", "ok")

	doc, err := telephony.WelcomePrompt(h.config.Twilio.PublicBaseURL + "/api/language")
	h.writeTwiML(w, doc, err)
}

func (h *HTTPHandler) handleLanguage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("Failed to parse language webhook form", "error", err)
	}
	callSID := r.PostFormValue("CallSid")
	digits := r.PostFormValue("Digits")

	// Any digit other than 2 falls back to English, including no input
	language := database.LanguageEnglish
	if digits == "2" {
		language = database.LanguageHindi
	}
	h.logger.Info("Language selected", "call_sid", callSID, "digits", digits, "language", language)

	outcome := "ok"
	if callSID != "" {
		update := database.ReportUpdate{Language: &language}
		if err := h.store.UpdateByCallSID(r.Context(), callSID, update); err != nil {
			h.logger.Error("Failed to record language selection", "call_sid", callSID, "error", err)
			outcome = "error"
		}
	}
	h.metrics.RecordWebhookEvent("language", outcome)

	doc, err := telephony.RecordPrompt(
		language,
		h.config.Twilio.PublicBaseURL+"/api/recording-complete",
		h.config.Twilio.PublicBaseURL+"/api/transcription-callback",
		h.config.Calls.MaxRecordingLength,
	)
	h.writeTwiML(w, doc, err)
}

func (h *HTTPHandler) handleRecordingComplete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("Failed to parse recording webhook form", "error", err)
	}
	callSID := r.PostFormValue("CallSid")
	recordingURL := r.PostFormValue("RecordingUrl")
	h.logger.Info("Recording complete", "call_sid", callSID, "recording_url", recordingURL)

	outcome := "ok"
	if callSID != "" && recordingURL != "" {
		now := time.Now().UTC()
		status := database.CallStatusCompleted
		update := database.ReportUpdate{
			RecordingURL: &recordingURL,
			CallStatus:   &status,
			CompletedAt:  &now,
		}
		if err := h.store.UpdateByCallSID(r.Context(), callSID, update); err != nil {
			h.logger.Error("Failed to store recording reference", "call_sid", callSID, "error", err)
			outcome = "error"
		}
	}
	h.metrics.RecordWebhookEvent("recording-complete", outcome)

	doc, err := telephony.ThankYouResponse()
	h.writeTwiML(w, doc, err)
}

func (h *HTTPHandler) handleTranscription(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("Failed to parse transcription webhook form", "error", err)
	}
	callSID := r.PostFormValue("CallSid")
	transcript := r.PostFormValue("TranscriptionText")

	outcome := "dropped"
	if callSID != "" && transcript != "" {
		outcome = h.classifyTranscript(r, callSID, transcript)
	} else {
		h.logger.Warn("Transcription webhook without usable payload", "call_sid", callSID)
	}
	h.metrics.RecordWebhookEvent("transcription-callback", outcome)

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// classifyTranscript returns the webhook outcome label: "ok" on success,
// "dropped" for events owned by no report, "error" on store failures
func (h *HTTPHandler) classifyTranscript(r *http.Request, callSID, transcript string) string {
	report, err := h.store.GetByCallSID(r.Context(), callSID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.logger.Warn("Transcription for unknown call", "call_sid", callSID)
			return "dropped"
		}
		h.logger.Error("Failed to load report for transcription", "call_sid", callSID, "error", err)
		return "error"
	}

	result := h.classifier.Classify(transcript, report.Language)
	h.metrics.RecordClassification(result.Severity)

	update := database.ReportUpdate{
		Transcript:    &transcript,
		FraudSummary:  &result.Summary,
		FraudSeverity: &result.Severity,
	}
	if err := h.store.UpdateByCallSID(r.Context(), callSID, update); err != nil {
		h.logger.Error("Failed to store classification", "call_sid", callSID, "error", err)
		return "error"
	}
	h.logger.Info("Transcript classified",
		"call_sid", callSID,
		"severity", result.Severity,
		"language", report.Language)
	return "ok"
}

func (h *HTTPHandler) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("Failed to parse call status form", "error", err)
	}
	callSID := r.PostFormValue("CallSid")
	callStatus := r.PostFormValue("CallStatus")
	h.logger.Info("Call status update", "call_sid", callSID, "status", callStatus)

	outcome := "ok"
	if callSID != "" && callStatus != "" {
		update := database.ReportUpdate{CallStatus: &callStatus}
		if err := h.store.UpdateByCallSID(r.Context(), callSID, update); err != nil {
			h.logger.Error("Failed to update call status", "call_sid", callSID, "error", err)
			outcome = "error"
		}
	}
	h.metrics.RecordWebhookEvent("call-status", outcome)

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *HTTPHandler) writeTwiML(w http.ResponseWriter, doc string, err error) {
	if err != nil {
		h.logger.Error("Failed to render TwiML", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(doc))
}
