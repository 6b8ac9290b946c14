package handlers

import (
	"net/http"

	"github.com/flosch/pongo2/v6"
)

var audioPlayerTemplate = pongo2.Must(pongo2.FromString(`<!DOCTYPE html>
<html>
<head>
    <title>Fraud Report Recording</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: sans-serif; max-width: 640px; margin: 40px auto; padding: 0 16px; }
        h2 { color: #333; }
        audio { width: 100%; margin: 16px 0; }
        .sid { color: #888; font-size: 0.85em; word-break: break-all; }
    </style>
</head>
<body>
    <h2>Fraud Report Recording</h2>
    <audio controls autoplay>
        <source src="{{ base_url }}/api/recording/{{ recording_sid }}" type="audio/mpeg">
        Your browser does not support the audio element.
    </audio>
    <p class="sid">Recording SID: {{ recording_sid }}</p>
    <p><a href="{{ base_url }}/api/recording/{{ recording_sid }}" download>Download recording</a></p>
</body>
</html>`))

func (h *HTTPHandler) handleAudioPlayer(w http.ResponseWriter, r *http.Request) {
	recordingSID := r.URL.Query().Get("sid")
	if recordingSID == "" {
		h.writeError(w, http.StatusBadRequest, "Recording SID is required")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := audioPlayerTemplate.ExecuteWriter(pongo2.Context{
		"base_url":      h.config.Twilio.PublicBaseURL,
		"recording_sid": recordingSID,
	}, w)
	if err != nil {
		h.logger.Error("Failed to render audio player", "recording_sid", recordingSID, "error", err)
	}
}
