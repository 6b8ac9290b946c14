// Package classifier assigns a fraud severity and a human-readable summary to
// complaint transcripts using fixed bilingual keyword tiers. It is pure and
// deterministic; there is no model call anywhere in this path.
package classifier

import (
	"log/slog"
	"strings"

	"github.com/grainlly/fraudline/internal/database"
)

// Result is the outcome of classifying one transcript
type Result struct {
	Summary  string
	Severity string
}

// Keyword tiers, checked in precedence order critical -> high -> medium -> low.
// The first tier with any case-insensitive substring match wins.
var (
	criticalKeywords = []string{"removed", "हटा दिया", "cancel", "रद्द", "threatened", "धमकाया"}
	highKeywords     = []string{"bribe", "रिश्वत", "threat", "धमकी", "refused", "मना कर दिया"}
	mediumKeywords   = []string{"less", "कम", "extra money", "अतिरिक्त पैसे", "charge", "वसूला"}
	lowKeywords      = []string{"quality", "poor", "गुणवत्ता", "घटिया", "waiting", "इंतज़ार"}
)

var hindiSeverityNames = map[string]string{
	database.SeverityLow:      "निम्न",
	database.SeverityMedium:   "मध्यम",
	database.SeverityHigh:     "उच्च",
	database.SeverityCritical: "अति गंभीर",
}

// Classifier classifies fraud complaint transcripts
type Classifier struct {
	logger *slog.Logger
}

// New creates a new classifier
func New(logger *slog.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Classify maps a transcript and language to a severity and summary. An empty
// transcript degrades to the medium default with an explanatory summary
// instead of failing.
func (c *Classifier) Classify(transcript, language string) Result {
	if strings.TrimSpace(transcript) == "" {
		c.logger.Warn("Classifying empty transcript, using fallback")
		return fallbackResult(language)
	}

	lower := strings.ToLower(transcript)
	severity := determineSeverity(lower)
	summary := buildSummary(lower, severity, language)

	c.logger.Debug("Transcript classified", "severity", severity, "language", language)

	return Result{Summary: summary, Severity: severity}
}

func determineSeverity(lower string) string {
	switch {
	case matchesAny(lower, criticalKeywords):
		return database.SeverityCritical
	case matchesAny(lower, highKeywords):
		return database.SeverityHigh
	case matchesAny(lower, mediumKeywords):
		return database.SeverityMedium
	case matchesAny(lower, lowKeywords):
		return database.SeverityLow
	default:
		return database.SeverityMedium
	}
}

func matchesAny(lower string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// buildSummary concatenates the base severity sentence with one clause per
// matched topic. Topic matching scans the whole transcript independently of
// which tier decided the severity.
func buildSummary(lower, severity, language string) string {
	var sb strings.Builder

	if language == database.LanguageHindi {
		sb.WriteString("शिकायत विश्लेषण: इस शिकायत में राशन वितरण से संबंधित समस्याएं पाई गईं। गंभीरता स्तर: ")
		sb.WriteString(hindiSeverityNames[severity])
		sb.WriteString("।")

		if strings.Contains(lower, "कम") || strings.Contains(lower, "less") {
			sb.WriteString(" उपभोक्ता को उनके हक से कम राशन दिया गया।")
		}
		if strings.Contains(lower, "पैसे") || strings.Contains(lower, "money") {
			sb.WriteString(" अतिरिक्त पैसे वसूले गए।")
		}
		if strings.Contains(lower, "गुणवत्ता") || strings.Contains(lower, "quality") {
			sb.WriteString(" राशन की गुणवत्ता निम्न स्तर की थी।")
		}
		if strings.Contains(lower, "रिश्वत") || strings.Contains(lower, "bribe") {
			sb.WriteString(" रिश्वत की मांग की गई थी।")
		}

		return sb.String()
	}

	sb.WriteString("Complaint Analysis: Issues related to ration distribution were found in this complaint. Severity level: ")
	sb.WriteString(severity)
	sb.WriteString(".")

	if strings.Contains(lower, "less") || strings.Contains(lower, "कम") {
		sb.WriteString(" The consumer received less ration than they were entitled to.")
	}
	if strings.Contains(lower, "money") || strings.Contains(lower, "पैसे") {
		sb.WriteString(" Extra money was charged.")
	}
	if strings.Contains(lower, "quality") || strings.Contains(lower, "गुणवत्ता") {
		sb.WriteString(" The quality of ration was poor.")
	}
	if strings.Contains(lower, "bribe") || strings.Contains(lower, "रिश्वत") {
		sb.WriteString(" There was a demand for bribes.")
	}

	return sb.String()
}

func fallbackResult(language string) Result {
	summary := "Complaint Analysis: No transcript content was available for this complaint."
	if language == database.LanguageHindi {
		summary = "शिकायत विश्लेषण: इस शिकायत के लिए कोई प्रतिलेख उपलब्ध नहीं था।"
	}
	return Result{Summary: summary, Severity: database.SeverityMedium}
}
