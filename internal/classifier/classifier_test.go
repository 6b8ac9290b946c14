package classifier

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grainlly/fraudline/internal/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestClassifySeverityTiers(t *testing.T) {
	c := New(testLogger())

	tests := []struct {
		name       string
		transcript string
		expected   string
	}{
		{
			name:       "critical keyword",
			transcript: "My name was removed from the list",
			expected:   database.SeverityCritical,
		},
		{
			name:       "critical hindi keyword",
			transcript: "मेरा राशन कार्ड रद्द कर दिया गया",
			expected:   database.SeverityCritical,
		},
		{
			name:       "high keyword",
			transcript: "The dealer asked for a bribe",
			expected:   database.SeverityHigh,
		},
		{
			name:       "medium keyword",
			transcript: "I was given less rice than my quota",
			expected:   database.SeverityMedium,
		},
		{
			name:       "low keyword",
			transcript: "The quality of the wheat was bad",
			expected:   database.SeverityLow,
		},
		{
			name:       "no keyword defaults to medium",
			transcript: "I have a complaint about the shop",
			expected:   database.SeverityMedium,
		},
		{
			name:       "matching is case insensitive",
			transcript: "The dealer THREATENED me",
			expected:   database.SeverityCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(tt.transcript, database.LanguageEnglish)
			assert.Equal(t, tt.expected, result.Severity)
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	c := New(testLogger())

	// Critical tier wins over every lower tier present in the same transcript
	transcript := "They removed my card, demanded a bribe, gave less ration and the quality was poor"
	result := c.Classify(transcript, database.LanguageEnglish)
	assert.Equal(t, database.SeverityCritical, result.Severity)

	// High beats medium and low
	transcript = "He refused to give my ration and charged extra money for poor quality grain"
	result = c.Classify(transcript, database.LanguageEnglish)
	assert.Equal(t, database.SeverityHigh, result.Severity)
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := New(testLogger())

	transcript := "I got less ration and he asked for extra money"
	first := c.Classify(transcript, database.LanguageEnglish)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Classify(transcript, database.LanguageEnglish))
	}
}

func TestClassifySummaryTopics(t *testing.T) {
	c := New(testLogger())

	t.Run("english summary includes matched topics", func(t *testing.T) {
		result := c.Classify("I received less ration and he charged extra money", database.LanguageEnglish)

		assert.True(t, strings.HasPrefix(result.Summary, "Complaint Analysis:"))
		assert.Contains(t, result.Summary, "Severity level: medium.")
		assert.Contains(t, result.Summary, "The consumer received less ration than they were entitled to.")
		assert.Contains(t, result.Summary, "Extra money was charged.")
		assert.NotContains(t, result.Summary, "quality")
		assert.NotContains(t, result.Summary, "bribes")
	})

	t.Run("hindi summary uses localized severity name", func(t *testing.T) {
		result := c.Classify("राशन कम मिला और रिश्वत मांगी गई", database.LanguageHindi)

		assert.Equal(t, database.SeverityHigh, result.Severity)
		assert.Contains(t, result.Summary, "गंभीरता स्तर: उच्च।")
		assert.Contains(t, result.Summary, "उपभोक्ता को उनके हक से कम राशन दिया गया।")
		assert.Contains(t, result.Summary, "रिश्वत की मांग की गई थी।")
	})

	t.Run("topic clauses are independent of the deciding tier", func(t *testing.T) {
		// Severity comes from the critical tier but the summary still
		// mentions the bribe topic
		result := c.Classify("They cancelled my card after I refused to pay a bribe", database.LanguageEnglish)

		assert.Equal(t, database.SeverityCritical, result.Severity)
		assert.Contains(t, result.Summary, "There was a demand for bribes.")
	})
}

func TestClassifyEmptyTranscript(t *testing.T) {
	c := New(testLogger())

	t.Run("english fallback", func(t *testing.T) {
		result := c.Classify("   ", database.LanguageEnglish)
		assert.Equal(t, database.SeverityMedium, result.Severity)
		assert.Equal(t, "Complaint Analysis: No transcript content was available for this complaint.", result.Summary)
	})

	t.Run("hindi fallback", func(t *testing.T) {
		result := c.Classify("", database.LanguageHindi)
		assert.Equal(t, database.SeverityMedium, result.Severity)
		assert.Equal(t, "शिकायत विश्लेषण: इस शिकायत के लिए कोई प्रतिलेख उपलब्ध नहीं था।", result.Summary)
	})
}
