package telephony

import (
	"strconv"

	"github.com/twilio/twilio-go/twiml"

	"github.com/grainlly/fraudline/internal/database"
)

// Voice prompts spoken to the caller. Hindi instructions are transliterated
// so the default voice can speak them.
const (
	welcomeMessage        = "Welcome to the Ration Distribution System."
	languageGatherMessage = "For English, press 1. For Hindi, press 2."
	recordPromptEnglish   = "Please record your complaint after the beep."
	recordPromptHindi     = "Kripya apni shikayat darj karne ke liye beep ke baad boliye."
	thankYouMessage       = "Thank you for your report. We will take appropriate action. Goodbye."
)

// WelcomePrompt greets the caller and gathers one digit for language
// selection. Re-invocation produces an equivalent document, so the call-start
// webhook is idempotent.
func WelcomePrompt(languageActionURL string) (string, error) {
	verbs := []twiml.Element{
		&twiml.VoiceSay{Message: welcomeMessage},
		&twiml.VoiceGather{
			NumDigits: "1",
			Action:    languageActionURL,
			Method:    "POST",
			InnerElements: []twiml.Element{
				&twiml.VoiceSay{Message: languageGatherMessage},
			},
		},
	}
	return twiml.Voice(verbs)
}

// RecordPrompt asks for the complaint in the selected language and records
// with transcription enabled. The recording and transcription callbacks are
// delivered independently and in no guaranteed order.
func RecordPrompt(language, recordingActionURL, transcribeCallbackURL string, maxLength int) (string, error) {
	prompt := recordPromptEnglish
	if language == database.LanguageHindi {
		prompt = recordPromptHindi
	}

	verbs := []twiml.Element{
		&twiml.VoiceSay{Message: prompt},
		&twiml.VoiceRecord{
			Action:             recordingActionURL,
			Method:             "POST",
			MaxLength:          strconv.Itoa(maxLength),
			PlayBeep:           "true",
			Transcribe:         "true",
			TranscribeCallback: transcribeCallbackURL,
		},
	}
	return twiml.Voice(verbs)
}

// ThankYouResponse closes the call after the recording completes
func ThankYouResponse() (string, error) {
	verbs := []twiml.Element{
		&twiml.VoiceSay{Message: thankYouMessage},
		&twiml.VoiceHangup{},
	}
	return twiml.Voice(verbs)
}
