package classification

import (
	"path"
	"strings"

	"github.com/Eigen-Consulting/iLEAPP/internal/model"
)

// Functional subtype labels.
const (
	SubtypeCustomRingtone    = "Custom Ringtone"
	SubtypeVoiceRecording    = "Voice Recording"
	SubtypeUserAudio         = "User Audio"
	SubtypeVoicemail         = "Voicemail"
	SubtypeVoiceMessage      = "Voice Message"
	SubtypeCommunication     = "Communication"
	SubtypeSiriVoiceTrigger  = "Siri Voice Trigger"
	SubtypeVoiceCommand      = "Voice Command"
	SubtypeNotificationSound = "Notification Sound"
	SubtypeSystemRingtone    = "System Ringtone"
	SubtypeSystemSound       = "System Sound"
	SubtypeAppNotification   = "App Notification"
	SubtypeUISoundEffect     = "UI Sound Effect"
	SubtypeAppAudioAsset     = "App Audio Asset"
	SubtypeUnclassified      = "Unclassified"
	SubtypeOther             = "Other"
)

// FunctionalSubtype picks the subtype within an already chosen category.
// normalizedPath must be case-folded with '/' separators. The result never
// changes the category.
func FunctionalSubtype(normalizedPath string, _ int64, id model.CategoryID) string {
	filename := path.Base(normalizedPath)

	switch id {
	case model.CategoryUserContent:
		switch {
		case strings.Contains(filename, "ringtone"):
			return SubtypeCustomRingtone
		case containsAny(normalizedPath, "recordings", "voice memo", "voicememo"):
			return SubtypeVoiceRecording
		default:
			return SubtypeUserAudio
		}

	case model.CategoryCommunicationAudio:
		switch {
		case strings.Contains(normalizedPath, "voicemail"):
			return SubtypeVoicemail
		case containsAny(normalizedPath, "whatsapp", "message", "chat"):
			return SubtypeVoiceMessage
		default:
			return SubtypeCommunication
		}

	case model.CategoryVoiceCommands:
		if containsAny(normalizedPath, "siri", "voicetrigger") {
			return SubtypeSiriVoiceTrigger
		}
		return SubtypeVoiceCommand

	case model.CategorySystemAudio:
		switch {
		case containsAny(filename, "notification", "alert"):
			return SubtypeNotificationSound
		case strings.Contains(filename, "ringtone"):
			return SubtypeSystemRingtone
		default:
			return SubtypeSystemSound
		}

	case model.CategoryAppAssets:
		switch {
		case containsAny(filename, "notification", "alert", "message"):
			return SubtypeAppNotification
		case containsAny(filename, "ui", "button", "click", "beep"):
			return SubtypeUISoundEffect
		default:
			return SubtypeAppAudioAsset
		}

	case model.CategoryUnknown:
		return SubtypeUnclassified
	}

	return SubtypeOther
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
