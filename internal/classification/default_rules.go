package classification

import "github.com/Eigen-Consulting/iLEAPP/internal/model"

// DefaultRules returns the built-in category rule table.
//
// Order is priority: the first rule with a matching pattern wins, even when a
// later rule carries a higher relevance score. Callers get a fresh copy.
func DefaultRules() []model.CategoryRule {
	return []model.CategoryRule{
		{
			ID:          model.CategoryUserContent,
			DisplayName: "User Content",
			Tier:        model.TierHigh,
			Score:       3,
			Patterns: []string{
				"*/Library/Sounds/ringtone_*",
				"*/Containers/Data/Application/*/Documents/*.m4a",
				"*/Containers/Data/Application/*/Documents/*.caf",
				"*/Containers/Data/Application/*/Documents/*.wav",
				"*/Containers/Data/Application/*/Documents/*.mp3",
				"*/Documents/Recordings/*",
			},
		},
		{
			ID:          model.CategoryCommunicationAudio,
			DisplayName: "Communication Audio",
			Tier:        model.TierHigh,
			Score:       3,
			Patterns: []string{
				"*/mobile/Library/Voicemail/*",
				"*/Message/Media/*",
				"*/mobile/Library/SMS/Attachments/*",
				"*/postbox/media/*",
				"*/Library/Application Support/Attachments/*",
			},
		},
		{
			ID:          model.CategoryVoiceCommands,
			DisplayName: "Voice Commands",
			Tier:        model.TierMedium,
			Score:       2,
			Patterns: []string{
				"*/Library/VoiceTrigger/*",
			},
		},
		{
			ID:          model.CategorySystemAudio,
			DisplayName: "System Audio",
			Tier:        model.TierMedium,
			Score:       2,
			Patterns: []string{
				"*/Library/Sounds/*",
				"*/System/Library/Audio/*",
			},
		},
		{
			ID:          model.CategoryAppAssets,
			DisplayName: "App Assets",
			Tier:        model.TierLow,
			Score:       1,
			Patterns: []string{
				"*/containers/Bundle/Application/*/*.app/*",
				"*/*.bundle/*",
			},
		},
	}
}

// PatternPriorities is descriptive metadata carried alongside the rule table.
// Classification never consults it; table order decides ties.
var PatternPriorities = map[model.CategoryID]int{
	model.CategoryUserContent:        90,
	model.CategoryCommunicationAudio: 85,
	model.CategoryVoiceCommands:      70,
	model.CategorySystemAudio:        60,
	model.CategoryAppAssets:          40,
	model.CategoryUnknown:            10,
}

// SizeClass buckets a file size. Used as a hint only.
type SizeClass string

// Size classes.
const (
	SizeVerySmall SizeClass = "VERY_SMALL"
	SizeSmall     SizeClass = "SMALL"
	SizeMedium    SizeClass = "MEDIUM"
	SizeLarge     SizeClass = "LARGE"
	SizeVeryLarge SizeClass = "VERY_LARGE"
)

// ClassifySize returns the size bucket for size bytes.
func ClassifySize(size int64) SizeClass {
	switch {
	case size <= 5000:
		return SizeVerySmall
	case size <= 50000:
		return SizeSmall
	case size <= 500000:
		return SizeMedium
	case size <= 5000000:
		return SizeLarge
	default:
		return SizeVeryLarge
	}
}
