package model

// CategoryID is the stable key of a forensic category.
type CategoryID string

// Built-in category identifiers.
const (
	CategoryUserContent        CategoryID = "USER_CONTENT"
	CategoryCommunicationAudio CategoryID = "COMMUNICATION_AUDIO"
	CategoryVoiceCommands      CategoryID = "VOICE_COMMANDS"
	CategorySystemAudio        CategoryID = "SYSTEM_AUDIO"
	CategoryAppAssets          CategoryID = "APP_ASSETS"
	CategoryUnknown            CategoryID = "UNKNOWN"
)

// RelevanceTier ranks how much evidentiary weight a category carries.
type RelevanceTier string

// Relevance tiers.
const (
	TierHigh   RelevanceTier = "HIGH"
	TierMedium RelevanceTier = "MEDIUM"
	TierLow    RelevanceTier = "LOW"
)

// Score returns the numeric relevance score for the tier (3/2/1).
// Unrecognized tiers score as MEDIUM.
func (t RelevanceTier) Score() int {
	switch t {
	case TierHigh:
		return 3
	case TierLow:
		return 1
	default:
		return 2
	}
}

// Valid reports whether t is one of the known tiers.
func (t RelevanceTier) Valid() bool {
	return t == TierHigh || t == TierMedium || t == TierLow
}

// CategoryRule describes one entry of the category rule table.
// Rules are immutable once the table is loaded; their position in the
// table is their priority.
type CategoryRule struct {
	ID          CategoryID    `json:"id" mapstructure:"id"`
	DisplayName string        `json:"display_name" mapstructure:"display_name"`
	Tier        RelevanceTier `json:"tier" mapstructure:"tier"`
	Score       int           `json:"score" mapstructure:"score"`
	Patterns    []string      `json:"patterns" mapstructure:"patterns"`
}

// UnknownRule is the synthetic rule returned when nothing matches.
var UnknownRule = CategoryRule{
	ID:          CategoryUnknown,
	DisplayName: "Unknown Audio",
	Tier:        TierMedium,
	Score:       2,
}
