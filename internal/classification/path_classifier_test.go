package classification

import (
	"context"
	"errors"
	"testing"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClassifier(t *testing.T) {
	tests := []struct {
		name    string
		wantErr error
		rules   []model.CategoryRule
	}{
		{
			name:  "default rules",
			rules: DefaultRules(),
		},
		{
			name: "missing id",
			rules: []model.CategoryRule{
				{DisplayName: "x", Tier: model.TierLow, Patterns: []string{"*"}},
			},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name: "duplicate id",
			rules: []model.CategoryRule{
				{ID: "A", Tier: model.TierLow, Patterns: []string{"*/a/*"}},
				{ID: "A", Tier: model.TierLow, Patterns: []string{"*/b/*"}},
			},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name: "bad tier",
			rules: []model.CategoryRule{
				{ID: "A", Tier: "CRITICAL", Patterns: []string{"*/a/*"}},
			},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name: "empty pattern",
			rules: []model.CategoryRule{
				{ID: "A", Tier: model.TierLow, Patterns: []string{""}},
			},
			wantErr: common.ErrInvalidPattern,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClassifier(tt.rules)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.rules), c.RuleCount())
		})
	}
}

func TestClassifier_Classify(t *testing.T) {
	c := NewDefaultClassifier()

	tests := []struct {
		name        string
		path        string
		wantID      model.CategoryID
		wantName    string
		wantSubtype string
		wantTier    model.RelevanceTier
		wantScore   int
	}{
		{
			name:        "custom ringtone",
			path:        "/private/var/mobile/Library/Sounds/ringtone_custom.m4a",
			wantID:      model.CategoryUserContent,
			wantName:    "User Content",
			wantSubtype: SubtypeCustomRingtone,
			wantTier:    model.TierHigh,
			wantScore:   3,
		},
		{
			name:        "voice memo in app documents",
			path:        "/private/var/mobile/Containers/Data/Application/ABC/Documents/Recordings/20240101 101010.m4a",
			wantID:      model.CategoryUserContent,
			wantName:    "User Content",
			wantSubtype: SubtypeVoiceRecording,
			wantTier:    model.TierHigh,
			wantScore:   3,
		},
		{
			name:        "plain user audio",
			path:        "/private/var/mobile/Containers/Data/Application/ABC/Documents/song.mp3",
			wantID:      model.CategoryUserContent,
			wantName:    "User Content",
			wantSubtype: SubtypeUserAudio,
			wantTier:    model.TierHigh,
			wantScore:   3,
		},
		{
			name:        "voicemail",
			path:        "/private/var/mobile/Library/Voicemail/12.amr",
			wantID:      model.CategoryCommunicationAudio,
			wantName:    "Communication Audio",
			wantSubtype: SubtypeVoicemail,
			wantTier:    model.TierHigh,
			wantScore:   3,
		},
		{
			name:        "whatsapp media",
			path:        "/private/var/mobile/Containers/Shared/AppGroup/X/Message/Media/1234@s.whatsapp.net/4/0/40.opus",
			wantID:      model.CategoryCommunicationAudio,
			wantName:    "Communication Audio",
			wantSubtype: SubtypeVoiceMessage,
			wantTier:    model.TierHigh,
			wantScore:   3,
		},
		{
			name:        "telegram media",
			path:        "/private/var/mobile/telegram-data/account-1/postbox/media/part-1.ogg",
			wantID:      model.CategoryCommunicationAudio,
			wantName:    "Communication Audio",
			wantSubtype: SubtypeCommunication,
			wantTier:    model.TierHigh,
			wantScore:   3,
		},
		{
			name:        "siri trigger",
			path:        "/private/var/mobile/Library/VoiceTrigger/SAT/com.apple.siri/td/audio/1.wav",
			wantID:      model.CategoryVoiceCommands,
			wantName:    "Voice Commands",
			wantSubtype: SubtypeSiriVoiceTrigger,
			wantTier:    model.TierMedium,
			wantScore:   2,
		},
		{
			name:        "system alert",
			path:        "/private/var/mobile/Library/Sounds/new_alert.caf",
			wantID:      model.CategorySystemAudio,
			wantName:    "System Audio",
			wantSubtype: SubtypeNotificationSound,
			wantTier:    model.TierMedium,
			wantScore:   2,
		},
		{
			name:        "app bundle click",
			path:        "/private/var/containers/Bundle/Application/UUID/Game.app/button_click.caf",
			wantID:      model.CategoryAppAssets,
			wantName:    "App Assets",
			wantSubtype: SubtypeUISoundEffect,
			wantTier:    model.TierLow,
			wantScore:   1,
		},
		{
			name:        "windows separators",
			path:        `C:\extract\private\var\mobile\Library\Sounds\ringtone_x.m4a`,
			wantID:      model.CategoryUserContent,
			wantName:    "User Content",
			wantSubtype: SubtypeCustomRingtone,
			wantTier:    model.TierHigh,
			wantScore:   3,
		},
		{
			name:        "unmatched path",
			path:        "/Documents/rec1.caf",
			wantID:      model.CategoryUnknown,
			wantName:    "Unknown Audio",
			wantSubtype: SubtypeUnclassified,
			wantTier:    model.TierMedium,
			wantScore:   2,
		},
		{
			name:        "empty path",
			path:        "",
			wantID:      model.CategoryUnknown,
			wantName:    "Unknown Audio",
			wantSubtype: SubtypeUnclassified,
			wantTier:    model.TierMedium,
			wantScore:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.path, 120000)
			assert.Equal(t, tt.wantID, got.CategoryID)
			assert.Equal(t, tt.wantName, got.Category)
			assert.Equal(t, tt.wantSubtype, got.Subtype)
			assert.Equal(t, tt.wantTier, got.Tier)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, model.MethodPathBased, got.Method)
		})
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := NewDefaultClassifier()
	path := "/private/var/mobile/Library/SMS/Attachments/ab/01/voice.caf"

	first := c.Classify(path, 10)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, c.Classify(path, 10))
	}
}

func TestClassifier_FirstRuleWinsOverScore(t *testing.T) {
	rules := []model.CategoryRule{
		{ID: "LOW_FIRST", DisplayName: "Low First", Tier: model.TierLow, Score: 1, Patterns: []string{"*/shared/*"}},
		{ID: "HIGH_SECOND", DisplayName: "High Second", Tier: model.TierHigh, Score: 3, Patterns: []string{"*.m4a"}},
	}
	c, err := NewClassifier(rules)
	require.NoError(t, err)

	got := c.Classify("/data/shared/clip.m4a", 1)
	assert.Equal(t, model.CategoryID("LOW_FIRST"), got.CategoryID)
	assert.Equal(t, 1, got.Score)

	// Swapping the order swaps the winner.
	c, err = NewClassifier([]model.CategoryRule{rules[1], rules[0]})
	require.NoError(t, err)
	assert.Equal(t, model.CategoryID("HIGH_SECOND"), c.Classify("/data/shared/clip.m4a", 1).CategoryID)
}

func TestClassifier_DefaultTableOrdering(t *testing.T) {
	// A ringtone under Library/Sounds matches both USER_CONTENT and
	// SYSTEM_AUDIO; USER_CONTENT is declared first.
	c := NewDefaultClassifier()
	got := c.Classify("/var/mobile/Library/Sounds/ringtone_alert.m4a", 1)
	assert.Equal(t, model.CategoryUserContent, got.CategoryID)

	ids := make([]model.CategoryID, 0)
	for _, r := range c.Rules() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []model.CategoryID{
		model.CategoryUserContent,
		model.CategoryCommunicationAudio,
		model.CategoryVoiceCommands,
		model.CategorySystemAudio,
		model.CategoryAppAssets,
	}, ids)
}

func TestClassifier_Rule(t *testing.T) {
	c := NewDefaultClassifier()

	r, ok := c.Rule(model.CategoryCommunicationAudio)
	require.True(t, ok)
	assert.Equal(t, "Communication Audio", r.DisplayName)

	r, ok = c.Rule(model.CategoryUnknown)
	require.True(t, ok)
	assert.Equal(t, model.UnknownRule, r)

	_, ok = c.Rule("NOPE")
	assert.False(t, ok)
}

func TestClassifier_ClassifyBatch(t *testing.T) {
	c := NewDefaultClassifier()
	cands := []model.CandidateFile{
		{Path: "/var/mobile/Library/Voicemail/1.amr", Size: 100},
		{Path: "/tmp/x.mp3", Size: 100},
	}

	got, err := c.ClassifyBatch(context.Background(), cands)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, model.CategoryCommunicationAudio, got["/var/mobile/Library/Voicemail/1.amr"].CategoryID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ClassifyBatch(ctx, cands)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifySize(t *testing.T) {
	assert.Equal(t, SizeVerySmall, ClassifySize(0))
	assert.Equal(t, SizeSmall, ClassifySize(5001))
	assert.Equal(t, SizeMedium, ClassifySize(120000))
	assert.Equal(t, SizeLarge, ClassifySize(500001))
	assert.Equal(t, SizeVeryLarge, ClassifySize(5000001))
}

func TestPatternPrioritiesAreMetadataOnly(t *testing.T) {
	// Priorities disagree with nothing in the table order today, but a
	// custom table ordered against them must still follow table order.
	assert.Greater(t, PatternPriorities[model.CategoryUserContent], PatternPriorities[model.CategoryAppAssets])

	rules := DefaultRules()
	reversed := make([]model.CategoryRule, 0, len(rules))
	for i := len(rules) - 1; i >= 0; i-- {
		reversed = append(reversed, rules[i])
	}
	c, err := NewClassifier(reversed)
	require.NoError(t, err)

	// Library/Sounds ringtone now hits SYSTEM_AUDIO first.
	got := c.Classify("/var/mobile/Library/Sounds/ringtone_a.m4a", 1)
	assert.Equal(t, model.CategorySystemAudio, got.CategoryID)
	assert.Equal(t, SubtypeSystemRingtone, got.Subtype)
}
