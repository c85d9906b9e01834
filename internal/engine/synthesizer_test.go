package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Eigen-Consulting/iLEAPP/internal/classification"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
)

func TestSynthesize(t *testing.T) {
	classifier := classification.NewDefaultClassifier()
	mtime := time.Date(2023, 6, 1, 8, 30, 0, 0, time.FixedZone("EST", -5*3600))

	tests := []struct {
		name    string
		path    string
		dc      *model.DatabaseContext
		want    func(t *testing.T, rec model.AggregateRecord)
		size    int64
		zeroMod bool
	}{
		{
			name: "path only uses mtime in UTC",
			path: "/x/private/var/mobile/Library/Voicemail/12.amr",
			size: 2048,
			want: func(t *testing.T, rec model.AggregateRecord) {
				assert.Equal(t, "2023-06-01 13:30:00 UTC", rec.Timestamp)
				assert.Equal(t, "Communication Audio", rec.Category)
				assert.Equal(t, "Voicemail", rec.Subtype)
				assert.Equal(t, model.MethodPathBased, rec.Method)
				assert.Equal(t, "System Voicemail", rec.SourceApp)
				assert.Equal(t, "Library/Voicemail/12.amr", rec.RelativePath)
				assert.Equal(t, "2.00 KB", rec.Size)
				assert.Equal(t, model.UnknownOrigin, rec.CustomDefault)
				assert.Empty(t, rec.Duration)
				assert.Empty(t, rec.Participant)
			},
		},
		{
			name: "context without boost keeps path category",
			path: "/x/private/var/mobile/Library/Voicemail/12.amr",
			dc: &model.DatabaseContext{
				Reference:   "System Voicemail",
				Timestamp:   "2024-01-01 00:00:00",
				Participant: "From: +15550100",
				Duration:    "31s",
			},
			want: func(t *testing.T, rec model.AggregateRecord) {
				assert.Equal(t, "2024-01-01 00:00:00", rec.Timestamp)
				assert.Equal(t, model.MethodDatabaseEnhanced, rec.Method)
				assert.Equal(t, "Voicemail", rec.Subtype)
				assert.Equal(t, "31s", rec.Duration)
				assert.Equal(t, "From: +15550100", rec.Participant)
			},
		},
		{
			name: "context without timestamp keeps mtime",
			path: "/x/private/var/mobile/Media/telegram-data/account-1/postbox/media/voice.ogg",
			dc: &model.DatabaseContext{
				Reference: "Telegram voice message",
				Boost:     model.CategoryCommunicationAudio,
			},
			want: func(t *testing.T, rec model.AggregateRecord) {
				assert.Equal(t, "2023-06-01 13:30:00 UTC", rec.Timestamp)
				assert.Equal(t, "Voice Message", rec.Subtype)
				assert.Equal(t, "Telegram", rec.SourceApp)
			},
		},
		{
			name: "boost to user content from voice memos",
			path: "/x/unsorted/clip.m4a",
			dc: &model.DatabaseContext{
				Reference: "Voice Memos: Interview",
				Boost:     model.CategoryUserContent,
			},
			want: func(t *testing.T, rec model.AggregateRecord) {
				assert.Equal(t, model.CategoryUserContent, rec.CategoryID)
				assert.Equal(t, "User Content", rec.Category)
				assert.Equal(t, model.TierHigh, rec.Tier)
				assert.Equal(t, 3, rec.Score)
				assert.Equal(t, "Voice Recording", rec.Subtype)
				assert.Equal(t, model.Custom, rec.CustomDefault)
			},
		},
		{
			name: "boost to communication from sms",
			path: "/x/unsorted/clip.m4a",
			dc: &model.DatabaseContext{
				Reference: "SMS/iMessage attachment",
				Boost:     model.CategoryCommunicationAudio,
			},
			want: func(t *testing.T, rec model.AggregateRecord) {
				assert.Equal(t, "Communication Audio", rec.Category)
				assert.Equal(t, "Voice Message", rec.Subtype)
			},
		},
		{
			name: "boost with unrecognised reference keeps path subtype",
			path: "/x/unsorted/clip.m4a",
			dc: &model.DatabaseContext{
				Reference: "Some other store",
				Boost:     model.CategoryCommunicationAudio,
			},
			want: func(t *testing.T, rec model.AggregateRecord) {
				assert.Equal(t, "Communication Audio", rec.Category)
				assert.Equal(t, "Unclassified", rec.Subtype)
			},
		},
		{
			name: "unknown boost id is ignored",
			path: "/x/unsorted/clip.m4a",
			dc: &model.DatabaseContext{
				Reference: "Mystery",
				Boost:     model.CategoryID("NOPE"),
			},
			want: func(t *testing.T, rec model.AggregateRecord) {
				assert.Equal(t, "Unknown Audio", rec.Category)
				assert.Equal(t, model.MethodDatabaseEnhanced, rec.Method)
			},
		},
		{
			name:    "zero mtime leaves timestamp empty",
			path:    "/x/unsorted/clip.m4a",
			zeroMod: true,
			want: func(t *testing.T, rec model.AggregateRecord) {
				assert.Empty(t, rec.Timestamp)
				assert.Len(t, rec.Row(), len(model.RecordHeaders))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := mtime
			if tt.zeroMod {
				mod = time.Time{}
			}
			c := model.NewCandidateFile(tt.path, tt.size, mod)
			cls := classifier.Classify(c.Path, c.Size)

			rec := Synthesize(c, cls, tt.dc, classifier)
			tt.want(t, rec)
			assert.Equal(t, rec, Synthesize(c, cls, tt.dc, classifier), "synthesis is deterministic")
			assert.Equal(t, tt.path, rec.SourcePath)
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		want string
		size int64
	}{
		{"0 bytes", 0},
		{"1024 bytes", 1024},
		{"1.00 KB", 1025},
		{"117.19 KB", 120000},
		{"1024.00 KB", 1024 * 1024},
		{"1.50 MB", 1024*1024 + 512*1024},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.size), "size %d", tt.size)
	}
}

func TestSourceApp(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/p/mobile/Library/Voicemail/1.amr", "System Voicemail"},
		{"/p/mobile/Library/VoiceTrigger/td/audio.wav", "Siri/Voice Triggers"},
		{"/p/mobile/Library/SMS/Attachments/aa/01/a.caf", "Messages (SMS/iMessage)"},
		{"/p/mobile/Library/Sounds/custom.m4r", "System Audio"},
		{"/p/AppGroup/WhatsApp/Message/Media/a.opus", "WhatsApp"},
		{"/p/telegram-data/account-1/postbox/media/a.ogg", "Telegram"},
		{"/p/AppGroup/Signal/Attachments/a.aac", "Signal"},
		{"/p/Discord/Documents/a.m4a", "Discord"},
		{"/p/Media/Voice Memos/a.m4a", "Voice Memos"},
		{"/p/Containers/Bundle/Application/ABC/Game.app/sfx/beep.caf", "Game"},
		{"/p/Containers/Bundle/Application/ABC/sfx/beep.caf", "Third-party App"},
		{`C:\p\Library\Voicemail\1.amr`, "System Voicemail"},
		{"/p/elsewhere/a.mp3", "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SourceApp(tt.path), tt.path)
	}
}

func TestRelativePath(t *testing.T) {
	assert.Equal(t, "Library/Sounds/a.m4a", RelativePath("/root/private/var/mobile/Library/Sounds/a.m4a"))
	assert.Equal(t, "/root/elsewhere/a.m4a", RelativePath("/root/elsewhere/a.m4a"))
}

func TestCustomDefault(t *testing.T) {
	tests := []struct {
		path string
		id   model.CategoryID
		want model.CustomDefault
	}{
		{"/system/x.caf", model.CategoryUserContent, model.Custom},
		{"/custom/x.caf", model.CategoryAppAssets, model.Default},
		{"/Custom/x.caf", model.CategorySystemAudio, model.Custom},
		{"/users/x.caf", model.CategoryUnknown, model.Custom},
		{"/System/Library/Audio/x.caf", model.CategorySystemAudio, model.Default},
		{"/defaults/x.caf", model.CategoryVoiceCommands, model.Default},
		{"/other/x.caf", model.CategoryCommunicationAudio, model.UnknownOrigin},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CustomDefault(tt.path, tt.id), tt.path)
	}
}
