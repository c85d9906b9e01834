// Package correlation looks up a candidate file inside the application
// databases recovered alongside it and returns the provenance those databases
// record: a timestamp, a participant, a duration and a category boost.
//
// Signatures are an ordered slice and the index is the priority. A database
// belongs to the first signature whose path test accepts it; signatures are
// then tried in declared order and the first lookup that returns a row wins.
package correlation

import (
	"path/filepath"
	"strings"

	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/timeconv"
)

// Signature identifies the application that produced a database and how to
// search it for a file.
type Signature struct {
	Match      func(lowerPath string) bool
	lookup     lookupFunc
	Name       string
	Boost      model.CategoryID
	Tables     []string
	Confidence float64
	Epoch      timeconv.Epoch
}

// Recognizes reports whether dbPath looks like this signature's database.
func (s Signature) Recognizes(dbPath string) bool {
	return s.Match != nil && s.Match(strings.ToLower(strings.ReplaceAll(dbPath, `\`, "/")))
}

func contains(parts ...string) func(string) bool {
	return func(p string) bool {
		for _, part := range parts {
			if !strings.Contains(p, part) {
				return false
			}
		}
		return true
	}
}

// DefaultSignatures returns the built-in signature table in priority order.
func DefaultSignatures() []Signature {
	return []Signature{
		{
			Name:       "Voice Memos",
			Match:      contains("recordings.sqlite"),
			Tables:     []string{"ZRECORDING"},
			Boost:      model.CategoryUserContent,
			Confidence: 0.95,
			Epoch:      timeconv.EpochCocoa,
			lookup:     lookupVoiceMemos,
		},
		{
			Name:       "SMS/iMessage",
			Match:      contains("sms.db"),
			Tables:     []string{"attachment"},
			Boost:      model.CategoryCommunicationAudio,
			Confidence: 0.90,
			Epoch:      timeconv.EpochCocoa,
			lookup:     lookupSMS,
		},
		{
			Name:       "WhatsApp",
			Match:      contains("chatstorage.sqlite"),
			Tables:     []string{"ZWAMEDIAITEM", "ZWAMESSAGE", "message", "media_item"},
			Boost:      model.CategoryCommunicationAudio,
			Confidence: 0.90,
			Epoch:      timeconv.EpochCocoa,
			lookup:     lookupWhatsApp,
		},
		{
			Name:       "Telegram",
			Match:      contains("db_sqlite", "telegram"),
			Tables:     []string{"messages", "media", "documents"},
			Boost:      model.CategoryCommunicationAudio,
			Confidence: 0.85,
			Epoch:      timeconv.EpochNone,
			lookup:     lookupTelegram,
		},
		{
			Name:       "Signal",
			Match:      contains("database", "signal"),
			Tables:     []string{"part", "message", "attachment"},
			Boost:      model.CategoryCommunicationAudio,
			Confidence: 0.85,
			Epoch:      timeconv.EpochUnixSeconds,
			lookup:     lookupSignal,
		},
		{
			Name:       "Discord",
			Match:      contains("database_", "discord"),
			Tables:     []string{"attachments", "messages", "media_cache"},
			Boost:      model.CategoryCommunicationAudio,
			Confidence: 0.80,
			Epoch:      timeconv.EpochUnixMillis,
			lookup:     lookupDiscord,
		},
		{
			Name:       "Voicemail",
			Match:      contains("voicemail.db"),
			Tables:     []string{"voicemail"},
			Boost:      model.CategoryCommunicationAudio,
			Confidence: 0.95,
			Epoch:      timeconv.EpochUnixSeconds,
			lookup:     lookupVoicemail,
		},
	}
}

// sidecarSuffixes mark SQLite journal files that sit next to a database.
var sidecarSuffixes = []string{"-wal", "-shm", "-journal"}

// IsDatabasePath reports whether path names a file the correlator will probe:
// a .db or .sqlite file, or an extensionless file that a default signature
// recognizes, such as Telegram's postbox db_sqlite. Sidecars are excluded.
func IsDatabasePath(path string) bool {
	return isDatabase(path, DefaultSignatures())
}

func isDatabase(path string, sigs []Signature) bool {
	lower := strings.ToLower(strings.ReplaceAll(path, `\`, "/"))
	for _, suffix := range sidecarSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	if strings.HasSuffix(lower, ".db") || strings.HasSuffix(lower, ".sqlite") {
		return true
	}
	if filepath.Ext(lower[strings.LastIndex(lower, "/")+1:]) != "" {
		return false
	}
	for _, sig := range sigs {
		if sig.Recognizes(path) {
			return true
		}
	}
	return false
}

// FilterPool keeps the database files from pool, preserving order.
func FilterPool(pool []string) []string {
	return filterPool(pool, DefaultSignatures())
}

func filterPool(pool []string, sigs []Signature) []string {
	out := make([]string, 0, len(pool))
	for _, p := range pool {
		if isDatabase(p, sigs) {
			out = append(out, p)
		}
	}
	return out
}
