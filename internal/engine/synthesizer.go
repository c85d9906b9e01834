package engine

import (
	"fmt"
	"strings"

	"github.com/Eigen-Consulting/iLEAPP/internal/classification"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
)

// ModTimeLayout formats file modification times used as fallback timestamps.
const ModTimeLayout = "2006-01-02 15:04:05 UTC"

const (
	kib = 1024
	mib = 1024 * 1024
)

// RuleLookup resolves a category id to its rule.
type RuleLookup interface {
	Rule(id model.CategoryID) (model.CategoryRule, bool)
}

// Synthesize merges the path classification and optional database context
// into one output record. It is pure: the same inputs always give the same record.
func Synthesize(c model.CandidateFile, cls model.ClassificationResult, dc *model.DatabaseContext, rules RuleLookup) model.AggregateRecord {
	rec := model.AggregateRecord{
		Timestamp:    c.ModTime.UTC().Format(ModTimeLayout),
		Category:     cls.Category,
		CategoryID:   cls.CategoryID,
		Subtype:      cls.Subtype,
		Tier:         cls.Tier,
		Score:        cls.Score,
		RelativePath: RelativePath(c.Path),
		Size:         FormatSize(c.Size),
		SourceApp:    SourceApp(c.Path),
		Method:       model.MethodPathBased,
		SourcePath:   c.Path,
	}
	if c.ModTime.IsZero() {
		rec.Timestamp = ""
	}

	if dc != nil {
		rec.Method = model.MethodDatabaseEnhanced
		rec.DatabaseReference = dc.Reference
		rec.Participant = dc.Participant
		rec.Duration = dc.Duration
		if dc.Timestamp != "" {
			rec.Timestamp = dc.Timestamp
		}
		applyBoost(&rec, dc, rules)
	}

	rec.CustomDefault = CustomDefault(c.Path, rec.CategoryID)
	return rec
}

// applyBoost overwrites category fields with the boosted rule and refines the
// subtype from the database reference. Unknown boost ids are ignored.
func applyBoost(rec *model.AggregateRecord, dc *model.DatabaseContext, rules RuleLookup) {
	if !dc.HasBoost() || rules == nil {
		return
	}
	rule, ok := rules.Rule(dc.Boost)
	if !ok {
		return
	}

	rec.CategoryID = rule.ID
	rec.Category = rule.DisplayName
	rec.Tier = rule.Tier
	rec.Score = rule.Score

	ref := strings.ToLower(dc.Reference)
	switch rule.ID {
	case model.CategoryUserContent:
		if strings.Contains(dc.Reference, "Voice Memos") {
			rec.Subtype = classification.SubtypeVoiceRecording
		}
	case model.CategoryCommunicationAudio:
		switch {
		case strings.Contains(ref, "voicemail"):
			rec.Subtype = classification.SubtypeVoicemail
		case containsAny(ref, "whatsapp", "telegram", "signal", "discord", "sms", "imessage"):
			rec.Subtype = classification.SubtypeVoiceMessage
		}
	}
}

// CustomDefault tells user-supplied audio from audio shipped with the device.
func CustomDefault(path string, id model.CategoryID) model.CustomDefault {
	switch id {
	case model.CategoryUserContent:
		return model.Custom
	case model.CategoryAppAssets:
		return model.Default
	}

	lower := strings.ToLower(path)
	switch {
	case containsAny(lower, "custom", "user"):
		return model.Custom
	case containsAny(lower, "system", "default"):
		return model.Default
	default:
		return model.UnknownOrigin
	}
}

// FormatSize renders a byte count the way examiners read it in reports.
func FormatSize(size int64) string {
	switch {
	case size > mib:
		return fmt.Sprintf("%.2f MB", float64(size)/mib)
	case size > kib:
		return fmt.Sprintf("%.2f KB", float64(size)/kib)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

// RelativePath trims everything up to and including "/mobile/".
func RelativePath(path string) string {
	const marker = "/mobile/"
	if i := strings.Index(path, marker); i >= 0 {
		return path[i+len(marker):]
	}
	return path
}

// SourceApp names the app or system area a file came from.
func SourceApp(path string) string {
	lower := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))

	switch {
	case strings.Contains(lower, "/library/voicemail/"):
		return "System Voicemail"
	case strings.Contains(lower, "/library/voicetrigger/"):
		return "Siri/Voice Triggers"
	case strings.Contains(lower, "/library/sms/"):
		return "Messages (SMS/iMessage)"
	case strings.Contains(lower, "/library/sounds/"):
		return "System Audio"
	case strings.Contains(lower, "whatsapp"):
		return "WhatsApp"
	case strings.Contains(lower, "telegram"):
		return "Telegram"
	case strings.Contains(lower, "signal"):
		return "Signal"
	case strings.Contains(lower, "discord"):
		return "Discord"
	case strings.Contains(lower, "voice") && strings.Contains(lower, "memo"):
		return "Voice Memos"
	case strings.Contains(lower, "/bundle/application/"):
		for _, part := range strings.Split(strings.ReplaceAll(path, "\\", "/"), "/") {
			if strings.HasSuffix(part, ".app") {
				return strings.TrimSuffix(part, ".app")
			}
		}
		return "Third-party App"
	default:
		return "Unknown"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
