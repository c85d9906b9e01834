package photos

import (
	"fmt"
	"regexp"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/correlation"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/timeconv"
)

// fileSystemSource marks records with no owning database in the extraction.
const fileSystemSource = "File system"

// AppRule attributes media files on disk to a messaging app. Rules are tried
// in order and the first whose glob matches wins.
type AppRule struct {
	// App is the display name and the correlation signature used to find the
	// app's database in the pool.
	App      string
	BundleID string
	Album    string
	Info     string
	Patterns []string
}

// DefaultAppRules returns the built-in app media locations in priority order.
func DefaultAppRules() []AppRule {
	return []AppRule{
		{
			App:      "WhatsApp",
			BundleID: "net.whatsapp.WhatsApp",
			Album:    "WhatsApp Chat",
			Info:     "WhatsApp media file",
			Patterns: []string{"*/Containers/Shared/AppGroup/*/Message/Media/*"},
		},
		{
			App:      "Discord",
			BundleID: "com.discord.Discord",
			Album:    "Discord Chat",
			Info:     "Discord attachment",
			Patterns: []string{"*/Containers/Data/Application/*/Documents/attachments/*"},
		},
		{
			App:      "Telegram",
			BundleID: "ph.telegra.Telegraph",
			Album:    "Telegram Chat",
			Info:     "Telegram media file",
			Patterns: []string{
				"*/telegram-data/account-*/postbox/media/*",
				"*/Containers/Data/Application/*/Documents/*/attachment*/*",
			},
		},
		{
			App:      "Signal",
			BundleID: "org.whispersystems.signal",
			Album:    "Signal Chat",
			Info:     "Signal attachment",
			Patterns: []string{"*/Library/Application Support/Attachments/*"},
		},
	}
}

type compiledApp struct {
	rule     AppRule
	patterns []*regexp.Regexp
}

func compileApps(rules []AppRule) ([]compiledApp, error) {
	out := make([]compiledApp, 0, len(rules))
	for _, rule := range rules {
		if rule.App == "" {
			return nil, fmt.Errorf("%w: app rule without a name", common.ErrInvalidPattern)
		}
		app := compiledApp{rule: rule}
		for _, p := range rule.Patterns {
			re, err := common.CompileGlob(p)
			if err != nil {
				return nil, fmt.Errorf("app %s: %w", rule.App, err)
			}
			app.patterns = append(app.patterns, re)
		}
		out = append(out, app)
	}
	return out, nil
}

func (a compiledApp) matches(normalized string) bool {
	for _, re := range a.patterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// fromApps turns image and video candidates inside known app media folders
// into records, in discovery order. Timestamps come from the file mtime.
func (c *Collector) fromApps(candidates []model.CandidateFile, dbPool []string) []entry {
	sources := make(map[string]string, len(c.apps))

	var entries []entry
	for _, cand := range candidates {
		mediaType := c.MediaTypeOf(cand.Path)
		if mediaType == "" {
			continue
		}
		normalized := common.NormalizePath(cand.Path)

		for _, app := range c.apps {
			if !app.matches(normalized) {
				continue
			}
			source, ok := sources[app.rule.App]
			if !ok {
				source = appDatabase(app.rule.App, dbPool)
				sources[app.rule.App] = source
			}

			stamp := timeconv.FormatTime(cand.ModTime)
			e := entry{
				rec: model.PhotoRecord{
					Timestamp:        stamp,
					DateAdded:        stamp,
					SourceApp:        app.rule.App,
					FileName:         cand.Name(),
					FilePath:         cand.Path,
					Size:             cand.Size,
					MediaType:        mediaType,
					CreatorBundleID:  app.rule.BundleID,
					OriginalFileName: cand.Name(),
					Album:            app.rule.Album,
					AdditionalInfo:   app.rule.Info,
					SourceDatabase:   source,
				},
			}
			if size, modTime, found := stat(cand.Path); found {
				e.diskPath = cand.Path
				e.rec.Size = size
				if stamp == "" {
					e.rec.Timestamp = timeconv.FormatTime(modTime)
					e.rec.DateAdded = e.rec.Timestamp
				}
			}
			entries = append(entries, e)
			break
		}
	}
	return entries
}

// appDatabase returns the first pool database the named correlation signature
// recognizes, or fileSystemSource.
func appDatabase(app string, dbPool []string) string {
	for _, sig := range correlation.DefaultSignatures() {
		if sig.Name != app {
			continue
		}
		for _, db := range dbPool {
			if sig.Recognizes(db) {
				return db
			}
		}
	}
	return fileSystemSource
}

// appNames maps creator bundle identifiers to display names.
var appNames = map[string]string{
	"com.apple.camera":          "Camera",
	"com.apple.mobileslideshow": "Photos",
	"com.apple.MobileSMS":       "Messages",
	"com.apple.facetime":        "FaceTime",
	"net.whatsapp.WhatsApp":     "WhatsApp",
	"com.discord.Discord":       "Discord",
	"ph.telegra.Telegraph":      "Telegram",
	"org.whispersystems.signal": "Signal",
	"com.facebook.Messenger":    "Facebook Messenger",
	"com.snapchat.snapchat":     "Snapchat",
	"com.instagram.Shareext":    "Instagram",
	"com.skype.skype":           "Skype",
	"com.viber.voip":            "Viber",
	"com.zhiliaoapp.musically":  "TikTok",
}

// AppName returns the display name for a bundle identifier. Unknown
// identifiers are returned unchanged; an empty one is "Unknown".
func AppName(bundleID string) string {
	if bundleID == "" {
		return "Unknown"
	}
	if name, ok := appNames[bundleID]; ok {
		return name
	}
	return bundleID
}
