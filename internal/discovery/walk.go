// Package discovery finds candidate audio files and application databases
// under an extracted filesystem root.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/correlation"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
)

// ArtifactGlobs are the locations iOS extractions keep user audio and the
// databases that describe it. Use them as Options.Include to restrict a walk.
func ArtifactGlobs() []string {
	return []string{
		"*/Containers/Data/Application/*/Documents/Recordings.sqlite",
		"*/Containers/Data/Application/*/Documents/*.sqlite",
		"*/Containers/Data/Application/*/Library/CoreData/*.sqlite",
		"*/Containers/Data/Application/*/Documents/*.m4a",
		"*/Containers/Data/Application/*/Documents/*.caf",
		"*/Containers/Data/Application/*/Documents/*.mp3",
		"*/Containers/Data/Application/*/Documents/*.wav",
		"*/mobile/Media/Recordings/*",
		"*/mobile/Library/Voicemail/*",
		"*/mobile/Library/VoiceTrigger/*.wav",
		"*/mobile/Library/SMS/sms.db",
		"*/mobile/Library/SMS/Attachments/*",
		"*/mobile/Containers/Shared/AppGroup/*/ChatStorage.sqlite",
		"*/mobile/Containers/Shared/AppGroup/*/Message/Media/*",
		"*/telegram-data/account-*/postbox/db/db_sqlite*",
		"*/telegram-data/account-*/postbox/media/*",
		"*/mobile/Containers/Data/Application/*/Library/Application Support/database*.sqlite",
		"*/mobile/Containers/Data/Application/*/Library/Application Support/Attachments/*",
		"*/mobile/Containers/Data/Application/*/Documents/Database_*.sqlite",
		"*/mobile/Containers/Data/Application/*/Documents/attachments/*",
		"*/mobile/Library/Sounds/*",
		"*/containers/Bundle/Application/*/*.app/*",
		"*.amr",
		"*.aac",
		"*.opus",
		"*.ogg",
	}
}

// PhotoGlobs are the locations of the photo library and the image and video
// folders that messaging apps keep. Combine them with ArtifactGlobs when
// photos are collected too.
func PhotoGlobs() []string {
	return []string{
		"*/mobile/Media/PhotoData/Photos.sqlite",
		"*/mobile/Media/DCIM/*",
		"*/mobile/Media/PhotoData/Mutations/*",
		"*/mobile/Library/SMS/Attachments/*",
		"*/mobile/Containers/Shared/AppGroup/*/Message/Media/*",
		"*/telegram-data/account-*/postbox/media/*",
		"*/mobile/Containers/Data/Application/*/Documents/attachments/*",
		"*/mobile/Containers/Data/Application/*/Library/Application Support/Attachments/*",
	}
}

// Options controls a walk.
type Options struct {
	// Extensions selects candidate media files. Empty means every file is a candidate.
	Extensions []string
	// Include, when set, keeps only paths matching at least one glob.
	Include []string
	// Exclude drops paths matching any glob. It wins over Include.
	Exclude []string
}

// Result is what a walk found, in lexical walk order.
type Result struct {
	Candidates []model.CandidateFile
	Databases  []string
	Errors     []error
}

type matcher struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
	exts    map[string]struct{}
}

func newMatcher(opts Options) (*matcher, error) {
	m := &matcher{exts: make(map[string]struct{}, len(opts.Extensions))}
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		m.exts[ext] = struct{}{}
	}

	var err error
	if m.include, err = compileAll(opts.Include); err != nil {
		return nil, fmt.Errorf("invalid include glob: %w", err)
	}
	if m.exclude, err = compileAll(opts.Exclude); err != nil {
		return nil, fmt.Errorf("invalid exclude glob: %w", err)
	}
	return m, nil
}

func compileAll(globs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(globs))
	for _, g := range globs {
		re, err := common.CompileGlob(g)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func (m *matcher) selected(path string) bool {
	normalized := common.NormalizePath(path)
	for _, re := range m.exclude {
		if re.MatchString(normalized) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, re := range m.include {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

func (m *matcher) audio(path string) bool {
	if len(m.exts) == 0 {
		return true
	}
	_, ok := m.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Walk scans root. Unreadable subdirectories are recorded in Result.Errors and
// skipped; only an unreadable root, an invalid glob or cancellation fail the walk.
// Symbolic links are not followed.
func Walk(ctx context.Context, root string, opts Options) (*Result, error) {
	m, err := newMatcher(opts)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	logger := common.Logger(ctx)
	result := &Result{}

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == abs {
				return walkErr
			}
			logger.Warn("Skipping unreadable path", "stage", "discover", "path", path, "error", walkErr)
			result.Errors = append(result.Errors, common.NewStageError("discover", path, walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !m.selected(path) {
			return nil
		}

		if correlation.IsDatabasePath(path) {
			result.Databases = append(result.Databases, path)
			return nil
		}
		if !m.audio(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Removed between listing and stat.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			result.Errors = append(result.Errors, common.NewStageError("discover", path, err))
			return nil
		}
		result.Candidates = append(result.Candidates, model.NewCandidateFile(path, info.Size(), info.ModTime()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	logger.Info("Discovery complete",
		"root", abs,
		"candidates", len(result.Candidates),
		"databases", len(result.Databases),
		"errors", len(result.Errors))
	return result, nil
}
