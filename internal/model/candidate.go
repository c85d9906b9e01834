package model

import (
	"path/filepath"
	"strings"
	"time"
)

// CandidateFile is a file discovered on the extracted filesystem.
type CandidateFile struct {
	ModTime   time.Time
	Path      string
	Extension string
	Size      int64
}

// NewCandidateFile builds a candidate from a path and its stat metadata.
// The extension is lower-cased and keeps its leading dot.
func NewCandidateFile(path string, size int64, modTime time.Time) CandidateFile {
	return CandidateFile{
		Path:      path,
		Size:      size,
		ModTime:   modTime,
		Extension: strings.ToLower(filepath.Ext(path)),
	}
}

// Name returns the base filename of the candidate, accepting either separator.
func (c CandidateFile) Name() string {
	p := strings.ReplaceAll(c.Path, "\\", "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
