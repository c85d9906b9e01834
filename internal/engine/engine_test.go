package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eigen-Consulting/iLEAPP/internal/aggregation"
	"github.com/Eigen-Consulting/iLEAPP/internal/classification"
	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/storage"
	"github.com/Eigen-Consulting/iLEAPP/internal/testutil"
)

const (
	cocoa2024   = 725760000
	appDocs     = "private/var/mobile/Containers/Data/Application/5F1D/Documents/"
	whatsAppDir = "private/var/mobile/Containers/Shared/AppGroup/WA/Message/Media/1234@s.whatsapp.net/4/0/"
)

func newTestEngine(t *testing.T, config Config) (*Engine, *aggregation.Aggregator) {
	t.Helper()
	reader := storage.NewSQLiteReader(time.Minute)
	t.Cleanup(func() { _ = reader.Close() })

	agg := aggregation.New()
	return NewWithConfig(classification.NewDefaultClassifier(), reader, agg, config), agg
}

func candidate(t *testing.T, path string) model.CandidateFile {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		return model.NewCandidateFile(path, 0, time.Time{})
	}
	return model.NewCandidateFile(path, info.Size(), info.ModTime())
}

func candidates(t *testing.T, paths ...string) []model.CandidateFile {
	t.Helper()
	out := make([]model.CandidateFile, 0, len(paths))
	for _, p := range paths {
		out = append(out, candidate(t, p))
	}
	return out
}

func TestEngine_CustomRingtoneWithoutDatabase(t *testing.T) {
	root := t.TempDir()
	path := testutil.WriteFile(t, root, "private/var/mobile/Library/Sounds/ringtone_custom.m4a", bytes.Repeat([]byte{1}, 120000))

	e, _ := newTestEngine(t, DefaultConfig())
	result, err := e.Run(context.Background(), candidates(t, path), nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, "User Content", rec.Category)
	assert.Equal(t, "Custom Ringtone", rec.Subtype)
	assert.Equal(t, model.MethodPathBased, rec.Method)
	assert.Equal(t, model.Custom, rec.CustomDefault)
	assert.Equal(t, "117.19 KB", rec.Size)
	assert.Equal(t, "System Audio", rec.SourceApp)
	assert.Equal(t, "Library/Sounds/ringtone_custom.m4a", rec.RelativePath)
	assert.Empty(t, rec.DatabaseReference)
	assert.NotEmpty(t, rec.ContentHash)
}

func TestEngine_WhatsAppVoiceMessageBoost(t *testing.T) {
	root := t.TempDir()
	path := testutil.WriteFile(t, root, whatsAppDir+"40.m4a", []byte("opus voice note"))
	db := testutil.WhatsAppDB(t, root, testutil.WhatsAppMediaRow{
		LocalPath:   "Media/1234@s.whatsapp.net/4/0/40.m4a",
		FromJID:     "15551234567@s.whatsapp.net",
		MessageDate: cocoa2024,
		MediaType:   3,
	})

	e, _ := newTestEngine(t, DefaultConfig())
	result, err := e.Run(context.Background(), candidates(t, path), []string{db})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, model.CategoryCommunicationAudio, rec.CategoryID)
	assert.Equal(t, "Communication Audio", rec.Category)
	assert.Equal(t, "Voice Message", rec.Subtype)
	assert.Equal(t, model.MethodDatabaseEnhanced, rec.Method)
	assert.Equal(t, "WhatsApp voice message", rec.DatabaseReference)
	assert.Equal(t, "Participant: 15551234567", rec.Participant)
	assert.Equal(t, "2024-01-01 00:00:00", rec.Timestamp)
	assert.Equal(t, "WhatsApp", rec.SourceApp)
	assert.Empty(t, result.Errors)
}

func TestEngine_VoiceMemoBoostOverridesPathCategory(t *testing.T) {
	root := t.TempDir()
	// Outside every rule pattern, so the path alone says Unknown.
	path := testutil.WriteFile(t, root, "export/20240101 101500.m4a", []byte("memo"))
	db := testutil.VoiceMemosDB(t, root, testutil.VoiceMemoRow{
		Title:        "Meeting",
		URL:          "Recordings/20240101 101500.m4a",
		CreationDate: cocoa2024,
		Duration:     12.5,
	})

	e, _ := newTestEngine(t, DefaultConfig())
	result, err := e.Run(context.Background(), candidates(t, path), []string{db})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, model.CategoryUserContent, rec.CategoryID)
	assert.Equal(t, model.TierHigh, rec.Tier)
	assert.Equal(t, 3, rec.Score)
	assert.Equal(t, "Voice Recording", rec.Subtype)
	assert.Equal(t, "12.50s", rec.Duration)
	assert.Equal(t, model.Custom, rec.CustomDefault, "custom/default follows the boosted category")
}

func TestEngine_DeduplicatesIdenticalContent(t *testing.T) {
	root := t.TempDir()
	content := []byte("same recording bytes")
	first := testutil.WriteFile(t, root, appDocs+"rec1.caf", content)
	second := testutil.WriteFile(t, root, appDocs+"Recordings/rec1_copy.caf", content)
	other := testutil.WriteFile(t, root, appDocs+"rec2.caf", []byte("different"))

	for _, workers := range []int{1, 4} {
		config := DefaultConfig()
		config.Workers = workers
		e, agg := newTestEngine(t, config)

		result, err := e.Run(context.Background(), candidates(t, first, second, other), nil)
		require.NoError(t, err)
		require.Len(t, result.Records, 2, "workers=%d", workers)
		assert.Equal(t, first, result.Records[0].SourcePath, "first copy in discovery order wins")
		assert.Equal(t, other, result.Records[1].SourcePath)
		assert.Equal(t, 1, result.Duplicates)
		assert.Equal(t, 2, agg.Snapshot().ArtifactCounts[ArtifactName])
	}
}

func TestEngine_RunIsRepeatable(t *testing.T) {
	root := t.TempDir()
	path := testutil.WriteFile(t, root, appDocs+"rec1.caf", []byte("x"))

	e, _ := newTestEngine(t, DefaultConfig())
	first, err := e.Run(context.Background(), candidates(t, path), nil)
	require.NoError(t, err)
	second, err := e.Run(context.Background(), candidates(t, path), nil)
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records, "the fingerprint index is reset per run")
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestEngine_GracefulDegradation(t *testing.T) {
	root := t.TempDir()
	path := testutil.WriteFile(t, root, whatsAppDir+"41.m4a", []byte("voice"))
	corrupt := testutil.CorruptDB(t, root, testutil.WhatsAppPath)
	missing := filepath.Join(root, testutil.SMSPath)

	e, agg := newTestEngine(t, DefaultConfig())
	result, err := e.Run(context.Background(), candidates(t, path), []string{corrupt, missing, corrupt + "-wal"})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, model.MethodPathBased, rec.Method)
	assert.Equal(t, "Communication Audio", rec.Category)
	assert.Equal(t, "Voice Message", rec.Subtype)

	require.NotEmpty(t, result.Errors)
	var stageErr *common.StageError
	require.ErrorAs(t, result.Errors[0], &stageErr)
	assert.Equal(t, "correlate", stageErr.Stage)
	assert.Equal(t, len(result.Errors), agg.Snapshot().Summary.ProcessingErrors)
}

func TestEngine_UnreadableFileStillEmitted(t *testing.T) {
	root := t.TempDir()
	// A directory named like an audio file stats fine but cannot be read as a stream.
	dir := filepath.Join(root, filepath.FromSlash(appDocs+"broken.m4a"))
	require.NoError(t, os.MkdirAll(dir, 0o750))
	again := filepath.Join(root, filepath.FromSlash(appDocs+"Recordings/broken.m4a"))
	require.NoError(t, os.MkdirAll(again, 0o750))

	e, _ := newTestEngine(t, DefaultConfig())
	result, err := e.Run(context.Background(), candidates(t, dir, again), nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 2, "unhashable files are never treated as duplicates")
	assert.Empty(t, result.Records[0].ContentHash)
	assert.Equal(t, 0, result.Duplicates)
	require.Len(t, result.Errors, 2)

	var stageErr *common.StageError
	require.ErrorAs(t, result.Errors[0], &stageErr)
	assert.Equal(t, "fingerprint", stageErr.Stage)
}

func TestEngine_MissingAndUnsupportedFiles(t *testing.T) {
	root := t.TempDir()
	present := testutil.WriteFile(t, root, appDocs+"keep.m4a", []byte("a"))
	text := testutil.WriteFile(t, root, appDocs+"notes.txt", []byte("b"))
	gone := filepath.Join(root, "gone.mp3")

	e, _ := newTestEngine(t, DefaultConfig())
	result, err := e.Run(context.Background(), candidates(t, present, text, gone), nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, present, result.Records[0].SourcePath)
	assert.Equal(t, 1, result.Missing)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Errors)
}

func TestEngine_MissingFileKeepsDiscoveryMetadata(t *testing.T) {
	root := t.TempDir()
	present := testutil.WriteFile(t, root, appDocs+"keep.m4a", []byte("a"))
	mtime := time.Date(2023, 6, 1, 13, 30, 0, 0, time.UTC)
	gone := model.NewCandidateFile(filepath.Join(root, "private/var/mobile/Library/Sounds/ringtone_gone.m4a"), 120000, mtime)

	e, agg := newTestEngine(t, DefaultConfig())
	result, err := e.Run(context.Background(), []model.CandidateFile{candidate(t, present), gone}, nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, 1, result.Missing)
	assert.Empty(t, result.Errors)

	rec := result.Records[1]
	assert.Equal(t, gone.Path, rec.SourcePath)
	assert.Equal(t, "Custom Ringtone", rec.Subtype)
	assert.Equal(t, "117.19 KB", rec.Size)
	assert.Equal(t, "2023-06-01 13:30:00 UTC", rec.Timestamp)
	assert.Empty(t, rec.ContentHash)
	assert.Equal(t, 2, agg.Snapshot().ArtifactCounts[ArtifactName])
}

func TestEngine_MissingFilesAreNotDeduplicated(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	a := model.NewCandidateFile(filepath.Join(root, appDocs+"a.m4a"), 10, mtime)
	b := model.NewCandidateFile(filepath.Join(root, appDocs+"b.m4a"), 10, mtime)

	e, _ := newTestEngine(t, DefaultConfig())
	result, err := e.Run(context.Background(), []model.CandidateFile{a, b}, nil)
	require.NoError(t, err)

	assert.Len(t, result.Records, 2)
	assert.Equal(t, 2, result.Missing)
	assert.Zero(t, result.Duplicates)
}

func TestEngine_PreservesDiscoveryOrder(t *testing.T) {
	root := t.TempDir()
	var paths []string
	for i := 0; i < 40; i++ {
		name := filepath.Join(appDocs, "clip"+string(rune('a'+i%26))+string(rune('a'+i/26))+".wav")
		paths = append(paths, testutil.WriteFile(t, root, name, []byte(name)))
	}

	config := DefaultConfig()
	config.Workers = 8
	var calls int
	config.Progress = func(done, total int) {
		calls++
		assert.Equal(t, 40, total)
	}
	e, agg := newTestEngine(t, config)

	result, err := e.Run(context.Background(), candidates(t, paths...), nil)
	require.NoError(t, err)
	require.Len(t, result.Records, len(paths))
	for i, rec := range result.Records {
		assert.Equal(t, paths[i], rec.SourcePath)
	}
	assert.Equal(t, 40, calls)
	assert.Equal(t, 40, agg.Snapshot().CategoryCounts["User Content"])
}

func TestEngine_CustomExtensions(t *testing.T) {
	root := t.TempDir()
	flac := testutil.WriteFile(t, root, appDocs+"take.FLAC", []byte("f"))
	m4a := testutil.WriteFile(t, root, appDocs+"take.m4a", []byte("m"))

	config := DefaultConfig()
	config.Extensions = []string{"flac"}
	e, _ := newTestEngine(t, config)

	result, err := e.Run(context.Background(), candidates(t, flac, m4a), nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, flac, result.Records[0].SourcePath)
}

func TestEngine_CancelledContext(t *testing.T) {
	root := t.TempDir()
	path := testutil.WriteFile(t, root, appDocs+"rec.m4a", []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, _ := newTestEngine(t, DefaultConfig())
	result, err := e.Run(ctx, candidates(t, path), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestEngine_AggregatorResetPerRun(t *testing.T) {
	root := t.TempDir()
	path := testutil.WriteFile(t, root, appDocs+"rec.m4a", []byte("x"))

	e, agg := newTestEngine(t, DefaultConfig())
	agg.ReportMessagingCount("stale", 1)

	_, err := e.Run(context.Background(), candidates(t, path), nil)
	require.NoError(t, err)

	snap := agg.Snapshot()
	assert.Zero(t, snap.Summary.TotalMessages)
	assert.Equal(t, 1, snap.ArtifactCounts[ArtifactName])
}
