package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eigen-Consulting/iLEAPP/internal/config"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/testutil"
)

const whatsAppMedia = "private/var/mobile/Containers/Shared/AppGroup/WA/Message/Media/1234@s.whatsapp.net/4/0/"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load(viper.New())
	require.NoError(t, err)
	return c
}

func TestEngineConfig(t *testing.T) {
	c := testConfig(t)
	c.Engine.Workers = 6
	c.Fingerprint.MaxBytes = 1024
	c.Correlation.QueryTimeout = 0

	ec := engineConfig(c, nil)
	assert.Equal(t, 6, ec.Workers)
	assert.Equal(t, int64(1024), ec.Fingerprint.MaxBytes)
	assert.Positive(t, ec.QueryTimeout, "zero keeps the engine default")
	assert.True(t, ec.ResetAggregator)
}

func TestDiscoveryOptions(t *testing.T) {
	c := testConfig(t)
	c.Discovery.Include = []string{"*/case/*"}
	assert.Equal(t, []string{"*/case/*"}, discoveryOptions(c).Include)

	c.Discovery.ArtifactGlobs = true
	opts := discoveryOptions(c)
	assert.Greater(t, len(opts.Include), 1)
	assert.Equal(t, "*/case/*", opts.Include[0])
	assert.Equal(t, []string{"*/case/*"}, c.Discovery.Include, "config is not modified")
	assert.Contains(t, opts.Include, "*/mobile/Media/PhotoData/Photos.sqlite")
	assert.Contains(t, opts.Extensions, ".heic")
	assert.Contains(t, opts.Extensions, ".m4a")

	c.Photos.Enabled = false
	opts = discoveryOptions(c)
	assert.NotContains(t, opts.Include, "*/mobile/Media/PhotoData/Photos.sqlite")
	assert.Equal(t, c.Engine.Extensions, opts.Extensions)
}

func TestPhotosConfig(t *testing.T) {
	c := testConfig(t)
	c.Engine.Workers = 3
	c.Photos.ImageExtensions = []string{".png"}

	pc := photosConfig(c)
	assert.Equal(t, 3, pc.Workers)
	assert.Equal(t, []string{".png"}, pc.ImageExtensions)
	assert.NotEmpty(t, pc.AppRules)
	assert.Positive(t, pc.QueryTimeout)
}

func TestRunPipeline(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, whatsAppMedia+"40.m4a", []byte("voice note"))
	testutil.WriteFile(t, root, whatsAppMedia+"copy/40.m4a", []byte("voice note"))
	testutil.WriteFile(t, root, "private/var/mobile/Library/Ringtones/custom.m4r", []byte("ring"))
	testutil.WriteFile(t, root, "private/var/mobile/Media/notes.txt", []byte("text"))
	testutil.WhatsAppDB(t, root, testutil.WhatsAppMediaRow{
		LocalPath:   "Media/1234@s.whatsapp.net/4/0/40.m4a",
		FromJID:     "15551234567@s.whatsapp.net",
		MessageDate: 725760000,
		MediaType:   3,
	})

	c := testConfig(t)
	c.Engine.Extensions = append(c.Engine.Extensions, ".m4r")
	c.Engine.Workers = 2

	var ticks int
	res, err := runPipeline(context.Background(), c, root, func(done, total int) { ticks++ })
	require.NoError(t, err)

	assert.Equal(t, 1, res.Databases)
	assert.Equal(t, 3, ticks)
	assert.Equal(t, 1, res.Run.Duplicates)
	require.Len(t, res.Run.Records, 2)

	voice := res.Run.Records[0]
	assert.Equal(t, "Voice Message", voice.Subtype)
	assert.Equal(t, model.MethodDatabaseEnhanced, voice.Method)
	assert.Equal(t, "2024-01-01 00:00:00", voice.Timestamp)

	snap := res.Aggregator.Snapshot()
	assert.Equal(t, 2, snap.ArtifactCounts["All User Audio"])
	assert.Equal(t, root, snap.DeviceInfo["extraction_root"])
	assert.Equal(t, res.Run.RunID.String(), snap.DeviceInfo["run_id"])
}

func TestRunPipeline_Photos(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, whatsAppMedia+"40.m4a", []byte("voice note"))
	testutil.WriteFile(t, root, "private/var/mobile/Media/DCIM/100APPLE/IMG_0001.HEIC", []byte("sunset"))
	testutil.WriteFile(t, root, whatsAppMedia+"IMG-0001.jpg", []byte("sunset"))
	testutil.WriteFile(t, root, whatsAppMedia+"IMG-0002.jpg", []byte("cat"))
	testutil.PhotosDB(t, root, testutil.PhotoAssetRow{
		Directory:   "DCIM/100APPLE",
		Filename:    "IMG_0001.HEIC",
		DateCreated: 725760000,
	})
	chats := testutil.WhatsAppDB(t, root)

	c := testConfig(t)
	res, err := runPipeline(context.Background(), c, root, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Databases)
	assert.Equal(t, 0, res.Run.Skipped, "images never reach the audio engine")
	require.Len(t, res.Run.Records, 1)

	require.NotNil(t, res.Photos)
	assert.Equal(t, 1, res.Photos.Duplicates)
	require.Len(t, res.Photos.Records, 2)

	bySource := map[string]model.PhotoRecord{}
	for _, rec := range res.Photos.Records {
		bySource[rec.SourceApp] = rec
	}
	assert.Equal(t, "IMG_0001.HEIC", bySource["Camera"].FileName)
	assert.Equal(t, "2024-01-01 00:00:00", bySource["Camera"].Timestamp)
	assert.Equal(t, "IMG-0002.jpg", bySource["WhatsApp"].FileName)
	assert.Equal(t, chats, bySource["WhatsApp"].SourceDatabase)

	snap := res.Aggregator.Snapshot()
	assert.Equal(t, 1, snap.ArtifactCounts["All User Audio"])
	assert.Equal(t, 2, snap.ArtifactCounts["All User Photos"])
}

func TestRunPipeline_PhotosDisabled(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, whatsAppMedia+"40.m4a", []byte("voice note"))
	testutil.WriteFile(t, root, whatsAppMedia+"IMG-0001.jpg", []byte("sunset"))

	c := testConfig(t)
	c.Photos.Enabled = false
	res, err := runPipeline(context.Background(), c, root, nil)
	require.NoError(t, err)

	assert.Nil(t, res.Photos)
	assert.Equal(t, 0, res.Run.Skipped)
	assert.Len(t, res.Run.Records, 1)
}

func TestRunPipeline_MissingRoot(t *testing.T) {
	_, err := runPipeline(context.Background(), testConfig(t), filepath.Join(t.TempDir(), "nope"), nil)
	require.Error(t, err)
}

func TestTSVReportRoundTrip(t *testing.T) {
	records := []model.AggregateRecord{{
		Timestamp:  "2023-06-01 13:30:00 UTC",
		Category:   "User Content",
		Subtype:    "Custom Ringtone",
		Tier:       model.TierHigh,
		Score:      3,
		SourcePath: "/x/Ringtones/a.m4r",
	}}

	var stdout bytes.Buffer
	require.NoError(t, writeTSV(&stdout, "-", records))
	assert.Contains(t, stdout.String(), "Custom Ringtone")

	path := filepath.Join(t.TempDir(), "reports", "audio.tsv")
	require.NoError(t, writeTSV(&stdout, path, records))

	loaded, err := loadTSV(path)
	require.NoError(t, err)
	assert.Equal(t, records, loaded)

	_, err = loadTSV(filepath.Join(t.TempDir(), "missing.tsv"))
	require.Error(t, err)
}

func TestWritePhotoTSV(t *testing.T) {
	records := []model.PhotoRecord{{
		Timestamp: "2024-01-01 00:00:00",
		SourceApp: "Camera",
		FileName:  "IMG_0001.HEIC",
		MediaType: model.MediaPhoto,
		Size:      2048,
	}}

	path := filepath.Join(t.TempDir(), "reports", "photos.tsv")
	require.NoError(t, writePhotoTSV(&bytes.Buffer{}, path, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Source App\t")
	assert.Contains(t, string(data), "IMG_0001.HEIC\t")
	assert.Contains(t, string(data), "\t2048\t")
}

func TestProgressForNonTerminal(t *testing.T) {
	assert.Nil(t, progressFor(&bytes.Buffer{}, true, "x"))
	assert.Nil(t, progressFor(&bytes.Buffer{}, false, "x"))
}
