package storage

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a reader that is closed with the test.
func createTestReader(t *testing.T) *SQLiteReader {
	t.Helper()
	r := NewSQLiteReader(0)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func fileDigest(t *testing.T, path string) [32]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return sha256.Sum256(data)
}

func TestSQLiteReader_Query(t *testing.T) {
	root := t.TempDir()
	dbPath := testutil.VoiceMemosDB(t, root,
		testutil.VoiceMemoRow{Title: "Lecture", URL: "Recordings/20240101 101010.m4a", Duration: 61.5, CreationDate: 725760000},
		testutil.VoiceMemoRow{Title: "Call notes", URL: "Recordings/20240102 090000.m4a", Duration: 12},
	)
	r := createTestReader(t)
	ctx := context.Background()

	rows, err := r.Query(ctx, dbPath, `SELECT ZTITLE, ZDURATION FROM ZRECORDING WHERE ZURL LIKE ?`, "%20240101%")
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var title string
	var duration float64
	require.NoError(t, rows.Scan(&title, &duration))
	assert.Equal(t, "Lecture", title)
	assert.InDelta(t, 61.5, duration, 0.001)
	assert.False(t, rows.Next())
	require.NoError(t, rows.Err())
}

func TestSQLiteReader_DoesNotModifySource(t *testing.T) {
	root := t.TempDir()
	dbPath := testutil.SMSDB(t, root, testutil.SMSAttachmentRow{Filename: "~/Library/SMS/Attachments/aa/01/Audio Message.caf", Handle: "+15555550100"})
	before := fileDigest(t, dbPath)

	r := createTestReader(t)
	ctx := context.Background()

	rows, err := r.Query(ctx, dbPath, `SELECT COUNT(*) FROM attachment`)
	require.NoError(t, err)
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	require.NoError(t, rows.Close())
	assert.Equal(t, 1, n)

	require.NoError(t, r.Close())
	assert.Equal(t, before, fileDigest(t, dbPath))

	_, statErr := os.Stat(dbPath + "-journal")
	assert.True(t, os.IsNotExist(statErr))
}

func TestSQLiteReader_TableExists(t *testing.T) {
	root := t.TempDir()
	dbPath := testutil.WhatsAppDB(t, root, testutil.WhatsAppMediaRow{LocalPath: "Media/x/40.m4a", MediaType: 3})
	r := createTestReader(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		table   string
		want    bool
		wantErr error
	}{
		{name: "exact case", table: "ZWAMEDIAITEM", want: true},
		{name: "case insensitive", table: "zwamessage", want: true},
		{name: "missing", table: "ZWACHATSESSION", want: false},
		{name: "invalid identifier", table: "x y", wantErr: ErrInvalidTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.TableExists(ctx, dbPath, tt.table)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLiteReader_Columns(t *testing.T) {
	root := t.TempDir()
	dbPath := testutil.DiscordDB(t, root)
	r := createTestReader(t)
	ctx := context.Background()

	cols, err := r.Columns(ctx, dbPath, "attachments")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "message_id", "filename", "url", "size"}, cols)
	assert.True(t, HasColumn(cols, "FILENAME"))
	assert.False(t, HasColumn(cols, "data"))

	// Served from the schema cache the second time.
	again, err := r.Columns(ctx, dbPath, "attachments")
	require.NoError(t, err)
	assert.Equal(t, cols, again)

	_, err = r.Columns(ctx, dbPath, "media_cache")
	assert.ErrorIs(t, err, common.ErrTableMissing)
}

func TestSQLiteReader_Errors(t *testing.T) {
	root := t.TempDir()
	corrupt := testutil.CorruptDB(t, root, "private/var/mobile/Library/SMS/sms.db")
	valid := testutil.TelegramDB(t, root, "voice-1.ogg")

	r := createTestReader(t)
	ctx := context.Background()

	t.Run("corrupt file", func(t *testing.T) {
		_, err := r.TableExists(ctx, corrupt, "attachment")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrDatabaseCorrupted)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := r.Query(ctx, filepath.Join(root, "nope.db"), `SELECT 1`)
		require.Error(t, err)
		_, statErr := os.Stat(filepath.Join(root, "nope.db"))
		assert.True(t, os.IsNotExist(statErr), "read-only open must not create the file")
	})

	t.Run("missing table", func(t *testing.T) {
		_, err := r.Query(ctx, valid, `SELECT * FROM documents`)
		assert.ErrorIs(t, err, common.ErrTableMissing)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := r.Query(ctx, " ", `SELECT 1`)
		assert.ErrorIs(t, err, ErrEmptyString)
	})

	t.Run("closed reader", func(t *testing.T) {
		closed := NewSQLiteReader(0)
		require.NoError(t, closed.Close())
		_, err := closed.Query(ctx, valid, `SELECT 1`)
		assert.ErrorIs(t, err, ErrReaderClosed)
	})
}

func TestSQLiteReader_PathWithSpaces(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Application Support", "a#b")
	dbPath := testutil.TelegramDB(t, root, "voice-1.ogg")
	r := createTestReader(t)

	ok, err := r.TableExists(context.Background(), dbPath, "media")
	require.NoError(t, err)
	assert.True(t, ok)
}
