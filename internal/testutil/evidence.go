// Package testutil builds application databases and extraction trees for tests.
// Every fixture lives under a caller-supplied root (normally t.TempDir()) and is
// closed before it is returned, so readers see a committed file.
//
// Example:
//
//	root := t.TempDir()
//	db := testutil.WhatsAppDB(t, root, testutil.WhatsAppMediaRow{
//		LocalPath: "Media/1234@s.whatsapp.net/4/0/40.m4a",
//		MediaType: 3,
//	})
package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Default locations of the fixture databases, relative to the extraction root.
// Each one satisfies exactly one correlation signature.
const (
	VoiceMemosPath = "private/var/mobile/Media/Recordings/Recordings.sqlite"
	SMSPath        = "private/var/mobile/Library/SMS/sms.db"
	WhatsAppPath   = "private/var/mobile/Containers/Shared/AppGroup/WA/ChatStorage.sqlite"
	TelegramPath   = "private/var/mobile/Containers/Shared/AppGroup/TG/telegram-data/account-1/postbox/db/db_sqlite"
	SignalPath     = "private/var/mobile/Containers/Shared/AppGroup/Signal/grdb/database.sqlite"
	DiscordPath    = "private/var/mobile/Containers/Data/Application/Discord/Documents/database_v2.db"
	VoicemailPath  = "private/var/mobile/Library/Voicemail/voicemail.db"
	PhotosPath     = "private/var/mobile/Media/PhotoData/Photos.sqlite"
)

// EvidenceDB is a writable SQLite file being seeded for a test.
type EvidenceDB struct {
	t    *testing.T
	db   *sql.DB
	Path string
}

// NewEvidenceDB creates an empty database at root/rel, creating parent directories.
func NewEvidenceDB(t *testing.T, root, rel string) *EvidenceDB {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create fixture directory: %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open fixture database %s: %v", path, err)
	}
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return &EvidenceDB{t: t, db: db, Path: path}
}

// Exec runs a statement, failing the test on error.
func (e *EvidenceDB) Exec(query string, args ...any) *EvidenceDB {
	e.t.Helper()
	if _, err := e.db.Exec(query, args...); err != nil {
		e.t.Fatalf("fixture statement failed: %v\n%s", err, query)
	}
	return e
}

// Close flushes the database and returns its path.
func (e *EvidenceDB) Close() string {
	e.t.Helper()
	if err := e.db.Close(); err != nil {
		e.t.Fatalf("failed to close fixture database: %v", err)
	}
	return e.Path
}

// VoiceMemoRow is one ZRECORDING row.
type VoiceMemoRow struct {
	Title        string
	URL          string
	CreationDate float64
	Duration     float64
}

// VoiceMemosDB builds a Voice Memos store at VoiceMemosPath.
func VoiceMemosDB(t *testing.T, root string, rows ...VoiceMemoRow) string {
	t.Helper()
	e := NewEvidenceDB(t, root, VoiceMemosPath).
		Exec(`CREATE TABLE ZRECORDING (
			Z_PK INTEGER PRIMARY KEY,
			ZCREATIONDATE TIMESTAMP,
			ZDURATION FLOAT,
			ZTITLE VARCHAR,
			ZURL VARCHAR
		)`)
	for _, r := range rows {
		e.Exec(`INSERT INTO ZRECORDING (ZCREATIONDATE, ZDURATION, ZTITLE, ZURL) VALUES (?, ?, ?, ?)`,
			r.CreationDate, r.Duration, r.Title, r.URL)
	}
	return e.Close()
}

// SMSAttachmentRow is an attachment with its owning message and handle.
type SMSAttachmentRow struct {
	Filename    string
	Text        string
	Handle      string
	MimeType    string
	CreatedDate float64
	Date        float64
}

// SMSDB builds an sms.db with attachment, message, handle and the join table.
func SMSDB(t *testing.T, root string, rows ...SMSAttachmentRow) string {
	t.Helper()
	e := NewEvidenceDB(t, root, SMSPath).
		Exec(`CREATE TABLE handle (ROWID INTEGER PRIMARY KEY AUTOINCREMENT, id TEXT NOT NULL)`).
		Exec(`CREATE TABLE message (ROWID INTEGER PRIMARY KEY AUTOINCREMENT, text TEXT, handle_id INTEGER DEFAULT 0, date INTEGER)`).
		Exec(`CREATE TABLE attachment (ROWID INTEGER PRIMARY KEY AUTOINCREMENT, created_date INTEGER DEFAULT 0, filename TEXT, mime_type TEXT)`).
		Exec(`CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER)`)
	for i, r := range rows {
		id := i + 1
		e.Exec(`INSERT INTO handle (ROWID, id) VALUES (?, ?)`, id, r.Handle)
		e.Exec(`INSERT INTO message (ROWID, text, handle_id, date) VALUES (?, ?, ?, ?)`, id, r.Text, id, r.Date)
		e.Exec(`INSERT INTO attachment (ROWID, created_date, filename, mime_type) VALUES (?, ?, ?, ?)`,
			id, r.CreatedDate, r.Filename, nullIfEmpty(r.MimeType))
		e.Exec(`INSERT INTO message_attachment_join (message_id, attachment_id) VALUES (?, ?)`, id, id)
	}
	return e.Close()
}

// WhatsAppMediaRow is a ZWAMEDIAITEM row with its ZWAMESSAGE.
type WhatsAppMediaRow struct {
	LocalPath   string
	FromJID     string
	ToJID       string
	MessageDate float64
	MediaType   int
}

// WhatsAppDB builds a ChatStorage.sqlite at WhatsAppPath.
func WhatsAppDB(t *testing.T, root string, rows ...WhatsAppMediaRow) string {
	t.Helper()
	e := NewEvidenceDB(t, root, WhatsAppPath).
		Exec(`CREATE TABLE ZWAMESSAGE (
			Z_PK INTEGER PRIMARY KEY,
			ZMESSAGEDATE TIMESTAMP,
			ZFROMJID VARCHAR,
			ZTOJID VARCHAR,
			ZMEDIAITEM INTEGER
		)`).
		Exec(`CREATE TABLE ZWAMEDIAITEM (
			Z_PK INTEGER PRIMARY KEY,
			ZMESSAGE INTEGER,
			ZMEDIALOCALPATH VARCHAR,
			ZMEDIATYPE INTEGER
		)`)
	for i, r := range rows {
		id := i + 1
		e.Exec(`INSERT INTO ZWAMESSAGE (Z_PK, ZMESSAGEDATE, ZFROMJID, ZTOJID, ZMEDIAITEM) VALUES (?, ?, ?, ?, ?)`,
			id, r.MessageDate, nullIfEmpty(r.FromJID), nullIfEmpty(r.ToJID), id)
		e.Exec(`INSERT INTO ZWAMEDIAITEM (Z_PK, ZMESSAGE, ZMEDIALOCALPATH, ZMEDIATYPE) VALUES (?, ?, ?, ?)`,
			id, id, r.LocalPath, r.MediaType)
	}
	return e.Close()
}

// LegacyWhatsAppDB builds a ChatStorage.sqlite with only ZWAMESSAGE, where
// ZMEDIAITEM holds the media path text.
func LegacyWhatsAppDB(t *testing.T, root string, rows ...WhatsAppMediaRow) string {
	t.Helper()
	e := NewEvidenceDB(t, root, WhatsAppPath).
		Exec(`CREATE TABLE ZWAMESSAGE (
			Z_PK INTEGER PRIMARY KEY,
			ZMESSAGEDATE TIMESTAMP,
			ZFROMJID VARCHAR,
			ZTOJID VARCHAR,
			ZMEDIAITEM VARCHAR
		)`)
	for _, r := range rows {
		e.Exec(`INSERT INTO ZWAMESSAGE (ZMESSAGEDATE, ZFROMJID, ZTOJID, ZMEDIAITEM) VALUES (?, ?, ?, ?)`,
			r.MessageDate, nullIfEmpty(r.FromJID), nullIfEmpty(r.ToJID), r.LocalPath)
	}
	return e.Close()
}

// TelegramDB builds a postbox database with a media table of file names.
func TelegramDB(t *testing.T, root string, filenames ...string) string {
	t.Helper()
	e := NewEvidenceDB(t, root, TelegramPath).
		Exec(`CREATE TABLE media (id INTEGER PRIMARY KEY, filename TEXT, size INTEGER)`)
	for _, name := range filenames {
		e.Exec(`INSERT INTO media (filename, size) VALUES (?, 0)`, name)
	}
	return e.Close()
}

// SignalPartRow is a part row with its message.
type SignalPartRow struct {
	DataURI     string
	ContentType string
	Address     string
	DateSent    int64
}

// SignalDB builds a Signal database with part and message tables.
func SignalDB(t *testing.T, root string, rows ...SignalPartRow) string {
	t.Helper()
	e := NewEvidenceDB(t, root, SignalPath).
		Exec(`CREATE TABLE message (_id INTEGER PRIMARY KEY, date_sent INTEGER, address TEXT)`).
		Exec(`CREATE TABLE part (_id INTEGER PRIMARY KEY, mid INTEGER, data_uri TEXT, content_type TEXT)`)
	for i, r := range rows {
		id := i + 1
		e.Exec(`INSERT INTO message (_id, date_sent, address) VALUES (?, ?, ?)`, id, r.DateSent, nullIfEmpty(r.Address))
		e.Exec(`INSERT INTO part (_id, mid, data_uri, content_type) VALUES (?, ?, ?, ?)`, id, id, r.DataURI, r.ContentType)
	}
	return e.Close()
}

// DiscordAttachmentRow is an attachment with its message.
type DiscordAttachmentRow struct {
	Filename  string
	URL       string
	AuthorID  string
	Size      int64
	Timestamp int64
}

// DiscordDB builds a Discord cache database with attachments and messages.
func DiscordDB(t *testing.T, root string, rows ...DiscordAttachmentRow) string {
	t.Helper()
	e := NewEvidenceDB(t, root, DiscordPath).
		Exec(`CREATE TABLE messages (id INTEGER PRIMARY KEY, timestamp INTEGER, author_id TEXT)`).
		Exec(`CREATE TABLE attachments (id INTEGER PRIMARY KEY, message_id INTEGER, filename TEXT, url TEXT, size INTEGER)`)
	for i, r := range rows {
		id := i + 1
		e.Exec(`INSERT INTO messages (id, timestamp, author_id) VALUES (?, ?, ?)`, id, r.Timestamp, nullIfEmpty(r.AuthorID))
		e.Exec(`INSERT INTO attachments (id, message_id, filename, url, size) VALUES (?, ?, ?, ?, ?)`, id, id, r.Filename, r.URL, r.Size)
	}
	return e.Close()
}

// VoicemailRow is one voicemail row. A zero ROWID lets SQLite assign one.
type VoicemailRow struct {
	Sender      string
	CallbackNum string
	ROWID       int64
	Date        int64
	Duration    int64
	Flags       int64
}

// VoicemailDB builds a voicemail.db at VoicemailPath.
func VoicemailDB(t *testing.T, root string, rows ...VoicemailRow) string {
	t.Helper()
	e := NewEvidenceDB(t, root, VoicemailPath).
		Exec(`CREATE TABLE voicemail (
			ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_uid INTEGER,
			date INTEGER,
			token TEXT,
			sender TEXT,
			callback_num TEXT,
			duration INTEGER,
			expiration INTEGER,
			trashed_date INTEGER,
			flags INTEGER
		)`)
	for _, r := range rows {
		var rowid any
		if r.ROWID != 0 {
			rowid = r.ROWID
		}
		e.Exec(`INSERT INTO voicemail (ROWID, date, sender, callback_num, duration, flags) VALUES (?, ?, ?, ?, ?, ?)`,
			rowid, r.Date, nullIfEmpty(r.Sender), nullIfEmpty(r.CallbackNum), r.Duration, r.Flags)
	}
	return e.Close()
}

// PhotoAssetRow is a ZASSET row with its additional attributes. A non-empty
// Album puts the asset in that album.
type PhotoAssetRow struct {
	Directory    string
	Filename     string
	Creator      string
	OriginalName string
	Album        string
	UUID         string
	DateCreated  float64
	DateAdded    float64
	Latitude     float64
	Longitude    float64
	OriginalSize int64
	Kind         int
	Trashed      int
}

// PhotosDB builds a Photos.sqlite at PhotosPath with the iOS 14 asset schema
// and a Core Data album join table.
func PhotosDB(t *testing.T, root string, rows ...PhotoAssetRow) string {
	t.Helper()
	return photosDB(t, root, "ZASSET", rows)
}

// LegacyPhotosDB builds a Photos.sqlite whose assets live in ZGENERICASSET.
func LegacyPhotosDB(t *testing.T, root string, rows ...PhotoAssetRow) string {
	t.Helper()
	return photosDB(t, root, "ZGENERICASSET", rows)
}

func photosDB(t *testing.T, root, assetTable string, rows []PhotoAssetRow) string {
	t.Helper()
	e := NewEvidenceDB(t, root, PhotosPath).
		Exec(`CREATE TABLE ` + assetTable + ` (
			Z_PK INTEGER PRIMARY KEY,
			ZDATECREATED TIMESTAMP,
			ZADDEDDATE TIMESTAMP,
			ZDIRECTORY VARCHAR,
			ZFILENAME VARCHAR,
			ZKIND INTEGER,
			ZLATITUDE FLOAT,
			ZLONGITUDE FLOAT,
			ZTRASHEDSTATE INTEGER,
			ZUUID VARCHAR,
			ZADDITIONALATTRIBUTES INTEGER
		)`).
		Exec(`CREATE TABLE ZADDITIONALASSETATTRIBUTES (
			Z_PK INTEGER PRIMARY KEY,
			ZORIGINALFILESIZE INTEGER,
			ZCREATORBUNDLEID VARCHAR,
			ZEDITORBUNDLEID VARCHAR,
			ZORIGINALFILENAME VARCHAR
		)`).
		Exec(`CREATE TABLE ZGENERICALBUM (Z_PK INTEGER PRIMARY KEY, ZTITLE VARCHAR)`).
		Exec(`CREATE TABLE Z_26ASSETS (Z_26ALBUMS INTEGER, Z_3ASSETS INTEGER, Z_FOK_3ASSETS INTEGER)`)

	albums := make(map[string]int)
	for i, r := range rows {
		id := i + 1
		e.Exec(`INSERT INTO ZADDITIONALASSETATTRIBUTES (Z_PK, ZORIGINALFILESIZE, ZCREATORBUNDLEID, ZORIGINALFILENAME) VALUES (?, ?, ?, ?)`,
			id, r.OriginalSize, nullIfEmpty(r.Creator), nullIfEmpty(r.OriginalName))
		e.Exec(`INSERT INTO `+assetTable+` (Z_PK, ZDATECREATED, ZADDEDDATE, ZDIRECTORY, ZFILENAME, ZKIND, ZLATITUDE, ZLONGITUDE, ZTRASHEDSTATE, ZUUID, ZADDITIONALATTRIBUTES)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, r.DateCreated, r.DateAdded, r.Directory, r.Filename, r.Kind, r.Latitude, r.Longitude, r.Trashed, nullIfEmpty(r.UUID), id)
		if r.Album == "" {
			continue
		}
		album, ok := albums[r.Album]
		if !ok {
			album = len(albums) + 1
			albums[r.Album] = album
			e.Exec(`INSERT INTO ZGENERICALBUM (Z_PK, ZTITLE) VALUES (?, ?)`, album, r.Album)
		}
		e.Exec(`INSERT INTO Z_26ASSETS (Z_26ALBUMS, Z_3ASSETS, Z_FOK_3ASSETS) VALUES (?, ?, ?)`, album, id, id*1024)
	}
	return e.Close()
}

// CorruptDB writes bytes at root/rel that are not a SQLite database.
func CorruptDB(t *testing.T, root, rel string) string {
	t.Helper()
	return WriteFile(t, root, rel, []byte("this is not a database, just carved bytes\x00\x01\x02"))
}

// WriteFile writes data at root/rel, creating parent directories.
func WriteFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create fixture directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write fixture file: %v", err)
	}
	return path
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
