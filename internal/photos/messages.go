package photos

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/storage"
	"github.com/Eigen-Consulting/iLEAPP/internal/timeconv"
)

// mobileHomePrefixes are the ways sms.db spells the mobile user's home.
var mobileHomePrefixes = []string{"~/", "/private/var/mobile/", "/var/mobile/"}

func isMessagesPath(dbPath string) bool {
	return strings.EqualFold(filepath.Base(dbPath), "sms.db")
}

type messageRow struct {
	Date     sql.NullFloat64
	Filename sql.NullString
	Transfer sql.NullString
	Size     sql.NullInt64
	MimeType sql.NullString
	Chat     sql.NullString
	Created  sql.NullFloat64
	Service  sql.NullString
}

// fromMessages reads image and video attachments from an sms.db. Attachment
// paths are relative to the mobile home, which is three levels above
// Library/SMS/sms.db.
func (c *Collector) fromMessages(ctx context.Context, db string) ([]entry, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	query, err := c.messagesQuery(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := c.querier.Query(ctx, db, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	home := filepath.Dir(filepath.Dir(filepath.Dir(db)))

	var entries []entry
	for rows.Next() {
		var r messageRow
		if err := rows.Scan(&r.Date, &r.Filename, &r.Transfer, &r.Size, &r.MimeType, &r.Chat, &r.Created, &r.Service); err != nil {
			return nil, fmt.Errorf("scan %s: %w", db, err)
		}
		if r.Filename.String == "" {
			continue
		}

		name := path.Base(r.Filename.String)
		if name == "." || name == "/" {
			name = r.Transfer.String
		}
		service := r.Service.String
		if service == "" {
			service = "Unknown"
		}
		album := "Messages"
		if r.Chat.String != "" {
			album = "Chat: " + r.Chat.String
		}

		rec := model.PhotoRecord{
			Timestamp:        timeconv.CocoaToUTC(r.Date.Float64),
			DateAdded:        timeconv.CocoaToUTC(r.Created.Float64),
			SourceApp:        "Messages (" + service + ")",
			FileName:         name,
			FilePath:         r.Filename.String,
			Size:             r.Size.Int64,
			MediaType:        mimeMediaType(r.MimeType.String),
			CreatorBundleID:  "com.apple.MobileSMS",
			OriginalFileName: r.Transfer.String,
			Album:            album,
			AdditionalInfo:   "Service: " + service,
			SourceDatabase:   db,
		}

		e := entry{rec: rec}
		if disk, ok := resolveHome(home, r.Filename.String); ok {
			if size, _, found := stat(disk); found {
				e.diskPath = disk
				if e.rec.Size == 0 {
					e.rec.Size = size
				}
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", db, err)
	}

	common.Logger(ctx).Debug("Read message attachments", "stage", "photos", "path", db, "attachments", len(entries))
	return entries, nil
}

func (c *Collector) messagesQuery(ctx context.Context, db string) (string, error) {
	for _, table := range []string{"message", "attachment", "message_attachment_join"} {
		ok, err := c.querier.TableExists(ctx, db, table)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("%w: %s", common.ErrTableMissing, table)
		}
	}

	msgCols, err := c.querier.Columns(ctx, db, "message")
	if err != nil {
		return "", err
	}
	attCols, err := c.querier.Columns(ctx, db, "attachment")
	if err != nil {
		return "", err
	}
	for _, required := range []string{"filename", "mime_type"} {
		if !storage.HasColumn(attCols, required) {
			return "", fmt.Errorf("%w: attachment.%s", common.ErrTableMissing, required)
		}
	}

	chat := "NULL"
	joins := ""
	hasChat, err := c.querier.TableExists(ctx, db, "chat")
	if err != nil {
		return "", err
	}
	hasChatJoin, err := c.querier.TableExists(ctx, db, "chat_message_join")
	if err != nil {
		return "", err
	}
	if hasChat && hasChatJoin {
		joins = " LEFT JOIN chat_message_join cmj ON m.ROWID = cmj.message_id LEFT JOIN chat ch ON ch.ROWID = cmj.chat_id"
		chat = "ch.chat_identifier"
	}

	order := ""
	if storage.HasColumn(msgCols, "date") {
		order = " ORDER BY m.date DESC"
	}

	return fmt.Sprintf(`SELECT %s, a.filename, %s, %s, a.mime_type, %s, %s, %s
FROM message m
JOIN message_attachment_join maj ON m.ROWID = maj.message_id
JOIN attachment a ON a.ROWID = maj.attachment_id%s
WHERE a.mime_type LIKE 'image/%%' OR a.mime_type LIKE 'video/%%'%s`,
		asReal(col(msgCols, "m", "date")),
		col(attCols, "a", "transfer_name"),
		col(attCols, "a", "total_bytes"),
		chat,
		asReal(col(attCols, "a", "created_date")),
		col(msgCols, "m", "service"),
		joins, order,
	), nil
}

// mimeMediaType classifies an attachment by MIME type.
func mimeMediaType(mime string) model.MediaType {
	switch {
	case strings.HasPrefix(strings.ToLower(mime), "image/"):
		return model.MediaPhoto
	case strings.HasPrefix(strings.ToLower(mime), "video/"):
		return model.MediaVideo
	default:
		return model.MediaUnknown
	}
}

// resolveHome maps a device path under the mobile home onto the extraction.
func resolveHome(home, devicePath string) (string, bool) {
	for _, prefix := range mobileHomePrefixes {
		if rest, ok := strings.CutPrefix(devicePath, prefix); ok {
			return filepath.Join(home, filepath.FromSlash(rest)), true
		}
	}
	return "", false
}
