package correlation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/storage"
	"github.com/Eigen-Consulting/iLEAPP/internal/timeconv"
)

// whatsAppAudioType is the ZMEDIATYPE value WhatsApp uses for audio.
const whatsAppAudioType = 3

// messageContextLimit bounds the message text carried into a record.
const messageContextLimit = 100

// Target is the file being searched for.
type Target struct {
	Name string
	Stem string
}

// NewTarget derives the search terms from a file name or path.
func NewTarget(filename string) Target {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	return Target{
		Name: name,
		Stem: strings.TrimSuffix(name, path.Ext(name)),
	}
}

func (t Target) likeName() string { return "%" + t.Name + "%" }
func (t Target) likeStem() string { return "%" + t.Stem + "%" }

// probe carries everything a lookup needs for one database.
type probe struct {
	q      storage.Querier
	dbPath string
	target Target
	epoch  timeconv.Epoch
}

type lookupFunc func(ctx context.Context, p probe) (*model.DatabaseContext, error)

func (p probe) tableExists(ctx context.Context, table string) (bool, error) {
	return p.q.TableExists(ctx, p.dbPath, table)
}

func (p probe) columns(ctx context.Context, table string) ([]string, error) {
	return p.q.Columns(ctx, p.dbPath, table)
}

func (p probe) requireTable(ctx context.Context, table string) error {
	ok, err := p.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrTableMissing, table)
	}
	return nil
}

// queryRow runs query and scans the first row into dest. No rows is ErrNoMatch.
func (p probe) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	rows, err := p.q.Query(ctx, p.dbPath, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("read %s: %w", p.dbPath, err)
		}
		return common.ErrNoMatch
	}
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("scan %s: %w", p.dbPath, err)
	}
	return nil
}

// colOr returns alias.column when the column exists, else a NULL literal,
// so that queries survive schema drift between app versions.
func colOr(columns []string, alias, column string) string {
	if storage.HasColumn(columns, column) {
		if alias == "" {
			return column
		}
		return alias + "." + column
	}
	return "NULL"
}

// asReal casts a timestamp expression so the driver returns a plain number
// instead of converting columns declared TIMESTAMP into time.Time.
func asReal(expr string) string {
	if expr == "NULL" {
		return expr
	}
	return "CAST(" + expr + " AS REAL)"
}

// genericProbe searches the first existing table among tables for a LIKE hit
// on any of the candidate columns that table actually has.
func (p probe) genericProbe(ctx context.Context, tables, candidates []string) (bool, error) {
	for _, table := range tables {
		ok, err := p.tableExists(ctx, table)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		cols, err := p.columns(ctx, table)
		if err != nil {
			if errors.Is(err, common.ErrTableMissing) {
				continue
			}
			return false, err
		}

		var conds []string
		var args []any
		for _, c := range candidates {
			if storage.HasColumn(cols, c) {
				conds = append(conds, c+" LIKE ?")
				args = append(args, p.target.likeName())
			}
		}
		if len(conds) == 0 {
			continue
		}

		var one int
		query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", table, strings.Join(conds, " OR "))
		err = p.queryRow(ctx, query, args, &one)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, common.ErrNoMatch):
			continue
		default:
			return false, err
		}
	}
	return false, common.ErrNoMatch
}

type voiceMemoRow struct {
	Title        sql.NullString
	URL          sql.NullString
	CreationDate sql.NullFloat64
	Duration     sql.NullFloat64
}

func lookupVoiceMemos(ctx context.Context, p probe) (*model.DatabaseContext, error) {
	if err := p.requireTable(ctx, "ZRECORDING"); err != nil {
		return nil, err
	}

	var row voiceMemoRow
	err := p.queryRow(ctx,
		`SELECT CAST(ZCREATIONDATE AS REAL), ZTITLE, ZURL, CAST(ZDURATION AS REAL) FROM ZRECORDING WHERE ZURL LIKE ? LIMIT 1`,
		[]any{p.target.likeName()},
		&row.CreationDate, &row.Title, &row.URL, &row.Duration)
	if err != nil {
		return nil, err
	}

	title := row.Title.String
	dc := &model.DatabaseContext{
		Reference:   "Voice Memos: " + title,
		Timestamp:   timeconv.Convert(p.epoch, row.CreationDate.Float64),
		Participant: "User recording: " + title,
	}
	if row.Duration.Float64 != 0 {
		dc.Duration = fmt.Sprintf("%.2fs", row.Duration.Float64)
	}
	return dc, nil
}

type smsAttachmentRow struct {
	Filename    sql.NullString
	Text        sql.NullString
	Handle      sql.NullString
	CreatedDate sql.NullFloat64
}

func lookupSMS(ctx context.Context, p probe) (*model.DatabaseContext, error) {
	if err := p.requireTable(ctx, "attachment"); err != nil {
		return nil, err
	}

	hasMessage, err := p.tableExists(ctx, "message")
	if err != nil {
		return nil, err
	}
	hasHandle, err := p.tableExists(ctx, "handle")
	if err != nil {
		return nil, err
	}
	hasJoin, err := p.tableExists(ctx, "message_attachment_join")
	if err != nil {
		return nil, err
	}

	textCol, handleCol := "NULL", "NULL"
	var joins strings.Builder
	if hasMessage {
		if hasJoin {
			joins.WriteString(" LEFT JOIN message_attachment_join j ON j.attachment_id = a.ROWID")
			joins.WriteString(" LEFT JOIN message m ON m.ROWID = j.message_id")
		} else {
			joins.WriteString(" LEFT JOIN message m ON m.ROWID = a.ROWID")
		}
		textCol = "m.text"
		if hasHandle {
			joins.WriteString(" LEFT JOIN handle h ON h.ROWID = m.handle_id")
			handleCol = "h.id"
		}
	}

	query := fmt.Sprintf(
		`SELECT CAST(a.created_date AS REAL), a.filename, %s, %s FROM attachment a%s WHERE a.filename LIKE ? OR a.filename LIKE ? LIMIT 1`,
		textCol, handleCol, joins.String())

	var row smsAttachmentRow
	err = p.queryRow(ctx, query,
		[]any{p.target.likeName(), p.target.likeStem()},
		&row.CreatedDate, &row.Filename, &row.Text, &row.Handle)
	if err != nil {
		return nil, err
	}

	handle := row.Handle.String
	if handle == "" {
		handle = "Unknown"
	}
	return &model.DatabaseContext{
		Reference:      "SMS/iMessage attachment",
		Timestamp:      timeconv.Convert(p.epoch, row.CreatedDate.Float64),
		Participant:    "From/To: " + handle,
		MessageContext: truncateRunes(row.Text.String, messageContextLimit),
	}, nil
}

type whatsAppMediaRow struct {
	LocalPath   sql.NullString
	FromJID     sql.NullString
	ToJID       sql.NullString
	MediaType   sql.NullInt64
	MessageDate sql.NullFloat64
}

func lookupWhatsApp(ctx context.Context, p probe) (*model.DatabaseContext, error) {
	hasItems, err := p.tableExists(ctx, "ZWAMEDIAITEM")
	if err != nil {
		return nil, err
	}
	hasMessages, err := p.tableExists(ctx, "ZWAMESSAGE")
	if err != nil {
		return nil, err
	}

	if hasItems {
		dc, err := whatsAppMediaItem(ctx, p, hasMessages)
		if !errors.Is(err, common.ErrNoMatch) {
			return dc, err
		}
	}
	if hasMessages {
		dc, err := whatsAppLegacyMessage(ctx, p)
		if !errors.Is(err, common.ErrNoMatch) {
			return dc, err
		}
	}

	if _, err := p.genericProbe(ctx, []string{"message", "media_item"}, []string{"filename", "path"}); err != nil {
		return nil, err
	}
	return &model.DatabaseContext{
		Reference:   "WhatsApp media",
		Participant: "WhatsApp conversation",
	}, nil
}

func whatsAppMediaItem(ctx context.Context, p probe, hasMessages bool) (*model.DatabaseContext, error) {
	itemCols, err := p.columns(ctx, "ZWAMEDIAITEM")
	if err != nil {
		return nil, err
	}
	if !storage.HasColumn(itemCols, "ZMEDIALOCALPATH") {
		return nil, common.ErrNoMatch
	}

	dateCol, fromCol, toCol := "NULL", "NULL", "NULL"
	join := ""
	if hasMessages && storage.HasColumn(itemCols, "ZMESSAGE") {
		msgCols, err := p.columns(ctx, "ZWAMESSAGE")
		if err != nil {
			return nil, err
		}
		join = " LEFT JOIN ZWAMESSAGE m ON m.Z_PK = i.ZMESSAGE"
		dateCol = colOr(msgCols, "m", "ZMESSAGEDATE")
		fromCol = colOr(msgCols, "m", "ZFROMJID")
		toCol = colOr(msgCols, "m", "ZTOJID")
	}

	query := fmt.Sprintf(
		`SELECT i.ZMEDIALOCALPATH, %s, %s, %s, %s FROM ZWAMEDIAITEM i%s WHERE i.ZMEDIALOCALPATH LIKE ? LIMIT 1`,
		colOr(itemCols, "i", "ZMEDIATYPE"), asReal(dateCol), fromCol, toCol, join)

	var row whatsAppMediaRow
	err = p.queryRow(ctx, query, []any{p.target.likeName()},
		&row.LocalPath, &row.MediaType, &row.MessageDate, &row.FromJID, &row.ToJID)
	if err != nil {
		return nil, err
	}

	ref := "WhatsApp media"
	if row.MediaType.Valid && row.MediaType.Int64 == whatsAppAudioType {
		ref = "WhatsApp voice message"
	}
	return &model.DatabaseContext{
		Reference:   ref,
		Timestamp:   timeconv.Convert(p.epoch, row.MessageDate.Float64),
		Participant: whatsAppParticipant(row.FromJID.String, row.ToJID.String),
	}, nil
}

func whatsAppLegacyMessage(ctx context.Context, p probe) (*model.DatabaseContext, error) {
	cols, err := p.columns(ctx, "ZWAMESSAGE")
	if err != nil {
		return nil, err
	}
	if !storage.HasColumn(cols, "ZMEDIAITEM") {
		return nil, common.ErrNoMatch
	}

	query := fmt.Sprintf(`SELECT %s, %s, %s FROM ZWAMESSAGE WHERE ZMEDIAITEM LIKE ? LIMIT 1`,
		asReal(colOr(cols, "", "ZMESSAGEDATE")), colOr(cols, "", "ZFROMJID"), colOr(cols, "", "ZTOJID"))

	var row whatsAppMediaRow
	if err := p.queryRow(ctx, query, []any{p.target.likeName()}, &row.MessageDate, &row.FromJID, &row.ToJID); err != nil {
		return nil, err
	}
	return &model.DatabaseContext{
		Reference:   "WhatsApp voice message",
		Timestamp:   timeconv.Convert(p.epoch, row.MessageDate.Float64),
		Participant: whatsAppParticipant(row.FromJID.String, row.ToJID.String),
	}, nil
}

// whatsAppParticipant strips the server part of a JID such as 15555550100@s.whatsapp.net.
func whatsAppParticipant(from, to string) string {
	jid := from
	if jid == "" {
		jid = to
	}
	if jid == "" {
		return "WhatsApp conversation"
	}
	if i := strings.Index(jid, "@"); i >= 0 {
		jid = jid[:i]
	}
	return "Participant: " + jid
}

func lookupTelegram(ctx context.Context, p probe) (*model.DatabaseContext, error) {
	if _, err := p.genericProbe(ctx, []string{"messages", "media", "documents"}, []string{"data", "filename", "path"}); err != nil {
		return nil, err
	}
	return &model.DatabaseContext{
		Reference:   "Telegram voice message",
		Participant: "Telegram conversation",
	}, nil
}

type signalPartRow struct {
	DataURI     sql.NullString
	ContentType sql.NullString
	Address     sql.NullString
	DateSent    sql.NullFloat64
}

func lookupSignal(ctx context.Context, p probe) (*model.DatabaseContext, error) {
	hasPart, err := p.tableExists(ctx, "part")
	if err != nil {
		return nil, err
	}
	if hasPart {
		dc, err := signalPart(ctx, p)
		if !errors.Is(err, common.ErrNoMatch) {
			return dc, err
		}
	}

	if _, err := p.genericProbe(ctx, []string{"message", "attachment"}, []string{"filename", "path", "data"}); err != nil {
		return nil, err
	}
	return &model.DatabaseContext{
		Reference:   "Signal voice message",
		Participant: "Signal conversation",
	}, nil
}

func signalPart(ctx context.Context, p probe) (*model.DatabaseContext, error) {
	partCols, err := p.columns(ctx, "part")
	if err != nil {
		return nil, err
	}
	if !storage.HasColumn(partCols, "data_uri") {
		return nil, common.ErrNoMatch
	}

	dateCol, addrCol := "NULL", "NULL"
	join := ""
	hasMessage, err := p.tableExists(ctx, "message")
	if err != nil {
		return nil, err
	}
	if hasMessage && storage.HasColumn(partCols, "mid") {
		msgCols, err := p.columns(ctx, "message")
		if err != nil {
			return nil, err
		}
		if storage.HasColumn(msgCols, "_id") {
			join = " LEFT JOIN message m ON p.mid = m._id"
			dateCol = colOr(msgCols, "m", "date_sent")
			addrCol = colOr(msgCols, "m", "address")
		}
	}

	query := fmt.Sprintf(`SELECT p.data_uri, %s, %s, %s FROM part p%s WHERE p.data_uri LIKE ? LIMIT 1`,
		colOr(partCols, "p", "content_type"), asReal(dateCol), addrCol, join)

	var row signalPartRow
	err = p.queryRow(ctx, query, []any{p.target.likeName()},
		&row.DataURI, &row.ContentType, &row.DateSent, &row.Address)
	if err != nil {
		return nil, err
	}

	addr := row.Address.String
	if addr == "" {
		addr = "Unknown"
	}
	return &model.DatabaseContext{
		Reference:   "Signal voice message",
		Timestamp:   timeconv.Convert(p.epoch, row.DateSent.Float64),
		Participant: "Signal contact: " + addr,
	}, nil
}

type discordAttachmentRow struct {
	Filename  sql.NullString
	URL       sql.NullString
	AuthorID  sql.NullString
	Size      sql.NullInt64
	Timestamp sql.NullFloat64
}

func lookupDiscord(ctx context.Context, p probe) (*model.DatabaseContext, error) {
	hasAttachments, err := p.tableExists(ctx, "attachments")
	if err != nil {
		return nil, err
	}
	if hasAttachments {
		dc, err := discordAttachment(ctx, p)
		if !errors.Is(err, common.ErrNoMatch) {
			return dc, err
		}
	}

	if _, err := p.genericProbe(ctx, []string{"messages", "media_cache"}, []string{"filename", "url", "data"}); err != nil {
		return nil, err
	}
	return &model.DatabaseContext{
		Reference:   "Discord voice attachment",
		Participant: "Discord conversation",
	}, nil
}

func discordAttachment(ctx context.Context, p probe) (*model.DatabaseContext, error) {
	attCols, err := p.columns(ctx, "attachments")
	if err != nil {
		return nil, err
	}
	if !storage.HasColumn(attCols, "filename") {
		return nil, common.ErrNoMatch
	}

	tsCol, authorCol := "NULL", "NULL"
	join := ""
	hasMessages, err := p.tableExists(ctx, "messages")
	if err != nil {
		return nil, err
	}
	if hasMessages && storage.HasColumn(attCols, "message_id") {
		msgCols, err := p.columns(ctx, "messages")
		if err != nil {
			return nil, err
		}
		if storage.HasColumn(msgCols, "id") {
			join = " LEFT JOIN messages m ON a.message_id = m.id"
			tsCol = colOr(msgCols, "m", "timestamp")
			authorCol = colOr(msgCols, "m", "author_id")
		}
	}

	query := fmt.Sprintf(`SELECT a.filename, %s, %s, %s, %s FROM attachments a%s WHERE a.filename LIKE ? LIMIT 1`,
		colOr(attCols, "a", "url"), colOr(attCols, "a", "size"), asReal(tsCol), authorCol, join)

	var row discordAttachmentRow
	err = p.queryRow(ctx, query, []any{p.target.likeName()},
		&row.Filename, &row.URL, &row.Size, &row.Timestamp, &row.AuthorID)
	if err != nil {
		return nil, err
	}

	author := row.AuthorID.String
	if author == "" {
		author = "Unknown"
	}
	return &model.DatabaseContext{
		Reference:   "Discord voice attachment",
		Timestamp:   timeconv.Convert(p.epoch, row.Timestamp.Float64),
		Participant: "Discord user: " + author,
	}, nil
}

type voicemailRow struct {
	Sender      sql.NullString
	CallbackNum sql.NullString
	Date        sql.NullFloat64
	Duration    sql.NullInt64
}

func lookupVoicemail(ctx context.Context, p probe) (*model.DatabaseContext, error) {
	if err := p.requireTable(ctx, "voicemail"); err != nil {
		return nil, err
	}
	cols, err := p.columns(ctx, "voicemail")
	if err != nil {
		return nil, err
	}

	var conds []string
	args := []any{p.target.Stem}
	conds = append(conds, "ROWID = ?")
	for _, c := range []string{"sender", "callback_num"} {
		if storage.HasColumn(cols, c) {
			conds = append(conds, c+" LIKE ?")
			args = append(args, p.target.likeStem())
		}
	}

	query := fmt.Sprintf(`SELECT %s, %s, %s, %s FROM voicemail WHERE %s LIMIT 1`,
		asReal(colOr(cols, "", "date")), colOr(cols, "", "sender"), colOr(cols, "", "callback_num"),
		colOr(cols, "", "duration"), strings.Join(conds, " OR "))

	var row voicemailRow
	if err := p.queryRow(ctx, query, args, &row.Date, &row.Sender, &row.CallbackNum, &row.Duration); err != nil {
		return nil, err
	}

	from := row.Sender.String
	if from == "" {
		from = row.CallbackNum.String
	}
	dc := &model.DatabaseContext{
		Reference:   "System Voicemail",
		Timestamp:   timeconv.Convert(p.epoch, row.Date.Float64),
		Participant: "From: " + from,
	}
	if row.Duration.Int64 != 0 {
		dc.Duration = fmt.Sprintf("%ds", row.Duration.Int64)
	}
	return dc, nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
