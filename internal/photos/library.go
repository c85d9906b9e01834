package photos

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/storage"
	"github.com/Eigen-Consulting/iLEAPP/internal/timeconv"
)

// noCoordinate is what the library stores when an asset has no location.
const noCoordinate = -180.0

// assetTables are the asset table names, newest schema first. iOS 14 renamed
// ZGENERICASSET to ZASSET.
var assetTables = []string{"ZASSET", "ZGENERICASSET"}

func isLibraryPath(dbPath string) bool {
	lower := strings.ToLower(filepath.ToSlash(dbPath))
	return strings.HasSuffix(lower, "photodata/photos.sqlite")
}

type libraryRow struct {
	Created   sql.NullFloat64
	Added     sql.NullFloat64
	Filename  sql.NullString
	Directory sql.NullString
	Size      sql.NullInt64
	Kind      sql.NullInt64
	Creator   sql.NullString
	Editor    sql.NullString
	Original  sql.NullString
	Latitude  sql.NullFloat64
	Longitude sql.NullFloat64
	Album     sql.NullString
	UUID      sql.NullString
}

// fromLibrary reads every non-trashed asset in a Photos.sqlite library.
// Files resolve against the Media directory that holds PhotoData.
func (c *Collector) fromLibrary(ctx context.Context, db string) ([]entry, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	query, err := c.libraryQuery(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := c.querier.Query(ctx, db, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mediaRoot := filepath.Dir(filepath.Dir(db))

	var entries []entry
	for rows.Next() {
		var r libraryRow
		if err := rows.Scan(&r.Created, &r.Added, &r.Filename, &r.Directory, &r.Size, &r.Kind,
			&r.Creator, &r.Editor, &r.Original, &r.Latitude, &r.Longitude, &r.Album, &r.UUID); err != nil {
			return nil, fmt.Errorf("scan %s: %w", db, err)
		}
		if !r.Filename.Valid || r.Filename.String == "" {
			continue
		}

		rel := r.Filename.String
		if r.Directory.String != "" {
			rel = path.Join(r.Directory.String, r.Filename.String)
		}

		creator := r.Creator.String
		if creator == "" {
			creator = "com.apple.camera"
		}

		rec := model.PhotoRecord{
			Timestamp:        timeconv.CocoaToUTC(r.Created.Float64),
			DateAdded:        timeconv.CocoaToUTC(r.Added.Float64),
			SourceApp:        AppName(creator),
			FileName:         r.Filename.String,
			FilePath:         rel,
			Size:             r.Size.Int64,
			MediaType:        c.libraryKind(r.Kind, r.Filename.String),
			CreatorBundleID:  r.Creator.String,
			EditorBundleID:   r.Editor.String,
			OriginalFileName: r.Original.String,
			Latitude:         coordinate(r.Latitude),
			Longitude:        coordinate(r.Longitude),
			Album:            r.Album.String,
			SourceDatabase:   db,
		}
		if rec.Album == "" {
			rec.Album = "Camera Roll"
		}
		if r.UUID.String != "" {
			rec.AdditionalInfo = "UUID: " + r.UUID.String
		}

		e := entry{rec: rec}
		disk := filepath.Join(mediaRoot, filepath.FromSlash(rel))
		if size, _, ok := stat(disk); ok {
			e.diskPath = disk
			if e.rec.Size == 0 {
				e.rec.Size = size
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", db, err)
	}

	common.Logger(ctx).Debug("Read photo library", "stage", "photos", "path", db, "assets", len(entries))
	return entries, nil
}

// libraryQuery builds the asset query for whichever schema db carries.
// Optional tables and columns that are absent read as NULL.
func (c *Collector) libraryQuery(ctx context.Context, db string) (string, error) {
	var table string
	for _, t := range assetTables {
		ok, err := c.querier.TableExists(ctx, db, t)
		if err != nil {
			return "", err
		}
		if ok {
			table = t
			break
		}
	}
	if table == "" {
		return "", fmt.Errorf("%w: %s", common.ErrTableMissing, strings.Join(assetTables, " or "))
	}

	assetCols, err := c.querier.Columns(ctx, db, table)
	if err != nil {
		return "", err
	}
	if !storage.HasColumn(assetCols, "ZFILENAME") {
		return "", fmt.Errorf("%w: %s.ZFILENAME", common.ErrTableMissing, table)
	}

	var attrCols []string
	joins := ""
	if ok, err := c.querier.TableExists(ctx, db, "ZADDITIONALASSETATTRIBUTES"); err != nil {
		return "", err
	} else if ok && storage.HasColumn(assetCols, "ZADDITIONALATTRIBUTES") {
		if attrCols, err = c.querier.Columns(ctx, db, "ZADDITIONALASSETATTRIBUTES"); err != nil {
			return "", err
		}
		joins += " LEFT JOIN ZADDITIONALASSETATTRIBUTES attr ON a.ZADDITIONALATTRIBUTES = attr.Z_PK"
	}

	album := "NULL"
	if link, err := c.albumLink(ctx, db); err != nil {
		return "", err
	} else if link.table != "" {
		joins += fmt.Sprintf(" LEFT JOIN %s j ON a.Z_PK = j.%s LEFT JOIN ZGENERICALBUM album ON album.Z_PK = j.%s",
			link.table, link.assets, link.albums)
		album = "album.ZTITLE"
	}

	where := ""
	if storage.HasColumn(assetCols, "ZTRASHEDSTATE") {
		where = " WHERE COALESCE(a.ZTRASHEDSTATE, 0) != 1"
	}
	order := ""
	if storage.HasColumn(assetCols, "ZDATECREATED") {
		order = " ORDER BY a.ZDATECREATED DESC"
	}

	return fmt.Sprintf(`SELECT %s, %s, a.ZFILENAME, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s FROM %s a%s%s%s`,
		asReal(col(assetCols, "a", "ZDATECREATED")),
		asReal(col(assetCols, "a", "ZADDEDDATE")),
		col(assetCols, "a", "ZDIRECTORY"),
		col(attrCols, "attr", "ZORIGINALFILESIZE"),
		col(assetCols, "a", "ZKIND"),
		col(attrCols, "attr", "ZCREATORBUNDLEID"),
		col(attrCols, "attr", "ZEDITORBUNDLEID"),
		col(attrCols, "attr", "ZORIGINALFILENAME"),
		asReal(col(assetCols, "a", "ZLATITUDE")),
		asReal(col(assetCols, "a", "ZLONGITUDE")),
		album,
		col(assetCols, "a", "ZUUID"),
		table, joins, where, order,
	), nil
}

// albumJoin names the many-to-many table between assets and albums. Core Data
// numbers it per schema (Z_26ASSETS on iOS 14, other numbers elsewhere).
type albumJoin struct {
	table  string
	assets string
	albums string
}

func (c *Collector) albumLink(ctx context.Context, db string) (albumJoin, error) {
	ok, err := c.querier.TableExists(ctx, db, "ZGENERICALBUM")
	if err != nil || !ok {
		return albumJoin{}, err
	}

	rows, err := c.querier.Query(ctx, db,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'Z\_%ASSETS' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return albumJoin{}, err
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return albumJoin{}, fmt.Errorf("scan %s: %w", db, err)
		}
		tables = append(tables, name)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return albumJoin{}, fmt.Errorf("read %s: %w", db, err)
	}

	for _, table := range tables {
		cols, err := c.querier.Columns(ctx, db, table)
		if err != nil {
			continue
		}
		link := albumJoin{table: table}
		for _, name := range cols {
			upper := strings.ToUpper(name)
			switch {
			case strings.Contains(upper, "_FOK_"):
				// Ordering key, not a foreign key.
			case strings.HasPrefix(upper, "Z_") && strings.HasSuffix(upper, "ALBUMS"):
				link.albums = name
			case strings.HasPrefix(upper, "Z_") && strings.HasSuffix(upper, "ASSETS"):
				link.assets = name
			}
		}
		if link.albums != "" && link.assets != "" {
			return link, nil
		}
	}
	return albumJoin{}, nil
}

// libraryKind maps ZKIND, falling back to the file extension when the
// column is absent.
func (c *Collector) libraryKind(kind sql.NullInt64, filename string) model.MediaType {
	switch {
	case !kind.Valid:
		if t := c.MediaTypeOf(filename); t != "" {
			return t
		}
		return model.MediaUnknown
	case kind.Int64 == 0:
		return model.MediaPhoto
	case kind.Int64 == 1:
		return model.MediaVideo
	default:
		return model.MediaUnknown
	}
}

func coordinate(v sql.NullFloat64) string {
	if !v.Valid || v.Float64 == noCoordinate {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}

// col returns alias.column when the column exists, else a NULL literal.
func col(columns []string, alias, column string) string {
	if storage.HasColumn(columns, column) {
		return alias + "." + column
	}
	return "NULL"
}

// asReal keeps columns declared TIMESTAMP from being converted to time.Time.
func asReal(expr string) string {
	if expr == "NULL" {
		return expr
	}
	return "CAST(" + expr + " AS REAL)"
}

func (c *Collector) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.QueryTimeout > 0 {
		return context.WithTimeout(ctx, c.config.QueryTimeout)
	}
	return context.WithCancel(ctx)
}
