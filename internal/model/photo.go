package model

import "strconv"

// MediaType separates stills from video in the photo report.
type MediaType string

// Media types.
const (
	MediaPhoto   MediaType = "Photo"
	MediaVideo   MediaType = "Video"
	MediaUnknown MediaType = "Unknown"
)

// PhotoHeaders is the ordered column description for PhotoRecord rows.
var PhotoHeaders = []Column{
	{Name: "Timestamp", Type: ColumnDatetime},
	{Name: "Date Added", Type: ColumnDatetime},
	{Name: "Source App", Type: ColumnText},
	{Name: "File Name", Type: ColumnText},
	{Name: "File Path", Type: ColumnText},
	{Name: "File Size (bytes)", Type: ColumnText},
	{Name: "Media Type", Type: ColumnText},
	{Name: "Creator Bundle ID", Type: ColumnText},
	{Name: "Editor Bundle ID", Type: ColumnText},
	{Name: "Original File Name", Type: ColumnText},
	{Name: "Latitude", Type: ColumnText},
	{Name: "Longitude", Type: ColumnText},
	{Name: "Album/Chat", Type: ColumnText},
	{Name: "Additional Info", Type: ColumnText},
	{Name: "File Hash (SHA256)", Type: ColumnText},
	{Name: "Source Database", Type: ColumnText},
}

// PhotoRecord is one deduplicated photo or video, from the photo library, a
// message attachment or an app's media folder.
type PhotoRecord struct {
	Timestamp        string    `json:"timestamp"`
	DateAdded        string    `json:"date_added"`
	SourceApp        string    `json:"source_app"`
	FileName         string    `json:"file_name"`
	FilePath         string    `json:"file_path"`
	MediaType        MediaType `json:"media_type"`
	CreatorBundleID  string    `json:"creator_bundle_id,omitempty"`
	EditorBundleID   string    `json:"editor_bundle_id,omitempty"`
	OriginalFileName string    `json:"original_file_name,omitempty"`
	Latitude         string    `json:"latitude,omitempty"`
	Longitude        string    `json:"longitude,omitempty"`
	Album            string    `json:"album"`
	AdditionalInfo   string    `json:"additional_info,omitempty"`
	ContentHash      string    `json:"content_hash,omitempty"`
	SourceDatabase   string    `json:"source_database"`
	Size             int64     `json:"size"`
}

// Row returns the record's values in PhotoHeaders order.
func (r PhotoRecord) Row() []string {
	return []string{
		r.Timestamp,
		r.DateAdded,
		r.SourceApp,
		r.FileName,
		r.FilePath,
		strconv.FormatInt(r.Size, 10),
		string(r.MediaType),
		r.CreatorBundleID,
		r.EditorBundleID,
		r.OriginalFileName,
		r.Latitude,
		r.Longitude,
		r.Album,
		r.AdditionalInfo,
		r.ContentHash,
		r.SourceDatabase,
	}
}
