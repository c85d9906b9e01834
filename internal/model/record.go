package model

import "strconv"

// ColumnType hints the report renderer how to treat a column.
type ColumnType string

// Column types.
const (
	ColumnText     ColumnType = "text"
	ColumnDatetime ColumnType = "datetime"
)

// Column describes one output column.
type Column struct {
	Name string
	Type ColumnType
}

// RecordHeaders is the fixed, ordered column description for AggregateRecord rows.
var RecordHeaders = []Column{
	{Name: "Timestamp", Type: ColumnDatetime},
	{Name: "Audio Type", Type: ColumnText},
	{Name: "Functional Category", Type: ColumnText},
	{Name: "Forensic Relevance", Type: ColumnText},
	{Name: "User Relevance Score", Type: ColumnText},
	{Name: "File Path", Type: ColumnText},
	{Name: "File Size", Type: ColumnText},
	{Name: "Duration", Type: ColumnText},
	{Name: "Source App/System", Type: ColumnText},
	{Name: "Database Reference", Type: ColumnText},
	{Name: "Classification Method", Type: ColumnText},
	{Name: "Custom/Default Indicator", Type: ColumnText},
	{Name: "Participant Info", Type: ColumnText},
	{Name: "Source File", Type: ColumnText},
}

// AggregateRecord is one deduplicated, classified output row.
type AggregateRecord struct {
	Timestamp         string               `json:"timestamp"`
	Category          string               `json:"category"`
	CategoryID        CategoryID           `json:"category_id"`
	Subtype           string               `json:"subtype"`
	Tier              RelevanceTier        `json:"tier"`
	RelativePath      string               `json:"relative_path"`
	Size              string               `json:"size"`
	Duration          string               `json:"duration"`
	SourceApp         string               `json:"source_app"`
	DatabaseReference string               `json:"database_reference"`
	Method            ClassificationMethod `json:"method"`
	CustomDefault     CustomDefault        `json:"custom_default"`
	Participant       string               `json:"participant"`
	SourcePath        string               `json:"source_path"`
	ContentHash       string               `json:"content_hash,omitempty"`
	Score             int                  `json:"score"`
}

// Row returns the record's values in RecordHeaders order.
func (r AggregateRecord) Row() []string {
	return []string{
		r.Timestamp,
		r.Category,
		r.Subtype,
		string(r.Tier),
		strconv.Itoa(r.Score),
		r.RelativePath,
		r.Size,
		r.Duration,
		r.SourceApp,
		r.DatabaseReference,
		string(r.Method),
		string(r.CustomDefault),
		r.Participant,
		r.SourcePath,
	}
}
