// Package report renders aggregate records as tab-separated tables and reads
// them back, so a later step can work from an earlier run's output.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/Eigen-Consulting/iLEAPP/internal/model"
)

// WriteTSV writes a header row and one row per record in model.RecordHeaders order.
func WriteTSV(w io.Writer, records []model.AggregateRecord) error {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Row())
	}
	return writeTable(w, model.RecordHeaders, rows)
}

// WritePhotoTSV writes a header row and one row per record in model.PhotoHeaders order.
func WritePhotoTSV(w io.Writer, records []model.PhotoRecord) error {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Row())
	}
	return writeTable(w, model.PhotoHeaders, rows)
}

func writeTable(w io.Writer, headers []model.Column, rows [][]string) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	header := make([]string, len(headers))
	for i, col := range headers {
		header[i] = col.Name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadTSV parses a table written by WriteTSV. Columns are matched by header
// name, so reordered or partial tables still load; unknown columns are ignored.
func ReadTSV(r io.Reader) ([]model.AggregateRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	if _, ok := index["Source File"]; !ok {
		return nil, fmt.Errorf("table has no %q column", "Source File")
	}

	var records []model.AggregateRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		get := func(name string) string {
			if i, ok := index[name]; ok && i < len(row) {
				return row[i]
			}
			return ""
		}

		score, _ := strconv.Atoi(get("User Relevance Score"))
		records = append(records, model.AggregateRecord{
			Timestamp:         get("Timestamp"),
			Category:          get("Audio Type"),
			Subtype:           get("Functional Category"),
			Tier:              model.RelevanceTier(get("Forensic Relevance")),
			Score:             score,
			RelativePath:      get("File Path"),
			Size:              get("File Size"),
			Duration:          get("Duration"),
			SourceApp:         get("Source App/System"),
			DatabaseReference: get("Database Reference"),
			Method:            model.ClassificationMethod(get("Classification Method")),
			CustomDefault:     model.CustomDefault(get("Custom/Default Indicator")),
			Participant:       get("Participant Info"),
			SourcePath:        get("Source File"),
		})
	}
	return records, nil
}
