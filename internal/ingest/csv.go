package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gridsense/meterhub/internal/domain"
	"github.com/gridsense/meterhub/internal/metrics"
)

// ErrEmptyImport is returned when an import file contains no rows at all.
var ErrEmptyImport = errors.New("import file is empty")

// ImportResult reports the outcome of a bulk import. Skipped counts malformed
// rows; their presence does not fail the batch.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// headerTokens are column names that identify an optional header row.
var headerTokens = map[string]bool{
	"id":              true,
	"access_id":       true,
	"meter_access_id": true,
	"meter_id":        true,
	"device_id":       true,
	"voltage":         true,
}

// ImportCSV bulk-imports readings from CSV. Accepted row shapes:
//
//	accessID,voltage,current,power,energy
//	recordID,accessID,voltage,current,power,energy
//
// An optional header row is skipped. Malformed rows are skipped individually
// and the batch continues; identity lookups are cached across the batch. No
// broadcast is triggered: imported values arrive out of real-time order.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // be permissive; validate per row
	cr.TrimLeadingSpace = true

	var (
		result   ImportResult
		firstRow = true
		meterIDs = map[string]int64{}
	)

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Skipped++
			metrics.ImportRowsSkipped.Inc()
			firstRow = false
			continue
		}

		if firstRow {
			firstRow = false
			if isHeaderRow(row) {
				continue
			}
		}

		accessID, values, ok := parseRow(row)
		if !ok {
			result.Skipped++
			metrics.ImportRowsSkipped.Inc()
			continue
		}

		meterID, cached := meterIDs[accessID]
		if !cached {
			meterID, err = s.meters.ResolveOrCreate(ctx, accessID)
			if err != nil {
				return result, fmt.Errorf("failed to resolve meter %q: %w", accessID, err)
			}
			meterIDs[accessID] = meterID
		}

		if _, err := s.readings.Append(ctx, meterID, values); err != nil {
			return result, fmt.Errorf("failed to append reading for %q: %w", accessID, err)
		}
		result.Imported++
		metrics.ReadingsIngestedTotal.WithLabelValues("import").Inc()
	}

	if firstRow {
		return result, ErrEmptyImport
	}
	return result, nil
}

// isHeaderRow reports whether the first or second column carries a known
// header token instead of data.
func isHeaderRow(row []string) bool {
	for _, col := range row[:min(2, len(row))] {
		if headerTokens[strings.ToLower(strings.TrimSpace(col))] {
			return true
		}
	}
	return false
}

// parseRow extracts the access ID and the four sample values from a CSV row
// in either accepted shape. Returns ok=false for malformed rows.
func parseRow(row []string) (string, domain.ReadingValues, bool) {
	var accessID string
	var fields []string

	switch {
	case len(row) >= 6:
		// recordID,accessID,voltage,current,power,energy — record ID ignored
		accessID = strings.TrimSpace(row[1])
		fields = row[2:6]
	case len(row) == 5:
		accessID = strings.TrimSpace(row[0])
		fields = row[1:5]
	default:
		return "", domain.ReadingValues{}, false
	}

	if accessID == "" {
		return "", domain.ReadingValues{}, false
	}

	var parsed [4]float64
	for i, field := range fields {
		f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", domain.ReadingValues{}, false
		}
		parsed[i] = f
	}

	return accessID, domain.ReadingValues{
		Voltage: parsed[0],
		Current: parsed[1],
		Power:   parsed[2],
		Energy:  parsed[3],
	}, true
}

// exportHeader is the column order of the bulk export.
var exportHeader = []string{"id", "meter_access_id", "voltage", "current", "power", "energy"}

// ExportCSV streams every persisted reading as CSV, resolving each internal
// meter ID back to its access ID. Values round-trip exactly.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.readings.ExportRows(ctx)
	if err != nil {
		return fmt.Errorf("failed to load readings for export: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.ID, 10),
			row.AccessID,
			formatValue(row.Voltage),
			formatValue(row.Current),
			formatValue(row.Power),
			formatValue(row.Energy),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}
	return nil
}

// formatValue renders a float with the shortest representation that parses
// back to the same value.
func formatValue(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
