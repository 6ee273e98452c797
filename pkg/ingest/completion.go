package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/noah-isme/course-enroll-api/internal/models"
)

var completionHeaderAliases = map[string]string{
	"enrollment_id":         "enrollment_id",
	"enrollment":            "enrollment_id",
	"completion_status":     "completion_status",
	"status":                "completion_status",
	"score":                 "score",
	"attendance_percentage": "attendance_percentage",
	"attendance":            "attendance_percentage",
	"total_classes":         "total_classes",
	"classes_attended":      "classes_attended",
	"completion_date":       "completion_date",
}

var completionRequiredFields = []string{"enrollment_id", "completion_status"}

// ParseCompletionCSV reads a completion results upload. Same contract as
// ParseCSV: the whole file is rejected on the first malformed row.
func ParseCompletionCSV(r io.Reader, maxRecords int) ([]models.CompletionRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[int]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, raw := range header {
		if field, ok := completionHeaderAliases[normalizeHeader(raw)]; ok {
			columns[i] = field
			seen[field] = true
		}
	}
	for _, field := range completionRequiredFields {
		if !seen[field] {
			return nil, fmt.Errorf("missing required column %q", field)
		}
	}

	records := make([]models.CompletionRecord, 0)
	row := 1
	for {
		values, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row+1, err)
		}
		row++
		if maxRecords > 0 && len(records) >= maxRecords {
			return nil, fmt.Errorf("file exceeds the limit of %d records", maxRecords)
		}

		fields := make(map[string]string, len(columns))
		for i, value := range values {
			if field, ok := columns[i]; ok {
				fields[field] = strings.TrimSpace(value)
			}
		}
		if isEmptyRow(fields) {
			continue
		}
		for _, field := range completionRequiredFields {
			if fields[field] == "" {
				return nil, fmt.Errorf("row %d: missing value for %q", row, field)
			}
		}

		record := models.CompletionRecord{
			EnrollmentID:     fields["enrollment_id"],
			CompletionStatus: fields["completion_status"],
		}
		if record.Score, err = parseOptionalFloat(fields["score"], row, "score"); err != nil {
			return nil, err
		}
		if record.AttendancePercentage, err = parseOptionalFloat(fields["attendance_percentage"], row, "attendance_percentage"); err != nil {
			return nil, err
		}
		if record.TotalClasses, err = parseOptionalInt(fields["total_classes"], row, "total_classes"); err != nil {
			return nil, err
		}
		if record.ClassesAttended, err = parseOptionalInt(fields["classes_attended"], row, "classes_attended"); err != nil {
			return nil, err
		}
		if date := fields["completion_date"]; date != "" {
			record.CompletionDate = &date
		}

		records = append(records, record)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("file contains no records")
	}
	return records, nil
}

func parseOptionalFloat(raw string, row int, field string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("row %d: invalid %s %q", row, field, raw)
	}
	return &value, nil
}

func parseOptionalInt(raw string, row int, field string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("row %d: invalid %s %q", row, field, raw)
	}
	return &value, nil
}
