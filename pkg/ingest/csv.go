package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/noah-isme/course-enroll-api/internal/models"
)

// Column aliases accepted in upload headers. Keys are normalised header
// names, values are the canonical field.
var headerAliases = map[string]string{
	"employee_id": "employee_id",
	"emp_id":      "employee_id",
	"name":        "name",
	"full_name":   "name",
	"email":       "email",
	"sbu":         "sbu",
	"designation": "designation",
	"course_name": "course_name",
	"course":      "course_name",
	"batch_code":  "batch_code",
	"batch":       "batch_code",
}

var requiredFields = []string{"employee_id", "name", "email", "course_name", "batch_code"}

// ParseCSV reads an enrollment import CSV and returns normalised records.
// maxRecords caps the number of data rows; zero means no cap. Files missing
// a required column are rejected outright; rows missing a required value are
// still returned, so the processor can fail them individually without
// blocking the rest of the batch.
func ParseCSV(r io.Reader, maxRecords int) ([]models.ImportRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

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
		if field, ok := headerAliases[normalizeHeader(raw)]; ok {
			columns[i] = field
			seen[field] = true
		}
	}
	for _, field := range requiredFields {
		if !seen[field] {
			return nil, fmt.Errorf("missing required column %q", field)
		}
	}

	records := make([]models.ImportRecord, 0)
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

		raw, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("row %d: encode raw data: %w", row, err)
		}

		records = append(records, models.ImportRecord{
			EmployeeID:  fields["employee_id"],
			Name:        fields["name"],
			Email:       strings.ToLower(fields["email"]),
			SBU:         fields["sbu"],
			Designation: fields["designation"],
			CourseName:  fields["course_name"],
			BatchCode:   fields["batch_code"],
			Raw:         string(raw),
		})
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("file contains no records")
	}
	return records, nil
}

func normalizeHeader(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ReplaceAll(s, " ", "_")
}

func isEmptyRow(fields map[string]string) bool {
	for _, v := range fields {
		if v != "" {
			return false
		}
	}
	return true
}
