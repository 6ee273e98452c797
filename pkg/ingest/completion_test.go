package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCompletionCSV(t *testing.T) {
	payload := strings.Join([]string{
		"Enrollment ID,Status,Score,Attendance,total_classes,classes_attended,completion_date",
		"enr-1,COMPLETED,88.5,92,10,9,2026-08-20",
		"enr-2,FAILED,41,,,,",
	}, "\n")

	records, err := ParseCompletionCSV(strings.NewReader(payload), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "enr-1", records[0].EnrollmentID)
	require.Equal(t, "COMPLETED", records[0].CompletionStatus)
	require.NotNil(t, records[0].Score)
	require.InDelta(t, 88.5, *records[0].Score, 0.001)
	require.NotNil(t, records[0].TotalClasses)
	require.Equal(t, 10, *records[0].TotalClasses)
	require.NotNil(t, records[0].CompletionDate)

	require.Nil(t, records[1].AttendancePercentage)
	require.Nil(t, records[1].CompletionDate)
}

func TestParseCompletionCSVInvalidScore(t *testing.T) {
	payload := strings.Join([]string{
		"enrollment_id,completion_status,score",
		"enr-1,COMPLETED,not-a-number",
	}, "\n")

	_, err := ParseCompletionCSV(strings.NewReader(payload), 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "score")
}

func TestParseCompletionCSVMissingStatusColumn(t *testing.T) {
	payload := strings.Join([]string{
		"enrollment_id,score",
		"enr-1,88.5",
	}, "\n")

	_, err := ParseCompletionCSV(strings.NewReader(payload), 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "completion_status")
}
