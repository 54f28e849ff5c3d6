package attendance

import (
	"testing"
	"time"

	"rollcall-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summaryRecord(subject string, status models.AttendanceStatus) models.AttendanceRecord {
	return models.AttendanceRecord{
		RollNo:   "CS101",
		Name:     "Asha",
		Subject:  subject,
		Status:   status,
		Method:   models.MethodManual,
		MarkedAt: time.Now(),
	}
}

func TestSummarizeCountsMedicalLeaveAsPresent(t *testing.T) {
	student := &models.Student{RollNo: "CS101", Name: "Asha"}
	records := []models.AttendanceRecord{
		summaryRecord("Databases", models.StatusPresent),
		summaryRecord("Databases", models.StatusAbsent),
		summaryRecord("Databases", models.StatusMedicalLeave),
		summaryRecord("Databases", models.StatusMedicalLeave),
	}

	s := Summarize(student, records)
	assert.Equal(t, 4, s.Overall.Total)
	assert.Equal(t, 1, s.Overall.Present)
	assert.Equal(t, 1, s.Overall.Absent)
	assert.Equal(t, 2, s.Overall.MedicalLeave)
	// 1 present + 2 ML out of 4.
	assert.Equal(t, 75.0, s.Overall.Percentage)
}

func TestSummarizeLateIsNotPresent(t *testing.T) {
	student := &models.Student{RollNo: "CS101", Name: "Asha"}
	records := []models.AttendanceRecord{
		summaryRecord("", models.StatusPresent),
		summaryRecord("", models.StatusLate),
	}

	s := Summarize(student, records)
	assert.Equal(t, 1, s.Overall.Late)
	assert.Equal(t, 50.0, s.Overall.Percentage)
}

func TestSummarizeRoundsPercentage(t *testing.T) {
	student := &models.Student{RollNo: "CS101", Name: "Asha"}
	records := []models.AttendanceRecord{
		summaryRecord("", models.StatusPresent),
		summaryRecord("", models.StatusPresent),
		summaryRecord("", models.StatusAbsent),
	}

	s := Summarize(student, records)
	assert.Equal(t, 66.67, s.Overall.Percentage)
}

func TestSummarizeGroupsBySubject(t *testing.T) {
	student := &models.Student{RollNo: "CS101", Name: "Asha"}
	records := []models.AttendanceRecord{
		summaryRecord("Databases", models.StatusPresent),
		summaryRecord("Databases", models.StatusAbsent),
		summaryRecord("Algorithms", models.StatusPresent),
	}

	s := Summarize(student, records)
	require.Len(t, s.Subjects, 2)
	assert.Equal(t, "Algorithms", s.Subjects[0].Subject)
	assert.Equal(t, 100.0, s.Subjects[0].Percentage)
	assert.Equal(t, "Databases", s.Subjects[1].Subject)
	assert.Equal(t, 50.0, s.Subjects[1].Percentage)
}

func TestSummarizeEmptyHistory(t *testing.T) {
	student := &models.Student{RollNo: "CS101", Name: "Asha"}

	s := Summarize(student, nil)
	assert.Equal(t, 0, s.Overall.Total)
	assert.Equal(t, 0.0, s.Overall.Percentage)
	assert.Empty(t, s.Subjects)
}
