package attendance

import (
	"math"
	"sort"

	"rollcall-go/internal/models"
)

// StatusCounts tallies a slice of ledger records by status. Medical leave
// counts as present when computing the percentage; Late does not.
type StatusCounts struct {
	Total        int     `json:"totalClasses"`
	Present      int     `json:"present"`
	Absent       int     `json:"absent"`
	Late         int     `json:"late"`
	MedicalLeave int     `json:"ml"`
	Percentage   float64 `json:"percentage"`
}

// SubjectSummary is StatusCounts scoped to one subject. Records written
// without a subject are grouped under the empty string.
type SubjectSummary struct {
	Subject string `json:"subject"`
	StatusCounts
}

// StudentSummary is the attendance roll-up for one student.
type StudentSummary struct {
	RollNo   string           `json:"rollNo"`
	Name     string           `json:"name"`
	Overall  StatusCounts     `json:"overall"`
	Subjects []SubjectSummary `json:"subjects"`
}

func countStatuses(records []models.AttendanceRecord) StatusCounts {
	counts := StatusCounts{Total: len(records)}
	for _, rec := range records {
		switch rec.Status {
		case models.StatusPresent:
			counts.Present++
		case models.StatusAbsent:
			counts.Absent++
		case models.StatusLate:
			counts.Late++
		case models.StatusMedicalLeave:
			counts.MedicalLeave++
		}
	}
	counts.Percentage = percentage(counts.Present+counts.MedicalLeave, counts.Total)
	return counts
}

// percentage rounds to two decimals and caps at 100.
func percentage(effective, total int) float64 {
	if total == 0 {
		return 0
	}
	pct := math.Round(float64(effective)/float64(total)*10000) / 100
	return math.Min(pct, 100)
}

// Summarize builds the attendance roll-up for a student's full ledger
// history, overall and per subject.
func Summarize(student *models.Student, records []models.AttendanceRecord) *StudentSummary {
	bySubject := make(map[string][]models.AttendanceRecord)
	for _, rec := range records {
		bySubject[rec.Subject] = append(bySubject[rec.Subject], rec)
	}

	subjects := make([]SubjectSummary, 0, len(bySubject))
	for subject, recs := range bySubject {
		subjects = append(subjects, SubjectSummary{
			Subject:      subject,
			StatusCounts: countStatuses(recs),
		})
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Subject < subjects[j].Subject })

	return &StudentSummary{
		RollNo:   student.RollNo,
		Name:     student.Name,
		Overall:  countStatuses(records),
		Subjects: subjects,
	}
}
