package attendance

import (
	"rollcall-go/internal/db/repository"
	"rollcall-go/internal/models"

	log "github.com/sirupsen/logrus"
)

// Auditor repairs ledger entropy left by historically unguarded writes:
// lecture numbers stored as text and multiple records sharing one key.
type Auditor struct {
	repo repository.Repository
}

func NewAuditor(repo repository.Repository) *Auditor {
	return &Auditor{repo: repo}
}

// DuplicateGroup summarizes one key with more than one record.
type DuplicateGroup struct {
	Key     repository.RecordKey      `json:"key"`
	Count   int                       `json:"count"`
	Records []models.AttendanceRecord `json:"records"`
}

// AuditReport is the result of one cleanup run.
type AuditReport struct {
	TypesNormalized int64 `json:"typesNormalized"`
	GroupsFound     int   `json:"groupsFound"`
	RecordsRemoved  int   `json:"recordsRemoved"`
}

// Check reports duplicate groups without modifying anything. Lecture
// number normalization still runs first so that "3" and 3 group together.
func (a *Auditor) Check() ([]DuplicateGroup, error) {
	if _, err := a.repo.NormalizeLectureNumbers(); err != nil {
		return nil, err
	}

	groups, err := a.repo.FindDuplicateGroups()
	if err != nil {
		return nil, err
	}

	out := make([]DuplicateGroup, 0, len(groups))
	for _, records := range groups {
		out = append(out, DuplicateGroup{Key: keyOf(records[0]), Count: len(records), Records: records})
	}
	return out, nil
}

// Run normalizes lecture number types, then collapses every duplicate
// group down to its single best record. Running it twice in a row finds
// nothing the second time.
func (a *Auditor) Run() (*AuditReport, error) {
	normalized, err := a.repo.NormalizeLectureNumbers()
	if err != nil {
		return nil, err
	}
	if normalized > 0 {
		log.WithField("count", normalized).Info("Normalized text lecture numbers to integers")
	}

	groups, err := a.repo.FindDuplicateGroups()
	if err != nil {
		return nil, err
	}

	report := &AuditReport{TypesNormalized: normalized, GroupsFound: len(groups)}

	for _, records := range groups {
		key := keyOf(records[0])
		keep := bestRecord(records)
		for i, rec := range records {
			if i == keep {
				continue
			}
			if err := a.repo.DeleteRecordByID(rec.ID); err != nil {
				log.WithError(err).WithField("recordID", rec.ID).Warn("Failed to delete duplicate record")
				continue
			}
			report.RecordsRemoved++
		}
		log.WithFields(log.Fields{
			"rollNo":  key.RollNo,
			"lecture": key.LectureNumber,
			"date":    key.Date,
			"kept":    records[keep].ID,
		}).Debug("Collapsed duplicate attendance group")
	}
	return report, nil
}

func keyOf(rec models.AttendanceRecord) repository.RecordKey {
	return repository.RecordKey{
		RollNo:        rec.RollNo,
		LectureNumber: rec.LectureNumber,
		Date:          rec.Date,
	}
}

// bestRecord picks the survivor of a duplicate group: a Present record
// beats any non-Present one, and on equal standing the more trusted mark
// method wins. Ties keep the earliest record.
func bestRecord(records []models.AttendanceRecord) int {
	best := 0
	for i := 1; i < len(records); i++ {
		if rank(records[i]) > rank(records[best]) {
			best = i
		}
	}
	return best
}

func rank(rec models.AttendanceRecord) int {
	score := methodRank(rec.Method)
	if rec.Status == models.StatusPresent {
		score += 10
	}
	return score
}

func methodRank(method models.MarkMethod) int {
	switch method {
	case models.MethodFaceRecognition:
		return 4
	case models.MethodManual:
		return 3
	case models.MethodBulkUpload:
		return 2
	case models.MethodMLApproved:
		return 1
	default:
		return 0
	}
}
