// Package attendance implements the ledger state machine and the
// reconciliation of incoming mark events against it, plus the on-demand
// duplicate auditor.
package attendance

import (
	"fmt"
	"time"

	"rollcall-go/internal/db/repository"
	"rollcall-go/internal/models"
	"rollcall-go/internal/outcome"

	log "github.com/sirupsen/logrus"
)

// Event is one incoming attendance write, from any channel.
type Event struct {
	RollNo        string
	Name          string
	Status        models.AttendanceStatus
	Method        models.MarkMethod
	LectureNumber int
	Date          string // YYYY-MM-DD
	Subject       string
	MarkedAt      time.Time
}

// MarkAction describes what the engine did with an event.
type MarkAction string

const (
	ActionCreated       MarkAction = "created"
	ActionUpdated       MarkAction = "updated"
	ActionAlreadyMarked MarkAction = "already_marked"
)

// MarkResult is the decision for an accepted (or no-op) event. Rejections
// are returned as classified errors instead.
type MarkResult struct {
	Action         MarkAction              `json:"action"`
	Record         models.AttendanceRecord `json:"record"`
	PreviousStatus models.AttendanceStatus `json:"previousStatus,omitempty"`
	PreviousMethod models.MarkMethod       `json:"previousMethod,omitempty"`
	PreviousTime   *time.Time              `json:"previousTime,omitempty"`
	Message        string                  `json:"message"`
}

// EventPublisher receives accepted ledger mutations, e.g. for MQTT fan-out.
type EventPublisher interface {
	PublishMark(rec models.AttendanceRecord)
}

// Engine reconciles incoming events against the ledger.
type Engine struct {
	repo      repository.Repository
	publisher EventPublisher // optional
}

// NewEngine creates a reconciliation engine. publisher may be nil.
func NewEngine(repo repository.Repository, publisher EventPublisher) *Engine {
	return &Engine{repo: repo, publisher: publisher}
}

// validate enforces required fields and the canonical integer lecture
// number at the write boundary.
func validate(event Event) error {
	if event.RollNo == "" || event.Date == "" || event.LectureNumber <= 0 {
		return outcome.Errf(outcome.KindValidation, "missing required fields: roll number, lecture number and date are mandatory")
	}
	if !event.Status.Valid() {
		return outcome.Errf(outcome.KindValidation, "invalid attendance status %q", event.Status)
	}
	if event.Method == "" {
		return outcome.Errf(outcome.KindValidation, "mark method is required")
	}
	if _, err := time.Parse("2006-01-02", event.Date); err != nil {
		return outcome.Errf(outcome.KindValidation, "invalid date %q, expected YYYY-MM-DD", event.Date)
	}
	return nil
}

// Mark applies the full conflict policy for one event:
//
//   - no record for the key: create.
//   - identical status: no-op, reported as success with the existing
//     record's method and mark time so the caller can offer an edit.
//   - manual absence vs face recognition: rejected; an automatic match
//     never silently overrides a teacher's explicit absence.
//   - face recognition against any other existing state: update to
//     Present via face_recognition.
//   - manual (and bulk upload): unconditional overwrite.
//
// The check and the write are deliberately not one atomic step here; use
// MarkSafe where last-write-wins upsert semantics are acceptable.
func (e *Engine) Mark(event Event) (*MarkResult, error) {
	if err := validate(event); err != nil {
		return nil, err
	}
	if event.MarkedAt.IsZero() {
		event.MarkedAt = time.Now()
	}

	key := repository.RecordKey{
		RollNo:        event.RollNo,
		LectureNumber: event.LectureNumber,
		Date:          event.Date,
	}

	existing, err := e.repo.FindRecord(key, event.Subject)
	if err != nil {
		return nil, outcome.StoreErr(err)
	}

	if existing == nil {
		rec := recordFrom(event)
		if err := e.repo.CreateRecord(&rec); err != nil {
			return nil, outcome.StoreErr(err)
		}
		e.afterAccept(rec)
		return &MarkResult{
			Action:  ActionCreated,
			Record:  rec,
			Message: fmt.Sprintf("Marked %s as %s for lecture %d", rec.Name, rec.Status, rec.LectureNumber),
		}, nil
	}

	if existing.Status == event.Status {
		// No-op, but tell the caller what is already there.
		return &MarkResult{
			Action:         ActionAlreadyMarked,
			Record:         *existing,
			PreviousStatus: existing.Status,
			PreviousMethod: existing.Method,
			PreviousTime:   &existing.MarkedAt,
			Message: fmt.Sprintf("%s is already marked %s for lecture %d via %s",
				existing.Name, existing.Status, existing.LectureNumber, existing.Method),
		}, nil
	}

	if event.Method == models.MethodFaceRecognition {
		if existing.Status == models.StatusAbsent && existing.Method == models.MethodManual {
			return nil, outcome.Errf(outcome.KindConflictingManualMark,
				"%s is manually marked absent for lecture %d; face recognition cannot override a manual absence",
				existing.Name, existing.LectureNumber)
		}
		return e.update(existing, models.StatusPresent, models.MethodFaceRecognition, event)
	}

	// Manual is the highest-priority channel; bulk upload behaves the same
	// for create/update but keeps its own method tag so the duplicate
	// auditor can rank it below face recognition on status ties.
	return e.update(existing, event.Status, event.Method, event)
}

// MarkSafe creates or overwrites the record for the event's key as a
// single atomic upsert, without Mark's no-op and conflict nuance. Intended
// for trusted pipelines where idempotent last-write-wins is acceptable.
func (e *Engine) MarkSafe(event Event) (*MarkResult, error) {
	if err := validate(event); err != nil {
		return nil, err
	}
	if event.Name == "" {
		return nil, outcome.Errf(outcome.KindValidation, "missing required fields: name is mandatory")
	}
	if event.MarkedAt.IsZero() {
		event.MarkedAt = time.Now()
	}

	rec := recordFrom(event)
	created, previous, err := e.repo.UpsertRecord(&rec)
	if err != nil {
		return nil, outcome.StoreErr(err)
	}
	e.afterAccept(rec)

	if created {
		return &MarkResult{
			Action:  ActionCreated,
			Record:  rec,
			Message: fmt.Sprintf("Marked attendance for %s as %s", rec.Name, rec.Status),
		}, nil
	}
	return &MarkResult{
		Action:         ActionUpdated,
		Record:         rec,
		PreviousStatus: previous.Status,
		PreviousMethod: previous.Method,
		PreviousTime:   &previous.MarkedAt,
		Message:        fmt.Sprintf("Updated attendance for %s to %s", rec.Name, rec.Status),
	}, nil
}

// RosterResult is the per-student outcome of a roster marking call.
type RosterResult struct {
	RollNo  string     `json:"rollNo"`
	Success bool       `json:"success"`
	Action  MarkAction `json:"action,omitempty"`
	Message string     `json:"message"`
}

// MarkRoster applies one status to a list of students through the full
// conflict policy, reporting per-student results instead of failing the
// batch on the first problem.
func (e *Engine) MarkRoster(rollNos []string, status models.AttendanceStatus, method models.MarkMethod, lectureNumber int, date, subject string) []RosterResult {
	results := make([]RosterResult, 0, len(rollNos))

	for _, rollNo := range rollNos {
		student, err := e.repo.GetStudentByRoll(rollNo)
		if err != nil {
			results = append(results, RosterResult{RollNo: rollNo, Message: "store failure: " + err.Error()})
			continue
		}
		if student == nil {
			results = append(results, RosterResult{RollNo: rollNo, Message: "student not found"})
			continue
		}

		res, err := e.Mark(Event{
			RollNo:        rollNo,
			Name:          student.Name,
			Status:        status,
			Method:        method,
			LectureNumber: lectureNumber,
			Date:          date,
			Subject:       subject,
		})
		if err != nil {
			results = append(results, RosterResult{RollNo: rollNo, Message: err.Error()})
			continue
		}
		results = append(results, RosterResult{
			RollNo:  rollNo,
			Success: res.Action != ActionAlreadyMarked,
			Action:  res.Action,
			Message: res.Message,
		})
	}
	return results
}

func (e *Engine) update(existing *models.AttendanceRecord, status models.AttendanceStatus, method models.MarkMethod, event Event) (*MarkResult, error) {
	prevStatus := existing.Status
	prevMethod := existing.Method
	prevTime := existing.MarkedAt

	existing.Status = status
	existing.Method = method
	existing.MarkedAt = event.MarkedAt
	if event.Subject != "" {
		existing.Subject = event.Subject
	}

	if err := e.repo.SaveRecord(existing); err != nil {
		return nil, outcome.StoreErr(err)
	}
	e.afterAccept(*existing)

	return &MarkResult{
		Action:         ActionUpdated,
		Record:         *existing,
		PreviousStatus: prevStatus,
		PreviousMethod: prevMethod,
		PreviousTime:   &prevTime,
		Message: fmt.Sprintf("Updated %s from %s (%s) to %s (%s)",
			existing.Name, prevStatus, prevMethod, status, method),
	}, nil
}

// afterAccept runs the side effects of an accepted create/update: the
// attendee set of the matching active lecture occurrence and the optional
// event publisher. Failures here are logged, never propagated; the ledger
// write already happened.
func (e *Engine) afterAccept(rec models.AttendanceRecord) {
	active, err := e.repo.ActiveLecture()
	if err != nil {
		log.WithError(err).Warn("Failed to look up active lecture for attendee tracking")
	} else if active != nil && active.LectureNumber == rec.LectureNumber && active.Date == rec.Date {
		if err := e.repo.AddAttendee(active.ID, rec.RollNo); err != nil {
			log.WithError(err).WithField("rollNo", rec.RollNo).Warn("Failed to add attendee to active lecture")
		}
	}

	if e.publisher != nil {
		e.publisher.PublishMark(rec)
	}
}

func recordFrom(event Event) models.AttendanceRecord {
	return models.AttendanceRecord{
		RollNo:        event.RollNo,
		Name:          event.Name,
		LectureNumber: event.LectureNumber,
		Date:          event.Date,
		Subject:       event.Subject,
		Status:        event.Status,
		Method:        event.Method,
		MarkedAt:      event.MarkedAt,
	}
}
