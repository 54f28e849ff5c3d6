// Package leave handles medical leave requests and their reconciliation
// into the attendance ledger on approval.
package leave

import (
	"fmt"
	"strings"
	"time"

	"rollcall-go/internal/db/repository"
	"rollcall-go/internal/models"
	"rollcall-go/internal/outcome"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

// Date window accepted for new requests, relative to the submission day.
const (
	maxBackdateDays = 30
	maxFutureDays   = 90
)

type Service struct {
	repo repository.Repository
}

func NewService(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

// ApplyInput is a student's leave submission. The proof fields reference
// an already-stored document; this service never touches file contents.
type ApplyInput struct {
	StartDate     string
	EndDate       string
	ProofFilename string
	ProofURL      string
}

// Apply validates and files a new leave request for the student, routed
// to their assigned mentor.
func (s *Service) Apply(student *models.Student, in ApplyInput) (*models.LeaveRequest, error) {
	if student.MentorID == nil {
		return nil, outcome.Errf(outcome.KindValidation,
			"no mentor is assigned to %s; leave requests need a mentor to review them", student.Name)
	}
	if in.ProofFilename == "" {
		return nil, outcome.Errf(outcome.KindValidation, "a proof document is required")
	}
	if !strings.HasSuffix(strings.ToLower(in.ProofFilename), ".pdf") {
		return nil, outcome.Errf(outcome.KindValidation, "proof document must be a PDF")
	}

	start, err := time.Parse(dateLayout, in.StartDate)
	if err != nil {
		return nil, outcome.Errf(outcome.KindValidation, "invalid start date %q, expected YYYY-MM-DD", in.StartDate)
	}
	end, err := time.Parse(dateLayout, in.EndDate)
	if err != nil {
		return nil, outcome.Errf(outcome.KindValidation, "invalid end date %q, expected YYYY-MM-DD", in.EndDate)
	}
	if end.Before(start) {
		return nil, outcome.Errf(outcome.KindValidation, "end date cannot be before start date")
	}

	today, _ := time.Parse(dateLayout, time.Now().Format(dateLayout))
	if start.Before(today.AddDate(0, 0, -maxBackdateDays)) {
		return nil, outcome.Errf(outcome.KindValidation,
			"start date cannot be more than %d days in the past", maxBackdateDays)
	}
	if end.After(today.AddDate(0, 0, maxFutureDays)) {
		return nil, outcome.Errf(outcome.KindValidation,
			"end date cannot be more than %d days in the future", maxFutureDays)
	}

	req := &models.LeaveRequest{
		PublicID:      uuid.NewString(),
		StudentRoll:   student.RollNo,
		StudentName:   student.Name,
		MentorID:      *student.MentorID,
		StartDate:     start.Format(dateLayout),
		EndDate:       end.Format(dateLayout),
		ProofFilename: in.ProofFilename,
		ProofURL:      in.ProofURL,
		Status:        models.LeavePending,
	}
	if err := s.repo.CreateLeaveRequest(req); err != nil {
		return nil, outcome.StoreErr(err)
	}

	log.WithFields(log.Fields{
		"requestID": req.PublicID,
		"student":   student.RollNo,
		"start":     req.StartDate,
		"end":       req.EndDate,
	}).Info("Medical leave request filed")
	return req, nil
}

// ApprovalReport separates calendar coverage from ledger work: DatesCovered
// counts days in the leave span, LecturesChecked counts the records seen on
// those days, and LecturesUpdated counts absences converted to ML.
type ApprovalReport struct {
	Request         *models.LeaveRequest `json:"request"`
	DatesCovered    int                  `json:"datesCovered"`
	LecturesChecked int                  `json:"lecturesChecked"`
	AbsentFound     int                  `json:"absentFound"`
	LecturesUpdated int                  `json:"lecturesUpdated"`
}

// Decide settles a pending request. Only the mentor the request is routed
// to may decide it, and only while it is still pending. Approval converts
// the student's Absent records on every covered date to ML; Present, Late
// and already-ML records are left alone. Rejection changes nothing in the
// ledger.
func (s *Service) Decide(publicID string, decision models.LeaveStatus, approver *models.Teacher) (*ApprovalReport, error) {
	if decision != models.LeaveApproved && decision != models.LeaveRejected {
		return nil, outcome.Errf(outcome.KindValidation, "decision must be %s or %s", models.LeaveApproved, models.LeaveRejected)
	}

	req, err := s.repo.GetLeaveRequest(publicID)
	if err != nil {
		return nil, outcome.StoreErr(err)
	}
	if req == nil {
		return nil, outcome.Errf(outcome.KindNotFound, "leave request %s not found", publicID)
	}
	if req.Status != models.LeavePending {
		return nil, outcome.Errf(outcome.KindAlreadyProcessed,
			"leave request %s was already %s", publicID, strings.ToLower(string(req.Status)))
	}
	if req.MentorID != approver.ID {
		return nil, outcome.Errf(outcome.KindNotAuthorizedApprover,
			"request %s is assigned to another mentor", publicID)
	}

	now := time.Now()
	req.Status = decision
	req.ProcessedBy = approver.Username
	req.DecidedAt = &now
	if err := s.repo.SaveLeaveRequest(req); err != nil {
		return nil, outcome.StoreErr(err)
	}

	report := &ApprovalReport{Request: req}
	if decision == models.LeaveRejected {
		log.WithFields(log.Fields{"requestID": req.PublicID, "mentor": approver.Username}).
			Info("Medical leave request rejected")
		return report, nil
	}

	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		report.DatesCovered++
		date := day.Format(dateLayout)

		records, err := s.repo.RecordsForStudentOnDate(req.StudentRoll, date)
		if err != nil {
			return nil, outcome.StoreErr(err)
		}
		report.LecturesChecked += len(records)

		for i := range records {
			rec := &records[i]
			if rec.Status != models.StatusAbsent {
				continue
			}
			report.AbsentFound++
			rec.Status = models.StatusMedicalLeave
			rec.Method = models.MethodMLApproved
			rec.MarkedAt = now
			if err := s.repo.SaveRecord(rec); err != nil {
				return nil, outcome.StoreErr(err)
			}
			report.LecturesUpdated++
		}
	}

	log.WithFields(log.Fields{
		"requestID": req.PublicID,
		"student":   req.StudentRoll,
		"dates":     report.DatesCovered,
		"updated":   report.LecturesUpdated,
	}).Info("Medical leave approved and reconciled into ledger")
	return report, nil
}

// ForStudent lists a student's own requests, newest first.
func (s *Service) ForStudent(rollNo string) ([]models.LeaveRequest, error) {
	return s.repo.ListLeaveRequestsForStudent(rollNo)
}

// ForMentor lists requests routed to a mentor, pending ones first.
func (s *Service) ForMentor(mentorID uint) ([]models.LeaveRequest, error) {
	return s.repo.ListLeaveRequestsForMentor(mentorID)
}

// Describe renders a one-line human summary of a request's span.
func Describe(req *models.LeaveRequest) string {
	if req.StartDate == req.EndDate {
		return fmt.Sprintf("leave on %s", req.StartDate)
	}
	return fmt.Sprintf("leave from %s to %s", req.StartDate, req.EndDate)
}
