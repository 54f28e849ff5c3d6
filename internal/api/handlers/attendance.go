package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"rollcall-go/internal/attendance"
	"rollcall-go/internal/extract"
	"rollcall-go/internal/importer"
	"rollcall-go/internal/models"
	"rollcall-go/internal/outcome"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

// readImage accepts either a multipart "image" file or a JSON body with a
// base64 "image" field (data URL prefixes are tolerated).
func readImage(c *gin.Context) ([]byte, error) {
	if file, err := c.FormFile("image"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, outcome.Errf(outcome.KindValidation, "could not open uploaded image: %v", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, outcome.Errf(outcome.KindValidation, "could not read uploaded image: %v", err)
		}
		return data, nil
	}

	var body struct {
		Image string `json:"image"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Image == "" {
		return nil, outcome.Errf(outcome.KindValidation, "an image is required, as multipart file or base64 JSON field")
	}
	raw := body.Image
	if idx := strings.Index(raw, ","); idx >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, outcome.Errf(outcome.KindValidation, "image field is not valid base64: %v", err)
	}
	return data, nil
}

// MarkAttendanceByFace runs the recognition pipeline: active lecture,
// embedding extraction, gallery match, then reconciliation as a Present
// mark via face_recognition.
func (h *APIHandler) MarkAttendanceByFace(c *gin.Context) {
	active, err := h.repo.ActiveLecture()
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	if active == nil {
		respondError(c, outcome.Errf(outcome.KindNoActiveLecture,
			"no lecture is currently active; ask the teacher to start one"))
		return
	}

	image, err := readImage(c)
	if err != nil {
		respondError(c, err)
		return
	}

	probe, err := h.extractor.Extract(c.Request.Context(), image)
	if err != nil {
		if errors.Is(err, extract.ErrNoFaceDetected) {
			respondError(c, outcome.Errf(outcome.KindDetectionFailure,
				"no face detected in the submitted image"))
			return
		}
		respondError(c, outcome.Errf(outcome.KindDetectionFailure,
			"embedding extraction failed: %v", err))
		return
	}

	gallery, err := h.gallery()
	if err != nil {
		respondError(c, err)
		return
	}

	match, ok := h.matcher.Recognize(probe, gallery)
	if !ok {
		respondError(c, outcome.Errf(outcome.KindNoMatch,
			"face not recognized; no enrolled student within the recognition threshold"))
		return
	}

	log.WithFields(log.Fields{
		"rollNo":   match.RollNo,
		"distance": match.Distance,
		"lecture":  active.LectureNumber,
	}).Info("Face recognized")

	result, err := h.engine.Mark(attendance.Event{
		RollNo:        match.RollNo,
		Name:          match.Name,
		Status:        models.StatusPresent,
		Method:        models.MethodFaceRecognition,
		LectureNumber: active.LectureNumber,
		Date:          active.Date,
		Subject:       active.Subject,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"action":   result.Action,
		"message":  result.Message,
		"record":   result.Record,
		"distance": match.Distance,
	})
}

type manualMarkRequest struct {
	RollNo        string `json:"rollNo" binding:"required"`
	Status        string `json:"status" binding:"required"`
	LectureNumber int    `json:"lectureNumber" binding:"required"`
	Date          string `json:"date" binding:"required"`
	Subject       string `json:"subject"`
}

// MarkAttendanceManual applies one teacher-entered mark through the full
// conflict policy.
func (h *APIHandler) MarkAttendanceManual(c *gin.Context) {
	var req manualMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, outcome.Errf(outcome.KindValidation, "invalid request body: %v", err))
		return
	}

	student, err := h.repo.GetStudentByRoll(req.RollNo)
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	if student == nil {
		respondError(c, outcome.Errf(outcome.KindNotFound, "no student with roll number %s", req.RollNo))
		return
	}

	result, err := h.engine.Mark(attendance.Event{
		RollNo:        req.RollNo,
		Name:          student.Name,
		Status:        models.AttendanceStatus(req.Status),
		Method:        models.MethodManual,
		LectureNumber: req.LectureNumber,
		Date:          req.Date,
		Subject:       req.Subject,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"action": result.Action, "message": result.Message, "record": result.Record})
}

type safeMarkRequest struct {
	RollNo        string `json:"rollNo" binding:"required"`
	Name          string `json:"name" binding:"required"`
	Status        string `json:"status" binding:"required"`
	LectureNumber int    `json:"lectureNumber" binding:"required"`
	Date          string `json:"date" binding:"required"`
	Subject       string `json:"subject"`
}

// MarkAttendanceSafe is the atomic upsert entry point for trusted callers.
func (h *APIHandler) MarkAttendanceSafe(c *gin.Context) {
	var req safeMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, outcome.Errf(outcome.KindValidation, "invalid request body: %v", err))
		return
	}

	result, err := h.engine.MarkSafe(attendance.Event{
		RollNo:        req.RollNo,
		Name:          req.Name,
		Status:        models.AttendanceStatus(req.Status),
		Method:        models.MethodManual,
		LectureNumber: req.LectureNumber,
		Date:          req.Date,
		Subject:       req.Subject,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"action": result.Action, "message": result.Message, "record": result.Record})
}

type rosterRequest struct {
	RollNos       []string `json:"rollNos" binding:"required"`
	Status        string   `json:"status" binding:"required"`
	LectureNumber int      `json:"lectureNumber" binding:"required"`
	Date          string   `json:"date" binding:"required"`
	Subject       string   `json:"subject"`
}

// MarkRoster marks one status for a list of students, with per-student
// results.
func (h *APIHandler) MarkRoster(c *gin.Context) {
	var req rosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, outcome.Errf(outcome.KindValidation, "invalid request body: %v", err))
		return
	}
	if len(req.RollNos) == 0 {
		respondError(c, outcome.Errf(outcome.KindValidation, "rollNos must not be empty"))
		return
	}

	status := models.AttendanceStatus(req.Status)
	if !status.Valid() {
		respondError(c, outcome.Errf(outcome.KindValidation, "invalid attendance status %q", req.Status))
		return
	}

	results := h.engine.MarkRoster(req.RollNos, status, models.MethodManual, req.LectureNumber, req.Date, req.Subject)

	marked := 0
	for _, r := range results {
		if r.Success {
			marked++
		}
	}
	respondOK(c, gin.H{"marked": marked, "total": len(results), "results": results})
}

// BulkImport ingests a CSV sheet ("Roll No.", "Name", "Attendance" with
// P/A cells) for one lecture occurrence. The whole sheet is validated
// before any row is written.
func (h *APIHandler) BulkImport(c *gin.Context) {
	lectureNumber, err := intForm(c, "lectureNumber")
	if err != nil {
		respondError(c, err)
		return
	}
	date := c.PostForm("date")
	if date == "" {
		date = time.Now().Format(dateLayout)
	}
	subject := c.PostForm("subject")

	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, outcome.Errf(outcome.KindValidation, "a CSV file upload named %q is required", "file"))
		return
	}
	f, err := file.Open()
	if err != nil {
		respondError(c, outcome.Errf(outcome.KindValidation, "could not open uploaded file: %v", err))
		return
	}
	defer f.Close()

	rows, err := importer.ParseCSV(f)
	if err != nil {
		respondError(c, err)
		return
	}

	created, updated, skipped := 0, 0, 0
	details := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		student, err := h.repo.GetStudentByRoll(row.RollNo)
		if err != nil {
			respondError(c, outcome.StoreErr(err))
			return
		}
		if student == nil {
			skipped++
			details = append(details, gin.H{"rollNo": row.RollNo, "error": "not enrolled"})
			continue
		}
		if !importer.NamesMatch(row.Name, student.Name) {
			details = append(details, gin.H{
				"rollNo":  row.RollNo,
				"warning": fmt.Sprintf("sheet name %q does not match enrolled name %q", row.Name, student.Name),
			})
		}
		result, err := h.engine.Mark(attendance.Event{
			RollNo:        row.RollNo,
			Name:          student.Name,
			Status:        row.Status,
			Method:        models.MethodBulkUpload,
			LectureNumber: lectureNumber,
			Date:          date,
			Subject:       subject,
		})
		if err != nil {
			skipped++
			details = append(details, gin.H{"rollNo": row.RollNo, "error": err.Error()})
			continue
		}
		switch result.Action {
		case attendance.ActionCreated:
			created++
		case attendance.ActionUpdated:
			updated++
		default:
			skipped++
		}
	}

	respondOK(c, gin.H{
		"rows":    len(rows),
		"created": created,
		"updated": updated,
		"skipped": skipped,
		"details": details,
	})
}
