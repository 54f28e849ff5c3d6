package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"rollcall-go/internal/api/middleware"
	"rollcall-go/internal/leave"
	"rollcall-go/internal/models"
	"rollcall-go/internal/outcome"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func (h *APIHandler) currentStudent(c *gin.Context) (*models.Student, error) {
	username := c.GetString(middleware.CtxUsername)
	student, err := h.repo.GetStudentByUsername(username)
	if err != nil {
		return nil, outcome.StoreErr(err)
	}
	if student == nil {
		return nil, outcome.Errf(outcome.KindNotFound, "no student account for user %q", username)
	}
	return student, nil
}

func (h *APIHandler) currentTeacher(c *gin.Context) (*models.Teacher, error) {
	username := c.GetString(middleware.CtxUsername)
	teacher, err := h.repo.GetTeacherByUsername(username)
	if err != nil {
		return nil, outcome.StoreErr(err)
	}
	if teacher == nil {
		return nil, outcome.Errf(outcome.KindNotFound, "no teacher account for user %q", username)
	}
	return teacher, nil
}

// ApplyLeave files a medical leave request for the calling student. The
// PDF proof document arrives as a multipart "proof" upload and is stored
// under the configured upload directory.
func (h *APIHandler) ApplyLeave(c *gin.Context) {
	student, err := h.currentStudent(c)
	if err != nil {
		respondError(c, err)
		return
	}

	file, err := c.FormFile("proof")
	if err != nil {
		respondError(c, outcome.Errf(outcome.KindValidation, "a proof document upload named %q is required", "proof"))
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		respondError(c, outcome.Errf(outcome.KindValidation, "proof document must be a PDF"))
		return
	}

	stored := fmt.Sprintf("%s_%s%s", uuid.NewString(), student.RollNo, filepath.Ext(file.Filename))
	dest := filepath.Join(h.cfg.Server.UploadDir, stored)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		respondError(c, outcome.Errf(outcome.KindStoreFailure, "could not store proof document: %v", err))
		return
	}

	req, err := h.leaves.Apply(student, leave.ApplyInput{
		StartDate:     c.PostForm("startDate"),
		EndDate:       c.PostForm("endDate"),
		ProofFilename: file.Filename,
		ProofURL:      "/uploads/" + stored,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"request": req, "message": "Leave request submitted for mentor review"})
}

// ListOwnLeaves returns the calling student's leave requests.
func (h *APIHandler) ListOwnLeaves(c *gin.Context) {
	student, err := h.currentStudent(c)
	if err != nil {
		respondError(c, err)
		return
	}
	requests, err := h.leaves.ForStudent(student.RollNo)
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	respondOK(c, gin.H{"requests": requests, "count": len(requests)})
}

// ListMentorLeaves returns requests routed to the calling mentor,
// pending ones first.
func (h *APIHandler) ListMentorLeaves(c *gin.Context) {
	teacher, err := h.currentTeacher(c)
	if err != nil {
		respondError(c, err)
		return
	}
	requests, err := h.leaves.ForMentor(teacher.ID)
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	respondOK(c, gin.H{"requests": requests, "count": len(requests)})
}

type leaveDecisionRequest struct {
	Decision string `json:"decision" binding:"required"` // APPROVED or REJECTED
}

// DecideLeave settles a pending request and, on approval, reconciles the
// student's absences in the covered span into ML.
func (h *APIHandler) DecideLeave(c *gin.Context) {
	teacher, err := h.currentTeacher(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req leaveDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, outcome.Errf(outcome.KindValidation, "invalid request body: %v", err))
		return
	}

	report, err := h.leaves.Decide(c.Param("requestId"),
		models.LeaveStatus(strings.ToUpper(req.Decision)), teacher)
	if err != nil {
		respondError(c, err)
		return
	}

	log.WithFields(log.Fields{
		"requestId": c.Param("requestId"),
		"decision":  report.Request.Status,
		"mentor":    teacher.Username,
	}).Info("Leave request decided")
	respondOK(c, gin.H{"report": report})
}
