// Package handlers wires the attendance core to the HTTP API.
package handlers

import (
	"net/http"

	"rollcall-go/config"
	"rollcall-go/internal/api/middleware"
	"rollcall-go/internal/attendance"
	"rollcall-go/internal/db/repository"
	"rollcall-go/internal/extract"
	"rollcall-go/internal/leave"
	"rollcall-go/internal/matcher"
	"rollcall-go/internal/outcome"

	"github.com/gin-gonic/gin"
)

// APIHandler carries the shared dependencies of all API endpoints.
type APIHandler struct {
	cfg       *config.Config
	repo      repository.Repository
	extractor extract.Extractor
	matcher   *matcher.Matcher
	engine    *attendance.Engine
	auditor   *attendance.Auditor
	leaves    *leave.Service
}

// NewAPIHandler creates the handler set.
func NewAPIHandler(
	cfg *config.Config,
	repo repository.Repository,
	extractor extract.Extractor,
	m *matcher.Matcher,
	engine *attendance.Engine,
	auditor *attendance.Auditor,
	leaves *leave.Service,
) *APIHandler {
	return &APIHandler{
		cfg:       cfg,
		repo:      repo,
		extractor: extractor,
		matcher:   m,
		engine:    engine,
		auditor:   auditor,
		leaves:    leaves,
	}
}

// RegisterRoutes mounts all endpoints on the router group.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := h.cfg.Auth
	teacherOnly := middleware.RequireRole(auth, middleware.RoleTeacher, middleware.RoleAdmin)
	adminOnly := middleware.RequireRole(auth, middleware.RoleAdmin)
	studentOnly := middleware.RequireRole(auth, middleware.RoleStudent, middleware.RoleAdmin)

	// Recognition kiosk endpoint; the kiosk terminal has no user identity.
	router.POST("/mark-attendance", h.MarkAttendanceByFace)

	// Enrollment and student management.
	router.POST("/enroll", adminOnly, h.EnrollStudent)
	router.GET("/students", teacherOnly, h.ListStudents)
	router.POST("/students/:rollNo/embeddings", adminOnly, h.AddStudentEmbedding)
	router.DELETE("/students/:rollNo", adminOnly, h.DeleteStudent)

	// Manual and batch marking.
	router.POST("/mark-attendance-manual", teacherOnly, h.MarkAttendanceManual)
	router.POST("/mark-attendance-safe", teacherOnly, h.MarkAttendanceSafe)
	router.POST("/manual-attendance", teacherOnly, h.MarkRoster)
	router.POST("/bulk-attendance", teacherOnly, h.BulkImport)

	// Ledger inspection and repair.
	router.GET("/attendance-records", teacherOnly, h.ListRecords)
	router.DELETE("/attendance-records/:id", adminOnly, h.DeleteRecord)
	router.DELETE("/cleanup-attendance", adminOnly, h.CleanupInvalidRecords)
	router.GET("/check-duplicates", adminOnly, h.CheckDuplicates)
	router.POST("/cleanup-duplicate-attendance", adminOnly, h.CleanupDuplicates)

	// Lecture lifecycle.
	router.POST("/set-lecture", teacherOnly, h.SetLecture)
	router.POST("/start-lecture", teacherOnly, h.StartLecture)
	router.POST("/end-lecture", teacherOnly, h.EndLecture)
	router.GET("/current-lecture", h.CurrentLecture)
	router.GET("/lectures", teacherOnly, h.ListLectures)

	// Medical leave.
	router.GET("/student/attendance", studentOnly, h.StudentAttendanceSummary)
	router.POST("/student/medical-leave", studentOnly, h.ApplyLeave)
	router.GET("/student/medical-leave", studentOnly, h.ListOwnLeaves)
	router.GET("/teacher/medical-leave", teacherOnly, h.ListMentorLeaves)
	router.POST("/teacher/medical-leave/:requestId/decision", teacherOnly, h.DecideLeave)

	// Operational.
	router.GET("/dashboard-stats", teacherOnly, h.DashboardStats)
	router.GET("/status", h.Status)
}

// respondError maps a classified error to its HTTP status; anything
// unclassified is a 500.
func respondError(c *gin.Context, err error) {
	kind := outcome.KindOf(err)
	detail := err.Error()
	if oe, ok := err.(*outcome.Error); ok {
		detail = oe.Detail
	}
	c.JSON(outcome.HTTPStatus(kind), gin.H{
		"success": false,
		"kind":    kind,
		"error":   detail,
	})
}

func respondOK(c *gin.Context, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// gallery converts stored embeddings into matcher entries.
func (h *APIHandler) gallery() ([]matcher.Entry, error) {
	stored, err := h.repo.AllEmbeddings()
	if err != nil {
		return nil, outcome.StoreErr(err)
	}
	entries := make([]matcher.Entry, len(stored))
	for i, e := range stored {
		entries[i] = matcher.Entry{RollNo: e.RollNo, Name: e.Name, Vector: e.Vector}
	}
	return entries, nil
}
