package handlers

import (
	"context"
	"time"

	"rollcall-go/internal/attendance"
	"rollcall-go/internal/outcome"
	"rollcall-go/internal/utils"

	"github.com/gin-gonic/gin"
)

// DashboardStats aggregates ledger counters for the staff dashboard.
func (h *APIHandler) DashboardStats(c *gin.Context) {
	today := time.Now().Format(dateLayout)
	weekAgo := time.Now().AddDate(0, 0, -7).Format(dateLayout)

	stats, err := h.repo.GetDashboardStats(today, weekAgo)
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	respondOK(c, gin.H{"stats": stats})
}

// Status reports service health: extractor reachability plus host and
// runtime statistics.
func (h *APIHandler) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	extractorUp := true
	extractorErr := ""
	if err := h.extractor.Ping(ctx); err != nil {
		extractorUp = false
		extractorErr = err.Error()
	}

	enroll, recognize := h.matcher.Thresholds()
	respondOK(c, gin.H{
		"extractor": gin.H{
			"name":  h.extractor.Name(),
			"up":    extractorUp,
			"error": extractorErr,
		},
		"thresholds": gin.H{
			"enroll":    enroll,
			"recognize": recognize,
		},
		"system": utils.GetSystemStats(),
	})
}

// StudentAttendanceSummary reports the calling student's attendance
// roll-up, overall and per subject. Approved medical leave counts as
// present in the percentages.
func (h *APIHandler) StudentAttendanceSummary(c *gin.Context) {
	student, err := h.currentStudent(c)
	if err != nil {
		respondError(c, err)
		return
	}

	records, err := h.repo.RecordsForStudent(student.RollNo)
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}

	respondOK(c, gin.H{"summary": attendance.Summarize(student, records)})
}
