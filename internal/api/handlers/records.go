package handlers

import (
	"strconv"

	"rollcall-go/internal/outcome"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ListRecords returns ledger entries, optionally filtered by
// lectureNumber and date query parameters.
func (h *APIHandler) ListRecords(c *gin.Context) {
	lectureNumber := 0
	if raw := c.Query("lectureNumber"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, outcome.Errf(outcome.KindValidation,
				"lectureNumber must be a positive integer, got %q", raw))
			return
		}
		lectureNumber = n
	}
	date := c.Query("date")

	records, err := h.repo.ListRecords(lectureNumber, date)
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	respondOK(c, gin.H{"records": records, "count": len(records)})
}

// DeleteRecord removes a single ledger entry by database ID.
func (h *APIHandler) DeleteRecord(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, outcome.Errf(outcome.KindValidation, "record id must be numeric"))
		return
	}
	if err := h.repo.DeleteRecordByID(uint(id)); err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	respondOK(c, gin.H{"message": "Record deleted"})
}

// CleanupInvalidRecords removes ledger entries with empty roll numbers or
// non-positive lecture numbers.
func (h *APIHandler) CleanupInvalidRecords(c *gin.Context) {
	removed, err := h.repo.DeleteInvalidRecords()
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	log.WithField("removed", removed).Info("Invalid attendance records cleaned up")
	respondOK(c, gin.H{"removed": removed})
}

// CheckDuplicates reports duplicate ledger groups without deleting.
func (h *APIHandler) CheckDuplicates(c *gin.Context) {
	groups, err := h.auditor.Check()
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	respondOK(c, gin.H{"groups": groups, "count": len(groups)})
}

// CleanupDuplicates collapses every duplicate group to its best record.
func (h *APIHandler) CleanupDuplicates(c *gin.Context) {
	report, err := h.auditor.Run()
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	log.WithFields(log.Fields{
		"groups":  report.GroupsFound,
		"removed": report.RecordsRemoved,
	}).Info("Duplicate attendance cleanup finished")
	respondOK(c, gin.H{"report": report})
}
