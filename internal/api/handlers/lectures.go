package handlers

import (
	"time"

	"rollcall-go/internal/outcome"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type lectureRequest struct {
	LectureNumber int    `json:"lectureNumber" binding:"required"`
	Date          string `json:"date"`
	Subject       string `json:"subject"`
}

func (h *APIHandler) activateLecture(c *gin.Context) {
	var req lectureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, outcome.Errf(outcome.KindValidation, "invalid request body: %v", err))
		return
	}
	if req.Date == "" {
		req.Date = time.Now().Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		respondError(c, outcome.Errf(outcome.KindValidation, "invalid date %q, expected YYYY-MM-DD", req.Date))
		return
	}

	lecture, err := h.repo.ActivateLecture(req.LectureNumber, req.Date, req.Subject)
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}

	log.WithFields(log.Fields{
		"lecture": lecture.LectureNumber,
		"date":    lecture.Date,
		"subject": lecture.Subject,
	}).Info("Lecture activated")
	respondOK(c, gin.H{"lecture": lecture})
}

// SetLecture activates a lecture occurrence, deactivating whichever one
// was active before.
func (h *APIHandler) SetLecture(c *gin.Context) { h.activateLecture(c) }

// StartLecture activates an occurrence but refuses while another one is
// still running; the teacher must end it (or use set-lecture to switch).
func (h *APIHandler) StartLecture(c *gin.Context) {
	active, err := h.repo.ActiveLecture()
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	if active != nil {
		respondError(c, outcome.Errf(outcome.KindValidation,
			"lecture %d on %s is still active; end it before starting another",
			active.LectureNumber, active.Date))
		return
	}
	h.activateLecture(c)
}

// EndLecture closes the active lecture occurrence.
func (h *APIHandler) EndLecture(c *gin.Context) {
	lecture, err := h.repo.EndActiveLecture()
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	if lecture == nil {
		respondError(c, outcome.Errf(outcome.KindNoActiveLecture, "no lecture is currently active"))
		return
	}

	log.WithFields(log.Fields{"lecture": lecture.LectureNumber, "date": lecture.Date}).
		Info("Lecture ended")
	respondOK(c, gin.H{
		"lecture":   lecture,
		"attendees": lecture.AttendeeRolls(),
	})
}

// CurrentLecture reports the active lecture, if any.
func (h *APIHandler) CurrentLecture(c *gin.Context) {
	lecture, err := h.repo.ActiveLecture()
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	if lecture == nil {
		respondOK(c, gin.H{"active": false})
		return
	}
	respondOK(c, gin.H{
		"active":    true,
		"lecture":   lecture,
		"attendees": lecture.AttendeeRolls(),
	})
}

// ListLectures returns all lecture occurrences, newest first.
func (h *APIHandler) ListLectures(c *gin.Context) {
	lectures, err := h.repo.ListLectures()
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	respondOK(c, gin.H{"lectures": lectures, "count": len(lectures)})
}
