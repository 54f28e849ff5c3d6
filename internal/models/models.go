package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AttendanceStatus is the state of an attendance record.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "Present"
	StatusAbsent  AttendanceStatus = "Absent"
	StatusLate    AttendanceStatus = "Late"
	// StatusMedicalLeave marks an approved excused absence. It counts as
	// present for attendance-percentage purposes.
	StatusMedicalLeave AttendanceStatus = "ML"
)

// Valid reports whether s is one of the known attendance statuses.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusMedicalLeave:
		return true
	}
	return false
}

// MarkMethod identifies the channel an attendance record was written through.
type MarkMethod string

const (
	MethodFaceRecognition MarkMethod = "face_recognition"
	MethodManual          MarkMethod = "manual"
	MethodBulkUpload      MarkMethod = "bulk_upload"
	MethodMLApproved      MarkMethod = "ml_approved"
)

// LeaveStatus is the state of a medical leave request. Transitions are
// terminal: PENDING moves to APPROVED or REJECTED exactly once.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "PENDING"
	LeaveApproved LeaveStatus = "APPROVED"
	LeaveRejected LeaveStatus = "REJECTED"
)

// Student represents an enrolled identity. The roll number is the stable,
// globally unique identifier; credentials are used by the auth layer only.
type Student struct {
	gorm.Model
	RollNo       string `gorm:"uniqueIndex;not null" json:"rollNo"`
	Name         string `gorm:"not null" json:"name"`
	Batch        string `json:"batch,omitempty"`
	Group        string `json:"group,omitempty"`
	Username     string `gorm:"index" json:"username,omitempty"`
	PasswordHash string `json:"-"`
	Email        string `json:"email,omitempty"`
	MentorID     *uint  `gorm:"index" json:"mentorId,omitempty"`

	Embeddings []FaceEmbedding `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE;" json:"-"`
}

// Teacher represents a staff member who can mark attendance manually and
// decide medical leave requests for students mentored by them.
type Teacher struct {
	gorm.Model
	Name         string `gorm:"not null" json:"name"`
	Username     string `gorm:"uniqueIndex" json:"username"`
	PasswordHash string `json:"-"`
	Email        string `json:"email,omitempty"`
}

// FaceEmbedding stores one enrollment embedding vector for a student.
// The embedding set is append-only: vectors are added through enrollment
// and removed only by the student-deletion cascade.
type FaceEmbedding struct {
	gorm.Model
	StudentID uint           `gorm:"index;not null" json:"studentId"`
	Vector    datatypes.JSON `gorm:"type:json" json:"-"` // fixed-length float array, e.g. 128 values
}

// Floats decodes the stored vector into a float slice.
func (e *FaceEmbedding) Floats() ([]float64, error) {
	var v []float64
	if err := json.Unmarshal(e.Vector, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// NewEmbedding builds a FaceEmbedding from a raw vector.
func NewEmbedding(studentID uint, vector []float64) (FaceEmbedding, error) {
	raw, err := json.Marshal(vector)
	if err != nil {
		return FaceEmbedding{}, err
	}
	return FaceEmbedding{StudentID: studentID, Vector: datatypes.JSON(raw)}, nil
}

// Lecture is one class-session occurrence, identified by the triple
// (lecture number, date, subject). At most one lecture is active - open for
// face-recognition submissions - at any time; activity lives in the store,
// not in process memory, so multiple instances see consistent state.
type Lecture struct {
	gorm.Model
	LectureNumber int            `gorm:"index;not null" json:"lectureNumber"`
	Date          string         `gorm:"index;not null" json:"date"` // YYYY-MM-DD
	Subject       string         `gorm:"index" json:"subject"`
	StartTime     time.Time      `json:"startTime"`
	EndTime       *time.Time     `json:"endTime,omitempty"`
	IsActive      bool           `gorm:"index" json:"isActive"`
	Attendees     datatypes.JSON `gorm:"type:json" json:"attendees"` // roll numbers, set semantics
}

// AttendeeRolls decodes the attendee set.
func (l *Lecture) AttendeeRolls() []string {
	var rolls []string
	if len(l.Attendees) == 0 {
		return rolls
	}
	_ = json.Unmarshal(l.Attendees, &rolls)
	return rolls
}

// AttendanceRecord is the core mutable ledger entity. The logical key is
// (RollNo, LectureNumber, Date); no two live records may share it. The key
// is not backed by a database unique constraint because legacy write paths
// and imports can violate it - the duplicate auditor restores the invariant
// after the fact.
type AttendanceRecord struct {
	gorm.Model
	RollNo        string           `gorm:"index:idx_ledger_key;not null" json:"rollNo"`
	Name          string           `json:"name"`
	LectureNumber int              `gorm:"index:idx_ledger_key;not null" json:"lectureNumber"`
	Date          string           `gorm:"index:idx_ledger_key;not null" json:"date"` // YYYY-MM-DD
	Subject       string           `gorm:"index" json:"subject,omitempty"`
	Status        AttendanceStatus `gorm:"not null" json:"status"`
	Method        MarkMethod       `gorm:"not null" json:"method"`
	MarkedAt      time.Time        `json:"markedAt"`
}

// LeaveRequest is a student's medical leave application over a date range.
// Only the assigned mentor may decide it, and only once.
type LeaveRequest struct {
	gorm.Model
	PublicID      string      `gorm:"uniqueIndex;not null" json:"requestId"`
	StudentRoll   string      `gorm:"index;not null" json:"studentRollNo"`
	StudentName   string      `json:"studentName"`
	MentorID      uint        `gorm:"index;not null" json:"mentorId"`
	StartDate     string      `gorm:"not null" json:"startDate"` // YYYY-MM-DD
	EndDate       string      `gorm:"not null" json:"endDate"`   // YYYY-MM-DD
	ProofFilename string      `json:"proofFilename"`
	ProofURL      string      `json:"proofUrl"`
	Status        LeaveStatus `gorm:"index;not null" json:"status"`
	ProcessedBy   string      `json:"processedBy,omitempty"`
	DecidedAt     *time.Time  `json:"decidedAt,omitempty"`
}

// DashboardStats aggregates counters for the admin dashboard.
type DashboardStats struct {
	TotalLectures     int64   `json:"totalLectures"`
	TotalAttendance   int64   `json:"totalAttendance"`
	TotalStudents     int64   `json:"totalStudents"`
	AverageAttendance float64 `json:"averageAttendance"`
	TodayAttendance   int64   `json:"todayAttendance"`
	WeekAttendance    int64   `json:"weekAttendance"`
	ActiveLectures    int64   `json:"activeLectures"`
}
