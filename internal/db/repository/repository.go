// Package repository defines the persistence interface for the attendance
// core and its SQLite implementation. Lookups return (nil, nil) when the
// entity does not exist; errors are reserved for store failures.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rollcall-go/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GalleryEntry is one (identity, embedding) pair handed to the matcher.
type GalleryEntry struct {
	RollNo string
	Name   string
	Vector []float64
}

// RecordKey is the logical ledger key. Subject participates in the key only
// when set; the duplicate auditor always groups on the 3-field tuple.
type RecordKey struct {
	RollNo        string
	LectureNumber int
	Date          string
}

// Repository is the store contract consumed by the attendance core.
type Repository interface {
	// Students
	GetStudentByRoll(rollNo string) (*models.Student, error)
	GetStudentByUsername(username string) (*models.Student, error)
	ListStudents() ([]models.Student, error)
	CreateStudent(student *models.Student) error
	DeleteStudentCascade(rollNo string) (recordsRemoved int64, err error)

	// Teachers
	GetTeacherByUsername(username string) (*models.Teacher, error)

	// Embedding gallery
	AllEmbeddings() ([]GalleryEntry, error)
	EmbeddingsOf(rollNo string) ([][]float64, error)
	AddEmbedding(rollNo string, vector []float64) error

	// Attendance ledger
	FindRecord(key RecordKey, subject string) (*models.AttendanceRecord, error)
	CreateRecord(rec *models.AttendanceRecord) error
	SaveRecord(rec *models.AttendanceRecord) error
	UpsertRecord(rec *models.AttendanceRecord) (created bool, previous *models.AttendanceRecord, err error)
	RecordsForStudentOnDate(rollNo, date string) ([]models.AttendanceRecord, error)
	RecordsForStudent(rollNo string) ([]models.AttendanceRecord, error)
	ListRecords(lectureNumber int, date string) ([]models.AttendanceRecord, error)
	DeleteRecordByID(id uint) error
	DeleteInvalidRecords() (int64, error)

	// Duplicate auditing
	NormalizeLectureNumbers() (int64, error)
	FindDuplicateGroups() ([][]models.AttendanceRecord, error)

	// Lectures
	ActiveLecture() (*models.Lecture, error)
	FindLecture(lectureNumber int, date, subject string) (*models.Lecture, error)
	ActivateLecture(lectureNumber int, date, subject string) (*models.Lecture, error)
	CreateLecture(lecture *models.Lecture) error
	EndActiveLecture() (*models.Lecture, error)
	AddAttendee(lectureID uint, rollNo string) error
	ListLectures() ([]models.Lecture, error)

	// Leave requests
	CreateLeaveRequest(req *models.LeaveRequest) error
	GetLeaveRequest(publicID string) (*models.LeaveRequest, error)
	SaveLeaveRequest(req *models.LeaveRequest) error
	ListLeaveRequestsForStudent(rollNo string) ([]models.LeaveRequest, error)
	ListLeaveRequestsForMentor(mentorID uint) ([]models.LeaveRequest, error)

	// Statistics
	GetDashboardStats(today, weekAgo string) (models.DashboardStats, error)
}

// SQLiteRepository implements Repository on GORM/SQLite.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// --- Students ---

// GetStudentByRoll fetches a student by roll number.
func (r *SQLiteRepository) GetStudentByRoll(rollNo string) (*models.Student, error) {
	var student models.Student
	result := r.db.Where("roll_no = ?", rollNo).First(&student)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &student, nil
}

// GetStudentByUsername fetches a student by login name.
func (r *SQLiteRepository) GetStudentByUsername(username string) (*models.Student, error) {
	var student models.Student
	result := r.db.Where("username = ?", username).First(&student)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &student, nil
}

// ListStudents returns all students ordered by roll number.
func (r *SQLiteRepository) ListStudents() ([]models.Student, error) {
	var students []models.Student
	if err := r.db.Order("roll_no ASC").Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}

// CreateStudent inserts a new student.
func (r *SQLiteRepository) CreateStudent(student *models.Student) error {
	return r.db.Create(student).Error
}

// DeleteStudentCascade removes a student together with their embeddings and
// attendance records. It returns the number of attendance records removed.
func (r *SQLiteRepository) DeleteStudentCascade(rollNo string) (int64, error) {
	var removed int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var student models.Student
		if err := tx.Where("roll_no = ?", rollNo).First(&student).Error; err != nil {
			return err
		}
		if err := tx.Where("student_id = ?", student.ID).Delete(&models.FaceEmbedding{}).Error; err != nil {
			return err
		}
		res := tx.Where("roll_no = ?", rollNo).Delete(&models.AttendanceRecord{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return tx.Delete(&student).Error
	})
	return removed, err
}

// --- Teachers ---

// GetTeacherByUsername fetches a teacher by login name.
func (r *SQLiteRepository) GetTeacherByUsername(username string) (*models.Teacher, error) {
	var teacher models.Teacher
	result := r.db.Where("username = ?", username).First(&teacher)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &teacher, nil
}

// --- Embedding gallery ---

// AllEmbeddings returns every (identity, embedding) pair, ordered by roll
// number ascending. The ordering is load-bearing: the matcher resolves
// exact distance ties to the entry seen first.
func (r *SQLiteRepository) AllEmbeddings() ([]GalleryEntry, error) {
	var students []models.Student
	if err := r.db.Preload("Embeddings").Order("roll_no ASC").Find(&students).Error; err != nil {
		return nil, err
	}

	var entries []GalleryEntry
	for _, student := range students {
		for i := range student.Embeddings {
			vector, err := student.Embeddings[i].Floats()
			if err != nil {
				return nil, fmt.Errorf("corrupt embedding %d for student %s: %w", student.Embeddings[i].ID, student.RollNo, err)
			}
			entries = append(entries, GalleryEntry{
				RollNo: student.RollNo,
				Name:   student.Name,
				Vector: vector,
			})
		}
	}
	return entries, nil
}

// EmbeddingsOf returns the embedding vectors of one student, possibly empty.
func (r *SQLiteRepository) EmbeddingsOf(rollNo string) ([][]float64, error) {
	student, err := r.GetStudentByRoll(rollNo)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, gorm.ErrRecordNotFound
	}

	var embeddings []models.FaceEmbedding
	if err := r.db.Where("student_id = ?", student.ID).Find(&embeddings).Error; err != nil {
		return nil, err
	}

	vectors := make([][]float64, 0, len(embeddings))
	for i := range embeddings {
		vector, err := embeddings[i].Floats()
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

// AddEmbedding appends one embedding vector to a student's set.
func (r *SQLiteRepository) AddEmbedding(rollNo string, vector []float64) error {
	student, err := r.GetStudentByRoll(rollNo)
	if err != nil {
		return err
	}
	if student == nil {
		return gorm.ErrRecordNotFound
	}
	embedding, err := models.NewEmbedding(student.ID, vector)
	if err != nil {
		return err
	}
	return r.db.Create(&embedding).Error
}

// --- Attendance ledger ---

// FindRecord fetches the record for a ledger key. A non-empty subject
// narrows the lookup to that subject's occurrence.
func (r *SQLiteRepository) FindRecord(key RecordKey, subject string) (*models.AttendanceRecord, error) {
	query := r.db.Where("roll_no = ? AND lecture_number = ? AND date = ?",
		key.RollNo, key.LectureNumber, key.Date)
	if subject != "" {
		query = query.Where("subject = ?", subject)
	}

	var rec models.AttendanceRecord
	result := query.First(&rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &rec, nil
}

// CreateRecord inserts a new attendance record.
func (r *SQLiteRepository) CreateRecord(rec *models.AttendanceRecord) error {
	return r.db.Create(rec).Error
}

// SaveRecord persists changes to an existing record.
func (r *SQLiteRepository) SaveRecord(rec *models.AttendanceRecord) error {
	return r.db.Save(rec).Error
}

// UpsertRecord atomically creates or overwrites the record for rec's ledger
// key. The find and the write run in a single write transaction; SQLite
// serializes writers, so two concurrent upserts for the same key cannot
// both insert. Returns whether a record was created and, on update, a copy
// of the previous state.
func (r *SQLiteRepository) UpsertRecord(rec *models.AttendanceRecord) (bool, *models.AttendanceRecord, error) {
	var created bool
	var previous *models.AttendanceRecord

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.AttendanceRecord
		result := tx.Where("roll_no = ? AND lecture_number = ? AND date = ?",
			rec.RollNo, rec.LectureNumber, rec.Date).First(&existing)
		if result.Error != nil {
			if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return result.Error
			}
			created = true
			return tx.Create(rec).Error
		}

		prev := existing
		previous = &prev

		existing.Name = rec.Name
		existing.Status = rec.Status
		existing.Method = rec.Method
		existing.MarkedAt = rec.MarkedAt
		if rec.Subject != "" {
			existing.Subject = rec.Subject
		}
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*rec = existing
		return nil
	})

	return created, previous, err
}

// RecordsForStudentOnDate returns all of a student's records for one
// calendar date, across every lecture occurrence that day.
func (r *SQLiteRepository) RecordsForStudentOnDate(rollNo, date string) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	if err := r.db.Where("roll_no = ? AND date = ?", rollNo, date).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// RecordsForStudent returns a student's whole ledger history, oldest first.
func (r *SQLiteRepository) RecordsForStudent(rollNo string) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	if err := r.db.Where("roll_no = ?", rollNo).
		Order("date ASC, lecture_number ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListRecords returns records filtered by lecture number and/or date.
// Zero values disable the respective filter.
func (r *SQLiteRepository) ListRecords(lectureNumber int, date string) ([]models.AttendanceRecord, error) {
	query := r.db.Model(&models.AttendanceRecord{}).Order("lecture_number DESC")
	if lectureNumber > 0 {
		query = query.Where("lecture_number = ?", lectureNumber)
	}
	if date != "" {
		query = query.Where("date = ?", date)
	}

	var records []models.AttendanceRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteRecordByID removes one attendance record.
func (r *SQLiteRepository) DeleteRecordByID(id uint) error {
	return r.db.Delete(&models.AttendanceRecord{}, id).Error
}

// DeleteInvalidRecords removes records missing required key fields, which
// only legacy imports can produce.
func (r *SQLiteRepository) DeleteInvalidRecords() (int64, error) {
	result := r.db.Where(
		"name IS NULL OR name = '' OR roll_no IS NULL OR roll_no = '' OR lecture_number IS NULL OR lecture_number = 0",
	).Delete(&models.AttendanceRecord{})
	return result.RowsAffected, result.Error
}

// --- Duplicate auditing ---

// NormalizeLectureNumbers coerces lecture numbers persisted as text back to
// integers. SQLite's loose column affinity lets legacy write paths store
// strings in the column; this is a defensive migration pass, not a
// substitute for validating at the write boundary.
func (r *SQLiteRepository) NormalizeLectureNumbers() (int64, error) {
	result := r.db.Exec(
		"UPDATE attendance_records SET lecture_number = CAST(lecture_number AS INTEGER) WHERE typeof(lecture_number) = 'text'",
	)
	return result.RowsAffected, result.Error
}

// FindDuplicateGroups returns every set of live records sharing a ledger
// key, one slice per violating key.
func (r *SQLiteRepository) FindDuplicateGroups() ([][]models.AttendanceRecord, error) {
	var keys []RecordKey
	err := r.db.Model(&models.AttendanceRecord{}).
		Select("roll_no, lecture_number, date").
		Group("roll_no, lecture_number, date").
		Having("COUNT(*) > 1").
		Scan(&keys).Error
	if err != nil {
		return nil, err
	}

	groups := make([][]models.AttendanceRecord, 0, len(keys))
	for _, key := range keys {
		var members []models.AttendanceRecord
		if err := r.db.Where("roll_no = ? AND lecture_number = ? AND date = ?",
			key.RollNo, key.LectureNumber, key.Date).Find(&members).Error; err != nil {
			return nil, err
		}
		if len(members) > 1 {
			groups = append(groups, members)
		}
	}
	return groups, nil
}

// --- Lectures ---

// ActiveLecture returns the currently active lecture occurrence, if any.
func (r *SQLiteRepository) ActiveLecture() (*models.Lecture, error) {
	var lecture models.Lecture
	result := r.db.Where("is_active = ?", true).First(&lecture)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &lecture, nil
}

// FindLecture fetches an occurrence by its identifying triple.
func (r *SQLiteRepository) FindLecture(lectureNumber int, date, subject string) (*models.Lecture, error) {
	var lecture models.Lecture
	result := r.db.Where("lecture_number = ? AND date = ? AND subject = ?",
		lectureNumber, date, subject).First(&lecture)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &lecture, nil
}

// ActivateLecture finds or creates the occurrence for the triple and marks
// it the single active one. Deactivating competitors and activating the
// target happen in one transaction so at most one occurrence is ever
// active, even across processes sharing the store.
func (r *SQLiteRepository) ActivateLecture(lectureNumber int, date, subject string) (*models.Lecture, error) {
	var lecture models.Lecture
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Lecture{}).Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}

		result := tx.Where("lecture_number = ? AND date = ? AND subject = ?",
			lectureNumber, date, subject).First(&lecture)
		if result.Error != nil {
			if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return result.Error
			}
			lecture = models.Lecture{
				LectureNumber: lectureNumber,
				Date:          date,
				Subject:       subject,
				StartTime:     time.Now(),
				IsActive:      true,
				Attendees:     datatypes.JSON([]byte("[]")),
			}
			return tx.Create(&lecture).Error
		}

		lecture.IsActive = true
		return tx.Save(&lecture).Error
	})
	if err != nil {
		return nil, err
	}
	return &lecture, nil
}

// CreateLecture inserts a new occurrence as-is.
func (r *SQLiteRepository) CreateLecture(lecture *models.Lecture) error {
	if len(lecture.Attendees) == 0 {
		lecture.Attendees = datatypes.JSON([]byte("[]"))
	}
	return r.db.Create(lecture).Error
}

// EndActiveLecture stamps the end time on the active occurrence and
// deactivates it. Returns (nil, nil) when no lecture is active.
func (r *SQLiteRepository) EndActiveLecture() (*models.Lecture, error) {
	lecture, err := r.ActiveLecture()
	if err != nil || lecture == nil {
		return nil, err
	}

	now := time.Now()
	lecture.EndTime = &now
	lecture.IsActive = false
	if err := r.db.Save(lecture).Error; err != nil {
		return nil, err
	}
	return lecture, nil
}

// AddAttendee adds a roll number to a lecture's attendee set. Idempotent.
func (r *SQLiteRepository) AddAttendee(lectureID uint, rollNo string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var lecture models.Lecture
		if err := tx.First(&lecture, lectureID).Error; err != nil {
			return err
		}

		rolls := lecture.AttendeeRolls()
		for _, roll := range rolls {
			if roll == rollNo {
				return nil
			}
		}
		rolls = append(rolls, rollNo)

		raw, err := json.Marshal(rolls)
		if err != nil {
			return err
		}
		lecture.Attendees = datatypes.JSON(raw)
		return tx.Save(&lecture).Error
	})
}

// ListLectures returns all occurrences, newest lecture number first.
func (r *SQLiteRepository) ListLectures() ([]models.Lecture, error) {
	var lectures []models.Lecture
	if err := r.db.Order("lecture_number DESC").Find(&lectures).Error; err != nil {
		return nil, err
	}
	return lectures, nil
}

// --- Leave requests ---

// CreateLeaveRequest inserts a new request.
func (r *SQLiteRepository) CreateLeaveRequest(req *models.LeaveRequest) error {
	return r.db.Create(req).Error
}

// GetLeaveRequest fetches a request by its public ID.
func (r *SQLiteRepository) GetLeaveRequest(publicID string) (*models.LeaveRequest, error) {
	var req models.LeaveRequest
	result := r.db.Where("public_id = ?", publicID).First(&req)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &req, nil
}

// SaveLeaveRequest persists changes to a request.
func (r *SQLiteRepository) SaveLeaveRequest(req *models.LeaveRequest) error {
	return r.db.Save(req).Error
}

// ListLeaveRequestsForStudent returns a student's requests, newest first.
func (r *SQLiteRepository) ListLeaveRequestsForStudent(rollNo string) ([]models.LeaveRequest, error) {
	var requests []models.LeaveRequest
	if err := r.db.Where("student_roll = ?", rollNo).Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// ListLeaveRequestsForMentor returns the requests assigned to a mentor,
// pending ones first.
func (r *SQLiteRepository) ListLeaveRequestsForMentor(mentorID uint) ([]models.LeaveRequest, error) {
	var requests []models.LeaveRequest
	if err := r.db.Where("mentor_id = ?", mentorID).
		Order("CASE status WHEN 'PENDING' THEN 0 ELSE 1 END, created_at DESC").
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// --- Statistics ---

// GetDashboardStats aggregates counters for the dashboard. today and
// weekAgo are YYYY-MM-DD bounds supplied by the caller.
func (r *SQLiteRepository) GetDashboardStats(today, weekAgo string) (models.DashboardStats, error) {
	var stats models.DashboardStats

	if err := r.db.Model(&models.Lecture{}).Count(&stats.TotalLectures).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.AttendanceRecord{}).Count(&stats.TotalAttendance).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Student{}).Count(&stats.TotalStudents).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.AttendanceRecord{}).Where("date = ?", today).
		Count(&stats.TodayAttendance).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.AttendanceRecord{}).Where("date >= ?", weekAgo).
		Count(&stats.WeekAttendance).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Lecture{}).Where("is_active = ?", true).
		Count(&stats.ActiveLectures).Error; err != nil {
		return stats, err
	}

	if stats.TotalLectures > 0 {
		stats.AverageAttendance = float64(stats.TotalAttendance) / float64(stats.TotalLectures)
	}
	return stats, nil
}
