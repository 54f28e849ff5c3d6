package attendance

import (
	"testing"
	"time"

	"rollcall-go/internal/database"
	"rollcall-go/internal/db/repository"
	"rollcall-go/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func seedRecord(t *testing.T, repo repository.Repository, status models.AttendanceStatus, method models.MarkMethod) {
	t.Helper()
	require.NoError(t, repo.CreateRecord(&models.AttendanceRecord{
		RollNo:        "CS101",
		Name:          "Asha",
		LectureNumber: 3,
		Date:          "2026-03-02",
		Status:        status,
		Method:        method,
		MarkedAt:      time.Now(),
	}))
}

func TestAuditorKeepsPresentOverAbsent(t *testing.T) {
	repo := newTestRepo(t)
	auditor := NewAuditor(repo)

	seedRecord(t, repo, models.StatusAbsent, models.MethodManual)
	seedRecord(t, repo, models.StatusPresent, models.MethodBulkUpload)
	seedRecord(t, repo, models.StatusAbsent, models.MethodBulkUpload)

	report, err := auditor.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, report.GroupsFound)
	assert.Equal(t, 2, report.RecordsRemoved)

	records, err := repo.ListRecords(3, "2026-03-02")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusPresent, records[0].Status)
}

func TestAuditorPrefersFaceRecognitionOnStatusTie(t *testing.T) {
	repo := newTestRepo(t)
	auditor := NewAuditor(repo)

	seedRecord(t, repo, models.StatusPresent, models.MethodManual)
	seedRecord(t, repo, models.StatusPresent, models.MethodFaceRecognition)
	seedRecord(t, repo, models.StatusPresent, models.MethodBulkUpload)

	report, err := auditor.Run()
	require.NoError(t, err)
	assert.Equal(t, 2, report.RecordsRemoved)

	records, err := repo.ListRecords(3, "2026-03-02")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.MethodFaceRecognition, records[0].Method)
}

func TestAuditorConverges(t *testing.T) {
	repo := newTestRepo(t)
	auditor := NewAuditor(repo)

	seedRecord(t, repo, models.StatusAbsent, models.MethodManual)
	seedRecord(t, repo, models.StatusPresent, models.MethodFaceRecognition)

	first, err := auditor.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, first.GroupsFound)

	// A second run finds a clean ledger.
	second, err := auditor.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, second.GroupsFound)
	assert.Equal(t, 0, second.RecordsRemoved)
}

func TestAuditorLeavesDistinctKeysAlone(t *testing.T) {
	repo := newTestRepo(t)
	auditor := NewAuditor(repo)

	// Same student, different lectures: not duplicates.
	require.NoError(t, repo.CreateRecord(&models.AttendanceRecord{
		RollNo: "CS101", Name: "Asha", LectureNumber: 1, Date: "2026-03-02",
		Status: models.StatusPresent, Method: models.MethodManual, MarkedAt: time.Now(),
	}))
	require.NoError(t, repo.CreateRecord(&models.AttendanceRecord{
		RollNo: "CS101", Name: "Asha", LectureNumber: 2, Date: "2026-03-02",
		Status: models.StatusAbsent, Method: models.MethodManual, MarkedAt: time.Now(),
	}))

	report, err := auditor.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, report.GroupsFound)
	assert.Equal(t, 0, report.RecordsRemoved)
}

func TestAuditorCheckReportsWithoutDeleting(t *testing.T) {
	repo := newTestRepo(t)
	auditor := NewAuditor(repo)

	seedRecord(t, repo, models.StatusAbsent, models.MethodManual)
	seedRecord(t, repo, models.StatusPresent, models.MethodFaceRecognition)

	groups, err := auditor.Check()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, "CS101", groups[0].Key.RollNo)

	records, err := repo.ListRecords(3, "2026-03-02")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestBestRecordRanking(t *testing.T) {
	records := []models.AttendanceRecord{
		{Status: models.StatusAbsent, Method: models.MethodFaceRecognition},
		{Status: models.StatusPresent, Method: models.MethodBulkUpload},
		{Status: models.StatusLate, Method: models.MethodManual},
	}
	// Present beats any non-Present regardless of method.
	assert.Equal(t, 1, bestRecord(records))

	records = []models.AttendanceRecord{
		{Status: models.StatusPresent, Method: models.MethodBulkUpload},
		{Status: models.StatusPresent, Method: models.MethodFaceRecognition},
	}
	assert.Equal(t, 1, bestRecord(records))
}

func TestAuditorNormalizesTextLectureNumbers(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	repo := repository.NewSQLiteRepository(db)
	auditor := NewAuditor(repo)

	seedRecord(t, repo, models.StatusAbsent, models.MethodBulkUpload)

	// A legacy write path stored the lecture number as zero-padded text.
	// The column's integer affinity keeps it text because the conversion
	// is not reversible, so this record does not group with its twin
	// until the auditor's normalization pass runs.
	now := time.Now()
	require.NoError(t, db.Exec(
		"INSERT INTO attendance_records (created_at, updated_at, roll_no, name, lecture_number, date, status, method, marked_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		now, now, "CS101", "Asha", "03", "2026-03-02",
		string(models.StatusPresent), string(models.MethodFaceRecognition), now,
	).Error)

	var textCount int64
	require.NoError(t, db.Raw(
		"SELECT COUNT(*) FROM attendance_records WHERE typeof(lecture_number) = 'text'",
	).Scan(&textCount).Error)
	require.EqualValues(t, 1, textCount)

	report, err := auditor.Run()
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.TypesNormalized)
	assert.Equal(t, 1, report.GroupsFound)
	assert.Equal(t, 1, report.RecordsRemoved)

	// The normalized record is the Present/face_recognition one, so it wins.
	records, err := repo.ListRecords(3, "2026-03-02")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusPresent, records[0].Status)
	assert.Equal(t, 3, records[0].LectureNumber)
}
