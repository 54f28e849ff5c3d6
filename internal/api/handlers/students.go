package handlers

import (
	"io"
	"mime/multipart"
	"strconv"

	"rollcall-go/internal/matcher"
	"rollcall-go/internal/models"
	"rollcall-go/internal/outcome"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func intForm(c *gin.Context, field string) (int, error) {
	raw := c.PostForm(field)
	if raw == "" {
		return 0, outcome.Errf(outcome.KindValidation, "%s is required", field)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, outcome.Errf(outcome.KindValidation, "%s must be a positive integer, got %q", field, raw)
	}
	return n, nil
}

func studentFromForm(c *gin.Context, rollNo, name string) *models.Student {
	student := &models.Student{
		RollNo:   rollNo,
		Name:     name,
		Batch:    c.PostForm("batch"),
		Group:    c.PostForm("group"),
		Username: c.PostForm("username"),
		Email:    c.PostForm("email"),
	}
	if raw := c.PostForm("mentorId"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			mentorID := uint(id)
			student.MentorID = &mentorID
		}
	}
	return student
}

// enrollmentImages collects uploaded images from the "images" multipart
// field, falling back to a single "image" file.
func enrollmentImages(c *gin.Context) ([][]byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, outcome.Errf(outcome.KindValidation, "multipart form with face images is required")
	}

	files := form.File["images"]
	if len(files) == 0 {
		files = form.File["image"]
	}
	if len(files) == 0 {
		return nil, outcome.Errf(outcome.KindValidation, "at least one face image is required")
	}

	images := make([][]byte, 0, len(files))
	for _, file := range files {
		data, err := readUpload(file)
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, outcome.Errf(outcome.KindValidation, "could not open uploaded file %s: %v", file.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, outcome.Errf(outcome.KindValidation, "could not read uploaded file %s: %v", file.Filename, err)
	}
	return data, nil
}

// extractUsable runs extraction over all images, skipping ones the backend
// cannot use. At least one embedding must survive.
func (h *APIHandler) extractUsable(c *gin.Context, images [][]byte) ([][]float64, error) {
	var vectors [][]float64
	for i, image := range images {
		vector, err := h.extractor.Extract(c.Request.Context(), image)
		if err != nil {
			log.WithError(err).WithField("image", i).Debug("Skipping unusable enrollment image")
			continue
		}
		vectors = append(vectors, vector)
	}
	if len(vectors) == 0 {
		return nil, outcome.Errf(outcome.KindDetectionFailure,
			"no usable face found in any of the %d submitted image(s)", len(images))
	}
	return vectors, nil
}

// EnrollStudent registers a new student from one or more face images.
// Every extracted embedding is checked against the whole gallery: a
// vector closer than the enrollment threshold to any enrolled face is
// refused, since it is likely a re-registration of an existing person.
func (h *APIHandler) EnrollStudent(c *gin.Context) {
	rollNo := c.PostForm("rollNo")
	name := c.PostForm("name")
	if rollNo == "" || name == "" {
		respondError(c, outcome.Errf(outcome.KindValidation, "rollNo and name are required"))
		return
	}

	existing, err := h.repo.GetStudentByRoll(rollNo)
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	if existing != nil {
		respondError(c, outcome.Errf(outcome.KindValidation,
			"roll number %s is already enrolled as %s", rollNo, existing.Name))
		return
	}

	images, err := enrollmentImages(c)
	if err != nil {
		respondError(c, err)
		return
	}
	vectors, err := h.extractUsable(c, images)
	if err != nil {
		respondError(c, err)
		return
	}

	gallery, err := h.gallery()
	if err != nil {
		respondError(c, err)
		return
	}
	for _, vector := range vectors {
		if dup, found := h.matcher.CheckDuplicate(vector, gallery); found {
			respondError(c, outcome.Errf(outcome.KindDuplicateIdentity,
				"this face is already enrolled as %s (%s), distance %.2f", dup.Name, dup.RollNo, dup.Distance))
			return
		}
	}

	student := studentFromForm(c, rollNo, name)
	if err := h.repo.CreateStudent(student); err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	for _, vector := range vectors {
		if err := h.repo.AddEmbedding(rollNo, vector); err != nil {
			respondError(c, outcome.StoreErr(err))
			return
		}
	}

	log.WithFields(log.Fields{"rollNo": rollNo, "name": name, "embeddings": len(vectors)}).
		Info("Student enrolled")
	respondOK(c, gin.H{
		"message":    "Enrolled " + name,
		"student":    student,
		"embeddings": len(vectors),
	})
}

// AddStudentEmbedding appends embeddings for an already-enrolled student,
// e.g. after a haircut or new glasses. The duplicate scan excludes the
// student's own vectors; matching their enrolled face is expected here.
func (h *APIHandler) AddStudentEmbedding(c *gin.Context) {
	rollNo := c.Param("rollNo")

	student, err := h.repo.GetStudentByRoll(rollNo)
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	if student == nil {
		respondError(c, outcome.Errf(outcome.KindNotFound, "no student with roll number %s", rollNo))
		return
	}

	images, err := enrollmentImages(c)
	if err != nil {
		respondError(c, err)
		return
	}
	vectors, err := h.extractUsable(c, images)
	if err != nil {
		respondError(c, err)
		return
	}

	gallery, err := h.gallery()
	if err != nil {
		respondError(c, err)
		return
	}
	others := make([]matcher.Entry, 0, len(gallery))
	for _, entry := range gallery {
		if entry.RollNo != rollNo {
			others = append(others, entry)
		}
	}
	for _, vector := range vectors {
		if dup, found := h.matcher.CheckDuplicate(vector, others); found {
			respondError(c, outcome.Errf(outcome.KindDuplicateIdentity,
				"this face is already enrolled as %s (%s), distance %.2f", dup.Name, dup.RollNo, dup.Distance))
			return
		}
	}

	for _, vector := range vectors {
		if err := h.repo.AddEmbedding(rollNo, vector); err != nil {
			respondError(c, outcome.StoreErr(err))
			return
		}
	}

	log.WithFields(log.Fields{"rollNo": rollNo, "added": len(vectors)}).Info("Embeddings added")
	respondOK(c, gin.H{"message": "Added embeddings for " + student.Name, "added": len(vectors)})
}

// ListStudents returns all enrolled students.
func (h *APIHandler) ListStudents(c *gin.Context) {
	students, err := h.repo.ListStudents()
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	respondOK(c, gin.H{"students": students, "count": len(students)})
}

// DeleteStudent removes a student together with their embeddings and
// attendance records.
func (h *APIHandler) DeleteStudent(c *gin.Context) {
	rollNo := c.Param("rollNo")

	student, err := h.repo.GetStudentByRoll(rollNo)
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}
	if student == nil {
		respondError(c, outcome.Errf(outcome.KindNotFound, "no student with roll number %s", rollNo))
		return
	}

	recordsRemoved, err := h.repo.DeleteStudentCascade(rollNo)
	if err != nil {
		respondError(c, outcome.StoreErr(err))
		return
	}

	log.WithFields(log.Fields{"rollNo": rollNo, "recordsRemoved": recordsRemoved}).
		Info("Student deleted")
	respondOK(c, gin.H{
		"message":        "Deleted " + student.Name,
		"recordsRemoved": recordsRemoved,
	})
}
