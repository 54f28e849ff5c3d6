package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) postMultipart(t *testing.T, path string, fields map[string]string, files map[string][][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, mw.WriteField(key, value))
	}
	for field, uploads := range files {
		for i, data := range uploads {
			fw, err := mw.CreateFormFile(field, field+string(rune('a'+i))+".jpg")
			require.NoError(t, err)
			_, err = fw.Write(data)
			require.NoError(t, err)
		}
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestEnrollStudentMultipleImages(t *testing.T) {
	env := newTestEnv(t)
	env.stub.vector = []float64{50, 50, 50, 50}

	w := env.postMultipart(t, "/api/enroll",
		map[string]string{"rollNo": "CS101", "name": "Asha"},
		map[string][][]byte{"images": {[]byte("img-1"), []byte("img-2")}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"embeddings":2`)

	student, err := env.repo.GetStudentByRoll("CS101")
	require.NoError(t, err)
	require.NotNil(t, student)
	assert.Equal(t, "Asha", student.Name)
}

func TestEnrollStudentRejectsDuplicateRoll(t *testing.T) {
	env := newTestEnv(t)
	env.enrollDirect(t, "CS101", "Asha", []float64{100, 100, 100, 100})

	w := env.postMultipart(t, "/api/enroll",
		map[string]string{"rollNo": "CS101", "name": "Someone Else"},
		map[string][][]byte{"image": {[]byte("img")}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already enrolled")
}

func TestEnrollStudentRejectsDuplicateFace(t *testing.T) {
	env := newTestEnv(t)
	env.enrollDirect(t, "CS101", "Asha", []float64{0, 0, 0, 0})
	env.stub.vector = []float64{1, 1, 1, 1} // distance 2, inside enroll threshold

	w := env.postMultipart(t, "/api/enroll",
		map[string]string{"rollNo": "CS102", "name": "Bela"},
		map[string][][]byte{"image": {[]byte("img")}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate_identity")
}

func TestEnrollStudentFailsWhenNoFaceUsable(t *testing.T) {
	env := newTestEnv(t)
	env.stub.faces = 0

	w := env.postMultipart(t, "/api/enroll",
		map[string]string{"rollNo": "CS101", "name": "Asha"},
		map[string][][]byte{"images": {[]byte("blurry")}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "detection_failure")

	student, err := env.repo.GetStudentByRoll("CS101")
	require.NoError(t, err)
	assert.Nil(t, student)
}

func TestAddEmbeddingSkipsOwnFaceInDuplicateScan(t *testing.T) {
	env := newTestEnv(t)
	env.enrollDirect(t, "CS101", "Asha", []float64{0, 0, 0, 0})
	env.stub.vector = []float64{1, 1, 1, 1} // close to Asha's own enrolled face

	w := env.postMultipart(t, "/api/students/CS101/embeddings",
		nil, map[string][][]byte{"image": {[]byte("img")}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"added":1`)
}

func TestAddEmbeddingRejectsOtherStudentFace(t *testing.T) {
	env := newTestEnv(t)
	env.enrollDirect(t, "CS101", "Asha", []float64{0, 0, 0, 0})
	env.enrollDirect(t, "CS102", "Bela", []float64{100, 100, 100, 100})
	env.stub.vector = []float64{1, 1, 1, 1} // Asha's face submitted for Bela

	w := env.postMultipart(t, "/api/students/CS102/embeddings",
		nil, map[string][][]byte{"image": {[]byte("img")}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate_identity")
}

func TestAddEmbeddingUnknownStudent(t *testing.T) {
	env := newTestEnv(t)

	w := env.postMultipart(t, "/api/students/CS999/embeddings",
		nil, map[string][][]byte{"image": {[]byte("img")}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteStudentCascades(t *testing.T) {
	env := newTestEnv(t)
	env.enrollDirect(t, "CS101", "Asha", []float64{0, 0, 0, 0})

	req := httptest.NewRequest(http.MethodDelete, "/api/students/CS101", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	student, err := env.repo.GetStudentByRoll("CS101")
	require.NoError(t, err)
	assert.Nil(t, student)
}
