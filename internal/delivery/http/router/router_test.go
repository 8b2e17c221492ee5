package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/college-service/internal/delivery/http/handler"
	"github.com/user/college-service/internal/entity"
	"github.com/user/college-service/internal/repository"
	"github.com/user/college-service/internal/usecase"
)

type memRepo struct {
	mu     sync.Mutex
	nextID int
	docs   map[string]entity.Record
	order  []string
	writes int
	pingOK bool
	stall  bool // Find blocks until the request context ends
}

func (m *memRepo) Find(ctx context.Context, f repository.CollegeFilter) ([]entity.College, error) {
	if m.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []entity.College{}
	for _, id := range m.order {
		doc, ok := m.docs[id]
		if !ok {
			continue
		}
		if name, _ := doc[entity.FieldCollegeName].AsString(); f.CollegeName != "" && name != f.CollegeName {
			continue
		}
		out = append(out, entity.College{ID: id, Document: doc.Clone()})
	}
	return out, nil
}

func (m *memRepo) FindByID(_ context.Context, id string) (*entity.College, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &entity.College{ID: id, Document: doc.Clone()}, nil
}

func (m *memRepo) Insert(_ context.Context, doc entity.Record) (*entity.College, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.nextID++
	id := strconv.Itoa(m.nextID)
	m.docs[id] = doc.Clone()
	m.order = append(m.order, id)
	return &entity.College{ID: id, Document: doc.Clone()}, nil
}

func (m *memRepo) UpdateByID(_ context.Context, id string, doc entity.Record) (*entity.College, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	stored, ok := m.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for k, v := range doc {
		stored[k] = v
	}
	return &entity.College{ID: id, Document: stored.Clone()}, nil
}

func (m *memRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memRepo) Ping(context.Context) error {
	if !m.pingOK {
		return errors.New("down")
	}
	return nil
}

type memMedia struct {
	mu      sync.Mutex
	n       int
	folders []string
	deleted []string
	fail    bool
}

func (m *memMedia) Upload(_ context.Context, _ []byte, opts repository.UploadOptions) (repository.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return repository.Asset{}, &repository.UploadError{Folder: opts.Folder, Err: errors.New("rejected")}
	}
	m.n++
	m.folders = append(m.folders, opts.Folder)
	id := fmt.Sprintf("%s/img%d", opts.Folder, m.n)
	return repository.Asset{URL: "https://cdn/" + id + ".png", PublicID: id}, nil
}

func (m *memMedia) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ref)
	return nil
}

func (m *memMedia) Reference(url string) (string, error) {
	parts := strings.Split(strings.TrimPrefix(url, "https://cdn/"), "/")
	if len(parts) != 2 {
		return "", errors.New("bad url")
	}
	return parts[0] + "/" + strings.TrimSuffix(parts[1], ".png"), nil
}

type testServer struct {
	repo  *memRepo
	media *memMedia
	http  http.Handler
}

func newTestServer(opts Options) *testServer {
	repo := &memRepo{docs: map[string]entity.Record{}, pingOK: true}
	media := &memMedia{}
	colleges := usecase.NewCollegeManager(repo, nil, media, usecase.NewMediaExtractor(media, "colleges", nil), "colleges", nil)
	images := usecase.NewImageUploader(media, "colleges", "college-crm", nil)
	h := handler.NewHandler(colleges, images, map[string]handler.Pinger{"store": repo}, nil)
	return &testServer{repo: repo, media: media, http: New(h, nil, opts)}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.http.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	return s.do(t, method, path, []byte(body), "application/json")
}

type formFile struct {
	field string
	data  []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for i, f := range files {
		fw, err := mw.CreateFormFile(f.field, fmt.Sprintf("file%d.png", i))
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const pngDataURL = "data:image/png;base64,iVBORw0KGgo="

func TestCreateAndFindCollege(t *testing.T) {
	s := newTestServer(Options{})

	rec := s.doJSON(t, http.MethodPost, "/api/colleges", `{
		"collegeName": "IIT Bombay",
		"collegeLocation": "Mumbai",
		"gallery": ["`+pngDataURL+`"],
		"reviews": [{"name": "A", "review": [{"type": "photo", "content": {"type": "image/jpeg", "data": [255, 216]}}]}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody(t, rec)
	assert.Equal(t, "1", created["_id"])
	gallery, ok := created["gallery"].([]any)
	require.True(t, ok)
	require.Len(t, gallery, 1)
	assert.Regexp(t, `^https://cdn/colleges/img[12]\.png$`, gallery[0])
	assert.Equal(t, 2, s.media.n)
	assert.NotContains(t, rec.Body.String(), "data:image")

	rec = s.doJSON(t, http.MethodGet, "/api/colleges/IIT%20Bombay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "Mumbai", found[0]["collegeLocation"])

	rec = s.doJSON(t, http.MethodGet, "/api/colleges/nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.doJSON(t, http.MethodGet, "/api/colleges", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestCreateCollegeErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fail   bool
		status int
	}{
		{"bad json", `{"collegeName":`, false, http.StatusBadRequest},
		{"not an object", `["a"]`, false, http.StatusBadRequest},
		{"missing required", `{"collegeName": "X"}`, false, http.StatusBadRequest},
		{"number out of range", `{"collegeName": "X", "collegeLocation": "Y", "minFee": 1e400}`, false, http.StatusBadRequest},
		{"malformed image", `{"collegeName": "X", "collegeLocation": "Y", "collegeImage": "data:image/png;base64,%%%"}`, false, http.StatusBadRequest},
		{"media store down", `{"collegeName": "X", "collegeLocation": "Y", "collegeImage": "` + pngDataURL + `"}`, true, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(Options{})
			s.media.fail = tt.fail

			rec := s.doJSON(t, http.MethodPost, "/api/colleges", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody(t, rec)["message"])
			assert.Zero(t, s.repo.writes)
		})
	}
}

func TestUpdateCollege(t *testing.T) {
	s := newTestServer(Options{})
	rec := s.doJSON(t, http.MethodPost, "/api/colleges", `{"collegeName": "X", "collegeLocation": "Y"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.doJSON(t, http.MethodPut, "/api/colleges/1", `{"minFee": "1000", "collegeLogo": "`+pngDataURL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1000, body["minFee"])
	assert.Equal(t, "https://cdn/colleges/img1.png", body["collegeLogo"])
	assert.Equal(t, "X", body["collegeName"])

	rec = s.doJSON(t, http.MethodPut, "/api/colleges/42", `{"minFee": 1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "College not found", decodeBody(t, rec)["message"])
}

func TestDeleteCollege(t *testing.T) {
	s := newTestServer(Options{})
	s.repo.docs["7"] = entity.Record{
		entity.FieldCollegeName: entity.String("X"),
		entity.FieldImageURL:    entity.String("https://cdn/colleges/abc123.png"),
	}
	s.repo.order = append(s.repo.order, "7")

	rec := s.doJSON(t, http.MethodDelete, "/api/colleges/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message": "College deleted"}`, rec.Body.String())
	assert.Equal(t, []string{"colleges/abc123"}, s.media.deleted)

	rec = s.doJSON(t, http.MethodDelete, "/api/colleges/7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCollegeWithUpload(t *testing.T) {
	s := newTestServer(Options{})

	body, ct := multipartBody(t, map[string]string{
		"collegeName":     "IIT",
		"collegeLocation": "Mumbai",
		"placement":       `{"stats": {"placementRate": "95%"}}`,
		"overview":        `["one", "two"]`,
		"aboutUsSub":      "{not json",
	}, formFile{field: "image", data: []byte{1, 2, 3}})

	rec := s.do(t, http.MethodPost, "/api/colleges/with-upload", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody(t, rec)
	assert.Equal(t, "https://cdn/colleges/img1.png", created["imageUrl"])
	assert.Equal(t, "colleges/img1", created["imagePublicId"])
	assert.Equal(t, []any{"one", "two"}, created["overview"])
	assert.Equal(t, map[string]any{"stats": map[string]any{"placementRate": "95%"}}, created["placement"])
	assert.Equal(t, "{not json", created["aboutUsSub"])

	body, ct = multipartBody(t, map[string]string{"minFee": "500"}, formFile{field: "image", data: []byte{4}})
	rec = s.do(t, http.MethodPut, "/api/colleges/1/with-upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody(t, rec)
	assert.Equal(t, "https://cdn/colleges/img2.png", updated["imageUrl"])
	assert.EqualValues(t, 500, updated["minFee"])

	rec = s.doJSON(t, http.MethodPost, "/api/colleges/with-upload", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCollegeWithUploadBracketFields(t *testing.T) {
	s := newTestServer(Options{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, field := range [][2]string{
		{"collegeName", "IIT"},
		{"collegeLocation", "Mumbai"},
		{"overview[0]", "one"},
		{"overview[1]", "two"},
		{"placement[stats][placementRate]", "95%"},
		{"placement[companies][]", "A"},
		{"placement[companies][]", "B"},
		{"certificates", "NAAC"},
		{"certificates", "NBA"},
	} {
		require.NoError(t, mw.WriteField(field[0], field[1]))
	}
	require.NoError(t, mw.Close())

	rec := s.do(t, http.MethodPost, "/api/colleges/with-upload", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody(t, rec)
	assert.Equal(t, []any{"one", "two"}, created["overview"])
	assert.Equal(t, map[string]any{
		"stats":     map[string]any{"placementRate": "95%"},
		"companies": []any{"A", "B"},
	}, created["placement"])
	assert.Equal(t, []any{"NAAC", "NBA"}, created["certificates"])
	assert.NotContains(t, created, "overview[0]")
}

func TestImageUploads(t *testing.T) {
	s := newTestServer(Options{})

	body, ct := multipartBody(t, nil, formFile{field: "image", data: []byte{1}})
	rec := s.do(t, http.MethodPost, "/api/images/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success": true, "imageUrl": "https://cdn/colleges/img1.png"}`, rec.Body.String())

	rec = s.doJSON(t, http.MethodPost, "/api/images/upload-buffer", `{"image": "`+pngDataURL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success": true, "imageUrl": "https://cdn/colleges/img2.png"}`, rec.Body.String())

	rec = s.doJSON(t, http.MethodPost, "/api/images/upload-buffer", `{"image": {"type": "Buffer", "data": [1, 2]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.doJSON(t, http.MethodPost, "/api/images/upload-buffer", `{"image": "hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartBody(t, map[string]string{"name": "x"})
	rec = s.do(t, http.MethodPost, "/api/images/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCRMUploads(t *testing.T) {
	s := newTestServer(Options{})

	body, ct := multipartBody(t, nil, formFile{field: "image", data: []byte{1}})
	rec := s.do(t, http.MethodPost, "/upload/single", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"url": "https://cdn/college-crm/img1.png", "public_id": "college-crm/img1"}`, rec.Body.String())

	body, ct = multipartBody(t, nil,
		formFile{field: "images", data: []byte{1}},
		formFile{field: "images", data: []byte{2}},
	)
	rec = s.do(t, http.MethodPost, "/upload/multiple", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Equal(t, "Files uploaded successfully", resp["message"])
	assert.Len(t, resp["files"], 2)
	for _, folder := range s.media.folders {
		assert.Equal(t, "college-crm", folder)
	}

	files := make([]formFile, usecase.MaxBatchFiles+1)
	for i := range files {
		files[i] = formFile{field: "images", data: []byte{byte(i + 1)}}
	}
	body, ct = multipartBody(t, nil, files...)
	rec = s.do(t, http.MethodPost, "/upload/multiple", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestTimeout(t *testing.T) {
	s := newTestServer(Options{RequestTimeout: 20 * time.Millisecond})
	s.repo.stall = true

	rec := s.doJSON(t, http.MethodGet, "/api/colleges", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code, rec.Body.String())
	assert.Equal(t, "Request timed out", decodeBody(t, rec)["message"])
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(Options{})

	rec := s.doJSON(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"store": "healthy"}`, rec.Body.String())

	s.repo.pingOK = false
	rec = s.doJSON(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"store": "unhealthy"}`, rec.Body.String())
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(Options{MaxBodyBytes: 64})

	rec := s.doJSON(t, http.MethodPost, "/api/colleges", `{"collegeName": "`+strings.Repeat("x", 200)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(Options{})

	rec := s.doJSON(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/colleges", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.http.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
