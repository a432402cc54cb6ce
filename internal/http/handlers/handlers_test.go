package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/exampaper-backend/internal/data/repos"
	"github.com/yungbote/exampaper-backend/internal/data/repos/testutil"
	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/domain/identity"
	"github.com/yungbote/exampaper-backend/internal/http/response"
	"github.com/yungbote/exampaper-backend/internal/indexing"
	"github.com/yungbote/exampaper-backend/internal/modules/generation"
	"github.com/yungbote/exampaper-backend/internal/modules/ingestion"
	"github.com/yungbote/exampaper-backend/internal/modules/status"
	"github.com/yungbote/exampaper-backend/internal/platform/ctxutil"
	"github.com/yungbote/exampaper-backend/internal/platform/storage"
)

type fakeSearcher struct {
	got indexing.SearchInput
}

func (f *fakeSearcher) Search(ctx context.Context, in indexing.SearchInput) ([]indexing.Hit, error) {
	f.got = in
	return []indexing.Hit{{ChunkID: uuid.New(), UnitNumber: 1, Content: "OSI", Similarity: 0.9}}, nil
}

type testServer struct {
	r        *gin.Engine
	search   *fakeSearcher
	caller   types.Caller
	ingest   *ingestion.Coordinator
	generate *generation.Coordinator
}

const testUploadLimit = 64

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	docs := repos.NewDocumentRepo(gdb, log)
	indexJobs := repos.NewIndexJobRepo(gdb, log)
	papers := repos.NewPaperRepo(gdb, log)
	store, err := storage.NewLocalStore(log, t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ts := &testServer{
		search: &fakeSearcher{},
		caller: types.Caller{ID: uuid.New(), Role: identity.RoleFaculty},
	}
	ts.ingest = ingestion.NewCoordinator(ingestion.CoordinatorDeps{DB: gdb, Log: log, Documents: docs, IndexJobs: indexJobs, Objects: store})
	ts.generate = generation.NewCoordinator(generation.CoordinatorDeps{
		DB: gdb, Log: log, Papers: papers,
		GenerationJobs: repos.NewGenerationJobRepo(gdb, log),
		QuestionSets:   repos.NewQuestionSetRepo(gdb, log),
		Documents:      docs, IndexJobs: indexJobs,
	})
	statusSvc := status.NewService(docs, indexJobs, papers)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{Caller: ts.caller})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	dh := NewDocumentHandler(log, ts.ingest, statusSvc, testUploadLimit)
	ph := NewPaperHandler(log, ts.generate, statusSvc)
	sh := NewSearchHandler(ts.search)
	api := r.Group("/api")
	api.POST("/documents", dh.Submit)
	api.POST("/documents/upload", dh.Upload)
	api.POST("/documents/:id/process", dh.Process)
	api.GET("/documents/:id/status", dh.Status)
	api.GET("/documents/:id/content", dh.Content)
	api.POST("/documents/:id/index", dh.Index)
	api.GET("/documents/:id/index-status", dh.IndexStatus)
	api.GET("/subjects/:id/documents", dh.ListBySubject)
	api.POST("/papers", ph.Create)
	api.GET("/papers", ph.List)
	api.POST("/papers/:id/generate", ph.Generate)
	api.GET("/papers/:id/generation-status", ph.Status)
	api.GET("/papers/:id", ph.Get)
	api.POST("/search", sh.Search)
	ts.r = r
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status: want=%d got=%d body=%s", status, rec.Code, rec.Body.String())
	}
	env := decode[response.ErrorEnvelope](t, rec)
	if env.Error.Code != code || env.Error.Message == "" {
		t.Fatalf("envelope: want code=%s got=%+v", code, env.Error)
	}
}

func TestDocumentLifecycleEndpoints(t *testing.T) {
	ts := newTestServer(t)
	subject := uuid.New()

	expectError(t, ts.do(t, http.MethodPost, "/api/documents", map[string]any{
		"subject_id": subject, "unit_number": 1,
	}), http.StatusBadRequest, "invalid_input")
	expectError(t, ts.do(t, http.MethodPost, "/api/documents", map[string]any{
		"subject_id": "nope", "unit_number": 1, "syllabus_text": "x",
	}), http.StatusBadRequest, "invalid_input")

	rec := ts.do(t, http.MethodPost, "/api/documents", map[string]any{
		"subject_id": subject, "unit_number": 1, "syllabus_text": "OSI model",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: want=201 got=%d body=%s", rec.Code, rec.Body.String())
	}
	created := decode[struct {
		Document types.Document `json:"document"`
	}](t, rec)
	if created.Document.Status != types.DocumentPending {
		t.Fatalf("submit status: got=%s", created.Document.Status)
	}
	id := created.Document.ID.String()

	expectError(t, ts.do(t, http.MethodGet, "/api/documents/"+id+"/content", nil), http.StatusConflict, "not_ready")
	expectError(t, ts.do(t, http.MethodPost, "/api/documents/"+id+"/index", nil), http.StatusConflict, "not_ready")

	if rec := ts.do(t, http.MethodPost, "/api/documents/"+id+"/process", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("process: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}
	expectError(t, ts.do(t, http.MethodPost, "/api/documents/"+id+"/process", nil), http.StatusConflict, "already_in_progress")

	rec = ts.do(t, http.MethodGet, "/api/documents/"+id+"/status", nil)
	view := decode[status.View](t, rec)
	if rec.Code != http.StatusOK || view.Status != "processing" || view.Terminal {
		t.Fatalf("status: code=%d view=%+v", rec.Code, view)
	}

	if err := ts.ingest.CompleteExtraction(context.Background(), created.Document.ID, created.Document.ContentVersion, "OSI model"); err != nil {
		t.Fatalf("CompleteExtraction: %v", err)
	}
	rec = ts.do(t, http.MethodGet, "/api/documents/"+id+"/content", nil)
	content := decode[map[string]string](t, rec)
	if rec.Code != http.StatusOK || content["extracted_text"] != "OSI model" {
		t.Fatalf("content: code=%d body=%v", rec.Code, content)
	}

	if rec := ts.do(t, http.MethodPost, "/api/documents/"+id+"/index", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("index: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodGet, "/api/documents/"+id+"/index-status", nil)
	if iv := decode[status.View](t, rec); iv.Status != "processing" {
		t.Fatalf("index status: got=%+v", iv)
	}

	rec = ts.do(t, http.MethodGet, "/api/subjects/"+subject.String()+"/documents", nil)
	listed := decode[struct {
		Documents []types.Document `json:"documents"`
	}](t, rec)
	if len(listed.Documents) != 1 {
		t.Fatalf("list: want=1 got=%d", len(listed.Documents))
	}

	expectError(t, ts.do(t, http.MethodGet, "/api/documents/"+uuid.NewString()+"/status", nil), http.StatusNotFound, "not_found")
	expectError(t, ts.do(t, http.MethodGet, "/api/documents/not-a-uuid/status", nil), http.StatusBadRequest, "invalid_input")
}

func TestUploadEndpoint(t *testing.T) {
	ts := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("subject_id", uuid.NewString())
	_ = mw.WriteField("unit_number", "2")
	fw, err := mw.CreateFormFile("file", "routing notes.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write([]byte("Distance vector routing"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: want=201 got=%d body=%s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		Document types.Document `json:"document"`
	}](t, rec)
	if got.Document.FileName == nil || *got.Document.FileName != "routing notes.txt" || got.Document.UnitNumber != 2 {
		t.Fatalf("document: got=%+v", got.Document)
	}
	if got.Document.FileType == nil || *got.Document.FileType != "text/plain" {
		t.Fatalf("file type: got=%v", got.Document.FileType)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/documents/upload", bytes.NewBufferString("x"))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	ts.r.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusBadRequest, "invalid_input")
}

func TestUploadRejectsFileOverLimit(t *testing.T) {
	ts := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("subject_id", uuid.NewString())
	_ = mw.WriteField("unit_number", "1")
	fw, err := mw.CreateFormFile("file", "big.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write(bytes.Repeat([]byte("a"), testUploadLimit+1))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.r.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusBadRequest, "invalid_input")
}

func TestPaperEndpoints(t *testing.T) {
	ts := newTestServer(t)
	subject := uuid.New()
	if _, err := ts.ingest.SubmitContent(context.Background(), ts.caller, ingestion.SubmitInput{
		SubjectID: subject, UnitNumber: 1, SyllabusText: ptr("OSI model"),
	}); err != nil {
		t.Fatalf("SubmitContent: %v", err)
	}

	expectError(t, ts.do(t, http.MethodPost, "/api/papers", map[string]any{
		"subject_id": subject, "title": "Mid term", "units": []int{1}, "difficulty": "medium",
		"question_config": map[string]int{"essay": 2},
	}), http.StatusBadRequest, "invalid_input")

	rec := ts.do(t, http.MethodPost, "/api/papers", map[string]any{
		"subject_id": subject, "title": "Mid term", "units": []int{1, 2}, "difficulty": "medium",
		"question_config": map[string]int{"mcq": 5, "fill_blanks": 5, "short": 5, "long": 2},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: want=201 got=%d body=%s", rec.Code, rec.Body.String())
	}
	paper := decode[struct {
		Paper types.Paper `json:"paper"`
	}](t, rec).Paper
	id := paper.ID.String()

	expectError(t, ts.do(t, http.MethodPost, "/api/papers/"+id+"/generate", nil), http.StatusConflict, "not_ready")
	expectError(t, ts.do(t, http.MethodPost, "/api/papers/"+id+"/generate", map[string]any{"difficulty": "brutal"}), http.StatusBadRequest, "invalid_input")
	expectError(t, ts.do(t, http.MethodGet, "/api/papers/"+id, nil), http.StatusNotFound, "not_found")

	rec = ts.do(t, http.MethodPost, "/api/papers/"+id+"/generate", map[string]any{
		"units":          []int{1, 2},
		"inline_syllabi": map[string]string{"2": "Transport layer"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("generate: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}
	expectError(t, ts.do(t, http.MethodPost, "/api/papers/"+id+"/generate", nil), http.StatusConflict, "already_in_progress")

	rec = ts.do(t, http.MethodGet, "/api/papers/"+id+"/generation-status", nil)
	if v := decode[status.View](t, rec); v.Status != "pending" || v.Terminal {
		t.Fatalf("generation status: got=%+v", v)
	}

	rec = ts.do(t, http.MethodGet, "/api/papers", nil)
	list := decode[struct {
		Papers []types.Paper `json:"papers"`
	}](t, rec)
	if len(list.Papers) != 1 || list.Papers[0].ID != paper.ID {
		t.Fatalf("list: got=%d papers", len(list.Papers))
	}
}

func TestSearchEndpointUsesSearchDefaults(t *testing.T) {
	ts := newTestServer(t)
	subject := uuid.New()
	rec := ts.do(t, http.MethodPost, "/api/search", map[string]any{"subject_id": subject, "query": "osi layers"})
	if rec.Code != http.StatusOK {
		t.Fatalf("search: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if ts.search.got.Limit != 5 || ts.search.got.Threshold != 0.5 || ts.search.got.SubjectID != subject {
		t.Fatalf("search input: got=%+v", ts.search.got)
	}
	res := decode[struct {
		Results []indexing.Hit `json:"results"`
	}](t, rec)
	if len(res.Results) != 1 {
		t.Fatalf("results: got=%d", len(res.Results))
	}
	expectError(t, ts.do(t, http.MethodPost, "/api/search", map[string]any{"query": "x"}), http.StatusBadRequest, "invalid_input")
}

func ptr(s string) *string { return &s }
