package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/exampaper-backend/internal/data/repos"
	"github.com/yungbote/exampaper-backend/internal/data/repos/testutil"
	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/domain/events"
	"github.com/yungbote/exampaper-backend/internal/domain/identity"
	"github.com/yungbote/exampaper-backend/internal/extraction"
	"github.com/yungbote/exampaper-backend/internal/jobs/queue"
	"github.com/yungbote/exampaper-backend/internal/modules/generation"
	"github.com/yungbote/exampaper-backend/internal/modules/ingestion"
	"github.com/yungbote/exampaper-backend/internal/modules/status"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
	"github.com/yungbote/exampaper-backend/internal/questiongen"
)

type fakeExtractor struct {
	calls atomic.Int32
	fn    func(ctx context.Context, src extraction.Source) (string, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, src extraction.Source) (string, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, src)
	}
	return src.Syllabus, nil
}

type fakeIndexer struct {
	calls atomic.Int32
	fn    func(ctx context.Context, doc *types.Document) (int, error)
}

func (f *fakeIndexer) Index(ctx context.Context, doc *types.Document, job *types.IndexJob) (int, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, doc)
	}
	return 3, nil
}

type fakeEngine struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req questiongen.Request) (types.QuestionBundle, error)
}

func (f *fakeEngine) Generate(ctx context.Context, req questiongen.Request) (types.QuestionBundle, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return bundleFor(req.Paper.Config(), req.Paper.Units[0]), nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.StatusEvent
}

func (r *recorder) Publish(ctx context.Context, ev events.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) statuses(subject events.Subject) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Subject == subject {
			out = append(out, ev.Status)
		}
	}
	return out
}

type transientErr struct{}

func (transientErr) Error() string   { return "upstream unavailable" }
func (transientErr) Transient() bool { return true }

type fixture struct {
	db     *gorm.DB
	ing    *ingestion.Coordinator
	gen    *generation.Coordinator
	status *status.Service
	docs   repos.DocumentRepo
	ijobs  repos.IndexJobRepo
	gjobs  repos.GenerationJobRepo
	queue  *queue.Queue
	ext    *fakeExtractor
	idx    *fakeIndexer
	eng    *fakeEngine
	note   *recorder
	sup    *Supervisor
	caller types.Caller
}

func testConfig() Config {
	return Config{
		Concurrency:       4,
		ExtractionTimeout: 2 * time.Second,
		IndexingTimeout:   2 * time.Second,
		GenerationTimeout: 2 * time.Second,
		MaxAttempts:       3,
		RetryBaseDelay:    time.Millisecond,
		RetryMaxDelay:     2 * time.Millisecond,
		StaleAfter:        time.Hour,
		SweepInterval:     20 * time.Millisecond,
		AutoAdvance:       true,
	}
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{
		db:     gdb,
		docs:   repos.NewDocumentRepo(gdb, log),
		ijobs:  repos.NewIndexJobRepo(gdb, log),
		gjobs:  repos.NewGenerationJobRepo(gdb, log),
		queue:  queue.New(64, log),
		ext:    &fakeExtractor{},
		idx:    &fakeIndexer{},
		eng:    &fakeEngine{},
		note:   &recorder{},
		caller: types.Caller{ID: uuid.New(), Role: identity.RoleFaculty},
	}
	papers := repos.NewPaperRepo(gdb, log)
	f.ing = ingestion.NewCoordinator(ingestion.CoordinatorDeps{
		DB: gdb, Log: log, Documents: f.docs, IndexJobs: f.ijobs, Queue: f.queue,
	})
	f.gen = generation.NewCoordinator(generation.CoordinatorDeps{
		DB: gdb, Log: log, Papers: papers, GenerationJobs: f.gjobs,
		QuestionSets: repos.NewQuestionSetRepo(gdb, log), Documents: f.docs, IndexJobs: f.ijobs, Queue: f.queue,
	})
	f.status = status.NewService(f.docs, f.ijobs, papers)
	sup, err := New(Deps{
		Log: log, Ingestion: f.ing, Generation: f.gen,
		Documents: f.docs, IndexJobs: f.ijobs, GenerationJobs: f.gjobs,
		Extractor: f.ext, Indexer: f.idx, Engine: f.eng,
		Queue: f.queue, Notifier: f.note,
	}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.sup = sup
	return f
}

func (f *fixture) submitSyllabus(t *testing.T, subject uuid.UUID, unit int, text string) *types.Document {
	t.Helper()
	doc, err := f.ing.SubmitContent(context.Background(), f.caller, ingestion.SubmitInput{
		SubjectID: subject, UnitNumber: unit, SyllabusText: &text,
	})
	if err != nil {
		t.Fatalf("SubmitContent: %v", err)
	}
	return doc
}

func (f *fixture) submitFile(t *testing.T, subject uuid.UUID, unit int) *types.Document {
	t.Helper()
	doc, err := f.ing.SubmitContent(context.Background(), f.caller, ingestion.SubmitInput{
		SubjectID: subject, UnitNumber: unit,
		File: &ingestion.FileRef{Path: "caller/1700000000_notes.txt", Name: "notes.txt", Type: "text/plain"},
	})
	if err != nil {
		t.Fatalf("SubmitContent: %v", err)
	}
	return doc
}

func (f *fixture) docStatus(t *testing.T, id uuid.UUID) status.View {
	t.Helper()
	v, err := f.status.DocumentStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("DocumentStatus: %v", err)
	}
	return v
}

func (f *fixture) paperStatus(t *testing.T, id uuid.UUID) status.View {
	t.Helper()
	v, err := f.status.PaperStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("PaperStatus: %v", err)
	}
	return v
}

func (f *fixture) draft(t *testing.T, subject uuid.UUID, units []int, cfg map[string]int) *types.Paper {
	t.Helper()
	p, err := f.gen.CreateDraft(context.Background(), f.caller, generation.DraftInput{
		SubjectID: subject, Title: "Networks midterm", Units: units, Difficulty: "medium", QuestionConfig: cfg,
	})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	return p
}

func bundleFor(cfg types.QuestionConfig, unit int) types.QuestionBundle {
	var b types.QuestionBundle
	for i := 0; i < cfg[types.QuestionMCQ]; i++ {
		b.MCQ = append(b.MCQ, types.MCQ{Question: fmt.Sprintf("mcq %d", i), Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "a", Marks: 1, Unit: unit})
	}
	for i := 0; i < cfg[types.QuestionFillBlanks]; i++ {
		b.FillBlanks = append(b.FillBlanks, types.FillBlank{Question: fmt.Sprintf("fill %d ___", i), Answer: "x", Marks: 1, Unit: unit})
	}
	for i := 0; i < cfg[types.QuestionShort]; i++ {
		b.Short = append(b.Short, types.ShortAnswer{Question: fmt.Sprintf("short %d", i), ExpectedPoints: []string{"p1", "p2", "p3"}, Marks: 3, Unit: unit})
	}
	for i := 0; i < cfg[types.QuestionLong]; i++ {
		b.Long = append(b.Long, types.LongAnswer{Question: fmt.Sprintf("long %d", i), ExpectedPoints: []string{"1", "2", "3", "4", "5", "6"}, Marks: 10, Unit: unit})
	}
	return b
}

func TestExtractionChainsIntoIndexing(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	doc := f.submitSyllabus(t, uuid.New(), 1, "OSI model")

	if err := f.sup.Process(ctx, queue.Task{Kind: queue.KindExtract, ID: doc.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if v := f.docStatus(t, doc.ID); v.Status != "completed" || !v.Terminal {
		t.Fatalf("document status: want=completed got=%+v", v)
	}
	iv, err := f.status.IndexStatus(ctx, doc.ID)
	if err != nil || iv.Status != "completed" {
		t.Fatalf("index status: err=%v got=%+v", err, iv)
	}
	text, err := f.ing.Content(ctx, f.caller, doc.ID)
	if err != nil || text != "OSI model" {
		t.Fatalf("content: err=%v got=%q", err, text)
	}
	want := "processing,completed"
	if got := strings.Join(f.note.statuses(events.SubjectDocument), ","); got != want {
		t.Fatalf("document events: want=%s got=%s", want, got)
	}
	if got := strings.Join(f.note.statuses(events.SubjectIndexJob), ","); got != want {
		t.Fatalf("index events: want=%s got=%s", want, got)
	}
}

func TestNoChainWithoutAutoAdvance(t *testing.T) {
	cfg := testConfig()
	cfg.AutoAdvance = false
	f := newFixture(t, cfg)
	ctx := context.Background()
	doc := f.submitSyllabus(t, uuid.New(), 1, "OSI model")

	if _, err := f.ing.AdvanceExtraction(ctx, f.caller, doc.ID); err != nil {
		t.Fatalf("AdvanceExtraction: %v", err)
	}
	task := <-f.queue.Tasks()
	if !task.Claimed || task.ID != doc.ID {
		t.Fatalf("queued task: got=%+v", task)
	}
	if err := f.sup.Process(ctx, task); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := f.status.IndexStatus(ctx, doc.ID); !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("index status: want=NotFound got=%v", err)
	}
	if f.idx.calls.Load() != 0 {
		t.Fatalf("indexer calls: want=0 got=%d", f.idx.calls.Load())
	}
}

func TestTransientExtractionErrorIsRetried(t *testing.T) {
	f := newFixture(t, testConfig())
	f.ext.fn = func(ctx context.Context, src extraction.Source) (string, error) {
		if f.ext.calls.Load() == 1 {
			return "", apierr.CollaboratorFailure(transientErr{})
		}
		return "recovered", nil
	}
	doc := f.submitFile(t, uuid.New(), 1)

	if err := f.sup.Process(context.Background(), queue.Task{Kind: queue.KindExtract, ID: doc.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := f.ext.calls.Load(); got != 2 {
		t.Fatalf("extract calls: want=2 got=%d", got)
	}
	if v := f.docStatus(t, doc.ID); v.Status != "completed" {
		t.Fatalf("status: want=completed got=%+v", v)
	}
}

func TestExtractionFailingEveryAttemptNeverIndexes(t *testing.T) {
	f := newFixture(t, testConfig())
	f.ext.fn = func(ctx context.Context, src extraction.Source) (string, error) {
		return "", transientErr{}
	}
	ctx := context.Background()
	doc := f.submitFile(t, uuid.New(), 1)

	if err := f.sup.Process(ctx, queue.Task{Kind: queue.KindExtract, ID: doc.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := f.ext.calls.Load(); got != 3 {
		t.Fatalf("extract calls: want=3 got=%d", got)
	}
	v := f.docStatus(t, doc.ID)
	if v.Status != "failed" || !v.Terminal || v.Error != "upstream unavailable" {
		t.Fatalf("status: got=%+v", v)
	}
	if _, err := f.status.IndexStatus(ctx, doc.ID); !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("index status: want=NotFound got=%v", err)
	}
	if _, err := f.ing.Content(ctx, f.caller, doc.ID); !apierr.Is(err, apierr.KindNotReady) {
		t.Fatalf("content: want=NotReady got=%v", err)
	}
	if _, err := f.ing.AdvanceIndexing(ctx, f.caller, doc.ID); !apierr.Is(err, apierr.KindNotReady) {
		t.Fatalf("AdvanceIndexing: want=NotReady got=%v", err)
	}
}

func TestValidationErrorIsNotRetried(t *testing.T) {
	f := newFixture(t, testConfig())
	f.ext.fn = func(ctx context.Context, src extraction.Source) (string, error) {
		return "", apierr.InvalidInput("unsupported file type")
	}
	doc := f.submitFile(t, uuid.New(), 1)

	if err := f.sup.Process(context.Background(), queue.Task{Kind: queue.KindExtract, ID: doc.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := f.ext.calls.Load(); got != 1 {
		t.Fatalf("extract calls: want=1 got=%d", got)
	}
	if v := f.docStatus(t, doc.ID); v.Status != "failed" || v.Error != "unsupported file type" {
		t.Fatalf("status: got=%+v", v)
	}
}

func TestStageTimeoutFailsJob(t *testing.T) {
	cfg := testConfig()
	cfg.ExtractionTimeout = 50 * time.Millisecond
	f := newFixture(t, cfg)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	// Ignores ctx on purpose: the deadline must hold regardless.
	f.ext.fn = func(ctx context.Context, src extraction.Source) (string, error) {
		<-release
		return "late", nil
	}
	doc := f.submitFile(t, uuid.New(), 1)

	start := time.Now()
	if err := f.sup.Process(context.Background(), queue.Task{Kind: queue.KindExtract, ID: doc.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout not enforced: took %s", elapsed)
	}
	v := f.docStatus(t, doc.ID)
	if v.Status != "failed" || v.Error != "Timeout: extraction exceeded 50ms" {
		t.Fatalf("status: got=%+v", v)
	}
}

func TestPanicIsRecordedAsFailure(t *testing.T) {
	f := newFixture(t, testConfig())
	f.idx.fn = func(ctx context.Context, doc *types.Document) (int, error) {
		panic("index exploded")
	}
	ctx := context.Background()
	doc := f.submitSyllabus(t, uuid.New(), 1, "OSI model")

	if err := f.sup.Process(ctx, queue.Task{Kind: queue.KindExtract, ID: doc.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := f.idx.calls.Load(); got != 1 {
		t.Fatalf("index calls: want=1 got=%d", got)
	}
	iv, err := f.status.IndexStatus(ctx, doc.ID)
	if err != nil || iv.Status != "failed" || !strings.Contains(iv.Error, "index exploded") {
		t.Fatalf("index status: err=%v got=%+v", err, iv)
	}
	if v := f.docStatus(t, doc.ID); v.Status != "completed" {
		t.Fatalf("document keeps its extraction: got=%+v", v)
	}
}

func TestConcurrentProcessRunsExtractionOnce(t *testing.T) {
	f := newFixture(t, testConfig())
	release := make(chan struct{})
	f.ext.fn = func(ctx context.Context, src extraction.Source) (string, error) {
		<-release
		return "text", nil
	}
	doc := f.submitFile(t, uuid.New(), 1)

	const callers = 5
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.sup.Process(context.Background(), queue.Task{Kind: queue.KindExtract, ID: doc.ID})
		}()
	}
	var rejected int
	for i := 0; i < callers-1; i++ {
		err := <-errs
		if !apierr.Is(err, apierr.KindAlreadyInProgress) {
			t.Fatalf("loser: want=AlreadyInProgress got=%v", err)
		}
		rejected++
	}
	close(release)
	wg.Wait()
	if err := <-errs; err != nil {
		t.Fatalf("winner: %v", err)
	}
	if got := f.ext.calls.Load(); got != 1 || rejected != callers-1 {
		t.Fatalf("extract calls: want=1 got=%d rejected=%d", got, rejected)
	}
}

func TestGenerationScenarioProducesRequestedCounts(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	subject := uuid.New()
	doc := f.submitSyllabus(t, subject, 1, "OSI model")
	if err := f.sup.Process(ctx, queue.Task{Kind: queue.KindExtract, ID: doc.ID}); err != nil {
		t.Fatalf("Process extract: %v", err)
	}

	p := f.draft(t, subject, []int{1}, map[string]int{"mcq": 5, "fill_blanks": 5, "short": 5, "long": 2})
	job, err := f.gen.StartGeneration(ctx, f.caller, p.ID, nil)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if v := f.paperStatus(t, p.ID); v.Status != "pending" || v.Terminal {
		t.Fatalf("paper status: want=pending got=%+v", v)
	}
	var syllabi map[int]string
	f.eng.fn = func(ctx context.Context, req questiongen.Request) (types.QuestionBundle, error) {
		syllabi = req.Syllabi
		return bundleFor(req.Paper.Config(), 1), nil
	}
	if err := f.sup.Process(ctx, queue.Task{Kind: queue.KindGenerate, ID: job.ID}); err != nil {
		t.Fatalf("Process generate: %v", err)
	}
	if v := f.paperStatus(t, p.ID); v.Status != "generated" || !v.Terminal {
		t.Fatalf("paper status: want=generated got=%+v", v)
	}
	if syllabi[1] != "OSI model" {
		t.Fatalf("syllabi: got=%v", syllabi)
	}
	_, qs, err := f.gen.GetPaper(ctx, f.caller, p.ID)
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if total := len(qs.MCQ) + len(qs.FillBlanks) + len(qs.Short) + len(qs.Long); total != 17 {
		t.Fatalf("questions: want=17 got=%d", total)
	}
	if got := strings.Join(f.note.statuses(events.SubjectGenerationJob), ","); got != "processing,generated" {
		t.Fatalf("generation events: got=%s", got)
	}
}

func TestGenerationShortfallFailsPaper(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	subject := uuid.New()
	p, err := f.gen.CreateDraft(ctx, f.caller, generation.DraftInput{
		SubjectID: subject, Title: "Quiz", Units: []int{2}, Difficulty: "easy",
		QuestionConfig: map[string]int{"mcq": 5}, InlineSyllabi: map[int]string{2: "Transport layer"},
	})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	job, err := f.gen.StartGeneration(ctx, f.caller, p.ID, nil)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	f.eng.fn = func(ctx context.Context, req questiongen.Request) (types.QuestionBundle, error) {
		return bundleFor(types.QuestionConfig{types.QuestionMCQ: 3}, 2), nil
	}
	if err := f.sup.Process(ctx, queue.Task{Kind: queue.KindGenerate, ID: job.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	v := f.paperStatus(t, p.ID)
	if v.Status != "failed" || v.Error != "partial: mcq requested 5 returned 3" {
		t.Fatalf("paper status: got=%+v", v)
	}
	if _, _, err := f.gen.GetPaper(ctx, f.caller, p.ID); !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("GetPaper: want=NotFound got=%v", err)
	}

	// A failed paper accepts a fresh attempt and keeps the old job.
	f.eng.fn = nil
	retry, err := f.gen.StartGeneration(ctx, f.caller, p.ID, nil)
	if err != nil {
		t.Fatalf("StartGeneration retry: %v", err)
	}
	if err := f.sup.Process(ctx, queue.Task{Kind: queue.KindGenerate, ID: retry.ID}); err != nil {
		t.Fatalf("Process retry: %v", err)
	}
	if v := f.paperStatus(t, p.ID); v.Status != "generated" {
		t.Fatalf("paper status after retry: got=%+v", v)
	}
	jobs, err := f.gen.Jobs(ctx, f.caller, p.ID)
	if err != nil || len(jobs) != 2 {
		t.Fatalf("jobs: err=%v len=%d", err, len(jobs))
	}
}

func TestGenerationEngineErrorFailsWithReason(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	p, err := f.gen.CreateDraft(ctx, f.caller, generation.DraftInput{
		SubjectID: uuid.New(), Title: "Quiz", Units: []int{1}, Difficulty: "hard",
		QuestionConfig: map[string]int{"long": 1}, InlineSyllabi: map[int]string{1: "Routing"},
	})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	job, err := f.gen.StartGeneration(ctx, f.caller, p.ID, nil)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	f.eng.fn = func(ctx context.Context, req questiongen.Request) (types.QuestionBundle, error) {
		return types.QuestionBundle{}, fmt.Errorf("generate long: %w", apierr.InvalidInput("schema rejected"))
	}
	if err := f.sup.Process(ctx, queue.Task{Kind: queue.KindGenerate, ID: job.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if f.eng.calls.Load() != 1 {
		t.Fatalf("engine calls: want=1 got=%d", f.eng.calls.Load())
	}
	if v := f.paperStatus(t, p.ID); v.Status != "failed" || v.Error != "generate long: schema rejected" {
		t.Fatalf("paper status: got=%+v", v)
	}
}

func TestDuplicateGenerateTaskIsRejected(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	p, err := f.gen.CreateDraft(ctx, f.caller, generation.DraftInput{
		SubjectID: uuid.New(), Title: "Quiz", Units: []int{1}, Difficulty: "medium",
		QuestionConfig: map[string]int{"mcq": 1}, InlineSyllabi: map[int]string{1: "Routing"},
	})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	job, err := f.gen.StartGeneration(ctx, f.caller, p.ID, nil)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	task := queue.Task{Kind: queue.KindGenerate, ID: job.ID}
	if err := f.sup.Process(ctx, task); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	if err := f.sup.Process(ctx, task); !apierr.Is(err, apierr.KindAlreadyInProgress) {
		t.Fatalf("second Process: want=AlreadyInProgress got=%v", err)
	}
	if f.eng.calls.Load() != 1 {
		t.Fatalf("engine calls: want=1 got=%d", f.eng.calls.Load())
	}
}

func ageRow(t *testing.T, gdb *gorm.DB, table string, id uuid.UUID, status string) {
	t.Helper()
	err := gdb.Table(table).Where("id = ?", id).UpdateColumns(map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC().Add(-2 * time.Hour),
	}).Error
	if err != nil {
		t.Fatalf("age %s: %v", table, err)
	}
}

func TestSweepReclaimsStaleProcessingDocument(t *testing.T) {
	cfg := testConfig()
	cfg.AutoAdvance = false
	f := newFixture(t, cfg)
	ctx := context.Background()
	doc := f.submitFile(t, uuid.New(), 1)
	ageRow(t, f.db, "document", doc.ID, "processing")

	tasks := f.sup.Sweep(ctx)
	if len(tasks) != 1 || tasks[0].Kind != queue.KindExtract || !tasks[0].Claimed || tasks[0].ID != doc.ID {
		t.Fatalf("sweep tasks: got=%+v", tasks)
	}
	if again := f.sup.Sweep(ctx); len(again) != 0 {
		t.Fatalf("second sweep must not reclaim again: got=%+v", again)
	}
	if err := f.sup.Process(ctx, <-f.queue.Tasks()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if v := f.docStatus(t, doc.ID); v.Status != "completed" {
		t.Fatalf("status: got=%+v", v)
	}
}

func TestSweepPicksUpPendingWork(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	subject := uuid.New()
	doc := f.submitSyllabus(t, subject, 1, "OSI model")
	p := f.draft(t, subject, []int{1}, map[string]int{"mcq": 1})
	job, err := f.gen.StartGeneration(ctx, f.caller, p.ID, nil)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	// Drop the queued task so only the sweep can find the job.
	<-f.queue.Tasks()

	tasks := f.sup.Sweep(ctx)
	found := map[queue.Kind]uuid.UUID{}
	for _, task := range tasks {
		if task.Claimed {
			t.Fatalf("pending work must not be claimed: %+v", task)
		}
		found[task.Kind] = task.ID
	}
	if len(tasks) != 2 || found[queue.KindExtract] != doc.ID || found[queue.KindGenerate] != job.ID {
		t.Fatalf("sweep tasks: got=%+v", tasks)
	}
	if f.queue.Len() != 2 {
		t.Fatalf("queued: want=2 got=%d", f.queue.Len())
	}
}

func TestRunDrainsQueueUntilCancelled(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sup.Run(ctx) }()

	p, err := f.gen.CreateDraft(context.Background(), f.caller, generation.DraftInput{
		SubjectID: uuid.New(), Title: "Quiz", Units: []int{1}, Difficulty: "medium",
		QuestionConfig: map[string]int{"mcq": 2, "short": 1}, InlineSyllabi: map[int]string{1: "Routing"},
	})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if _, err := f.gen.StartGeneration(context.Background(), f.caller, p.ID, nil); err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if v := f.paperStatus(t, p.ID); v.Terminal {
			if v.Status != "generated" {
				t.Fatalf("paper status: got=%+v", v)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("paper never reached a terminal state")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{Log: testutil.Logger(t)}, Config{}); err == nil {
		t.Fatalf("expected error without coordinators")
	}
}

func TestConfigDefaultsKeepStaleAboveTimeouts(t *testing.T) {
	cfg := Config{GenerationTimeout: 20 * time.Minute, StaleAfter: time.Minute}.withDefaults()
	if cfg.StaleAfter <= cfg.GenerationTimeout {
		t.Fatalf("stale after: want > %s got=%s", cfg.GenerationTimeout, cfg.StaleAfter)
	}
	if cfg.MaxAttempts != 3 || cfg.Concurrency != 4 {
		t.Fatalf("defaults: got=%+v", cfg)
	}
}

