package generation

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/exampaper-backend/internal/data/repos"
	"github.com/yungbote/exampaper-backend/internal/data/repos/testutil"
	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/domain/identity"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
)

type fixture struct {
	db     *gorm.DB
	c      *Coordinator
	jobs   repos.GenerationJobRepo
	papers repos.PaperRepo
	caller types.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{
		db:     gdb,
		jobs:   repos.NewGenerationJobRepo(gdb, log),
		papers: repos.NewPaperRepo(gdb, log),
		caller: types.Caller{ID: uuid.New(), Role: identity.RoleFaculty},
	}
	f.c = NewCoordinator(CoordinatorDeps{
		DB:             gdb,
		Log:            log,
		Papers:         f.papers,
		GenerationJobs: f.jobs,
		QuestionSets:   repos.NewQuestionSetRepo(gdb, log),
		Documents:      repos.NewDocumentRepo(gdb, log),
		IndexJobs:      repos.NewIndexJobRepo(gdb, log),
	})
	return f
}

func validDraft(subject uuid.UUID, units ...int) DraftInput {
	return DraftInput{
		SubjectID:      subject,
		Title:          "Computer Networks - Mid Term",
		Units:          units,
		Difficulty:     "Medium",
		QuestionConfig: map[string]int{"mcq": 2, "short": 1},
	}
}

func (f *fixture) draft(t *testing.T, in DraftInput) *types.Paper {
	t.Helper()
	p, err := f.c.CreateDraft(context.Background(), f.caller, in)
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	return p
}

func (f *fixture) paperStatus(t *testing.T, id uuid.UUID) types.PaperStatus {
	t.Helper()
	p, err := f.papers.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil || p == nil {
		t.Fatalf("load paper: err=%v paper=%v", err, p)
	}
	return p.Status
}

func bundle(mcq, short int) types.QuestionBundle {
	var b types.QuestionBundle
	for i := 0; i < mcq; i++ {
		b.MCQ = append(b.MCQ, types.MCQ{Question: "q", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "a", Marks: 1, Unit: 1})
	}
	for i := 0; i < short; i++ {
		b.Short = append(b.Short, types.ShortAnswer{Question: "s", ExpectedPoints: []string{"x"}, Marks: 3, Unit: 1})
	}
	return b
}

func TestCreateDraftValidation(t *testing.T) {
	f := newFixture(t)
	subject := uuid.New()
	cases := map[string]func(*DraftInput){
		"no subject":      func(in *DraftInput) { in.SubjectID = uuid.Nil },
		"no title":        func(in *DraftInput) { in.Title = "  " },
		"no units":        func(in *DraftInput) { in.Units = nil },
		"unit zero":       func(in *DraftInput) { in.Units = []int{0} },
		"duplicate unit":  func(in *DraftInput) { in.Units = []int{1, 1} },
		"bad difficulty":  func(in *DraftInput) { in.Difficulty = "brutal" },
		"unknown type":    func(in *DraftInput) { in.QuestionConfig = map[string]int{"essay": 1} },
		"negative count":  func(in *DraftInput) { in.QuestionConfig = map[string]int{"mcq": -1, "short": 2} },
		"zero questions":  func(in *DraftInput) { in.QuestionConfig = map[string]int{"mcq": 0} },
		"empty questions": func(in *DraftInput) { in.QuestionConfig = nil },
	}
	for name, mutate := range cases {
		in := validDraft(subject, 1)
		mutate(&in)
		if _, err := f.c.CreateDraft(context.Background(), f.caller, in); !apierr.Is(err, apierr.KindInvalidInput) {
			t.Fatalf("%s: want=InvalidInput got=%v", name, err)
		}
	}
}

func TestCreateDraftNormalizes(t *testing.T) {
	f := newFixture(t)
	in := validDraft(uuid.New(), 2, 1)
	in.InlineSyllabi = map[int]string{1: " OSI model ", 7: "ignored", 2: "  "}
	p := f.draft(t, in)
	if p.Status != types.PaperDraft || p.Difficulty != types.DifficultyMedium {
		t.Fatalf("draft: status=%s difficulty=%s", p.Status, p.Difficulty)
	}
	syl := p.Syllabi()
	if len(syl) != 1 || syl[1] != "OSI model" {
		t.Fatalf("inline syllabi: got=%v", syl)
	}
	if got := p.Config().Total(); got != 3 {
		t.Fatalf("config total: want=3 got=%d", got)
	}
}

func TestStartGenerationReadinessGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subject := uuid.New()
	testutil.SeedSyllabusDocument(t, ctx, f.db, subject, 1, "OSI model")

	p := f.draft(t, validDraft(subject, 1, 2))
	_, err := f.c.StartGeneration(ctx, f.caller, p.ID, nil)
	if !apierr.Is(err, apierr.KindNotReady) || !strings.Contains(err.Error(), "2") {
		t.Fatalf("missing unit 2: want=NotReady naming 2 got=%v", err)
	}
	if got := f.paperStatus(t, p.ID); got != types.PaperDraft {
		t.Fatalf("gate failure must leave the paper in draft: got=%s", got)
	}

	other := uuid.New()
	// Unit 1 is extracted but was never indexed.
	testutil.SeedFileDocument(t, ctx, f.db, other, 1, types.DocumentCompleted)
	stale := testutil.SeedFileDocument(t, ctx, f.db, other, 2, types.DocumentCompleted)
	failed := testutil.SeedFileDocument(t, ctx, f.db, other, 3, types.DocumentCompleted)
	ready := testutil.SeedFileDocument(t, ctx, f.db, other, 4, types.DocumentCompleted)
	testutil.SeedIndexJob(t, ctx, f.db, stale, types.DocumentCompleted)
	if err := f.db.Model(&types.Document{}).Where("id = ?", stale.ID).Update("content_version", 2).Error; err != nil {
		t.Fatalf("bump version: %v", err)
	}
	testutil.SeedIndexJob(t, ctx, f.db, failed, types.DocumentFailed)
	testutil.SeedIndexJob(t, ctx, f.db, ready, types.DocumentCompleted)

	gated := f.draft(t, validDraft(other, 1, 2, 3, 4))
	notReady, err := f.c.Readiness(ctx, gated)
	if err != nil {
		t.Fatalf("Readiness: %v", err)
	}
	if len(notReady) != 3 || notReady[0] != 1 || notReady[1] != 2 || notReady[2] != 3 {
		t.Fatalf("not ready: want=[1 2 3] got=%v", notReady)
	}

	// Inline syllabus text makes an otherwise unready unit ready.
	in := validDraft(other, 4, 5)
	in.InlineSyllabi = map[int]string{5: "Routing"}
	ok := f.draft(t, in)
	job, err := f.c.StartGeneration(ctx, f.caller, ok.ID, nil)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if job.Status != types.PaperPending || f.paperStatus(t, ok.ID) != types.PaperPending {
		t.Fatalf("after start: job=%s paper=%s", job.Status, f.paperStatus(t, ok.ID))
	}
}

func TestStartGenerationStatusGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subject := uuid.New()
	testutil.SeedSyllabusDocument(t, ctx, f.db, subject, 1, "OSI model")
	p := f.draft(t, validDraft(subject, 1))

	if _, err := f.c.StartGeneration(ctx, f.caller, uuid.New(), nil); !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("unknown paper: want=NotFound got=%v", err)
	}
	bad := &GenerateInput{Difficulty: "impossible"}
	if _, err := f.c.StartGeneration(ctx, f.caller, p.ID, bad); !apierr.Is(err, apierr.KindInvalidInput) {
		t.Fatalf("bad override: want=InvalidInput got=%v", err)
	}

	job, err := f.c.StartGeneration(ctx, f.caller, p.ID, &GenerateInput{Difficulty: "hard"})
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if _, err := f.c.StartGeneration(ctx, f.caller, p.ID, nil); !apierr.Is(err, apierr.KindAlreadyInProgress) {
		t.Fatalf("pending: want=AlreadyInProgress got=%v", err)
	}

	if _, _, err := f.c.BeginRun(ctx, job.ID); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if _, _, err := f.c.BeginRun(ctx, job.ID); !apierr.Is(err, apierr.KindAlreadyInProgress) {
		t.Fatalf("second BeginRun: want=AlreadyInProgress got=%v", err)
	}
	qs, short, err := f.c.CompleteGeneration(ctx, job.ID, bundle(2, 1))
	if err != nil || len(short) != 0 || qs == nil {
		t.Fatalf("CompleteGeneration: err=%v short=%v", err, short)
	}
	if _, err := f.c.StartGeneration(ctx, f.caller, p.ID, nil); !apierr.Is(err, apierr.KindConflict) {
		t.Fatalf("generated: want=Conflict got=%v", err)
	}

	paper, got, err := f.c.GetPaper(ctx, f.caller, p.ID)
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if paper.Difficulty != types.DifficultyHard {
		t.Fatalf("override must persist: got=%s", paper.Difficulty)
	}
	if got.TotalMarks != 5 || len(got.MCQ) != 2 || len(got.Short) != 1 {
		t.Fatalf("question set: marks=%d mcq=%d short=%d", got.TotalMarks, len(got.MCQ), len(got.Short))
	}
}

func TestCompleteGenerationTruncatesAndReportsShortfall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subject := uuid.New()
	testutil.SeedSyllabusDocument(t, ctx, f.db, subject, 1, "OSI model")
	p := f.draft(t, validDraft(subject, 1))

	job, err := f.c.StartGeneration(ctx, f.caller, p.ID, nil)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if _, _, err := f.c.BeginRun(ctx, job.ID); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	_, short, err := f.c.CompleteGeneration(ctx, job.ID, bundle(5, 0))
	if err != nil {
		t.Fatalf("CompleteGeneration: %v", err)
	}
	if len(short) != 1 || short[0].Type != types.QuestionShort || short[0].Requested != 1 || short[0].Returned != 0 {
		t.Fatalf("shortfall: got=%+v", short)
	}
	if got := f.paperStatus(t, p.ID); got != types.PaperFailed {
		t.Fatalf("paper: want=failed got=%s", got)
	}
	failedJob, _ := f.jobs.GetByID(dbctx.Context{Ctx: ctx}, job.ID)
	if failedJob.Error != "partial: short requested 1 returned 0" || len(failedJob.Shortfall) != 1 {
		t.Fatalf("failed job: error=%q shortfall=%v", failedJob.Error, failedJob.Shortfall)
	}
	if _, _, err := f.c.GetPaper(ctx, f.caller, p.ID); !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("failed paper: want=NotFound got=%v", err)
	}

	retry, err := f.c.StartGeneration(ctx, f.caller, p.ID, nil)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if _, _, err := f.c.BeginRun(ctx, retry.ID); err != nil {
		t.Fatalf("BeginRun retry: %v", err)
	}
	qs, short, err := f.c.CompleteGeneration(ctx, retry.ID, bundle(4, 3))
	if err != nil || len(short) != 0 {
		t.Fatalf("CompleteGeneration retry: err=%v short=%v", err, short)
	}
	if len(qs.MCQ) != 2 || len(qs.Short) != 1 || qs.TotalMarks != 5 {
		t.Fatalf("over-delivery must be cut: mcq=%d short=%d marks=%d", len(qs.MCQ), len(qs.Short), qs.TotalMarks)
	}
	jobs, err := f.c.Jobs(ctx, f.caller, p.ID)
	if err != nil || len(jobs) != 2 {
		t.Fatalf("jobs: err=%v len=%d", err, len(jobs))
	}
}

func TestFailGenerationDefaultsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subject := uuid.New()
	testutil.SeedSyllabusDocument(t, ctx, f.db, subject, 1, "OSI model")
	p := f.draft(t, validDraft(subject, 1))
	job, err := f.c.StartGeneration(ctx, f.caller, p.ID, nil)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if err := f.c.FailGeneration(ctx, job.ID, " ", nil); err != nil {
		t.Fatalf("FailGeneration: %v", err)
	}
	loaded, _ := f.papers.GetByID(dbctx.Context{Ctx: ctx}, p.ID)
	if loaded.Status != types.PaperFailed || loaded.Error != "generation failed" {
		t.Fatalf("paper: status=%s error=%q", loaded.Status, loaded.Error)
	}
	if err := f.c.FailGeneration(ctx, job.ID, "again", nil); !apierr.Is(err, apierr.KindConflict) {
		t.Fatalf("failed twice: want=Conflict got=%v", err)
	}
}

func TestListPapersScopesByCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subject := uuid.New()
	f.draft(t, validDraft(subject, 1))
	f.draft(t, validDraft(subject, 2))

	other := types.Caller{ID: uuid.New(), Role: identity.RoleFaculty}
	if _, err := f.c.CreateDraft(ctx, other, validDraft(subject, 3)); err != nil {
		t.Fatalf("CreateDraft other: %v", err)
	}

	mine, err := f.c.ListPapers(ctx, f.caller, 0)
	if err != nil || len(mine) != 2 {
		t.Fatalf("faculty list: err=%v len=%d", err, len(mine))
	}
	admin := types.Caller{ID: uuid.New(), Role: identity.RoleAdmin}
	all, err := f.c.ListPapers(ctx, admin, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("admin list: err=%v len=%d", err, len(all))
	}
	if _, err := f.c.ListPapers(ctx, types.Caller{}, 0); !apierr.Is(err, apierr.KindUnauthorized) {
		t.Fatalf("anonymous: want=Unauthorized got=%v", err)
	}
}

func TestShortfallReason(t *testing.T) {
	got := ShortfallReason([]types.Shortfall{
		{Type: types.QuestionMCQ, Requested: 5, Returned: 3},
		{Type: types.QuestionLong, Requested: 2, Returned: 0},
	})
	want := "partial: mcq requested 5 returned 3; long requested 2 returned 0"
	if got != want {
		t.Fatalf("reason: want=%q got=%q", want, got)
	}
}
