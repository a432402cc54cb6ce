package papers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/exampaper-backend/internal/data/db"
	"github.com/yungbote/exampaper-backend/internal/data/repos/testutil"
	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
)

func TestPaperRepoListByCreator(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewPaperRepo(gdb, testutil.Logger(t))

	cfg := types.QuestionConfig{types.QuestionMCQ: 1}
	a := testutil.SeedPaper(t, ctx, tx, uuid.New(), []int{1}, cfg)
	b := testutil.SeedPaper(t, ctx, tx, uuid.New(), []int{1, 2}, cfg)

	mine, err := repo.ListByCreator(dbc, &a.CreatedBy, 10)
	if err != nil || len(mine) != 1 || mine[0].ID != a.ID {
		t.Fatalf("ListByCreator mine: err=%v got=%v", err, mine)
	}
	all, err := repo.ListByCreator(dbc, nil, 10)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListByCreator all: err=%v len=%d", err, len(all))
	}
	if all[0].ID != b.ID {
		t.Fatalf("ListByCreator order: want newest=%v got=%v", b.ID, all[0].ID)
	}

	got, err := repo.GetByID(dbc, b.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v", err)
	}
	if len(got.Units) != 2 || got.Config()[types.QuestionMCQ] != 1 {
		t.Fatalf("GetByID json columns: units=%v cfg=%v", got.Units, got.Config())
	}
}

func TestGenerationJobRepoLiveAndStale(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewGenerationJobRepo(gdb, testutil.Logger(t))

	paper := testutil.SeedPaper(t, ctx, tx, uuid.New(), []int{1}, types.QuestionConfig{types.QuestionMCQ: 1})
	first := &types.GenerationJob{PaperID: paper.ID, Status: types.PaperPending}
	if err := repo.Create(dbc, first); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(dbc, &types.GenerationJob{PaperID: paper.ID, Status: types.PaperPending}); !db.IsDuplicateKey(err) {
		t.Fatalf("second live job: want duplicate key got=%v", err)
	}

	pending, err := repo.ListIDsByStatus(dbc, types.PaperPending, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListIDsByStatus: err=%v got=%v", err, pending)
	}

	ok, err := repo.UpdateFieldsIfStatus(dbc, first.ID, []types.PaperStatus{types.PaperPending}, map[string]interface{}{
		"status":     types.PaperProcessing,
		"updated_at": time.Now().UTC().Add(-time.Hour),
	})
	if err != nil || !ok {
		t.Fatalf("BeginRun CAS: ok=%v err=%v", ok, err)
	}
	claimed, err := repo.ReclaimStale(dbc, time.Now().UTC().Add(-time.Minute), 10)
	if err != nil || len(claimed) != 1 || claimed[0] != first.ID {
		t.Fatalf("ReclaimStale: err=%v got=%v", err, claimed)
	}

	latest, err := repo.GetLatestByPaper(dbc, paper.ID)
	if err != nil || latest == nil || latest.ID != first.ID {
		t.Fatalf("GetLatestByPaper: err=%v got=%v", err, latest)
	}
}

func TestQuestionSetRepoOnePerPaper(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewQuestionSetRepo(gdb, testutil.Logger(t))

	paperID := uuid.New()
	bundle := types.QuestionBundle{MCQ: []types.MCQ{{Question: "q", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "a", Marks: 1, Unit: 1}}}
	if err := repo.Create(dbc, types.NewQuestionSet(paperID, uuid.New(), bundle)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(dbc, types.NewQuestionSet(paperID, uuid.New(), bundle)); !db.IsDuplicateKey(err) {
		t.Fatalf("second set: want duplicate key got=%v", err)
	}
	qs, err := repo.GetByPaper(dbc, paperID)
	if err != nil || qs == nil {
		t.Fatalf("GetByPaper: err=%v", err)
	}
	if len(qs.MCQ) != 1 || qs.TotalMarks != 1 {
		t.Fatalf("GetByPaper: mcq=%d marks=%d", len(qs.MCQ), qs.TotalMarks)
	}
}
