package documents

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

func TestDocumentRepoCAS(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(gdb, testutil.Logger(t))

	subject := uuid.New()
	doc := testutil.SeedSyllabusDocument(t, ctx, tx, subject, 1, "OSI model")

	got, err := repo.GetBySubjectUnit(dbc, subject, 1)
	if err != nil || got == nil || got.ID != doc.ID {
		t.Fatalf("GetBySubjectUnit: err=%v got=%v", err, got)
	}
	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID missing: err=%v got=%v", err, missing)
	}

	ok, err := repo.UpdateFieldsIfStatus(dbc, doc.ID, []types.DocumentStatus{types.DocumentPending}, map[string]interface{}{
		"status": types.DocumentProcessing,
	})
	if err != nil || !ok {
		t.Fatalf("first CAS: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateFieldsIfStatus(dbc, doc.ID, []types.DocumentStatus{types.DocumentPending}, map[string]interface{}{
		"status": types.DocumentProcessing,
	})
	if err != nil || ok {
		t.Fatalf("second CAS: want=false got=%v err=%v", ok, err)
	}

	ids, err := repo.ListIDsByStatus(dbc, types.DocumentProcessing, 10)
	if err != nil || len(ids) != 1 || ids[0] != doc.ID {
		t.Fatalf("ListIDsByStatus: err=%v ids=%v", err, ids)
	}
}

func TestDocumentRepoUniqueSubjectUnit(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewDocumentRepo(gdb, testutil.Logger(t))

	subject := uuid.New()
	testutil.SeedSyllabusDocument(t, ctx, tx, subject, 2, "first")
	text := "second"
	dup := &types.Document{SubjectID: subject, UnitNumber: 2, SyllabusText: &text, Status: types.DocumentPending, ContentVersion: 1}
	err := repo.Create(dbctx.Context{Ctx: ctx, Tx: tx}, dup)
	if !db.IsDuplicateKey(err) {
		t.Fatalf("duplicate (subject, unit): want duplicate key got=%v", err)
	}
}

func TestDocumentRepoReclaimStaleAndPendingIndex(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(gdb, testutil.Logger(t))
	jobs := NewIndexJobRepo(gdb, testutil.Logger(t))

	subject := uuid.New()
	stale := testutil.SeedFileDocument(t, ctx, tx, subject, 1, types.DocumentProcessing)
	fresh := testutil.SeedFileDocument(t, ctx, tx, subject, 2, types.DocumentProcessing)
	old := time.Now().UTC().Add(-time.Hour)
	if err := tx.Model(&types.Document{}).Where("id = ?", stale.ID).UpdateColumn("updated_at", old).Error; err != nil {
		t.Fatalf("age row: %v", err)
	}

	claimed, err := repo.ReclaimStale(dbc, time.Now().UTC().Add(-10*time.Minute), 10)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if len(claimed) != 1 || claimed[0] != stale.ID {
		t.Fatalf("ReclaimStale: want=[%v] got=%v (fresh=%v)", stale.ID, claimed, fresh.ID)
	}
	again, err := repo.ReclaimStale(dbc, time.Now().UTC().Add(-10*time.Minute), 10)
	if err != nil || len(again) != 0 {
		t.Fatalf("ReclaimStale twice: want none got=%v err=%v", again, err)
	}

	done := testutil.SeedFileDocument(t, ctx, tx, subject, 3, types.DocumentCompleted)
	indexed := testutil.SeedFileDocument(t, ctx, tx, subject, 4, types.DocumentCompleted)
	testutil.SeedIndexJob(t, ctx, tx, indexed, types.DocumentCompleted)

	pending, err := repo.ListCompletedWithoutIndex(dbc, 10)
	if err != nil {
		t.Fatalf("ListCompletedWithoutIndex: %v", err)
	}
	if len(pending) != 1 || pending[0] != done.ID {
		t.Fatalf("ListCompletedWithoutIndex: want=[%v] got=%v", done.ID, pending)
	}

	latest, err := jobs.GetLatestByDocuments(dbc, []uuid.UUID{done.ID, indexed.ID})
	if err != nil {
		t.Fatalf("GetLatestByDocuments: %v", err)
	}
	if _, ok := latest[done.ID]; ok || latest[indexed.ID] == nil {
		t.Fatalf("GetLatestByDocuments: got=%v", latest)
	}
}

func TestIndexJobRepoOneLiveJobPerDocument(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewIndexJobRepo(gdb, testutil.Logger(t))

	doc := testutil.SeedFileDocument(t, ctx, tx, uuid.New(), 1, types.DocumentCompleted)
	first := &types.IndexJob{DocumentID: doc.ID, DocumentVersion: 1, Status: types.DocumentProcessing}
	if err := repo.Create(dbc, first); err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second := &types.IndexJob{DocumentID: doc.ID, DocumentVersion: 1, Status: types.DocumentProcessing}
	if err := repo.Create(dbc, second); !db.IsDuplicateKey(err) {
		t.Fatalf("Create second live: want duplicate key got=%v", err)
	}
	live, err := repo.HasLive(dbc, doc.ID)
	if err != nil || !live {
		t.Fatalf("HasLive: want=true got=%v err=%v", live, err)
	}

	ok, err := repo.UpdateFieldsIfStatus(dbc, first.ID, []types.DocumentStatus{types.DocumentProcessing}, map[string]interface{}{
		"status": types.DocumentFailed,
		"error":  "boom",
	})
	if err != nil || !ok {
		t.Fatalf("fail job: ok=%v err=%v", ok, err)
	}
	third := &types.IndexJob{DocumentID: doc.ID, DocumentVersion: 1, Status: types.DocumentProcessing}
	if err := repo.Create(dbc, third); err != nil {
		t.Fatalf("Create after terminal: %v", err)
	}
	latest, err := repo.GetLatestByDocument(dbc, doc.ID)
	if err != nil || latest == nil {
		t.Fatalf("GetLatestByDocument: err=%v", err)
	}
	if latest.ID != third.ID {
		t.Fatalf("GetLatestByDocument: want=%v got=%v", third.ID, latest.ID)
	}
}

func TestChunkRepoReplaceForDocument(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewChunkRepo(gdb, testutil.Logger(t))

	subject := uuid.New()
	doc := testutil.SeedFileDocument(t, ctx, tx, subject, 1, types.DocumentCompleted)
	mk := func(n int) []*types.DocumentChunk {
		out := make([]*types.DocumentChunk, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, &types.DocumentChunk{
				DocumentID: doc.ID, IndexJobID: uuid.New(), SubjectID: subject,
				UnitNumber: 1, ChunkIndex: i, Content: "chunk",
			})
		}
		return out
	}
	if err := repo.ReplaceForDocument(dbc, doc.ID, mk(3)); err != nil {
		t.Fatalf("Replace 3: %v", err)
	}
	if err := repo.ReplaceForDocument(dbc, doc.ID, mk(2)); err != nil {
		t.Fatalf("Replace 2: %v", err)
	}
	n, err := repo.CountByDocument(dbc, doc.ID)
	if err != nil || n != 2 {
		t.Fatalf("CountByDocument: want=2 got=%d err=%v", n, err)
	}
	rows, err := repo.ListBySubjectUnits(dbc, subject, []int{1})
	if err != nil || len(rows) != 2 || rows[0].ChunkIndex != 0 {
		t.Fatalf("ListBySubjectUnits: err=%v rows=%d", err, len(rows))
	}
}

func TestChunkRepoSetEmbeddings(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewChunkRepo(gdb, testutil.Logger(t))

	subject := uuid.New()
	doc := testutil.SeedFileDocument(t, ctx, tx, subject, 2, types.DocumentCompleted)
	chunk := &types.DocumentChunk{DocumentID: doc.ID, IndexJobID: uuid.New(), SubjectID: subject, UnitNumber: 2, Content: "c"}
	if err := repo.ReplaceForDocument(dbc, doc.ID, []*types.DocumentChunk{chunk}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := repo.SetEmbeddings(dbc, map[uuid.UUID][]float32{chunk.ID: {0.5, 0.25}}); err != nil {
		t.Fatalf("SetEmbeddings: %v", err)
	}
	rows, err := repo.GetByIDs(dbc, []uuid.UUID{chunk.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs: err=%v rows=%d", err, len(rows))
	}
	if got := []float32(rows[0].Embedding); len(got) != 2 || got[0] != 0.5 {
		t.Fatalf("embedding: got=%v", got)
	}
}
