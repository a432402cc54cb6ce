package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/exampaper-backend/internal/data/aggregates"
	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.Document) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	GetBySubjectUnit(dbc dbctx.Context, subjectID uuid.UUID, unit int) (*types.Document, error)
	GetBySubjectUnits(dbc dbctx.Context, subjectID uuid.UUID, units []int) ([]*types.Document, error)
	ListBySubject(dbc dbctx.Context, subjectID uuid.UUID) ([]*types.Document, error)
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.DocumentStatus, updates map[string]interface{}) (bool, error)
	UpdateFieldsIfStatusVersion(dbc dbctx.Context, id uuid.UUID, allowed []types.DocumentStatus, version int, updates map[string]interface{}) (bool, error)
	ListIDsByStatus(dbc dbctx.Context, status types.DocumentStatus, limit int) ([]uuid.UUID, error)
	ListCompletedWithoutIndex(dbc dbctx.Context, limit int) ([]uuid.UUID, error)
	ReclaimStale(dbc dbctx.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type documentRepo struct {
	db    *gorm.DB
	guard aggregates.CASGuard
	log   *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{
		db:    db,
		guard: aggregates.NewCASGuard(db),
		log:   baseLog.With("repo", "DocumentRepo"),
	}
}

func (r *documentRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.Document) error {
	if doc == nil {
		return nil
	}
	return r.tx(dbc).Create(doc).Error
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var doc types.Document
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&doc).Error; err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

func (r *documentRepo) GetBySubjectUnit(dbc dbctx.Context, subjectID uuid.UUID, unit int) (*types.Document, error) {
	if subjectID == uuid.Nil {
		return nil, nil
	}
	var doc types.Document
	if err := r.tx(dbc).
		Where("subject_id = ? AND unit_number = ?", subjectID, unit).
		Limit(1).
		Find(&doc).Error; err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

func (r *documentRepo) GetBySubjectUnits(dbc dbctx.Context, subjectID uuid.UUID, units []int) ([]*types.Document, error) {
	var out []*types.Document
	if subjectID == uuid.Nil || len(units) == 0 {
		return out, nil
	}
	if err := r.tx(dbc).
		Where("subject_id = ? AND unit_number IN ?", subjectID, units).
		Order("unit_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) ListBySubject(dbc dbctx.Context, subjectID uuid.UUID) ([]*types.Document, error) {
	var out []*types.Document
	if subjectID == uuid.Nil {
		return out, nil
	}
	if err := r.tx(dbc).
		Where("subject_id = ?", subjectID).
		Order("unit_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.DocumentStatus, updates map[string]interface{}) (bool, error) {
	return r.guard.UpdateByStatus(dbc, types.Document{}.TableName(), id, statusStrings(allowed), updates)
}

// UpdateFieldsIfStatusVersion also requires content_version to match, so the
// write only lands on the revision the caller read.
func (r *documentRepo) UpdateFieldsIfStatusVersion(dbc dbctx.Context, id uuid.UUID, allowed []types.DocumentStatus, version int, updates map[string]interface{}) (bool, error) {
	return r.guard.UpdateByStatusVersion(dbc, types.Document{}.TableName(), id, statusStrings(allowed), "content_version", version, updates)
}

func (r *documentRepo) ListIDsByStatus(dbc dbctx.Context, status types.DocumentStatus, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []uuid.UUID
	if err := r.tx(dbc).
		Model(&types.Document{}).
		Where("status = ?", status).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListCompletedWithoutIndex finds completed documents that have no index job
// for their current content version. Failed index jobs count as an attempt.
func (r *documentRepo) ListCompletedWithoutIndex(dbc dbctx.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []uuid.UUID
	if err := r.tx(dbc).
		Model(&types.Document{}).
		Where("status = ?", types.DocumentCompleted).
		Where(`NOT EXISTS (
			SELECT 1 FROM index_job j
			WHERE j.document_id = document.id
			AND j.document_version = document.content_version
		)`).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *documentRepo) ReclaimStale(dbc dbctx.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	ids, err := r.guard.ReclaimStale(dbc, types.Document{}.TableName(), string(types.DocumentProcessing), cutoff, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		r.log.Warn("Reclaimed stale documents", "count", len(ids))
	}
	return ids, nil
}

func statusStrings(in []types.DocumentStatus) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
