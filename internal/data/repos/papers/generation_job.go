package papers

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/exampaper-backend/internal/data/aggregates"
	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type GenerationJobRepo interface {
	Create(dbc dbctx.Context, job *types.GenerationJob) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationJob, error)
	GetLatestByPaper(dbc dbctx.Context, paperID uuid.UUID) (*types.GenerationJob, error)
	ListByPaper(dbc dbctx.Context, paperID uuid.UUID) ([]*types.GenerationJob, error)
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.PaperStatus, updates map[string]interface{}) (bool, error)
	ListIDsByStatus(dbc dbctx.Context, status types.PaperStatus, limit int) ([]uuid.UUID, error)
	ReclaimStale(dbc dbctx.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type generationJobRepo struct {
	db    *gorm.DB
	guard aggregates.CASGuard
	log   *logger.Logger
}

func NewGenerationJobRepo(db *gorm.DB, baseLog *logger.Logger) GenerationJobRepo {
	return &generationJobRepo{
		db:    db,
		guard: aggregates.NewCASGuard(db),
		log:   baseLog.With("repo", "GenerationJobRepo"),
	}
}

func (r *generationJobRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *generationJobRepo) Create(dbc dbctx.Context, job *types.GenerationJob) error {
	if job == nil {
		return nil
	}
	return r.tx(dbc).Create(job).Error
}

func (r *generationJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationJob, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.GenerationJob
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&job).Error; err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *generationJobRepo) GetLatestByPaper(dbc dbctx.Context, paperID uuid.UUID) (*types.GenerationJob, error) {
	if paperID == uuid.Nil {
		return nil, nil
	}
	var job types.GenerationJob
	if err := r.tx(dbc).
		Where("paper_id = ?", paperID).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error; err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *generationJobRepo) ListByPaper(dbc dbctx.Context, paperID uuid.UUID) ([]*types.GenerationJob, error) {
	var out []*types.GenerationJob
	if paperID == uuid.Nil {
		return out, nil
	}
	if err := r.tx(dbc).
		Where("paper_id = ?", paperID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generationJobRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.PaperStatus, updates map[string]interface{}) (bool, error) {
	return r.guard.UpdateByStatus(dbc, types.GenerationJob{}.TableName(), id, statusStrings(allowed), updates)
}

func (r *generationJobRepo) ListIDsByStatus(dbc dbctx.Context, status types.PaperStatus, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []uuid.UUID
	if err := r.tx(dbc).
		Model(&types.GenerationJob{}).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *generationJobRepo) ReclaimStale(dbc dbctx.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	ids, err := r.guard.ReclaimStale(dbc, types.GenerationJob{}.TableName(), string(types.PaperProcessing), cutoff, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		r.log.Warn("Reclaimed stale generation jobs", "count", len(ids))
	}
	return ids, nil
}
