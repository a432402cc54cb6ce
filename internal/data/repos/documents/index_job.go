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

type IndexJobRepo interface {
	Create(dbc dbctx.Context, job *types.IndexJob) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.IndexJob, error)
	GetLatestByDocument(dbc dbctx.Context, documentID uuid.UUID) (*types.IndexJob, error)
	GetLatestByDocuments(dbc dbctx.Context, documentIDs []uuid.UUID) (map[uuid.UUID]*types.IndexJob, error)
	HasLive(dbc dbctx.Context, documentID uuid.UUID) (bool, error)
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.DocumentStatus, updates map[string]interface{}) (bool, error)
	ReclaimStale(dbc dbctx.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type indexJobRepo struct {
	db    *gorm.DB
	guard aggregates.CASGuard
	log   *logger.Logger
}

func NewIndexJobRepo(db *gorm.DB, baseLog *logger.Logger) IndexJobRepo {
	return &indexJobRepo{
		db:    db,
		guard: aggregates.NewCASGuard(db),
		log:   baseLog.With("repo", "IndexJobRepo"),
	}
}

func (r *indexJobRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

// Create inserts job. A second live job for the same document violates
// ux_index_job_live and surfaces as a duplicate key error.
func (r *indexJobRepo) Create(dbc dbctx.Context, job *types.IndexJob) error {
	if job == nil {
		return nil
	}
	return r.tx(dbc).Create(job).Error
}

func (r *indexJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.IndexJob, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.IndexJob
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&job).Error; err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *indexJobRepo) GetLatestByDocument(dbc dbctx.Context, documentID uuid.UUID) (*types.IndexJob, error) {
	if documentID == uuid.Nil {
		return nil, nil
	}
	var job types.IndexJob
	if err := r.tx(dbc).
		Where("document_id = ?", documentID).
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

func (r *indexJobRepo) GetLatestByDocuments(dbc dbctx.Context, documentIDs []uuid.UUID) (map[uuid.UUID]*types.IndexJob, error) {
	out := map[uuid.UUID]*types.IndexJob{}
	if len(documentIDs) == 0 {
		return out, nil
	}
	var jobs []*types.IndexJob
	if err := r.tx(dbc).
		Where("document_id IN ?", documentIDs).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	for _, j := range jobs {
		out[j.DocumentID] = j
	}
	return out, nil
}

func (r *indexJobRepo) HasLive(dbc dbctx.Context, documentID uuid.UUID) (bool, error) {
	if documentID == uuid.Nil {
		return false, nil
	}
	var n int64
	if err := r.tx(dbc).
		Model(&types.IndexJob{}).
		Where("document_id = ? AND status IN ?", documentID, []string{
			string(types.DocumentPending), string(types.DocumentProcessing),
		}).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *indexJobRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.DocumentStatus, updates map[string]interface{}) (bool, error) {
	return r.guard.UpdateByStatus(dbc, types.IndexJob{}.TableName(), id, statusStrings(allowed), updates)
}

func (r *indexJobRepo) ReclaimStale(dbc dbctx.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	ids, err := r.guard.ReclaimStale(dbc, types.IndexJob{}.TableName(), string(types.DocumentProcessing), cutoff, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		r.log.Warn("Reclaimed stale index jobs", "count", len(ids))
	}
	return ids, nil
}
