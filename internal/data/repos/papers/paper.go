package papers

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/exampaper-backend/internal/data/aggregates"
	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type PaperRepo interface {
	Create(dbc dbctx.Context, paper *types.Paper) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Paper, error)
	// ListByCreator lists newest first. A nil creator lists every paper.
	ListByCreator(dbc dbctx.Context, creator *uuid.UUID, limit int) ([]*types.Paper, error)
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.PaperStatus, updates map[string]interface{}) (bool, error)
}

type paperRepo struct {
	db    *gorm.DB
	guard aggregates.CASGuard
	log   *logger.Logger
}

func NewPaperRepo(db *gorm.DB, baseLog *logger.Logger) PaperRepo {
	return &paperRepo{
		db:    db,
		guard: aggregates.NewCASGuard(db),
		log:   baseLog.With("repo", "PaperRepo"),
	}
}

func (r *paperRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *paperRepo) Create(dbc dbctx.Context, paper *types.Paper) error {
	if paper == nil {
		return nil
	}
	return r.tx(dbc).Create(paper).Error
}

func (r *paperRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Paper, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var p types.Paper
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

func (r *paperRepo) ListByCreator(dbc dbctx.Context, creator *uuid.UUID, limit int) ([]*types.Paper, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.Paper
	q := r.tx(dbc)
	if creator != nil {
		q = q.Where("created_by = ?", *creator)
	}
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *paperRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.PaperStatus, updates map[string]interface{}) (bool, error) {
	return r.guard.UpdateByStatus(dbc, types.Paper{}.TableName(), id, statusStrings(allowed), updates)
}

func statusStrings(in []types.PaperStatus) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
