package papers

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type QuestionSetRepo interface {
	Create(dbc dbctx.Context, qs *types.QuestionSet) error
	GetByPaper(dbc dbctx.Context, paperID uuid.UUID) (*types.QuestionSet, error)
}

type questionSetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionSetRepo(db *gorm.DB, baseLog *logger.Logger) QuestionSetRepo {
	return &questionSetRepo{
		db:  db,
		log: baseLog.With("repo", "QuestionSetRepo"),
	}
}

func (r *questionSetRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *questionSetRepo) Create(dbc dbctx.Context, qs *types.QuestionSet) error {
	if qs == nil {
		return nil
	}
	return r.tx(dbc).Create(qs).Error
}

func (r *questionSetRepo) GetByPaper(dbc dbctx.Context, paperID uuid.UUID) (*types.QuestionSet, error) {
	if paperID == uuid.Nil {
		return nil, nil
	}
	var qs types.QuestionSet
	if err := r.tx(dbc).Where("paper_id = ?", paperID).Limit(1).Find(&qs).Error; err != nil {
		return nil, err
	}
	if qs.ID == uuid.Nil {
		return nil, nil
	}
	return &qs, nil
}
