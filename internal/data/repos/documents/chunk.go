package documents

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type ChunkRepo interface {
	ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, chunks []*types.DocumentChunk) error
	ListBySubjectUnits(dbc dbctx.Context, subjectID uuid.UUID, units []int) ([]*types.DocumentChunk, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.DocumentChunk, error)
	CountByDocument(dbc dbctx.Context, documentID uuid.UUID) (int64, error)
	SetEmbeddings(dbc dbctx.Context, embeddings map[uuid.UUID][]float32) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{
		db:  db,
		log: baseLog.With("repo", "ChunkRepo"),
	}
}

func (r *chunkRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

// ReplaceForDocument swaps the document's chunk set. Without an outer tx it
// opens one so readers never see a half-written set.
func (r *chunkRepo) ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, chunks []*types.DocumentChunk) error {
	if documentID == uuid.Nil {
		return nil
	}
	return r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("document_id = ?", documentID).Delete(&types.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return txx.CreateInBatches(chunks, 200).Error
	})
}

func (r *chunkRepo) ListBySubjectUnits(dbc dbctx.Context, subjectID uuid.UUID, units []int) ([]*types.DocumentChunk, error) {
	var out []*types.DocumentChunk
	if subjectID == uuid.Nil {
		return out, nil
	}
	q := r.tx(dbc).Where("subject_id = ?", subjectID)
	if len(units) > 0 {
		q = q.Where("unit_number IN ?", units)
	}
	if err := q.Order("unit_number ASC, chunk_index ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.DocumentChunk, error) {
	var out []*types.DocumentChunk
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.tx(dbc).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) CountByDocument(dbc dbctx.Context, documentID uuid.UUID) (int64, error) {
	var n int64
	if err := r.tx(dbc).Model(&types.DocumentChunk{}).Where("document_id = ?", documentID).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// SetEmbeddings writes vectors onto existing chunk rows. Unknown ids are skipped.
func (r *chunkRepo) SetEmbeddings(dbc dbctx.Context, embeddings map[uuid.UUID][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	return r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		for id, vec := range embeddings {
			if err := txx.Model(&types.DocumentChunk{}).
				Where("id = ?", id).
				Update("embedding", datatypes.NewJSONSlice(vec)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
