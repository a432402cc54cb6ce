package aggregates

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
)

// CASGuard provides compare-and-set helpers over status columns. Every
// pipeline transition goes through it, so "at most one live job per key"
// holds at write time rather than at read time.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, apierr.Internal("missing db transaction context")
}

// UpdateByStatus updates a row only when id+status guard matches.
// updated_at is stamped so stale-processing detection sees the write.
func (g CASGuard) UpdateByStatus(dbc dbctx.Context, table string, id uuid.UUID, allowedStatuses []string, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	if table == "" || id == uuid.Nil {
		return false, apierr.InvalidInput("table and id are required for UpdateByStatus")
	}
	if len(allowedStatuses) == 0 {
		return false, apierr.InvalidInput("allowedStatuses must not be empty")
	}
	res := db.Table(table).
		Where("id = ? AND status IN ?", id, allowedStatuses).
		Updates(stamped(updates))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateByStatusVersion is UpdateByStatus with an extra equality guard on a
// version column, so a writer that read an older revision of the row loses.
func (g CASGuard) UpdateByStatusVersion(dbc dbctx.Context, table string, id uuid.UUID, allowedStatuses []string, versionColumn string, version int, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	versionColumn = strings.TrimSpace(versionColumn)
	if table == "" || id == uuid.Nil || versionColumn == "" {
		return false, apierr.InvalidInput("table, id and version column are required for UpdateByStatusVersion")
	}
	if len(allowedStatuses) == 0 {
		return false, apierr.InvalidInput("allowedStatuses must not be empty")
	}
	res := db.Table(table).
		Where("id = ? AND status IN ?", id, allowedStatuses).
		Where(versionColumn+" = ?", version).
		Updates(stamped(updates))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReclaimStale claims rows stuck in status since before cutoff. Each row is
// claimed with its own guarded update so two sweepers never claim the same id.
func (g CASGuard) ReclaimStale(dbc dbctx.Context, table string, status string, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(table) == "" || status == "" {
		return nil, apierr.InvalidInput("table and status are required for ReclaimStale")
	}
	if limit <= 0 {
		limit = 50
	}
	var ids []uuid.UUID
	if err := db.Table(table).
		Where("status = ? AND updated_at < ?", status, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	claimed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		res := db.Table(table).
			Where("id = ? AND status = ? AND updated_at < ?", id, status, cutoff).
			Updates(stamped(nil))
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected > 0 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

func stamped(updates map[string]any) map[string]any {
	out := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		out[k] = v
	}
	if _, ok := out["updated_at"]; !ok {
		out["updated_at"] = time.Now().UTC()
	}
	return out
}
