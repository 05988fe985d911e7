package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
)

type StrokeRepository struct {
	db *gorm.DB
}

func NewStrokeRepository(db *gorm.DB) *StrokeRepository {
	return &StrokeRepository{db: db}
}

// Create persists a stroke. A pre-set CreatedAt survives (redo restores the
// original timestamp); a zero CreatedAt is filled by the database.
func (r *StrokeRepository) Create(ctx context.Context, stroke *model.Stroke) error {
	return r.db.WithContext(ctx).Create(stroke).Error
}

func (r *StrokeRepository) GetByID(ctx context.Context, id int64) (*model.Stroke, error) {
	var stroke model.Stroke
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&stroke).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stroke, nil
}

// ListByBoard returns a board's strokes in creation order.
func (r *StrokeRepository) ListByBoard(ctx context.Context, boardID int64) ([]model.Stroke, error) {
	var strokes []model.Stroke
	err := r.db.WithContext(ctx).
		Where("whiteboard_id = ?", boardID).
		Order("created_at ASC, id ASC").
		Find(&strokes).Error
	return strokes, err
}

// LatestByAuthor returns the author's most recent stroke on a board, or nil
// when the author has none there.
func (r *StrokeRepository) LatestByAuthor(ctx context.Context, boardID int64, userID string) (*model.Stroke, error) {
	var stroke model.Stroke
	err := r.db.WithContext(ctx).
		Where("whiteboard_id = ? AND user_id = ?", boardID, userID).
		Order("created_at DESC, id DESC").
		First(&stroke).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stroke, nil
}

func (r *StrokeRepository) DeleteByID(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Stroke{}).Error
}

// DeleteByBoard clears every stroke on a board.
func (r *StrokeRepository) DeleteByBoard(ctx context.Context, boardID int64) error {
	return r.db.WithContext(ctx).Where("whiteboard_id = ?", boardID).Delete(&model.Stroke{}).Error
}
