package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
)

type BoardRepository struct {
	db *gorm.DB
}

func NewBoardRepository(db *gorm.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

// Create stores a board and grants the owner access in one transaction.
func (r *BoardRepository) Create(ctx context.Context, board *model.Whiteboard) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(board).Error; err != nil {
			return err
		}
		access := model.WhiteboardAccess{UserID: board.OwnerID, WhiteboardID: board.ID}
		return tx.Create(&access).Error
	})
}

func (r *BoardRepository) GetByID(ctx context.Context, id int64) (*model.Whiteboard, error) {
	var board model.Whiteboard
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&board).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &board, nil
}

// GetAccessible returns the boards a user can reach, oldest first.
func (r *BoardRepository) GetAccessible(ctx context.Context, userID string) ([]model.Whiteboard, error) {
	var boards []model.Whiteboard
	err := r.db.WithContext(ctx).
		Joins("JOIN whiteboard_access ON whiteboard_access.whiteboard_id = whiteboards.id").
		Where("whiteboard_access.user_id = ?", userID).
		Order("whiteboards.created_at ASC").
		Find(&boards).Error
	return boards, err
}

func (r *BoardRepository) HasAccess(ctx context.Context, boardID int64, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WhiteboardAccess{}).
		Where("whiteboard_id = ? AND user_id = ?", boardID, userID).
		Count(&count).Error
	return count > 0, err
}

// GrantAccess adds a user to a board's access list. Idempotent.
func (r *BoardRepository) GrantAccess(ctx context.Context, boardID int64, userID string) error {
	access := model.WhiteboardAccess{UserID: userID, WhiteboardID: boardID}
	return r.db.WithContext(ctx).
		Where("user_id = ? AND whiteboard_id = ?", userID, boardID).
		FirstOrCreate(&access).Error
}

// Delete removes a board, its strokes, and its access rows as one
// transaction. The default board is refused.
func (r *BoardRepository) Delete(ctx context.Context, boardID int64) error {
	if boardID == model.DefaultBoardID {
		return ErrDefaultBoard
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("whiteboard_id = ?", boardID).Delete(&model.Stroke{}).Error; err != nil {
			return err
		}
		if err := tx.Where("whiteboard_id = ?", boardID).Delete(&model.WhiteboardAccess{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", boardID).Delete(&model.Whiteboard{}).Error
	})
}

// EnsureDefault guarantees the default board exists and that the given user
// has access to it. The first user to require the board becomes its owner.
func (r *BoardRepository) EnsureDefault(ctx context.Context, userID string) (*model.Whiteboard, error) {
	var board model.Whiteboard
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", model.DefaultBoardID).First(&board).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			board = model.Whiteboard{
				ID:       model.DefaultBoardID,
				Nickname: model.DefaultBoardNickname,
				OwnerID:  userID,
			}
			if err := tx.Create(&board).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		access := model.WhiteboardAccess{UserID: userID, WhiteboardID: board.ID}
		return tx.Where("user_id = ? AND whiteboard_id = ?", userID, board.ID).
			FirstOrCreate(&access).Error
	})
	if err != nil {
		return nil, err
	}
	return &board, nil
}
