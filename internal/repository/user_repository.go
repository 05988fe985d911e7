package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) Save(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// DeleteGuestCascade removes a guest user and everything it touched as one
// transaction: strokes it authored anywhere, whiteboards it owned (with
// their strokes and access rows), its own access grants, and finally the
// user row. The default board is spared while other users remain; its
// ownership moves to the oldest surviving user instead.
func (r *UserRepository) DeleteGuestCascade(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil // already gone
			}
			return err
		}
		if !user.IsGuest {
			return nil
		}

		// Strokes the guest authored on any board.
		if err := tx.Where("user_id = ?", userID).Delete(&model.Stroke{}).Error; err != nil {
			return err
		}

		var owned []model.Whiteboard
		if err := tx.Where("owner_id = ?", userID).Find(&owned).Error; err != nil {
			return err
		}

		for _, board := range owned {
			if board.ID == model.DefaultBoardID {
				var heir model.User
				err := tx.Where("id <> ?", userID).Order("created_at ASC").First(&heir).Error
				if err == nil {
					if err := tx.Model(&model.Whiteboard{}).
						Where("id = ?", board.ID).
						Update("owner_id", heir.ID).Error; err != nil {
						return err
					}
					continue
				}
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				// No users left: delete the default board too; it is lazily
				// recreated by the next user to require it.
			}

			if err := tx.Where("whiteboard_id = ?", board.ID).Delete(&model.Stroke{}).Error; err != nil {
				return err
			}
			if err := tx.Where("whiteboard_id = ?", board.ID).Delete(&model.WhiteboardAccess{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id = ?", board.ID).Delete(&model.Whiteboard{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("user_id = ?", userID).Delete(&model.WhiteboardAccess{}).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", userID).Delete(&model.User{}).Error
	})
}
