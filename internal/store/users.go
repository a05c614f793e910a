package store

import (
	"errors"
	"fmt"

	"clore-watch/internal/models"

	"gorm.io/gorm"
)

// UserStore reads and writes bot users
type UserStore struct {
	db *gorm.DB
}

func (u *UserStore) Create(user *models.User) error {
	if err := u.db.Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (u *UserStore) ByID(id uint) (*models.User, error) {
	var user models.User
	if err := u.db.First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &user, nil
}

func (u *UserStore) ByExternalID(externalID int64) (*models.User, error) {
	var user models.User
	err := u.db.Where("external_id = ?", externalID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by external id %d: %w", externalID, err)
	}
	return &user, nil
}

// ActiveWithAPIKeys returns the users the watchers poll for
func (u *UserStore) ActiveWithAPIKeys() ([]models.User, error) {
	var users []models.User
	err := u.db.
		Where("is_active = ? AND clore_api_key <> ''", true).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	return users, nil
}

func (u *UserStore) Update(user *models.User) error {
	if err := u.db.Save(user).Error; err != nil {
		return fmt.Errorf("update user %d: %w", user.ID, err)
	}
	return nil
}

// Deactivate turns a user's watchers off
func (u *UserStore) Deactivate(id uint) error {
	res := u.db.Model(&models.User{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivate user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("deactivate user %d: unknown user", id)
	}
	return nil
}
