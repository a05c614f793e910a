package store

import (
	"fmt"
	"time"

	"clore-watch/internal/models"

	"gorm.io/gorm"
)

// TaskStore manages hunt tasks. The engine only touches the counters and
// the active flag; criteria edits and deletion stay with the owning user.
type TaskStore struct {
	db *gorm.DB
}

func (t *TaskStore) Create(task *models.HuntTask) error {
	if task.MaxServers < 1 {
		task.MaxServers = 1
	}
	if err := t.db.Create(task).Error; err != nil {
		return fmt.Errorf("create hunt task: %w", err)
	}
	return nil
}

func (t *TaskStore) Get(id uint) (*models.HuntTask, error) {
	var task models.HuntTask
	if err := t.db.First(&task, id).Error; err != nil {
		return nil, fmt.Errorf("get hunt task %d: %w", id, err)
	}
	return &task, nil
}

// ActiveTasks returns every active task across all users, oldest first
func (t *TaskStore) ActiveTasks() ([]models.HuntTask, error) {
	var tasks []models.HuntTask
	err := t.db.
		Where("is_active = ?", true).
		Order("created_at").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("active hunt tasks: %w", err)
	}
	return tasks, nil
}

// TasksForUser returns one user's tasks, newest first
func (t *TaskStore) TasksForUser(userID uint) ([]models.HuntTask, error) {
	var tasks []models.HuntTask
	err := t.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("hunt tasks for user %d: %w", userID, err)
	}
	return tasks, nil
}

// Update persists user-editable fields
func (t *TaskStore) Update(task *models.HuntTask) error {
	if err := t.db.Save(task).Error; err != nil {
		return fmt.Errorf("update hunt task %d: %w", task.ID, err)
	}
	return nil
}

// RecordMatch bumps the found counter and the last-found stamp. Suppressed
// (deduplicated) matches never reach this method.
func (t *TaskStore) RecordMatch(task *models.HuntTask, now time.Time) error {
	task.ServersFound++
	task.LastFoundAt = &now
	err := t.db.Model(task).Updates(map[string]interface{}{
		"servers_found": task.ServersFound,
		"last_found_at": now,
	}).Error
	if err != nil {
		return fmt.Errorf("record match for task %d: %w", task.ID, err)
	}
	return nil
}

// RecordRental bumps the rented counter and deactivates the task once the
// quota is met. Returns true when the quota is now reached.
func (t *TaskStore) RecordRental(task *models.HuntTask) (bool, error) {
	task.ServersRented++
	quotaMet := task.ServersRented >= task.MaxServers
	if quotaMet {
		task.IsActive = false
	}
	err := t.db.Model(task).Updates(map[string]interface{}{
		"servers_rented": task.ServersRented,
		"is_active":      task.IsActive,
	}).Error
	if err != nil {
		return false, fmt.Errorf("record rental for task %d: %w", task.ID, err)
	}
	return quotaMet, nil
}

// CreateTemplate stores a docker template. A nil UserID makes it global.
func (t *TaskStore) CreateTemplate(tpl *models.DockerTemplate) error {
	if err := t.db.Create(tpl).Error; err != nil {
		return fmt.Errorf("create docker template: %w", err)
	}
	return nil
}

// Template returns a docker template by id
func (t *TaskStore) Template(id uint) (*models.DockerTemplate, error) {
	var tpl models.DockerTemplate
	if err := t.db.First(&tpl, id).Error; err != nil {
		return nil, fmt.Errorf("get docker template %d: %w", id, err)
	}
	return &tpl, nil
}

// Templates returns a user's templates plus the global ones, most used first
func (t *TaskStore) Templates(userID uint) ([]models.DockerTemplate, error) {
	var tpls []models.DockerTemplate
	err := t.db.
		Where("user_id = ? OR user_id IS NULL", userID).
		Order("usage_count DESC").
		Find(&tpls).Error
	if err != nil {
		return nil, fmt.Errorf("docker templates: %w", err)
	}
	return tpls, nil
}

// TouchTemplate records one use of a template
func (t *TaskStore) TouchTemplate(id uint, now time.Time) error {
	err := t.db.Model(&models.DockerTemplate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("touch docker template %d: %w", id, err)
	}
	return nil
}
