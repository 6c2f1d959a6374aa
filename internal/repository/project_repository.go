// Package repository implements data access for the project store.
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/voxcut/voxcut/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ProjectRepository defines the project store operations the
// pipelines consume. The pipelines treat projects as read-mostly and
// only write back status, output path and script.
type ProjectRepository interface {
	Get(ctx context.Context, id string) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	UpdateStatus(ctx context.Context, id string, status models.ProjectStatus) error
	SetOutputVideo(ctx context.Context, id, outputPath string) error
	SaveScript(ctx context.Context, id string, script *models.Script) error
	ClearScript(ctx context.Context, id string) error
	ClearOutputVideo(ctx context.Context, id string) error
}

type gormProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a gorm-backed project repository.
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &gormProjectRepository{db: db}
}

func (r *gormProjectRepository) Get(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching project %s: %w", id, err)
	}
	return &project, nil
}

func (r *gormProjectRepository) List(ctx context.Context) ([]*models.Project, error) {
	var projects []*models.Project
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

func (r *gormProjectRepository) Update(ctx context.Context, project *models.Project) error {
	if err := r.db.WithContext(ctx).Save(project).Error; err != nil {
		return fmt.Errorf("updating project %s: %w", project.ID, err)
	}
	return nil
}

func (r *gormProjectRepository) UpdateStatus(ctx context.Context, id string, status models.ProjectStatus) error {
	return r.updateColumns(ctx, id, map[string]any{"status": status})
}

func (r *gormProjectRepository) SetOutputVideo(ctx context.Context, id, outputPath string) error {
	return r.updateColumns(ctx, id, map[string]any{
		"output_video_path": outputPath,
		"status":            models.ProjectStatusCompleted,
	})
}

func (r *gormProjectRepository) SaveScript(ctx context.Context, id string, script *models.Script) error {
	return r.updateColumns(ctx, id, map[string]any{"script": models.ScriptColumn{Script: script}})
}

func (r *gormProjectRepository) ClearScript(ctx context.Context, id string) error {
	return r.updateColumns(ctx, id, map[string]any{"script": nil})
}

func (r *gormProjectRepository) ClearOutputVideo(ctx context.Context, id string) error {
	return r.updateColumns(ctx, id, map[string]any{"output_video_path": ""})
}

func (r *gormProjectRepository) updateColumns(ctx context.Context, id string, cols map[string]any) error {
	result := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return fmt.Errorf("updating project %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}
