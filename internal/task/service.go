package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/task/entity"
	taskrepo "github.com/ovaphlow/pitchfork/service-tasks-go/internal/task/repo"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/apperr"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/utilities"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/validation"
)

var errTaskNotFound = apperr.NotFound("task not found")

// Input carries the fields of a new task. There is no owner: it always comes
// from the authenticated caller.
type Input struct {
	Title       string
	Description string
	Priority    entity.Priority
	DueDate     *time.Time
	Completed   bool
}

// Service is the ownership-scoped task store. Every method takes the owner id
// and never touches another owner's rows.
type Service struct {
	repo     *taskrepo.TaskRepo
	ids      *utilities.IDGenerator
	validate *validator.Validate
	now      func() time.Time
}

func NewService(r *taskrepo.TaskRepo, ids *utilities.IDGenerator) *Service {
	return &Service{
		repo:     r,
		ids:      ids,
		validate: validation.New(),
		now:      time.Now,
	}
}

type fieldsInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Priority    string `json:"priority" validate:"required,oneof=Low Medium High"`
}

func (s *Service) Create(ctx context.Context, ownerID int64, in Input) (*entity.Task, error) {
	if in.Priority == "" {
		in.Priority = entity.PriorityLow
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(s.validate, fieldsInput{
		Title:       in.Title,
		Description: in.Description,
		Priority:    string(in.Priority),
	}); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &entity.Task{
		ID:          s.ids.Next(),
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		Completed:   in.Completed,
		Owner:       ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// ListByOwner returns the owner's tasks, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID int64) ([]*entity.Task, error) {
	tasks, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// GetOne returns NotFound both for missing ids and for tasks owned by someone else.
func (s *Service) GetOne(ctx context.Context, ownerID, id int64) (*entity.Task, error) {
	t, err := s.repo.GetOne(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errTaskNotFound
		}
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// Update merges p into the task and returns the stored result.
func (s *Service) Update(ctx context.Context, ownerID, id int64, p entity.Patch) (*entity.Task, error) {
	if err := s.validatePatch(&p); err != nil {
		return nil, err
	}
	if p.Empty() {
		return s.GetOne(ctx, ownerID, id)
	}

	n, err := s.repo.Update(ctx, ownerID, id, p, s.now())
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	if n == 0 {
		return nil, errTaskNotFound
	}
	return s.GetOne(ctx, ownerID, id)
}

func (s *Service) Delete(ctx context.Context, ownerID, id int64) error {
	n, err := s.repo.Delete(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	if n == 0 {
		return errTaskNotFound
	}
	return nil
}

// validatePatch checks only the fields present, filling the rest with values
// that always pass.
func (s *Service) validatePatch(p *entity.Patch) error {
	in := fieldsInput{Title: "-", Priority: string(entity.PriorityLow)}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		p.Title = &title
		in.Title = title
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Priority != nil {
		in.Priority = string(*p.Priority)
	}
	return validation.Struct(s.validate, in)
}
