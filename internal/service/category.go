package service

import (
	"context"
	"fmt"
	"strings"

	"qrtrack/internal/apperr"
	"qrtrack/models"
)

type CategoryRequest struct {
	Name     string `json:"name" binding:"required"`
	Color    string `json:"color"`
	IsActive *bool  `json:"isActive"`
}

type CategoryService struct {
	categories CategoryRepository
}

func NewCategoryService(categories CategoryRepository) *CategoryService {
	return &CategoryService{categories: categories}
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Create adds a category. Names are unique ignoring case and surrounding spaces.
func (s *CategoryService) Create(ctx context.Context, req CategoryRequest, createdBy uint) (*models.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("category name is required")
	}
	if err := s.ensureNameFree(ctx, name, 0); err != nil {
		return nil, err
	}

	c := &models.Category{
		Name:      name,
		NameKey:   nameKey(name),
		Color:     req.Color,
		IsActive:  req.IsActive == nil || *req.IsActive,
		CreatedBy: createdBy,
	}
	if err := s.categories.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	return s.categories.ListCategories(ctx)
}

func (s *CategoryService) Update(ctx context.Context, id uint, req CategoryRequest) (*models.Category, error) {
	c, err := s.categories.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("category name is required")
	}
	if nameKey(name) != c.NameKey {
		if err := s.ensureNameFree(ctx, name, c.ID); err != nil {
			return nil, err
		}
	}
	c.Name = name
	c.NameKey = nameKey(name)
	if req.Color != "" {
		c.Color = req.Color
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}

	if err := s.categories.SaveCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a category that no QR code references.
func (s *CategoryService) Delete(ctx context.Context, id uint) error {
	if _, err := s.categories.GetCategory(ctx, id); err != nil {
		return err
	}
	n, err := s.categories.CountQRCodesByCategory(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict(fmt.Sprintf("category is used by %d QR code(s)", n))
	}
	return s.categories.DeleteCategory(ctx, id)
}

func (s *CategoryService) ensureNameFree(ctx context.Context, name string, selfID uint) error {
	existing, err := s.categories.FindCategoryByKey(ctx, nameKey(name))
	switch {
	case err == nil && existing.ID != selfID:
		return apperr.Conflict(fmt.Sprintf("category %q already exists", existing.Name))
	case err != nil && apperr.CodeOf(err) != apperr.CodeNotFound:
		return err
	}
	return nil
}
