package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"qrtrack/internal/apperr"
	"qrtrack/models"
)

type UserRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
	Role  string `json:"role"`
}

type WebsiteURLRequest struct {
	URL         string `json:"url" binding:"required"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsActive    *bool  `json:"isActive"`
}

type UserService struct {
	users UserRepository
}

func NewUserService(users UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) Create(ctx context.Context, req UserRequest) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, apperr.Validation("email is not valid")
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, apperr.Validation("role must be user or admin")
	}

	u := &models.User{
		Name:        name,
		Email:       strings.ToLower(addr.Address),
		Role:        role,
		IsActive:    true,
		WebsiteURLs: []models.WebsiteURL{},
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	return s.users.GetUser(ctx, id)
}

// AddWebsiteURL appends a candidate destination. A user keeps at most
// models.MaxWebsiteURLs of them.
func (s *UserService) AddWebsiteURL(ctx context.Context, userID uint, req WebsiteURLRequest) (*models.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(u.WebsiteURLs) >= models.MaxWebsiteURLs {
		return nil, apperr.Validation(fmt.Sprintf("a user can have at most %d website URLs", models.MaxWebsiteURLs))
	}
	dest, err := ValidateDestination(req.URL)
	if err != nil {
		return nil, err
	}

	u.WebsiteURLs = append(u.WebsiteURLs, models.WebsiteURL{
		URL:         dest,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		IsActive:    req.IsActive == nil || *req.IsActive,
	})
	if err := s.users.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) RemoveWebsiteURL(ctx context.Context, userID uint, index int) (*models.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(u.WebsiteURLs) {
		return nil, apperr.NotFound("website URL not found")
	}

	u.WebsiteURLs = append(u.WebsiteURLs[:index:index], u.WebsiteURLs[index+1:]...)
	if err := s.users.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
