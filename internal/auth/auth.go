package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/sujalbistaa/quill/internal/models"
	"github.com/sujalbistaa/quill/internal/repository"
)

var (
	ErrInvalidLogin = errors.New("invalid email or password")
	ErrInactive     = errors.New("account is not active")
)

// HashCost is the bcrypt cost for new password hashes.
var HashCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// Service checks credentials against stored users.
type Service struct {
	Users *repository.Repository[models.User]
}

// Authenticate returns the active user matching email and password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)

	user, err := s.Users.FindBy(ctx, "email", email)
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("auth: no user for email=%s", email)
		return nil, ErrInvalidLogin
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		log.Printf("auth: bad password for email=%s", email)
		return nil, ErrInvalidLogin
	}
	if user.IsActive != models.Active {
		log.Printf("auth: inactive user email=%s", email)
		return nil, ErrInactive
	}
	return user, nil
}

// CurrentUser loads the user a session points at. Inactive users are
// treated as signed out.
func (s *Service) CurrentUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.Users.Find(ctx, repository.Lookup{ID: id, Scope: repository.ScopeGlobal}, "Role")
	if err != nil {
		return nil, err
	}
	if user.IsActive != models.Active {
		return nil, ErrInactive
	}
	return user, nil
}
