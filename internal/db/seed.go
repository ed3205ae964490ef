package db

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/quill/internal/auth"
	"github.com/sujalbistaa/quill/internal/models"
)

var (
	defaultRoles      = []string{models.RoleAdministrator, "author", "subscriber"}
	defaultCategories = []string{"Uncategorized", "News", "Tutorials"}
)

// Admin describes the account created when the users table is empty.
type Admin struct {
	Name     string
	Email    string
	Password string
}

// Seed inserts the default roles and categories, and the first
// administrator if no user exists yet. It is safe to run on every start.
func Seed(db *gorm.DB, admin Admin) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, name := range defaultRoles {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Role{Name: name}).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", name, err)
			}
		}
		for _, name := range defaultCategories {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Category{Name: name}).Error; err != nil {
				return fmt.Errorf("seed category %s: %w", name, err)
			}
		}
		return seedAdmin(tx, admin)
	})
}

func seedAdmin(tx *gorm.DB, admin Admin) error {
	var users int64
	if err := tx.Model(&models.User{}).Count(&users).Error; err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if users > 0 {
		return nil
	}
	if admin.Email == "" || admin.Password == "" {
		log.Println("No users and ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping administrator seed")
		return nil
	}

	var role models.Role
	if err := tx.Where("name = ?", models.RoleAdministrator).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("seed admin: administrator role missing")
		}
		return fmt.Errorf("seed admin: %w", err)
	}
	hash, err := auth.HashPassword(admin.Password)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	user := models.User{
		Name:     admin.Name,
		Email:    auth.NormalizeEmail(admin.Email),
		Password: hash,
		RoleID:   &role.ID,
		IsActive: models.Active,
	}
	if err := tx.Create(&user).Error; err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Printf("Seeded administrator %s", user.Email)
	return nil
}
