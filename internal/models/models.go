package models

import (
	"time"
)

// Storage namespaces and the default images shown when nothing was uploaded.
const (
	PostPhotoNamespace      = "files/pictures/post"
	DefaultPostPhoto        = "files/pictures/post/default.png"
	ProfilePictureNamespace = "files/pictures/user"
	DefaultProfilePicture   = "files/pictures/user/default.png"
)

// Active status values stored in users.is_active.
const (
	Inactive = 0
	Active   = 1
)

// RoleAdministrator is the role allowed to manage user accounts.
const RoleAdministrator = "administrator"

// Role is a named permission level a user is assigned to.
type Role struct {
	ID   uint   `gorm:"primarykey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// Category classifies posts.
type Category struct {
	ID   uint   `gorm:"primarykey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// User is an admin panel account. Password holds the bcrypt hash.
type User struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	Name           string    `gorm:"not null" json:"name"`
	Email          string    `gorm:"uniqueIndex;not null" json:"email"`
	Password       string    `gorm:"not null" json:"-"`
	RoleID         *uint     `gorm:"index" json:"roleId"`
	Role           *Role     `json:"role,omitempty"`
	IsActive       int       `gorm:"not null;default:0" json:"isActive"`
	ProfilePicture *string   `json:"profilePicture"`
	Posts          []Post    `gorm:"foreignKey:UserID" json:"-"` // Has-many relationship
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// IsAdministrator reports whether u holds the administrator role. Role must
// be preloaded.
func (u User) IsAdministrator() bool {
	return u.Role != nil && u.Role.Name == RoleAdministrator
}

// Post is a blog entry owned by the user who created it.
// PostPhoto is a storage-relative path, never a public URL.
type Post struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"userId"`
	User       *User     `json:"user,omitempty"`
	CategoryID *uint     `gorm:"index" json:"categoryId"`
	Category   *Category `json:"category,omitempty"`
	Title      string    `gorm:"not null" json:"title"`
	Body       string    `gorm:"type:text" json:"body"`
	PostPhoto  *string   `json:"postPhoto"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// All returns every model the schema migration manages, parents first.
func All() []any {
	return []any{&Role{}, &Category{}, &User{}, &Post{}}
}
