package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/quill/internal/auth"
	"github.com/sujalbistaa/quill/internal/flash"
	"github.com/sujalbistaa/quill/internal/models"
	"github.com/sujalbistaa/quill/internal/repository"
	"github.com/sujalbistaa/quill/internal/ws"
)

type userForm struct {
	Name     string `form:"name" binding:"required,max=255"`
	Email    string `form:"email" binding:"required,email,max=255"`
	Password string `form:"password" binding:"omitempty,min=6,max=72"`
	RoleID   uint   `form:"role_id" binding:"required"`
	IsActive int    `form:"is_active" binding:"oneof=0 1"`
}

type activeOption struct {
	Value int
	Label string
}

var activeOptions = []activeOption{
	{Value: models.Inactive, Label: "Not Active"},
	{Value: models.Active, Label: "Active"},
}

type userView struct {
	ID         uint
	Name       string
	Email      string
	Role       string
	Status     string
	PictureURL string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (e *Env) userView(u models.User) userView {
	v := userView{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Status:     activeOptions[0].Label,
		PictureURL: e.Storage.URL(deref(u.ProfilePicture)),
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
	if u.IsActive == models.Active {
		v.Status = activeOptions[1].Label
	}
	if u.Role != nil {
		v.Role = u.Role.Name
	}
	return v
}

// ListUsers handles GET /admin/users
func (e *Env) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()
	info := e.popFlash(c)

	users, err := e.Users.All(ctx, "Role")
	if err != nil {
		e.fail(c, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, e.userView(u))
	}

	e.render(c, http.StatusOK, "users/index", gin.H{
		"Title":                 "Users",
		"Users":                 views,
		"DefaultProfilePicture": e.Storage.URL(models.DefaultProfilePicture),
		"InfoFromPrevious":      info,
	})
}

// CreateUserForm handles GET /admin/users/create
func (e *Env) CreateUserForm(c *gin.Context) {
	e.renderUserForm(c, http.StatusOK, nil, userForm{}, nil)
}

func (e *Env) renderUserForm(c *gin.Context, code int, user *userView, form userForm, errs []string) {
	roles, err := e.Roles.Options(c.Request.Context(), "name")
	if err != nil {
		e.fail(c, err)
		return
	}
	data := gin.H{
		"Title":         "Create user",
		"Form":          form,
		"Roles":         roles,
		"ActiveOptions": activeOptions,
		"Errors":        errs,
	}
	name := "users/create"
	if user != nil {
		name = "users/edit"
		data["Title"] = "Edit user"
		data["User"] = user
		data["DefaultProfilePicture"] = e.Storage.URL(models.DefaultProfilePicture)
	}
	e.render(c, code, name, data)
}

// validateUser runs the checks binding tags cannot express. exceptID is
// the user being edited, zero on create.
func (e *Env) validateUser(ctx context.Context, form *userForm, exceptID uint) ([]string, error) {
	var errs []string
	form.Email = auth.NormalizeEmail(form.Email)
	form.Name = strings.TrimSpace(form.Name)

	if exceptID == 0 && form.Password == "" {
		errs = append(errs, "The password field is required.")
	}

	existing, err := e.Users.FindBy(ctx, "email", form.Email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, err
	case existing.ID != exceptID:
		errs = append(errs, "The email has already been taken.")
	}

	if _, err := e.Roles.Find(ctx, repository.Lookup{ID: form.RoleID, Scope: repository.ScopeGlobal}); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		errs = append(errs, "The selected role is invalid.")
	}
	return errs, nil
}

// StoreUser handles POST /admin/users
func (e *Env) StoreUser(c *gin.Context) {
	ctx := c.Request.Context()

	var form userForm
	if errs := bindForm(c, &form); errs != nil {
		e.renderUserForm(c, http.StatusUnprocessableEntity, nil, form, errs)
		return
	}
	errs, err := e.validateUser(ctx, &form, 0)
	if err != nil {
		e.fail(c, err)
		return
	}
	file, msg := e.upload(c, "profile_picture_file", "profile picture")
	if msg != "" {
		errs = append(errs, msg)
	}
	if len(errs) > 0 {
		e.renderUserForm(c, http.StatusUnprocessableEntity, nil, form, errs)
		return
	}

	hash, err := auth.HashPassword(form.Password)
	if err != nil {
		e.fail(c, err)
		return
	}
	user := &models.User{
		Name:     form.Name,
		Email:    form.Email,
		Password: hash,
		RoleID:   optionalID(form.RoleID),
		IsActive: form.IsActive,
	}
	var omit []string
	if file != nil {
		path, err := e.Storage.Save(ctx, file, models.ProfilePictureNamespace, "")
		if err != nil {
			e.fail(c, err)
			return
		}
		user.ProfilePicture = &path
	} else {
		omit = append(omit, "ProfilePicture")
	}

	res := e.Users.Create(ctx, user, omit...)
	switch res.Status {
	case repository.StatusPersisted:
		e.flash(c, flash.Success(fmt.Sprintf("User data [%s] saved successfully.", form.Name)))
		e.Hub.Publish(ws.Event{Type: "user.created", ID: user.ID, Title: user.Name, UserID: currentUser(c).ID})
	case repository.StatusFailed:
		log.Printf("Error creating user: %v", res.Err)
		e.discardUpload(ctx, deref(user.ProfilePicture))
		e.flash(c, flash.Danger(fmt.Sprintf("User data [%s] was not saved successfully. There was some errors.", form.Name)))
	}
	c.Redirect(http.StatusSeeOther, usersRoute)
}

// EditUserForm handles GET /admin/users/:id/edit
func (e *Env) EditUserForm(c *gin.Context) {
	id, ok := e.paramID(c)
	if !ok {
		return
	}
	user, err := e.Users.Find(c.Request.Context(), repository.Lookup{ID: id, Scope: repository.ScopeGlobal})
	if err != nil {
		e.fail(c, err)
		return
	}
	view := e.userView(*user)
	form := userForm{Name: user.Name, Email: user.Email, RoleID: derefID(user.RoleID), IsActive: user.IsActive}
	e.renderUserForm(c, http.StatusOK, &view, form, nil)
}

// UpdateUser handles POST|PUT|PATCH /admin/users/:id
// An empty password keeps the current one.
func (e *Env) UpdateUser(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := e.paramID(c)
	if !ok {
		return
	}
	user, err := e.Users.Find(ctx, repository.Lookup{ID: id, Scope: repository.ScopeGlobal})
	if err != nil {
		e.fail(c, err)
		return
	}
	view := e.userView(*user)

	var form userForm
	if errs := bindForm(c, &form); errs != nil {
		e.renderUserForm(c, http.StatusUnprocessableEntity, &view, form, errs)
		return
	}
	errs, err := e.validateUser(ctx, &form, user.ID)
	if err != nil {
		e.fail(c, err)
		return
	}
	file, msg := e.upload(c, "profile_picture_file", "profile picture")
	if msg != "" {
		errs = append(errs, msg)
	}
	if len(errs) > 0 {
		e.renderUserForm(c, http.StatusUnprocessableEntity, &view, form, errs)
		return
	}

	fields := map[string]any{
		"name":    form.Name,
		"email":   form.Email,
		"role_id": optionalID(form.RoleID),
	}
	if submitted(c, "is_active") {
		fields["is_active"] = form.IsActive
	}
	if form.Password != "" {
		hash, err := auth.HashPassword(form.Password)
		if err != nil {
			e.fail(c, err)
			return
		}
		fields["password"] = hash
	}
	oldPicture := deref(user.ProfilePicture)
	newPicture := ""
	if file != nil {
		newPicture, err = e.Storage.Save(ctx, file, models.ProfilePictureNamespace, oldPicture)
		if err != nil {
			e.fail(c, err)
			return
		}
		fields["profile_picture"] = newPicture
	}

	res := e.Users.Update(ctx, user, fields)
	switch res.Status {
	case repository.StatusPersisted:
		if newPicture != "" {
			e.pruneReplaced(ctx, oldPicture)
		}
		e.flash(c, flash.Success(fmt.Sprintf("User data [%s] updated successfully.", form.Name)))
		e.Hub.Publish(ws.Event{Type: "user.updated", ID: user.ID, Title: form.Name, UserID: currentUser(c).ID})
	case repository.StatusFailed:
		log.Printf("Error updating user %d: %v", user.ID, res.Err)
		e.discardUpload(ctx, newPicture)
		e.flash(c, flash.Danger(fmt.Sprintf("User data [%s] was not updated successfully. There was some errors.", form.Name)))
	}
	c.Redirect(http.StatusSeeOther, usersRoute)
}

// DestroyUser handles DELETE /admin/users/:id and POST /admin/users/:id/delete
// Users that still own posts cannot be deleted; the foreign key refuses it.
func (e *Env) DestroyUser(c *gin.Context) {
	ctx := c.Request.Context()
	me := currentUser(c)
	id, ok := e.paramID(c)
	if !ok {
		return
	}
	user, err := e.Users.Find(ctx, repository.Lookup{ID: id, Scope: repository.ScopeGlobal})
	if err != nil {
		e.fail(c, err)
		return
	}
	if user.ID == me.ID {
		e.flash(c, flash.Danger("You cannot delete your own account."))
		c.Redirect(http.StatusSeeOther, usersRoute)
		return
	}
	picture := deref(user.ProfilePicture)

	res := e.Users.Delete(ctx, user)
	switch res.Status {
	case repository.StatusPersisted:
		if picture != "" {
			if err := e.Storage.Delete(ctx, picture); err != nil {
				log.Printf("Error deleting picture of user %d: %v", user.ID, err)
			}
		}
		e.flash(c, flash.Success("User data deleted successfully."))
		e.Hub.Publish(ws.Event{Type: "user.deleted", ID: user.ID, Title: user.Name, UserID: me.ID})
	case repository.StatusFailed:
		log.Printf("Error deleting user %d: %v", user.ID, res.Err)
		e.flash(c, flash.Danger("User data was not deleted successfully. There was some errors."))
	}
	c.Redirect(http.StatusSeeOther, usersRoute)
}
