package http

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/quill/internal/auth"
	"github.com/sujalbistaa/quill/internal/flash"
	"github.com/sujalbistaa/quill/internal/session"
)

type loginForm struct {
	Email    string `form:"email" binding:"required,email"`
	Password string `form:"password" binding:"required"`
}

// LoginForm handles GET /login
func (e *Env) LoginForm(c *gin.Context) {
	if _, ok, _ := session.FromContext(c).UserID(c.Request.Context()); ok {
		c.Redirect(http.StatusSeeOther, postsRoute)
		return
	}
	e.render(c, http.StatusOK, "login", gin.H{
		"Title":            "Sign in",
		"Form":             loginForm{},
		"InfoFromPrevious": e.popFlash(c),
	})
}

// Login handles POST /login
func (e *Env) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var form loginForm
	if errs := bindForm(c, &form); errs != nil {
		e.render(c, http.StatusUnprocessableEntity, "login", gin.H{"Title": "Sign in", "Form": form, "Errors": errs})
		return
	}

	user, err := e.Auth.Authenticate(ctx, form.Email, form.Password)
	if err != nil {
		msg := "These credentials do not match our records."
		switch {
		case errors.Is(err, auth.ErrInactive):
			msg = "This account is not active."
		case !errors.Is(err, auth.ErrInvalidLogin):
			e.fail(c, err)
			return
		}
		form.Password = ""
		e.render(c, http.StatusUnprocessableEntity, "login", gin.H{"Title": "Sign in", "Form": form, "Errors": []string{msg}})
		return
	}

	sess, err := e.Sessions.Renew(c)
	if err != nil {
		e.fail(c, err)
		return
	}
	if err := sess.Put(ctx, session.UserIDKey, user.ID); err != nil {
		e.fail(c, err)
		return
	}
	log.Printf("auth: signed in uid=%d", user.ID)
	c.Redirect(http.StatusSeeOther, postsRoute)
}

// Logout handles POST /logout
func (e *Env) Logout(c *gin.Context) {
	if _, err := e.Sessions.Renew(c); err != nil {
		e.fail(c, err)
		return
	}
	e.flash(c, flash.Success("You have been signed out."))
	c.Redirect(http.StatusSeeOther, loginRoute)
}
