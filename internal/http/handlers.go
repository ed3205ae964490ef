package http

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/sujalbistaa/quill/internal/auth"
	"github.com/sujalbistaa/quill/internal/flash"
	"github.com/sujalbistaa/quill/internal/models"
	"github.com/sujalbistaa/quill/internal/repository"
	"github.com/sujalbistaa/quill/internal/session"
	"github.com/sujalbistaa/quill/internal/storage"
	"github.com/sujalbistaa/quill/internal/ws"
)

const (
	postsRoute = "/admin/posts"
	usersRoute = "/admin/users"
	loginRoute = "/login"

	currentUserKey = "currentUser"
)

var allowedImageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// --- Handlers ---
type Env struct {
	Posts      *repository.Repository[models.Post]
	Categories *repository.Repository[models.Category]
	Users      *repository.Repository[models.User]
	Roles      *repository.Repository[models.Role]

	Storage  storage.Gateway
	Sessions *session.Manager
	Auth     *auth.Service
	Hub      *ws.Hub
	Limiter  *IPRateLimiter

	MaxUploadBytes int64
}

// render executes a named template with the signed-in user added to data.
func (e *Env) render(c *gin.Context, code int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if u := currentUser(c); u != nil {
		data["CurrentUser"] = u
	}
	c.HTML(code, name, data)
}

// fail logs err and renders the matching error page.
func (e *Env) fail(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		e.renderError(c, http.StatusNotFound)
		return
	}
	log.Printf("Error handling %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	e.renderError(c, http.StatusInternalServerError)
}

func (e *Env) renderError(c *gin.Context, code int) {
	msg := http.StatusText(code)
	switch code {
	case http.StatusNotFound:
		msg = "The record you are looking for does not exist."
	case http.StatusForbidden:
		msg = "You do not have permission to access this page."
	case http.StatusRequestEntityTooLarge:
		msg = "The upload is too large."
	case http.StatusTooManyRequests:
		msg = "Too many requests. Please wait."
	case http.StatusInternalServerError:
		msg = "Something went wrong while handling your request."
	}
	e.render(c, code, "error", gin.H{"Title": strconv.Itoa(code), "Status": code, "Message": msg})
	c.Abort()
}

// flash queues m for the next page. A session write failure only loses the
// notice, so it is logged rather than surfaced.
func (e *Env) flash(c *gin.Context, m flash.Message) {
	if err := flash.Put(c.Request.Context(), session.FromContext(c), m); err != nil {
		log.Printf("Error writing flash message: %v", err)
	}
}

func (e *Env) popFlash(c *gin.Context) *flash.Message {
	m, err := flash.Pop(c.Request.Context(), session.FromContext(c))
	if err != nil {
		log.Printf("Error reading flash message: %v", err)
		return nil
	}
	return m
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// paramID parses the :id route parameter. Anything that is not a positive
// integer cannot name a row, so it renders the 404 page.
func (e *Env) paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		e.renderError(c, http.StatusNotFound)
		return 0, false
	}
	return uint(id), true
}

// --- Form binding ---

var fieldLabels = map[string]string{
	"Title":      "title",
	"Body":       "body",
	"CategoryID": "category",
	"Name":       "name",
	"Email":      "email",
	"Password":   "password",
	"RoleID":     "role",
	"IsActive":   "active status",
}

// bindForm binds the request form into dst and returns readable messages
// for every rule that failed.
func bindForm(c *gin.Context, dst any) []string {
	err := c.ShouldBind(dst)
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return []string{fmt.Sprintf("The request may not be greater than %d kilobytes.", tooLarge.Limit/1024)}
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"The submitted form could not be read."}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, validationMessage(fe))
	}
	return msgs
}

func validationMessage(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = strings.ToLower(fe.Field())
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", label)
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s characters.", label, fe.Param())
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters.", label, fe.Param())
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", label)
	default:
		return fmt.Sprintf("The selected %s is invalid.", label)
	}
}

// upload returns the image posted under field, nil when none was sent, or
// a validation message when the file is unacceptable.
func (e *Env) upload(c *gin.Context, field, label string) (*multipart.FileHeader, string) {
	file, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, ""
	}
	if err != nil {
		log.Printf("Error reading upload %s: %v", field, err)
		return nil, fmt.Sprintf("The %s failed to upload.", label)
	}
	if file.Size == 0 {
		return nil, ""
	}
	if e.MaxUploadBytes > 0 && file.Size > e.MaxUploadBytes {
		return nil, fmt.Sprintf("The %s may not be greater than %d kilobytes.", label, e.MaxUploadBytes/1024)
	}

	f, err := file.Open()
	if err != nil {
		log.Printf("Error opening upload %s: %v", field, err)
		return nil, fmt.Sprintf("The %s failed to upload.", label)
	}
	defer f.Close()
	mtype, err := mimetype.DetectReader(io.LimitReader(f, 3072))
	if err != nil || !mimetype.EqualsAny(mtype.String(), allowedImageTypes...) {
		return nil, fmt.Sprintf("The %s must be an image (png, jpeg, gif, webp).", label)
	}
	return file, ""
}

// submitted reports whether the request form carries key, even when its
// value is empty.
func submitted(c *gin.Context, key string) bool {
	_, ok := c.GetPostForm(key)
	return ok
}

func optionalID(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefID(id *uint) uint {
	if id == nil {
		return 0
	}
	return *id
}
