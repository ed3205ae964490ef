package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/quill/internal/auth"
	"github.com/sujalbistaa/quill/internal/models"
	"github.com/sujalbistaa/quill/internal/repository"
	"github.com/sujalbistaa/quill/internal/session"
	"github.com/sujalbistaa/quill/internal/storage"
	"github.com/sujalbistaa/quill/web"
)

const (
	testCookie   = "quill_test"
	testPassword = "secret123"
)

// fakeStorage records every gateway call and hands out predictable paths.
type fakeStorage struct {
	mu       sync.Mutex
	saved    []string
	previous []string
	deleted  []string
	pruned   []string
	saveErr  error
}

var _ storage.Gateway = (*fakeStorage)(nil)

func (s *fakeStorage) Save(_ context.Context, file *multipart.FileHeader, namespace, previousPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	p := fmt.Sprintf("%s/upload-%d%s", namespace, len(s.saved)+1, filepath.Ext(file.Filename))
	s.saved = append(s.saved, p)
	s.previous = append(s.previous, previousPath)
	return p, nil
}

func (s *fakeStorage) URL(p string) string {
	if p == "" {
		return ""
	}
	return "/storage/" + p
}

func (s *fakeStorage) Delete(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, p)
	return nil
}

func (s *fakeStorage) Prune(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruned = append(s.pruned, p)
	return nil
}

type testApp struct {
	t        *testing.T
	db       *gorm.DB
	env      *Env
	router   *gin.Engine
	storage  *fakeStorage
	sessions *session.MemoryStore

	alice, bob models.User
	admin      models.Role
	news       models.Category
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.HashCost = bcrypt.MinCost

	dsn := filepath.Join(t.TempDir(), "quill.db") + "?_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	a := &testApp{t: t, db: db, storage: &fakeStorage{}, sessions: session.NewMemoryStore(time.Hour)}
	a.admin = models.Role{Name: models.RoleAdministrator}
	a.mustCreate(&a.admin)
	a.mustCreate(&models.Role{Name: "author"})
	a.news = models.Category{Name: "News"}
	a.mustCreate(&a.news)
	a.mustCreate(&models.Category{Name: "Tutorials"})
	a.alice = a.createUser("alice", models.Active)
	a.bob = a.createUser("bob", models.Active)

	users := repository.New[models.User](db, "")
	a.env = &Env{
		Posts:      repository.New[models.Post](db, "user_id"),
		Categories: repository.New[models.Category](db, ""),
		Users:      users,
		Roles:      repository.New[models.Role](db, ""),
		Storage:    a.storage,
		Sessions: &session.Manager{
			Store:      a.sessions,
			CookieName: testCookie,
			Lifetime:   time.Hour,
		},
		Auth:           &auth.Service{Users: users},
		MaxUploadBytes: 1 << 20,
	}
	a.router = gin.New()
	if err := SetupRoutes(a.router, a.env, RouteOptions{}); err != nil {
		t.Fatalf("SetupRoutes() error = %v", err)
	}
	return a
}

func (a *testApp) mustCreate(v any) {
	a.t.Helper()
	if err := a.db.Create(v).Error; err != nil {
		a.t.Fatalf("create %T: %v", v, err)
	}
}

func (a *testApp) createUser(name string, active int) models.User {
	a.t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		a.t.Fatalf("HashPassword() error = %v", err)
	}
	u := models.User{Name: name, Email: name + "@example.com", Password: hash, RoleID: &a.admin.ID, IsActive: active}
	a.mustCreate(&u)
	return u
}

func (a *testApp) createPost(owner models.User, title, photo string) models.Post {
	a.t.Helper()
	p := models.Post{UserID: owner.ID, Title: title, Body: title + " body"}
	if photo != "" {
		p.PostPhoto = &photo
	}
	a.mustCreate(&p)
	return p
}

func (a *testApp) reloadPost(id uint) (models.Post, bool) {
	a.t.Helper()
	var p models.Post
	err := a.db.First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, false
	}
	if err != nil {
		a.t.Fatalf("reload post %d: %v", id, err)
	}
	return p, true
}

// loginAs returns a session cookie already signed in as u.
func (a *testApp) loginAs(u models.User) *http.Cookie {
	a.t.Helper()
	sid := uuid.NewString()
	if err := a.sessions.Set(context.Background(), sid, session.UserIDKey, []byte(strconv.FormatUint(uint64(u.ID), 10))); err != nil {
		a.t.Fatalf("seed session: %v", err)
	}
	return &http.Cookie{Name: testCookie, Value: sid}
}

func (a *testApp) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	a.t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testApp) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	return a.do(httptest.NewRequest(http.MethodGet, path, nil), cookie)
}

// failOn makes every GORM create or delete fail from now on.
func (a *testApp) failOn(op string) {
	a.t.Helper()
	fail := func(tx *gorm.DB) { tx.AddError(errors.New("simulated database failure")) }
	var err error
	switch op {
	case "create":
		err = a.db.Callback().Create().Before("gorm:create").Register("test:fail_create", fail)
	case "update":
		err = a.db.Callback().Update().Before("gorm:update").Register("test:fail_update", fail)
	case "delete":
		err = a.db.Callback().Delete().Before("gorm:delete").Register("test:fail_delete", fail)
	default:
		a.t.Fatalf("failOn(%q): unknown op", op)
	}
	if err != nil {
		a.t.Fatalf("register failing callback: %v", err)
	}
}

func formRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func multipartRequest(t *testing.T, target string, values url.Values, field, fileName string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, vs := range values {
		for _, v := range vs {
			if err := mw.WriteField(k, v); err != nil {
				t.Fatalf("WriteField(%s) error = %v", k, err)
			}
		}
	}
	fw, err := mw.CreateFormFile(field, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngBytes() []byte {
	return web.DefaultImage
}

func assertRedirect(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusSeeOther, rr.Body.String())
	}
	if got := rr.Header().Get("Location"); got != want {
		t.Fatalf("Location = %q, want %q", got, want)
	}
}

func assertContains(t *testing.T, body, want string) {
	t.Helper()
	if !strings.Contains(body, want) {
		t.Fatalf("body does not contain %q:\n%s", want, body)
	}
}

func assertNotContains(t *testing.T, body, unwanted string) {
	t.Helper()
	if strings.Contains(body, unwanted) {
		t.Fatalf("body unexpectedly contains %q:\n%s", unwanted, body)
	}
}
