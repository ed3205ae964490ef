package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/quill/internal/flash"
	"github.com/sujalbistaa/quill/internal/models"
	"github.com/sujalbistaa/quill/internal/repository"
	"github.com/sujalbistaa/quill/internal/ws"
)

type postForm struct {
	Title      string `form:"title" binding:"required,max=255"`
	Body       string `form:"body" binding:"max=65535"`
	CategoryID uint   `form:"category_id"`
}

// postView is a post as the templates see it: PhotoURL is already
// resolved and empty when no photo was uploaded.
type postView struct {
	ID         uint
	Title      string
	Body       string
	Owner      string
	Category   string
	CategoryID uint
	PhotoURL   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (e *Env) postView(p models.Post) postView {
	v := postView{
		ID:         p.ID,
		Title:      p.Title,
		Body:       p.Body,
		CategoryID: derefID(p.CategoryID),
		PhotoURL:   e.Storage.URL(deref(p.PostPhoto)),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.User != nil {
		v.Owner = p.User.Name
	}
	if p.Category != nil {
		v.Category = p.Category.Name
	}
	return v
}

// ListPosts handles GET /admin/posts
func (e *Env) ListPosts(c *gin.Context) {
	ctx := c.Request.Context()
	info := e.popFlash(c)

	posts, err := e.Posts.All(ctx, "User", "Category")
	if err != nil {
		e.fail(c, err)
		return
	}
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		views = append(views, e.postView(p))
	}

	e.render(c, http.StatusOK, "posts/index", gin.H{
		"Title":            "Posts",
		"Posts":            views,
		"DefaultPostPhoto": e.Storage.URL(models.DefaultPostPhoto),
		"InfoFromPrevious": info,
	})
}

// CreatePostForm handles GET /admin/posts/create
func (e *Env) CreatePostForm(c *gin.Context) {
	e.renderPostForm(c, http.StatusOK, nil, postForm{}, nil)
}

// renderPostForm renders the create form when post is nil, else the edit
// form for post.
func (e *Env) renderPostForm(c *gin.Context, code int, post *postView, form postForm, errs []string) {
	categories, err := e.Categories.Options(c.Request.Context(), "name")
	if err != nil {
		e.fail(c, err)
		return
	}
	data := gin.H{
		"Title":      "Create post",
		"Form":       form,
		"Categories": categories,
		"Errors":     errs,
	}
	name := "posts/create"
	if post != nil {
		name = "posts/edit"
		data["Title"] = "Edit post"
		data["Post"] = post
		data["DefaultPostPhoto"] = e.Storage.URL(models.DefaultPostPhoto)
	}
	e.render(c, code, name, data)
}

// StorePost handles POST /admin/posts
func (e *Env) StorePost(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)

	var form postForm
	if errs := bindForm(c, &form); errs != nil {
		e.renderPostForm(c, http.StatusUnprocessableEntity, nil, form, errs)
		return
	}
	file, msg := e.upload(c, "post_photo_file", "post photo")
	if msg != "" {
		e.renderPostForm(c, http.StatusUnprocessableEntity, nil, form, []string{msg})
		return
	}

	post := &models.Post{
		Title:      form.Title,
		Body:       form.Body,
		CategoryID: optionalID(form.CategoryID),
	}
	var omit []string
	if file != nil {
		path, err := e.Storage.Save(ctx, file, models.PostPhotoNamespace, "")
		if err != nil {
			e.fail(c, err)
			return
		}
		post.PostPhoto = &path
	} else {
		omit = append(omit, "PostPhoto")
	}

	res := e.Posts.CreateUnder(ctx, user.ID, post, omit...)
	switch res.Status {
	case repository.StatusPersisted:
		e.flash(c, flash.Success(fmt.Sprintf("Post data [%s] saved successfully.", form.Title)))
		e.Hub.Publish(ws.Event{Type: "post.created", ID: post.ID, Title: post.Title, UserID: user.ID})
	case repository.StatusFailed:
		log.Printf("Error creating post: %v", res.Err)
		e.discardUpload(ctx, deref(post.PostPhoto))
		e.flash(c, flash.Danger(fmt.Sprintf("Post data [%s] was not saved successfully. There was some errors.", form.Title)))
	}
	c.Redirect(http.StatusSeeOther, postsRoute)
}

// EditPostForm handles GET /admin/posts/:id/edit
// The lookup is global: any signed-in user may open any post's form.
func (e *Env) EditPostForm(c *gin.Context) {
	id, ok := e.paramID(c)
	if !ok {
		return
	}
	post, err := e.Posts.Find(c.Request.Context(), repository.Lookup{ID: id, Scope: repository.ScopeGlobal})
	if err != nil {
		e.fail(c, err)
		return
	}
	view := e.postView(*post)
	form := postForm{Title: post.Title, Body: post.Body, CategoryID: view.CategoryID}
	e.renderPostForm(c, http.StatusOK, &view, form, nil)
}

// UpdatePost handles POST|PUT|PATCH /admin/posts/:id
// Only the owner's posts are visible here; anything else is a 404.
func (e *Env) UpdatePost(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)
	id, ok := e.paramID(c)
	if !ok {
		return
	}

	post, err := e.Posts.Find(ctx, repository.Lookup{ID: id, Scope: repository.ScopeOwned, OwnerID: user.ID})
	if err != nil {
		e.fail(c, err)
		return
	}

	var form postForm
	if errs := bindForm(c, &form); errs != nil {
		view := e.postView(*post)
		e.renderPostForm(c, http.StatusUnprocessableEntity, &view, form, errs)
		return
	}
	file, msg := e.upload(c, "post_photo_file", "post photo")
	if msg != "" {
		view := e.postView(*post)
		e.renderPostForm(c, http.StatusUnprocessableEntity, &view, form, []string{msg})
		return
	}

	// Columns the request did not send keep their stored values.
	fields := map[string]any{"title": form.Title}
	if submitted(c, "body") {
		fields["body"] = form.Body
	}
	if submitted(c, "category_id") {
		fields["category_id"] = optionalID(form.CategoryID)
	}
	oldPhoto := deref(post.PostPhoto)
	newPhoto := ""
	if file != nil {
		newPhoto, err = e.Storage.Save(ctx, file, models.PostPhotoNamespace, oldPhoto)
		if err != nil {
			e.fail(c, err)
			return
		}
		fields["post_photo"] = newPhoto
	}

	res := e.Posts.Update(ctx, post, fields)
	switch res.Status {
	case repository.StatusPersisted:
		if newPhoto != "" {
			e.pruneReplaced(ctx, oldPhoto)
		}
		e.flash(c, flash.Success(fmt.Sprintf("Post data [%s] updated successfully.", form.Title)))
		e.Hub.Publish(ws.Event{Type: "post.updated", ID: post.ID, Title: form.Title, UserID: user.ID})
	case repository.StatusFailed:
		log.Printf("Error updating post %d: %v", post.ID, res.Err)
		e.discardUpload(ctx, newPhoto)
		e.flash(c, flash.Danger(fmt.Sprintf("Post data [%s] was not updated successfully. There was some errors.", form.Title)))
	}
	c.Redirect(http.StatusSeeOther, postsRoute)
}

// DestroyPost handles DELETE /admin/posts/:id and POST /admin/posts/:id/delete
// The stored photo is removed only after the row is gone.
func (e *Env) DestroyPost(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := e.paramID(c)
	if !ok {
		return
	}
	post, err := e.Posts.Find(ctx, repository.Lookup{ID: id, Scope: repository.ScopeGlobal})
	if err != nil {
		e.fail(c, err)
		return
	}
	photo := deref(post.PostPhoto)

	res := e.Posts.Delete(ctx, post)
	switch res.Status {
	case repository.StatusPersisted:
		if photo != "" {
			if err := e.Storage.Delete(ctx, photo); err != nil {
				log.Printf("Error deleting photo of post %d: %v", post.ID, err)
			}
		}
		e.flash(c, flash.Success("Post data deleted successfully."))
		var actor uint
		if u := currentUser(c); u != nil {
			actor = u.ID
		}
		e.Hub.Publish(ws.Event{Type: "post.deleted", ID: post.ID, Title: post.Title, UserID: actor})
	case repository.StatusFailed:
		log.Printf("Error deleting post %d: %v", post.ID, res.Err)
		e.flash(c, flash.Danger("Post data was not deleted successfully. There was some errors."))
	}
	c.Redirect(http.StatusSeeOther, postsRoute)
}

// pruneReplaced releases the blob a persisted update replaced.
func (e *Env) pruneReplaced(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := e.Storage.Prune(ctx, path); err != nil {
		log.Printf("Error pruning replaced upload %s: %v", path, err)
	}
}

// discardUpload removes a blob saved for a write that did not persist.
func (e *Env) discardUpload(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := e.Storage.Delete(ctx, path); err != nil {
		log.Printf("Error discarding upload %s: %v", path, err)
	}
}
