package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"nandu/api/internal/ids"
	"nandu/api/internal/models"
	"nandu/api/internal/repository"
	"nandu/api/internal/security"
)

type commentResponse struct {
	ID        string          `json:"_id"`
	Text      string          `json:"text"`
	PostedBy  userRefResponse `json:"postedBy"`
	CreatedAt time.Time       `json:"created"`
}

type postResponse struct {
	ID        string            `json:"_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	PostedBy  userRefResponse   `json:"postedBy"`
	Likes     []string          `json:"likes"`
	Comments  []commentResponse `json:"comments"`
	CreatedAt time.Time         `json:"created"`
	UpdatedAt time.Time         `json:"updated"`
}

func toPostResponse(post models.Post) postResponse {
	comments := make([]commentResponse, 0, len(post.Comments))
	for _, comment := range post.Comments {
		comments = append(comments, commentResponse{
			ID:        comment.ID,
			Text:      comment.Text,
			PostedBy:  userRefResponse{ID: comment.PostedBy.ID, Name: comment.PostedBy.Name},
			CreatedAt: comment.CreatedAt,
		})
	}
	likes := post.Likes
	if likes == nil {
		likes = []string{}
	}
	return postResponse{
		ID:        post.ID,
		Title:     post.Title,
		Body:      post.Body,
		PostedBy:  userRefResponse{ID: post.PostedBy.ID, Name: post.PostedBy.Name},
		Likes:     likes,
		Comments:  comments,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}
}

func toPostResponses(posts []models.Post) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for _, post := range posts {
		out = append(out, toPostResponse(post))
	}
	return out
}

func (h HandlerSet) ListPosts(c *gin.Context) {
	limit := 50
	offset := 0
	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}

	posts, err := h.posts.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPostResponses(posts))
}

func (h HandlerSet) CreatePost(c *gin.Context) {
	userID := c.Param("userId")
	subject, ok := h.requireSelfOrAdmin(c, userID)
	if !ok {
		return
	}

	title := c.PostForm("title")
	body := c.PostForm("body")
	if len(title) < 4 || len(body) < 4 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and body are required (min 4 characters)"})
		return
	}

	post := models.Post{
		ID:       ids.New(),
		Title:    title,
		Body:     body,
		PostedBy: models.UserRef{ID: userID, Name: subject.Name},
	}

	photo, err := photoFromForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image could not be uploaded"})
		return
	}
	if photo != nil {
		key := "posts/" + post.ID + "/" + ids.New()
		if err := h.photos.PutPhoto(c.Request.Context(), key, photo.data, photo.contentType); err != nil {
			h.internalError(c, err)
			return
		}
		post.PhotoKey = &key
		post.PhotoType = &photo.contentType
	}

	if err := h.posts.Create(c.Request.Context(), post); err != nil {
		h.internalError(c, err)
		return
	}

	created, err := h.posts.GetByID(c.Request.Context(), post.ID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPostResponse(created))
}

func (h HandlerSet) PostsByUser(c *gin.Context) {
	posts, err := h.posts.ListByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPostResponses(posts))
}

func (h HandlerSet) SinglePost(c *gin.Context) {
	post, err := h.posts.GetByID(c.Request.Context(), c.Param("postId"))
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Post not found"})
			return
		}
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPostResponse(post))
}

// requirePoster loads the post and enforces the ownership predicate.
func (h HandlerSet) requirePoster(c *gin.Context, postID string) (models.Post, bool) {
	post, err := h.posts.GetByID(c.Request.Context(), postID)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Post not found"})
			return models.Post{}, false
		}
		h.internalError(c, err)
		return models.Post{}, false
	}

	subject, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.Post{}, false
	}
	if !security.CanAct(subject.ID, post.PostedBy.ID, subject.Role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "User is not authorized"})
		return models.Post{}, false
	}
	return post, true
}

func (h HandlerSet) UpdatePost(c *gin.Context) {
	postID := c.Param("postId")
	post, ok := h.requirePoster(c, postID)
	if !ok {
		return
	}

	update := repository.PostUpdate{}
	if title := c.PostForm("title"); title != "" {
		update.Title = &title
	}
	if body := c.PostForm("body"); body != "" {
		update.Body = &body
	}

	photo, err := photoFromForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Photo could not be uploaded"})
		return
	}
	if photo != nil {
		key := "posts/" + post.ID + "/" + ids.New()
		if err := h.photos.PutPhoto(c.Request.Context(), key, photo.data, photo.contentType); err != nil {
			h.internalError(c, err)
			return
		}
		update.PhotoKey = &key
		update.PhotoType = &photo.contentType
	}

	updated, err := h.posts.Update(c.Request.Context(), postID, update)
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPostResponse(updated))
}

func (h HandlerSet) DeletePost(c *gin.Context) {
	postID := c.Param("postId")
	post, ok := h.requirePoster(c, postID)
	if !ok {
		return
	}

	if err := h.posts.Delete(c.Request.Context(), postID); err != nil {
		h.internalError(c, err)
		return
	}

	if post.PhotoKey != nil {
		if err := h.photos.RemovePhoto(c.Request.Context(), *post.PhotoKey); err != nil {
			h.log.Warn().Err(err).Str("post_id", postID).Msg("orphaned photo removal failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}

func (h HandlerSet) PostPhoto(c *gin.Context) {
	post, err := h.posts.GetByID(c.Request.Context(), c.Param("postId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}
	if post.PhotoKey == nil || post.PhotoType == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	obj, err := h.photos.GetPhoto(c.Request.Context(), *post.PhotoKey)
	if err != nil {
		h.internalError(c, err)
		return
	}
	defer obj.Close()

	c.Header("Content-Type", *post.PhotoType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, obj); err != nil {
		h.log.Warn().Err(err).Msg("photo stream interrupted")
	}
}

type likeRequest struct {
	PostID string `json:"postId" binding:"required"`
}

func (h HandlerSet) Like(c *gin.Context) {
	subject, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.posts.Like(c.Request.Context(), req.PostID, subject.ID); err != nil {
		h.internalError(c, err)
		return
	}

	post, err := h.posts.GetByID(c.Request.Context(), req.PostID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPostResponse(post))
}

func (h HandlerSet) Unlike(c *gin.Context) {
	subject, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.posts.Unlike(c.Request.Context(), req.PostID, subject.ID); err != nil {
		h.internalError(c, err)
		return
	}

	post, err := h.posts.GetByID(c.Request.Context(), req.PostID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPostResponse(post))
}

type commentRequest struct {
	PostID  string `json:"postId" binding:"required"`
	Comment struct {
		Text string `json:"text" binding:"required"`
	} `json:"comment" binding:"required"`
}

func (h HandlerSet) Comment(c *gin.Context) {
	subject, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment := models.Comment{
		ID:       ids.New(),
		Text:     req.Comment.Text,
		PostedBy: models.UserRef{ID: subject.ID, Name: subject.Name},
	}

	if err := h.posts.AddComment(c.Request.Context(), req.PostID, comment); err != nil {
		h.internalError(c, err)
		return
	}

	post, err := h.posts.GetByID(c.Request.Context(), req.PostID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPostResponse(post))
}

type uncommentRequest struct {
	PostID  string `json:"postId" binding:"required"`
	Comment struct {
		ID string `json:"_id" binding:"required"`
	} `json:"comment" binding:"required"`
}

func (h HandlerSet) Uncomment(c *gin.Context) {
	subject, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req uncommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.posts.GetByID(c.Request.Context(), req.PostID)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Post not found"})
			return
		}
		h.internalError(c, err)
		return
	}

	var author string
	for _, comment := range post.Comments {
		if comment.ID == req.Comment.ID {
			author = comment.PostedBy.ID
			break
		}
	}
	if author == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comment not found"})
		return
	}
	if !security.CanAct(subject.ID, author, subject.Role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "User is not authorized"})
		return
	}

	if err := h.posts.RemoveComment(c.Request.Context(), req.PostID, req.Comment.ID); err != nil {
		// A concurrent uncomment may have removed it after the load above.
		if errors.Is(err, repository.ErrCommentNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Comment not found"})
			return
		}
		h.internalError(c, err)
		return
	}

	updated, err := h.posts.GetByID(c.Request.Context(), req.PostID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPostResponse(updated))
}
