package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nandu/api/internal/ids"
	"nandu/api/internal/models"
	"nandu/api/internal/repository"
	"nandu/api/internal/security"
)

type userRefResponse struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type profileResponse struct {
	ID        string            `json:"_id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Role      string            `json:"role"`
	About     string            `json:"about,omitempty"`
	Followers []userRefResponse `json:"followers"`
	Following []userRefResponse `json:"following"`
	CreatedAt time.Time         `json:"created"`
	UpdatedAt time.Time         `json:"updated"`
}

func toRefResponses(refs []models.UserRef) []userRefResponse {
	out := make([]userRefResponse, 0, len(refs))
	for _, ref := range refs {
		out = append(out, userRefResponse{ID: ref.ID, Name: ref.Name})
	}
	return out
}

func toProfileResponse(user models.User) profileResponse {
	return profileResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      string(user.Role),
		About:     user.About,
		Followers: toRefResponses(user.Followers),
		Following: toRefResponses(user.Following),
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func (h HandlerSet) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, toUserResponse(user))
	}
	c.JSON(http.StatusOK, out)
}

func (h HandlerSet) GetUser(c *gin.Context) {
	user, err := h.users.GetWithFollows(c.Request.Context(), c.Param("userId"))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User not found"})
			return
		}
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProfileResponse(user))
}

// requireSelfOrAdmin enforces the ownership predicate for account mutations.
func (h HandlerSet) requireSelfOrAdmin(c *gin.Context, ownerID string) (models.User, bool) {
	subject, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.User{}, false
	}
	if !security.CanAct(subject.ID, ownerID, subject.Role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "User is not authorized to perform this action"})
		return models.User{}, false
	}
	return subject, true
}

func (h HandlerSet) UpdateUser(c *gin.Context) {
	userID := c.Param("userId")
	if _, ok := h.requireSelfOrAdmin(c, userID); !ok {
		return
	}

	update := repository.ProfileUpdate{}
	if name := c.PostForm("name"); name != "" {
		update.Name = &name
	}
	if about := c.PostForm("about"); about != "" {
		update.About = &about
	}

	photo, err := photoFromForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Photo could not be uploaded"})
		return
	}
	if photo != nil {
		key := "users/" + userID + "/" + ids.New()
		if err := h.photos.PutPhoto(c.Request.Context(), key, photo.data, photo.contentType); err != nil {
			h.internalError(c, err)
			return
		}
		update.PhotoKey = &key
		update.PhotoType = &photo.contentType
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), userID, update)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User not found"})
			return
		}
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProfileResponse(user))
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	userID := c.Param("userId")
	if _, ok := h.requireSelfOrAdmin(c, userID); !ok {
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User not found"})
			return
		}
		h.internalError(c, err)
		return
	}

	if err := h.users.Delete(c.Request.Context(), userID); err != nil {
		h.internalError(c, err)
		return
	}

	if user.PhotoKey != nil {
		if err := h.photos.RemovePhoto(c.Request.Context(), *user.PhotoKey); err != nil {
			h.log.Warn().Err(err).Str("user_id", userID).Msg("orphaned photo removal failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully."})
}

func (h HandlerSet) UserPhoto(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}
	if user.PhotoKey == nil || user.PhotoType == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	obj, err := h.photos.GetPhoto(c.Request.Context(), *user.PhotoKey)
	if err != nil {
		h.internalError(c, err)
		return
	}
	defer obj.Close()

	c.Header("Content-Type", *user.PhotoType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, obj); err != nil {
		h.log.Warn().Err(err).Msg("photo stream interrupted")
	}
}

type followRequest struct {
	FollowID string `json:"followId" binding:"required"`
}

func (h HandlerSet) Follow(c *gin.Context) {
	subject, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FollowID == subject.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot follow yourself"})
		return
	}

	if err := h.users.Follow(c.Request.Context(), subject.ID, req.FollowID); err != nil {
		h.internalError(c, err)
		return
	}

	followed, err := h.users.GetWithFollows(c.Request.Context(), req.FollowID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User not found"})
			return
		}
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProfileResponse(followed))
}

type unfollowRequest struct {
	UnfollowID string `json:"unfollowId" binding:"required"`
}

func (h HandlerSet) Unfollow(c *gin.Context) {
	subject, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req unfollowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.Unfollow(c.Request.Context(), subject.ID, req.UnfollowID); err != nil {
		h.internalError(c, err)
		return
	}

	unfollowed, err := h.users.GetWithFollows(c.Request.Context(), req.UnfollowID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User not found"})
			return
		}
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProfileResponse(unfollowed))
}

func (h HandlerSet) FindPeople(c *gin.Context) {
	refs, err := h.users.FindPeople(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRefResponses(refs))
}
