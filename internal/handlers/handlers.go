package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"nandu/api/internal/config"
	"nandu/api/internal/mail"
	"nandu/api/internal/middleware"
	"nandu/api/internal/models"
	"nandu/api/internal/repository"
	"nandu/api/internal/service"
	"nandu/api/internal/social"
	"nandu/api/internal/storage"
)

// PostStore is the slice of the post repository the handlers need.
type PostStore interface {
	Create(ctx context.Context, post models.Post) error
	GetByID(ctx context.Context, id string) (models.Post, error)
	List(ctx context.Context, limit int, offset int) ([]models.Post, error)
	ListByUser(ctx context.Context, userID string) ([]models.Post, error)
	Update(ctx context.Context, id string, update repository.PostUpdate) (models.Post, error)
	Delete(ctx context.Context, id string) error
	Like(ctx context.Context, postID string, userID string) error
	Unlike(ctx context.Context, postID string, userID string) error
	AddComment(ctx context.Context, postID string, comment models.Comment) error
	RemoveComment(ctx context.Context, postID string, commentID string) error
}

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	authService *service.AuthService
	users       *repository.UserRepository
	posts       PostStore
	photos      *storage.ObjectStore
	db          *pgxpool.Pool
	cache       *redis.Client
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, photos *storage.ObjectStore, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	resolver := social.NewResolver(cfg.Social)
	mailer := mail.NewOutbox(cache, cfg.Mail.Stream, log)
	auth := service.NewAuthService(userRepo, resolver, mailer, cfg, log)

	return HandlerSet{
		log:         log,
		cfg:         cfg,
		authService: auth,
		users:       userRepo,
		posts:       postRepo,
		photos:      photos,
		db:          db,
		cache:       cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	authed := middleware.Auth(h.cfg, h.users)
	throttle := middleware.SigninRateLimit(h.cache, h.cfg.Security.SigninMaxAttempts, h.cfg.Security.SigninWindow, h.log)

	router.POST("/signup", h.Signup)
	router.POST("/signin", throttle, h.Signin)
	router.GET("/signout", h.Signout)
	router.POST("/social-login", throttle, h.SocialLogin)
	router.PUT("/forgot-password", h.ForgotPassword)
	router.PUT("/reset-password", h.ResetPassword)

	router.GET("/users", h.ListUsers)
	router.GET("/user/:userId", authed, h.GetUser)
	router.PUT("/user/:userId", authed, h.UpdateUser)
	router.DELETE("/user/:userId", authed, h.DeleteUser)
	router.GET("/user/photo/:userId", h.UserPhoto)
	router.PUT("/user/follow", authed, h.Follow)
	router.PUT("/user/unfollow", authed, h.Unfollow)
	router.GET("/user/findpeople/:userId", authed, h.FindPeople)

	router.GET("/posts", h.ListPosts)
	router.POST("/post/new/:userId", authed, h.CreatePost)
	router.GET("/posts/by/:userId", authed, h.PostsByUser)
	router.GET("/post/:postId", h.SinglePost)
	router.PUT("/post/:postId", authed, h.UpdatePost)
	router.DELETE("/post/:postId", authed, h.DeletePost)
	router.GET("/post/photo/:postId", h.PostPhoto)
	router.PUT("/post/like", authed, h.Like)
	router.PUT("/post/unlike", authed, h.Unlike)
	router.PUT("/post/comment", authed, h.Comment)
	router.PUT("/post/uncomment", authed, h.Uncomment)
}

func currentUser(c *gin.Context) (models.User, bool) {
	userVal, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := userVal.(models.User)
	return user, ok
}

// internalError logs the cause and answers with a generic failure so internal
// detail never reaches the client.
func (h HandlerSet) internalError(c *gin.Context, err error) {
	h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
}

type uploadedPhoto struct {
	data        []byte
	contentType string
}

const maxPhotoBytes = 8 << 20

// photoFromForm extracts an optional "photo" part from a multipart form and
// rejects anything that does not sniff as an image.
func photoFromForm(c *gin.Context) (*uploadedPhoto, error) {
	file, _, err := c.Request.FormFile("photo")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	data, err := readLimited(file, maxPhotoBytes)
	if err != nil {
		return nil, err
	}

	contentType := http.DetectContentType(data)
	if len(contentType) < 6 || contentType[:6] != "image/" {
		return nil, errors.New("photo must be an image")
	}

	return &uploadedPhoto{data: data, contentType: contentType}, nil
}

func readLimited(file multipart.File, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.New("photo too large")
	}
	return data, nil
}
