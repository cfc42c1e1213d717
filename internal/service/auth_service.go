package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"nandu/api/internal/config"
	"nandu/api/internal/ids"
	"nandu/api/internal/mail"
	"nandu/api/internal/models"
	"nandu/api/internal/repository"
	"nandu/api/internal/security"
	"nandu/api/internal/social"
)

var (
	// ErrInvalidCredentials is deliberately undifferentiated: an unknown
	// email and a wrong password produce the same failure, so the endpoint
	// cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrInvalidResetToken = errors.New("invalid or expired reset link")
)

// UserStore is the slice of the account repository the authenticator needs.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	UpsertByEmail(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	SetResetToken(ctx context.Context, id string, token string) error
	FindByResetToken(ctx context.Context, token string) (models.User, error)
	ConsumeResetToken(ctx context.Context, id string, token string, passwordHash []byte) error
}

// IdentityResolver exchanges a federated login assertion for a verified profile.
type IdentityResolver interface {
	Resolve(ctx context.Context, assertion social.Assertion) (social.Profile, error)
}

type AuthService struct {
	users    UserStore
	resolver IdentityResolver
	mailer   mail.Mailer
	cfg      *config.AppConfig
	log      zerolog.Logger

	// decoyHash absorbs a verification round for unknown emails so signin
	// latency does not reveal whether the account exists.
	decoyHash []byte
}

func NewAuthService(users UserStore, resolver IdentityResolver, mailer mail.Mailer, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	decoy, err := security.HashPassword(ids.New())
	if err != nil {
		log.Warn().Err(err).Msg("decoy hash generation failed")
	}
	return &AuthService{
		users:     users,
		resolver:  resolver,
		mailer:    mailer,
		cfg:       cfg,
		log:       log,
		decoyHash: decoy,
	}
}

type SignupInput struct {
	Email    string
	Name     string
	Password string
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// Signup creates a local account. Uniqueness rests entirely on the store's
// unique email index: a concurrent duplicate surfaces as ErrEmailTaken from
// the insert, never as a trusted pre-read.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (models.User, error) {
	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           ids.New(),
		Name:         input.Name,
		Email:        normalizeEmail(input.Email),
		Role:         models.UserRoleUser,
		PasswordHash: passwordHash,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Signin verifies local credentials and issues a session token.
func (s *AuthService) Signin(ctx context.Context, email string, password string) (string, models.User, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			security.VerifyPassword(password, s.decoyHash)
			return "", models.User{}, ErrInvalidCredentials
		}
		return "", models.User{}, err
	}

	if !security.VerifyPassword(password, user.PasswordHash) {
		return "", models.User{}, ErrInvalidCredentials
	}

	token, err := security.GenerateSessionToken(s.cfg.Security.JWTSecret, user.ID, s.cfg.Security.SessionTTL)
	if err != nil {
		return "", models.User{}, err
	}
	return token, user, nil
}

// SocialLogin resolves a provider assertion and reconciles it against the
// account store. The upsert is keyed by the verified email, so two concurrent
// logins for the same identity converge on one record. Federated-only
// accounts receive a synthesized password derived from the email and the
// signing secret, keeping the record shape uniform.
func (s *AuthService) SocialLogin(ctx context.Context, assertion social.Assertion) (string, models.User, error) {
	profile, err := s.resolver.Resolve(ctx, assertion)
	if err != nil {
		return "", models.User{}, err
	}

	synthesized, err := security.HashPassword(profile.Email + s.cfg.Security.JWTSecret)
	if err != nil {
		return "", models.User{}, fmt.Errorf("synthesize password: %w", err)
	}

	user, err := s.users.UpsertByEmail(ctx, models.User{
		ID:           ids.New(),
		Name:         profile.Name,
		Email:        normalizeEmail(profile.Email),
		Role:         models.UserRoleUser,
		PasswordHash: synthesized,
	})
	if err != nil {
		return "", models.User{}, err
	}

	token, err := security.GenerateSessionToken(s.cfg.Security.JWTSecret, user.ID, s.cfg.Security.SessionTTL)
	if err != nil {
		return "", models.User{}, err
	}
	return token, user, nil
}

// ForgotPassword issues a reset token, stores it on the account and hands the
// reset email to the delivery collaborator. A delivery failure does not roll
// back the stored token; the user can simply request another mail.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}

	token, err := security.GenerateResetToken(s.cfg.Security.JWTSecret, user.ID, s.cfg.Security.ResetTTL)
	if err != nil {
		return err
	}

	if err := s.users.SetResetToken(ctx, user.ID, token); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password/%s", strings.TrimRight(s.cfg.Client.BaseURL, "/"), token)
	msg := mail.Message{
		From:    s.cfg.Mail.From,
		To:      user.Email,
		Subject: "Password Reset Instructions",
		Text:    "Click the provided link to reset your password.",
		HTML:    fmt.Sprintf("<h2>Please use the following link to reset your password:</h2><p>%s</p>", link),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("reset mail enqueue failed")
	}
	return nil
}

// ResetPassword consumes an outstanding reset token. The presented token must
// byte-match the stored one and carry a valid signature; the password write
// and the token clear happen in one store update, so a token can be spent at
// most once.
func (s *AuthService) ResetPassword(ctx context.Context, presentedToken string, newPassword string) error {
	user, err := s.users.FindByResetToken(ctx, presentedToken)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	if user.ResetToken == nil {
		return ErrInvalidResetToken
	}
	if _, ok := security.VerifyResetToken(presentedToken, *user.ResetToken, s.cfg.Security.JWTSecret); !ok {
		return ErrInvalidResetToken
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.ConsumeResetToken(ctx, user.ID, presentedToken, passwordHash); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Lost the race against a concurrent consume of the same token.
			return ErrInvalidResetToken
		}
		return err
	}
	return nil
}
