package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nandu/api/internal/config"
	"nandu/api/internal/mail"
	"nandu/api/internal/models"
	"nandu/api/internal/repository"
	"nandu/api/internal/security"
	"nandu/api/internal/social"
)

// fakeUserStore is an in-memory UserStore with the same uniqueness and
// conditional-update semantics the postgres repository gets from its schema.
type fakeUserStore struct {
	mu      sync.Mutex
	byID    map[string]models.User
	byEmail map[string]string
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byID:    make(map[string]models.User),
		byEmail: make(map[string]string),
	}
}

func (s *fakeUserStore) Create(ctx context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[user.Email]; taken {
		return repository.ErrEmailTaken
	}
	s.byEmail[user.Email] = user.ID
	s.byID[user.ID] = user
	return nil
}

func (s *fakeUserStore) UpsertByEmail(ctx context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEmail[user.Email]; ok {
		existing := s.byID[id]
		existing.Name = user.Name
		s.byID[id] = existing
		return existing, nil
	}
	s.byEmail[user.Email] = user.ID
	s.byID[user.ID] = user
	return user, nil
}

func (s *fakeUserStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *fakeUserStore) GetByID(ctx context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeUserStore) SetResetToken(ctx context.Context, id string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	now := time.Now()
	user.ResetToken = &token
	user.ResetTokenAt = &now
	s.byID[id] = user
	return nil
}

func (s *fakeUserStore) FindByResetToken(ctx context.Context, token string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.byID {
		if user.ResetToken != nil && *user.ResetToken == token {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *fakeUserStore) ConsumeResetToken(ctx context.Context, id string, token string, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok || user.ResetToken == nil || *user.ResetToken != token {
		return repository.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.ResetToken = nil
	user.ResetTokenAt = nil
	s.byID[id] = user
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *fakeMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type fakeResolver struct {
	profile social.Profile
	err     error
}

func (r *fakeResolver) Resolve(ctx context.Context, assertion social.Assertion) (social.Profile, error) {
	if r.err != nil {
		return social.Profile{}, r.err
	}
	return r.profile, nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			JWTSecret:  "test-secret",
			SessionTTL: time.Hour,
			ResetTTL:   time.Hour,
		},
		Mail:   config.MailConfig{From: "noreply@nandu.test"},
		Client: config.ClientConfig{BaseURL: "http://localhost:3000"},
	}
}

func newTestService(store UserStore, resolver IdentityResolver, mailer mail.Mailer) *AuthService {
	if mailer == nil {
		mailer = &fakeMailer{}
	}
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	return NewAuthService(store, resolver, mailer, testConfig(), zerolog.Nop())
}

func TestSignupSigninRoundTrip(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	user, err := svc.Signup(ctx, SignupInput{Email: "Ada@Example.com", Name: "Ada", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}

	token, signedIn, err := svc.Signin(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}
	if signedIn.ID != user.ID {
		t.Fatalf("signed in as %q, want %q", signedIn.ID, user.ID)
	}

	subject, err := security.ParseSessionToken(token, "test-secret")
	if err != nil {
		t.Fatalf("ParseSessionToken: %v", err)
	}
	if subject != user.ID {
		t.Fatalf("token subject %q, want %q", subject, user.ID)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, SignupInput{Email: "ada@example.com", Name: "Ada", Password: "pw-one"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := svc.Signup(ctx, SignupInput{Email: "ADA@example.com", Name: "Imposter", Password: "pw-two"}); !errors.Is(err, repository.ErrEmailTaken) {
		t.Fatalf("got %v, want ErrEmailTaken", err)
	}
}

func TestSignupConcurrentSameEmail(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Signup(ctx, SignupInput{Email: "race@example.com", Name: "Racer", Password: "pw"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var created, taken int
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, repository.ErrEmailTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 || taken != attempts-1 {
		t.Fatalf("created=%d taken=%d, want 1 and %d", created, taken, attempts-1)
	}
}

func TestSigninUndifferentiatedFailure(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, SignupInput{Email: "ada@example.com", Name: "Ada", Password: "right-pass"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}

	if _, _, err := svc.Signin(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Signin(ctx, "ada@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
}

func TestSocialLoginIdempotent(t *testing.T) {
	store := newFakeUserStore()
	resolver := &fakeResolver{profile: social.Profile{Email: "Ada@Example.com", Name: "Ada Lovelace"}}
	svc := newTestService(store, resolver, nil)
	ctx := context.Background()

	assertion := social.Assertion{IDToken: "opaque"}

	_, first, err := svc.SocialLogin(ctx, assertion)
	if err != nil {
		t.Fatalf("first SocialLogin: %v", err)
	}
	token, second, err := svc.SocialLogin(ctx, assertion)
	if err != nil {
		t.Fatalf("second SocialLogin: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("repeated login produced two accounts: %q vs %q", first.ID, second.ID)
	}
	if len(store.byID) != 1 {
		t.Fatalf("store holds %d accounts, want 1", len(store.byID))
	}
	if subject, err := security.ParseSessionToken(token, "test-secret"); err != nil || subject != first.ID {
		t.Fatalf("token subject %q (%v), want %q", subject, err, first.ID)
	}
}

func TestSocialLoginResolverFailure(t *testing.T) {
	store := newFakeUserStore()
	resolver := &fakeResolver{err: social.ErrUnverifiedEmail}
	svc := newTestService(store, resolver, nil)

	if _, _, err := svc.SocialLogin(context.Background(), social.Assertion{IDToken: "opaque"}); !errors.Is(err, social.ErrUnverifiedEmail) {
		t.Fatalf("got %v, want ErrUnverifiedEmail", err)
	}
	if len(store.byID) != 0 {
		t.Fatal("account created from a failed assertion")
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	store := newFakeUserStore()
	mailer := &fakeMailer{}
	svc := newTestService(store, nil, mailer)
	ctx := context.Background()

	user, err := svc.Signup(ctx, SignupInput{Email: "ada@example.com", Name: "Ada", Password: "old-pass"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	if err := svc.ForgotPassword(ctx, "ada@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mailer.sent))
	}
	if mailer.sent[0].To != "ada@example.com" {
		t.Fatalf("mail sent to %q", mailer.sent[0].To)
	}

	stored, err := store.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.ResetToken == nil {
		t.Fatal("no reset token stored")
	}
	token := *stored.ResetToken
	if !strings.Contains(mailer.sent[0].HTML, token) {
		t.Fatal("reset mail does not carry the token link")
	}

	if err := svc.ResetPassword(ctx, token, "new-pass"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	if _, _, err := svc.Signin(ctx, "ada@example.com", "old-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, _, err := svc.Signin(ctx, "ada@example.com", "new-pass"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestResetPasswordSingleUse(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	user, err := svc.Signup(ctx, SignupInput{Email: "ada@example.com", Name: "Ada", Password: "old-pass"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if err := svc.ForgotPassword(ctx, "ada@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	stored, err := store.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	token := *stored.ResetToken

	if err := svc.ResetPassword(ctx, token, "first-new"); err != nil {
		t.Fatalf("first ResetPassword: %v", err)
	}
	if err := svc.ResetPassword(ctx, token, "second-new"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("replay: got %v, want ErrInvalidResetToken", err)
	}
	if _, _, err := svc.Signin(ctx, "ada@example.com", "second-new"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("replayed reset changed the password")
	}
}

func TestResetPasswordBogusToken(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil, nil)

	if err := svc.ResetPassword(context.Background(), "not-a-real-token", "pw"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("got %v, want ErrInvalidResetToken", err)
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	store := newFakeUserStore()
	mailer := &fakeMailer{}
	svc := newTestService(store, nil, mailer)

	if err := svc.ForgotPassword(context.Background(), "nobody@example.com"); !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatal("mail sent for unknown account")
	}
}
