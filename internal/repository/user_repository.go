package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"nandu/api/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned for any unique-violation on the email column,
	// including the loser of a concurrent-signup race. The unique index is the
	// source of truth; no preceding read is trusted.
	ErrEmailTaken = errors.New("email already taken")
)

const userColumns = `id, name, email, role, password_hash, about, photo_key, photo_type, reset_token, reset_token_at, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.About,
		&user.PhotoKey,
		&user.PhotoType,
		&user.ResetToken,
		&user.ResetTokenAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, name, email, role, password_hash, about, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Role,
		user.PasswordHash,
		user.About,
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

// UpsertByEmail atomically creates or merges an account keyed by its verified
// email. On conflict only the display name is merged; id, role and password
// are never overwritten by a federated assertion. The returned row is the
// surviving account either way, which makes concurrent federated logins for
// the same email converge on a single record.
func (r *UserRepository) UpsertByEmail(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO users (
			id, name, email, role, password_hash, about, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW()
		)
		ON CONFLICT (email)
		DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = NOW()
		RETURNING ` + userColumns

	return scanUser(r.pool.QueryRow(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Role,
		user.PasswordHash,
		user.About,
	))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetWithFollows loads a user together with follower/following references.
func (r *UserRepository) GetWithFollows(ctx context.Context, id string) (models.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	if user.Followers, err = r.followRefs(ctx, id, true); err != nil {
		return models.User{}, err
	}
	if user.Following, err = r.followRefs(ctx, id, false); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) followRefs(ctx context.Context, userID string, followers bool) ([]models.UserRef, error) {
	query := `
		SELECT u.id, u.name FROM users u
		JOIN user_follows f ON f.follower_id = u.id
		WHERE f.followee_id = $1
		ORDER BY f.created_at
	`
	if !followers {
		query = `
			SELECT u.id, u.name FROM users u
			JOIN user_follows f ON f.followee_id = u.id
			WHERE f.follower_id = $1
			ORDER BY f.created_at
		`
	}

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []models.UserRef
	for rows.Next() {
		var ref models.UserRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type ProfileUpdate struct {
	Name      *string
	About     *string
	PhotoKey  *string
	PhotoType *string
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (models.User, error) {
	const query = `
		UPDATE users SET
			name = COALESCE($2, name),
			about = COALESCE($3, about),
			photo_key = COALESCE($4, photo_key),
			photo_type = COALESCE($5, photo_type),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUser(r.pool.QueryRow(ctx, query, id, update.Name, update.About, update.PhotoKey, update.PhotoType))
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetResetToken stores the outstanding reset credential in a single write.
// Issuing a new token invalidates any previous one by overwriting it.
func (r *UserRepository) SetResetToken(ctx context.Context, id string, token string) error {
	const query = `
		UPDATE users SET reset_token = $2, reset_token_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, token)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) FindByResetToken(ctx context.Context, token string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE reset_token = $1`
	return scanUser(r.pool.QueryRow(ctx, query, token))
}

// ConsumeResetToken sets the new password hash and clears the reset token in
// one statement, conditioned on the token still being the stored one. Zero
// rows affected means the token was already consumed or superseded.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, id string, token string, passwordHash []byte) error {
	const query = `
		UPDATE users SET
			password_hash = $3,
			reset_token = NULL,
			reset_token_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND reset_token = $2
	`
	cmd, err := r.pool.Exec(ctx, query, id, token, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ClearExpiredResetTokens drops reset credentials older than the given age.
func (r *UserRepository) ClearExpiredResetTokens(ctx context.Context, maxAge time.Duration) (int64, error) {
	const query = `
		UPDATE users SET reset_token = NULL, reset_token_at = NULL
		WHERE reset_token IS NOT NULL AND reset_token_at < NOW() - make_interval(secs => $1)
	`
	cmd, err := r.pool.Exec(ctx, query, maxAge.Seconds())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *UserRepository) Follow(ctx context.Context, followerID string, followeeID string) error {
	const query = `
		INSERT INTO user_follows (follower_id, followee_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, followerID, followeeID)
	return err
}

func (r *UserRepository) Unfollow(ctx context.Context, followerID string, followeeID string) error {
	const query = `DELETE FROM user_follows WHERE follower_id = $1 AND followee_id = $2`
	_, err := r.pool.Exec(ctx, query, followerID, followeeID)
	return err
}

// FindPeople suggests users the given user does not follow yet.
func (r *UserRepository) FindPeople(ctx context.Context, userID string) ([]models.UserRef, error) {
	const query = `
		SELECT id, name FROM users
		WHERE id != $1 AND id NOT IN (
			SELECT followee_id FROM user_follows WHERE follower_id = $1
		)
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []models.UserRef
	for rows.Next() {
		var ref models.UserRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
