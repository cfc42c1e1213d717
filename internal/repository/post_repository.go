package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nandu/api/internal/models"
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrCommentNotFound = errors.New("comment not found")
)

type PostRepository struct {
	pool *pgxpool.Pool
}

func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

const postColumns = `p.id, p.title, p.body, p.photo_key, p.photo_type, p.created_at, p.updated_at, u.id, u.name`

func scanPost(row pgx.Row) (models.Post, error) {
	var post models.Post
	err := row.Scan(
		&post.ID,
		&post.Title,
		&post.Body,
		&post.PhotoKey,
		&post.PhotoType,
		&post.CreatedAt,
		&post.UpdatedAt,
		&post.PostedBy.ID,
		&post.PostedBy.Name,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, ErrPostNotFound
		}
		return models.Post{}, err
	}
	return post, nil
}

func (r *PostRepository) Create(ctx context.Context, post models.Post) error {
	const query = `
		INSERT INTO posts (
			id, title, body, posted_by, photo_key, photo_type, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		post.ID,
		post.Title,
		post.Body,
		post.PostedBy.ID,
		post.PhotoKey,
		post.PhotoType,
	)
	return err
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (models.Post, error) {
	const query = `
		SELECT ` + postColumns + `
		FROM posts p JOIN users u ON u.id = p.posted_by
		WHERE p.id = $1
	`

	post, err := scanPost(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return models.Post{}, err
	}
	return r.attachEngagement(ctx, post)
}

func (r *PostRepository) attachEngagement(ctx context.Context, post models.Post) (models.Post, error) {
	likes, err := r.likes(ctx, post.ID)
	if err != nil {
		return models.Post{}, err
	}
	post.Likes = likes

	comments, err := r.comments(ctx, post.ID)
	if err != nil {
		return models.Post{}, err
	}
	post.Comments = comments
	return post, nil
}

func (r *PostRepository) likes(ctx context.Context, postID string) ([]string, error) {
	const query = `SELECT user_id FROM post_likes WHERE post_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var likes []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		likes = append(likes, userID)
	}
	return likes, rows.Err()
}

func (r *PostRepository) comments(ctx context.Context, postID string) ([]models.Comment, error) {
	const query = `
		SELECT c.id, c.text, c.created_at, u.id, u.name
		FROM post_comments c JOIN users u ON u.id = c.user_id
		WHERE c.post_id = $1
		ORDER BY c.created_at
	`

	rows, err := r.pool.Query(ctx, query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var comment models.Comment
		if err := rows.Scan(&comment.ID, &comment.Text, &comment.CreatedAt, &comment.PostedBy.ID, &comment.PostedBy.Name); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

func (r *PostRepository) List(ctx context.Context, limit int, offset int) ([]models.Post, error) {
	const query = `
		SELECT ` + postColumns + `
		FROM posts p JOIN users u ON u.id = p.posted_by
		ORDER BY p.created_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.queryPosts(ctx, query, limit, offset)
}

func (r *PostRepository) ListByUser(ctx context.Context, userID string) ([]models.Post, error) {
	const query = `
		SELECT ` + postColumns + `
		FROM posts p JOIN users u ON u.id = p.posted_by
		WHERE p.posted_by = $1
		ORDER BY p.created_at DESC
	`
	return r.queryPosts(ctx, query, userID)
}

func (r *PostRepository) queryPosts(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range posts {
		if posts[i], err = r.attachEngagement(ctx, posts[i]); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

type PostUpdate struct {
	Title     *string
	Body      *string
	PhotoKey  *string
	PhotoType *string
}

func (r *PostRepository) Update(ctx context.Context, id string, update PostUpdate) (models.Post, error) {
	const query = `
		UPDATE posts SET
			title = COALESCE($2, title),
			body = COALESCE($3, body),
			photo_key = COALESCE($4, photo_key),
			photo_type = COALESCE($5, photo_type),
			updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, update.Title, update.Body, update.PhotoKey, update.PhotoType)
	if err != nil {
		return models.Post{}, err
	}
	if cmd.RowsAffected() == 0 {
		return models.Post{}, ErrPostNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM posts WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *PostRepository) Like(ctx context.Context, postID string, userID string) error {
	const query = `
		INSERT INTO post_likes (post_id, user_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, postID, userID)
	return err
}

func (r *PostRepository) Unlike(ctx context.Context, postID string, userID string) error {
	const query = `DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`
	_, err := r.pool.Exec(ctx, query, postID, userID)
	return err
}

func (r *PostRepository) AddComment(ctx context.Context, postID string, comment models.Comment) error {
	const query = `
		INSERT INTO post_comments (id, post_id, user_id, text, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.pool.Exec(ctx, query, comment.ID, postID, comment.PostedBy.ID, comment.Text)
	return err
}

func (r *PostRepository) RemoveComment(ctx context.Context, postID string, commentID string) error {
	const query = `DELETE FROM post_comments WHERE id = $1 AND post_id = $2`
	cmd, err := r.pool.Exec(ctx, query, commentID, postID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCommentNotFound
	}
	return nil
}
