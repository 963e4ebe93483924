package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"familybook/models"
	"familybook/utils"
)

const postColumns = "p.id, p.content, p.created_at, p.is_gift, p.is_opened, p.opened_at, p.author_id"

func scanPost(row rowScanner) (models.Post, error) {
	var p models.Post
	var content sql.NullString
	var openedAt sql.NullTime
	author, err := scanUser(row, &p.ID, &content, &p.CreatedAt, &p.IsGift, &p.IsOpened, &openedAt, &p.AuthorID)
	if err != nil {
		return p, err
	}
	p.Content = content.String
	if openedAt.Valid {
		t := openedAt.Time
		p.OpenedAt = &t
	}
	p.Author = &author
	return p, nil
}

// InsertPost adds p inside tx and sets its ID. Gift posts start unopened.
func (ds *DatabaseService) InsertPost(ctx context.Context, tx *sql.Tx, p *models.Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = utils.GetSQLTime()
	}
	p.IsOpened = !p.IsGift
	var openedAt sql.NullTime
	if p.IsOpened {
		openedAt = sql.NullTime{Time: p.CreatedAt, Valid: true}
		t := p.CreatedAt
		p.OpenedAt = &t
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO post (content, created_at, is_gift, is_opened, opened_at, author_id) VALUES (?, ?, ?, ?, ?, ?)",
		nullString(p.Content), p.CreatedAt, p.IsGift, p.IsOpened, openedAt, p.AuthorID)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", mapConstraintErr(err))
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return nil
}

// InsertPostImage adds img inside tx and sets its ID.
func (ds *DatabaseService) InsertPostImage(ctx context.Context, tx *sql.Tx, img *models.PostImage) error {
	res, err := tx.ExecContext(ctx, "INSERT INTO post_image (url, post_id) VALUES (?, ?)", img.URL, img.PostID)
	if err != nil {
		return fmt.Errorf("failed to insert image for post %d: %w", img.PostID, mapConstraintErr(err))
	}
	if img.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return nil
}

// GetPost loads a post with its author, images, comments and likes.
func (ds *DatabaseService) GetPost(ctx context.Context, postID int64) (*models.Post, error) {
	posts, err := ds.queryPosts(ctx, "WHERE p.id = ?", postID)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	return &posts[0], nil
}

// ListFeed returns posts newest first.
func (ds *DatabaseService) ListFeed(ctx context.Context, limit, offset int) ([]models.Post, error) {
	return ds.queryPosts(ctx, "ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?", limit, offset)
}

// ListPostsByAuthor returns one page of a user's posts newest first.
func (ds *DatabaseService) ListPostsByAuthor(ctx context.Context, authorID int64, limit, offset int) ([]models.Post, error) {
	return ds.queryPosts(ctx, "WHERE p.author_id = ? ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?", authorID, limit, offset)
}

func (ds *DatabaseService) queryPosts(ctx context.Context, clause string, args ...any) ([]models.Post, error) {
	rows, err := ds.DB.QueryContext(ctx, "SELECT "+userColumns+", "+postColumns+" FROM post p JOIN user u ON u.id = p.author_id "+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer closeRows(rows, ds.logger, "queryPosts")

	var posts []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return posts, nil
	}

	postMap := make(map[int64]*models.Post, len(posts))
	postIDs := make([]any, 0, len(posts))
	for i := range posts {
		postMap[posts[i].ID] = &posts[i]
		postIDs = append(postIDs, posts[i].ID)
	}

	if err := ds.fetchAndAssignImages(ctx, postIDs, postMap); err != nil {
		return nil, err
	}
	if err := ds.fetchAndAssignComments(ctx, postIDs, postMap); err != nil {
		return nil, err
	}
	if err := ds.fetchAndAssignLikes(ctx, postIDs, postMap); err != nil {
		return nil, err
	}
	return posts, nil
}

func (ds *DatabaseService) fetchAndAssignImages(ctx context.Context, postIDs []any, postMap map[int64]*models.Post) error {
	rows, err := ds.DB.QueryContext(ctx, "SELECT id, url, post_id FROM post_image WHERE post_id IN ("+inPlaceholders(len(postIDs))+") ORDER BY id ASC", postIDs...)
	if err != nil {
		return fmt.Errorf("failed to query post images: %w", err)
	}
	defer closeRows(rows, ds.logger, "fetchAndAssignImages")

	for rows.Next() {
		var img models.PostImage
		if err := rows.Scan(&img.ID, &img.URL, &img.PostID); err != nil {
			return fmt.Errorf("failed to scan post image: %w", err)
		}
		if post, ok := postMap[img.PostID]; ok {
			post.Images = append(post.Images, img)
		}
	}
	return rows.Err()
}

func (ds *DatabaseService) fetchAndAssignComments(ctx context.Context, postIDs []any, postMap map[int64]*models.Post) error {
	rows, err := ds.DB.QueryContext(ctx, `
		SELECT `+userColumns+`, c.id, c.content, c.created_at, c.post_id, c.author_id
		FROM comment c JOIN user u ON u.id = c.author_id
		WHERE c.post_id IN (`+inPlaceholders(len(postIDs))+`)
		ORDER BY c.created_at ASC, c.id ASC`, postIDs...)
	if err != nil {
		return fmt.Errorf("failed to query comments: %w", err)
	}
	defer closeRows(rows, ds.logger, "fetchAndAssignComments")

	for rows.Next() {
		var c models.Comment
		author, err := scanUser(rows, &c.ID, &c.Content, &c.CreatedAt, &c.PostID, &c.AuthorID)
		if err != nil {
			return fmt.Errorf("failed to scan comment: %w", err)
		}
		c.Author = &author
		if post, ok := postMap[c.PostID]; ok {
			post.Comments = append(post.Comments, c)
		}
	}
	return rows.Err()
}

func (ds *DatabaseService) fetchAndAssignLikes(ctx context.Context, postIDs []any, postMap map[int64]*models.Post) error {
	rows, err := ds.DB.QueryContext(ctx, "SELECT user_id, post_id FROM post_like WHERE post_id IN ("+inPlaceholders(len(postIDs))+") ORDER BY user_id ASC", postIDs...)
	if err != nil {
		return fmt.Errorf("failed to query likes: %w", err)
	}
	defer closeRows(rows, ds.logger, "fetchAndAssignLikes")

	for rows.Next() {
		var like models.Like
		if err := rows.Scan(&like.UserID, &like.PostID); err != nil {
			return fmt.Errorf("failed to scan like: %w", err)
		}
		if post, ok := postMap[like.PostID]; ok {
			post.LikedBy = append(post.LikedBy, like.UserID)
		}
	}
	return rows.Err()
}

// DeletePost removes the post row; images, comments and likes go with it via
// ON DELETE CASCADE. It reports whether a row existed.
func (ds *DatabaseService) DeletePost(ctx context.Context, postID int64) (bool, error) {
	res, err := ds.DB.ExecContext(ctx, "DELETE FROM post WHERE id = ?", postID)
	if err != nil {
		return false, fmt.Errorf("failed to delete post %d: %w", postID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OpenGift marks an unopened gift as opened. It reports whether anything changed.
func (ds *DatabaseService) OpenGift(ctx context.Context, postID int64, at time.Time) (bool, error) {
	res, err := ds.DB.ExecContext(ctx, "UPDATE post SET is_opened = 1, opened_at = ? WHERE id = ? AND is_gift = 1 AND is_opened = 0", at, postID)
	if err != nil {
		return false, fmt.Errorf("failed to open gift %d: %w", postID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ToggleLike flips the (user, post) association and reports whether the
// post is liked afterwards.
func (ds *DatabaseService) ToggleLike(ctx context.Context, userID, postID int64) (bool, error) {
	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer ds.rollback(tx, "ToggleLike")

	res, err := tx.ExecContext(ctx, "DELETE FROM post_like WHERE user_id = ? AND post_id = ?", userID, postID)
	if err != nil {
		return false, fmt.Errorf("failed to remove like: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	liked := removed == 0
	if liked {
		if _, err := tx.ExecContext(ctx, "INSERT INTO post_like (user_id, post_id) VALUES (?, ?)", userID, postID); err != nil {
			return false, fmt.Errorf("failed to add like: %w", mapConstraintErr(err))
		}
	}
	return liked, tx.Commit()
}

// AddComment inserts c and sets its ID and timestamp. A missing post or
// author yields ErrNotFound.
func (ds *DatabaseService) AddComment(ctx context.Context, c *models.Comment) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.GetSQLTime()
	}
	res, err := ds.DB.ExecContext(ctx,
		"INSERT INTO comment (content, created_at, post_id, author_id) VALUES (?, ?, ?, ?)",
		c.Content, c.CreatedAt, c.PostID, c.AuthorID)
	if err != nil {
		return fmt.Errorf("failed to insert comment on post %d: %w", c.PostID, mapConstraintErr(err))
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return nil
}
