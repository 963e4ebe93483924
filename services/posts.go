package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"familybook/config"
	"familybook/database"
	"familybook/media"
	"familybook/metrics"
	"familybook/models"
	"familybook/utils"
)

// NewPost is the input of PostService.Create.
type NewPost struct {
	AuthorID int64
	Content  string
	IsGift   bool
	Files    []Upload
}

// CreateResult describes a committed post. Failed lists uploads that were
// skipped because they could not be stored.
type CreateResult struct {
	PostID int64
	Stored int
	Failed []string
}

type PostService struct {
	db     *database.DatabaseService
	store  media.Store
	logger *slog.Logger
}

func NewPostService(db *database.DatabaseService, store media.Store, logger *slog.Logger) *PostService {
	return &PostService{db: db, store: store, logger: logger.With("service", "posts")}
}

// Create stores the uploads first and then writes the post row and one image
// row per stored upload in a single transaction, so no write lock is held
// while images are processed. Individual uploads that cannot be stored are
// skipped. If the transaction does not commit, every file written for it is
// removed again.
func (s *PostService) Create(ctx context.Context, in NewPost) (CreateResult, error) {
	var result CreateResult

	content := CleanText(in.Content)
	if utf8.RuneCountInString(content) > config.MaxPostLen {
		return result, fmt.Errorf("%w: post is longer than %d characters", ErrInvalidInput, config.MaxPostLen)
	}

	var (
		tx        *sql.Tx
		written   []string
		committed bool
	)
	defer func() {
		if committed {
			return
		}
		if tx != nil {
			if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
				s.logger.Error("Failed to rollback transaction in Create", "error", rerr)
			}
		}
		// The request context may already be cancelled; cleanup must still run.
		cleanupCtx := context.WithoutCancel(ctx)
		for _, url := range written {
			if derr := s.store.Delete(cleanupCtx, media.Posts, url); derr != nil {
				s.logger.Warn("Failed to remove image of rolled back post", "url", url, "error", derr)
				continue
			}
			metrics.ImagesProcessed.WithLabelValues(string(media.Posts), "cleaned").Inc()
		}
		metrics.PostEvents.WithLabelValues("rolled_back").Inc()
	}()

	for _, file := range in.Files {
		if file.Filename == "" {
			continue
		}
		url, err := s.storeUpload(ctx, media.Posts, file)
		if err != nil {
			s.logger.Warn("Skipping upload", "author_id", in.AuthorID, "filename", file.Filename, "error", err)
			result.Failed = append(result.Failed, file.Filename)
			continue
		}
		written = append(written, url)
	}

	var err error
	tx, err = s.db.BeginTx(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin post transaction: %w", err)
	}

	post := &models.Post{
		AuthorID:  in.AuthorID,
		Content:   content,
		IsGift:    in.IsGift,
		CreatedAt: utils.GetSQLTime(),
	}
	if err := s.db.InsertPost(ctx, tx, post); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return result, fmt.Errorf("%w: unknown author %d", ErrInvalidInput, in.AuthorID)
		}
		return result, err
	}

	for _, url := range written {
		img := &models.PostImage{URL: url, PostID: post.ID}
		if err := s.db.InsertPostImage(ctx, tx, img); err != nil {
			return result, fmt.Errorf("failed to record image for post %d: %w", post.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit post: %w", err)
	}
	committed = true
	result.PostID = post.ID
	result.Stored = len(written)

	metrics.PostEvents.WithLabelValues("created").Inc()
	logAction(s.logger, in.AuthorID, "POST_CREATE", "post_id", post.ID, "images", result.Stored, "failed", len(result.Failed), "gift", in.IsGift)
	return result, nil
}

// storeUpload validates, opens and stores one upload, returning its public URL.
func (s *PostService) storeUpload(ctx context.Context, class media.AssetClass, file Upload) (string, error) {
	if !allowedUpload(file.Filename) {
		metrics.ImagesProcessed.WithLabelValues(string(class), "rejected").Inc()
		return "", fmt.Errorf("%w: extension not allowed", ErrInvalidInput)
	}
	src, err := file.Open()
	if err != nil {
		metrics.ImagesProcessed.WithLabelValues(string(class), "failed").Inc()
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	url, err := s.store.SaveImage(ctx, class, src)
	if err != nil {
		metrics.ImagesProcessed.WithLabelValues(string(class), "failed").Inc()
		return "", err
	}
	metrics.ImagesProcessed.WithLabelValues(string(class), "stored").Inc()
	return url, nil
}

// Delete removes a post with all of its files. A post that does not exist is
// reported as (false, nil). Only the author or an admin may delete.
func (s *PostService) Delete(ctx context.Context, postID int64, actor models.User) (bool, error) {
	post, err := s.db.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !models.CanModify(actor, *post) {
		s.logger.Warn("Rejected post deletion", "post_id", postID, "user_id", actor.ID)
		return false, ErrForbidden
	}

	// Files are removed before the row so no file outlives its row.
	for _, img := range post.Images {
		if err := s.store.Delete(ctx, media.Posts, img.URL); err != nil {
			s.logger.Warn("Failed to remove image file", "post_id", postID, "url", img.URL, "error", err)
		}
	}

	deleted, err := s.db.DeletePost(ctx, postID)
	if err != nil {
		return false, err
	}
	if deleted {
		metrics.PostEvents.WithLabelValues("deleted").Inc()
		logAction(s.logger, actor.ID, "POST_DELETE", "post_id", postID, "images", len(post.Images), "as_admin", actor.ID != post.AuthorID)
	}
	return deleted, nil
}

// ToggleLike flips userID's like on the post and reports the new state.
func (s *PostService) ToggleLike(ctx context.Context, postID, userID int64) (bool, error) {
	liked, err := s.db.ToggleLike(ctx, userID, postID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, ErrPostNotFound
		}
		return false, err
	}
	return liked, nil
}

func (s *PostService) AddComment(ctx context.Context, postID, authorID int64, content string) (int64, error) {
	content = CleanText(content)
	if content == "" {
		return 0, fmt.Errorf("%w: comment is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > config.MaxCommentLen {
		return 0, fmt.Errorf("%w: comment is longer than %d characters", ErrInvalidInput, config.MaxCommentLen)
	}

	c := &models.Comment{Content: content, PostID: postID, AuthorID: authorID}
	if err := s.db.AddComment(ctx, c); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return 0, ErrPostNotFound
		}
		return 0, err
	}
	return c.ID, nil
}

// OpenGift unwraps a gift post. Only the author or an admin may open it.
func (s *PostService) OpenGift(ctx context.Context, postID int64, actor models.User) (bool, error) {
	post, err := s.db.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, ErrPostNotFound
		}
		return false, err
	}
	if !models.CanModify(actor, *post) {
		return false, ErrForbidden
	}
	opened, err := s.db.OpenGift(ctx, postID, utils.GetSQLTime())
	if err != nil {
		return false, err
	}
	if opened {
		logAction(s.logger, actor.ID, "GIFT_OPEN", "post_id", postID)
	}
	return opened, nil
}

// Feed returns one page of posts, newest first, as seen by viewer.
func (s *PostService) Feed(ctx context.Context, viewer models.User, page int) ([]models.Post, error) {
	if page < 1 {
		page = 1
	}
	posts, err := s.db.ListFeed(ctx, config.FeedPageSize, (page-1)*config.FeedPageSize)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		redact(&posts[i], viewer.ID)
	}
	return posts, nil
}

func (s *PostService) Get(ctx context.Context, postID int64, viewer models.User) (*models.Post, error) {
	post, err := s.db.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	redact(post, viewer.ID)
	return post, nil
}

// ByAuthor returns a user's profile and one page of their posts, newest
// first, as seen by viewer.
func (s *PostService) ByAuthor(ctx context.Context, username string, viewer models.User, page int) (*models.User, []models.Post, error) {
	if page < 1 {
		page = 1
	}
	author, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}
	posts, err := s.db.ListPostsByAuthor(ctx, author.ID, config.FeedPageSize, (page-1)*config.FeedPageSize)
	if err != nil {
		return nil, nil, err
	}
	for i := range posts {
		redact(&posts[i], viewer.ID)
	}
	return author, posts, nil
}

// redact hides an unopened gift's content and images from everyone but its author.
func redact(p *models.Post, viewerID int64) {
	if p.Withheld(viewerID) {
		p.Content = ""
		p.Images = nil
	}
}
