// familybook/handlers/actions.go
package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"familybook/config"
	"familybook/services"
	"familybook/utils"
)

// uploadsFrom wraps multipart file headers as service uploads.
func uploadsFrom(headers []*multipart.FileHeader) []services.Upload {
	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		uploads = append(uploads, services.Upload{
			Filename: fh.Filename,
			Open:     func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	return uploads
}

// parseMultipart parses the request body, which LimitBody has already capped.
// A plain urlencoded body is accepted as a form without files.
func parseMultipart(r *http.Request) error {
	if r.MultipartForm != nil {
		return nil
	}
	if err := r.ParseMultipartForm(config.MaxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}

// HandleCreatePost accepts a text post with any number of images under "files".
func HandleCreatePost(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleCreatePost")
	user, _ := currentUser(r)

	if !app.RateLimiter().Allow("post:" + strconv.FormatInt(user.ID, 10)) {
		logger.Warn("Rate limit exceeded", "user_id", user.ID, "client_ip", utils.GetIPAddress(r))
		redirect(w, r, app, "/", FlashError, "You are posting too fast. Please wait a moment.")
		return
	}

	if err := parseMultipart(r); err != nil {
		logger.Warn("Form parsing error", "user_id", user.ID, "error", err)
		redirect(w, r, app, "/", FlashError, "The upload was too large or malformed.")
		return
	}

	form := postForm{Content: r.PostFormValue("content"), Gift: r.PostFormValue("is_gift")}
	if err := bind(form); err != nil {
		redirect(w, r, app, "/", FlashError, "The post form was not filled in correctly.")
		return
	}

	var files []services.Upload
	if r.MultipartForm != nil {
		files = uploadsFrom(r.MultipartForm.File["files"])
	}

	result, err := app.Posts().Create(r.Context(), services.NewPost{
		AuthorID: user.ID,
		Content:  form.Content,
		IsGift:   form.IsGift(),
		Files:    files,
	})
	if err != nil {
		if !errors.Is(err, services.ErrInvalidInput) {
			logger.Error("Failed to create post", "user_id", user.ID, "error", err)
		}
		redirect(w, r, app, "/", FlashError, userMessage(err, "Could not create the post. Please try again."))
		return
	}

	if len(result.Failed) > 0 {
		msg := fmt.Sprintf("The post was saved, but %d file(s) could not be added: %s", len(result.Failed), strings.Join(result.Failed, ", "))
		redirect(w, r, app, "/", FlashInfo, msg)
		return
	}
	redirect(w, r, app, "/", FlashSuccess, "Your story was added to the family book!")
}

// HandleComment adds a comment and returns to the post.
func HandleComment(w http.ResponseWriter, r *http.Request, app App) {
	postID, ok := postIDParam(r)
	if !ok {
		redirect(w, r, app, "/", FlashError, "That post no longer exists.")
		return
	}
	user, _ := currentUser(r)
	target := fmt.Sprintf("/posts/%d", postID)

	form := commentForm{Content: r.PostFormValue("content")}
	if err := bind(form); err != nil {
		redirect(w, r, app, target, FlashInfo, "A comment cannot be empty.")
		return
	}

	if _, err := app.Posts().AddComment(r.Context(), postID, user.ID, form.Content); err != nil {
		switch {
		case errors.Is(err, services.ErrPostNotFound):
			redirect(w, r, app, "/", FlashError, userMessage(err, ""))
		case errors.Is(err, services.ErrInvalidInput):
			redirect(w, r, app, target, FlashInfo, userMessage(err, ""))
		default:
			app.Logger().Error("Failed to add comment", "handler", "HandleComment", "post_id", postID, "error", err)
			redirect(w, r, app, target, FlashError, "Could not add the comment.")
		}
		return
	}
	redirect(w, r, app, target, FlashSuccess, "Comment added.")
}

// HandleLike toggles the current user's like.
func HandleLike(w http.ResponseWriter, r *http.Request, app App) {
	postID, ok := postIDParam(r)
	if !ok {
		redirect(w, r, app, "/", FlashError, "That post no longer exists.")
		return
	}
	user, _ := currentUser(r)

	if _, err := app.Posts().ToggleLike(r.Context(), postID, user.ID); err != nil {
		if errors.Is(err, services.ErrPostNotFound) {
			redirect(w, r, app, "/", FlashError, userMessage(err, ""))
			return
		}
		app.Logger().Error("Failed to toggle like", "handler", "HandleLike", "post_id", postID, "error", err)
		redirect(w, r, app, fmt.Sprintf("/posts/%d", postID), FlashError, "Could not update the like.")
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/posts/%d", postID), http.StatusSeeOther)
}

// HandleOpenGift unwraps a gift post.
func HandleOpenGift(w http.ResponseWriter, r *http.Request, app App) {
	postID, ok := postIDParam(r)
	if !ok {
		redirect(w, r, app, "/", FlashError, "That post no longer exists.")
		return
	}
	user, _ := currentUser(r)
	target := fmt.Sprintf("/posts/%d", postID)

	opened, err := app.Posts().OpenGift(r.Context(), postID, *user)
	switch {
	case err == nil && opened:
		redirect(w, r, app, target, FlashSuccess, "The gift is open!")
	case err == nil:
		redirect(w, r, app, target, FlashInfo, "This gift is already open.")
	case errors.Is(err, services.ErrPostNotFound):
		redirect(w, r, app, "/", FlashError, userMessage(err, ""))
	case errors.Is(err, services.ErrForbidden):
		redirect(w, r, app, target, FlashError, userMessage(err, ""))
	default:
		app.Logger().Error("Failed to open gift", "handler", "HandleOpenGift", "post_id", postID, "error", err)
		redirect(w, r, app, target, FlashError, "Could not open the gift.")
	}
}

// HandleDeletePost removes a post with its images.
func HandleDeletePost(w http.ResponseWriter, r *http.Request, app App) {
	postID, ok := postIDParam(r)
	if !ok {
		redirect(w, r, app, "/", FlashError, "That post no longer exists.")
		return
	}
	user, _ := currentUser(r)

	deleted, err := app.Posts().Delete(r.Context(), postID, *user)
	switch {
	case err == nil && deleted:
		redirect(w, r, app, "/", FlashSuccess, "The post and its photos were deleted.")
	case err == nil:
		redirect(w, r, app, "/", FlashError, "That post was already deleted or never existed.")
	case errors.Is(err, services.ErrForbidden):
		redirect(w, r, app, "/", FlashError, "You cannot delete this post.")
	default:
		app.Logger().Error("Failed to delete post", "handler", "HandleDeletePost", "post_id", postID, "error", err)
		redirect(w, r, app, "/", FlashError, "Could not delete the post.")
	}
}

// HandleUpdateAvatar replaces the current user's avatar with the "avatar" upload.
func HandleUpdateAvatar(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleUpdateAvatar")
	user, _ := currentUser(r)
	target := profileURL(user.Username)

	if err := parseMultipart(r); err != nil {
		logger.Warn("Form parsing error", "user_id", user.ID, "error", err)
		redirect(w, r, app, target, FlashError, "The upload was too large or malformed.")
		return
	}
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["avatar"]
	}
	if len(headers) == 0 || headers[0].Filename == "" {
		redirect(w, r, app, target, FlashInfo, "Choose a photo first.")
		return
	}

	if _, err := app.Users().UpdateAvatar(r.Context(), user.ID, uploadsFrom(headers[:1])[0]); err != nil {
		logger.Warn("Avatar update failed", "user_id", user.ID, "error", err)
		redirect(w, r, app, target, FlashError, userMessage(err, "Could not update your photo. Try another file."))
		return
	}
	redirect(w, r, app, target, FlashSuccess, "Your new photo was saved!")
}

// HandleUpdateName changes the current user's display name.
func HandleUpdateName(w http.ResponseWriter, r *http.Request, app App) {
	user, _ := currentUser(r)
	target := profileURL(user.Username)

	form := nameForm{DisplayName: strings.TrimSpace(r.PostFormValue("display_name"))}
	if err := bind(form); err != nil {
		redirect(w, r, app, target, FlashInfo, "The name cannot be empty.")
		return
	}

	name, err := app.Users().Rename(r.Context(), user.ID, form.DisplayName)
	if err != nil {
		if !errors.Is(err, services.ErrInvalidInput) {
			app.Logger().Error("Failed to rename user", "handler", "HandleUpdateName", "user_id", user.ID, "error", err)
		}
		redirect(w, r, app, target, FlashError, userMessage(err, "Could not change your name."))
		return
	}
	redirect(w, r, app, target, FlashSuccess, "Your name is now "+name+".")
}
