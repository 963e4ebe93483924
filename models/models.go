// familybook/models/models.go
package models

import (
	"time"
)

// --- Core Data Models ---

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type User struct {
	ID             int64
	Username       string
	DisplayName    string
	HashedPassword string `json:"-"`
	Role           Role
	AvatarURL      string
	ReferredBy     *int64
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

type Post struct {
	ID        int64
	Content   string
	CreatedAt time.Time
	IsGift    bool
	IsOpened  bool
	OpenedAt  *time.Time `json:",omitempty"`
	AuthorID  int64
	Author    *User       `json:",omitempty"`
	Images    []PostImage `json:",omitempty"`
	Comments  []Comment   `json:",omitempty"`
	LikedBy   []int64     `json:",omitempty"`
}

// Withheld reports whether viewerID must not see the post's content yet.
func (p Post) Withheld(viewerID int64) bool {
	return p.IsGift && !p.IsOpened && p.AuthorID != viewerID
}

type PostImage struct {
	ID     int64
	URL    string
	PostID int64
}

type Comment struct {
	ID        int64
	Content   string
	CreatedAt time.Time
	PostID    int64
	AuthorID  int64
	Author    *User `json:",omitempty"`
}

type Like struct {
	UserID int64
	PostID int64
}

// CanModify is the single author-or-admin capability check for posts.
func CanModify(actor User, post Post) bool {
	if actor.ID == 0 {
		return false
	}
	return actor.ID == post.AuthorID || actor.IsAdmin()
}
