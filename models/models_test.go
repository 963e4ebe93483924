package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanModify(t *testing.T) {
	post := Post{ID: 1, AuthorID: 10}

	testCases := []struct {
		name     string
		actor    User
		expected bool
	}{
		{"author", User{ID: 10, Role: RoleMember}, true},
		{"admin", User{ID: 99, Role: RoleAdmin}, true},
		{"other member", User{ID: 11, Role: RoleMember}, false},
		{"anonymous", User{}, false},
		{"anonymous with admin role", User{Role: RoleAdmin}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, CanModify(tc.actor, post))
		})
	}
}

func TestPostWithheld(t *testing.T) {
	gift := Post{AuthorID: 1, IsGift: true, IsOpened: false}
	assert.True(t, gift.Withheld(2))
	assert.False(t, gift.Withheld(1), "author always sees their own gift")

	gift.IsOpened = true
	assert.False(t, gift.Withheld(2))

	assert.False(t, Post{AuthorID: 1, IsOpened: true}.Withheld(2))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(time.Hour, 2, time.Hour, time.Hour)
	defer rl.Stop()

	assert.True(t, rl.Allow("1"))
	assert.True(t, rl.Allow("1"))
	assert.False(t, rl.Allow("1"), "burst exhausted")
	assert.True(t, rl.Allow("2"), "keys are independent")

	rl.prune(time.Now().Add(time.Minute))
	rl.Mu.RLock()
	assert.Empty(t, rl.Limiters)
	assert.Empty(t, rl.LastSeen)
	rl.Mu.RUnlock()

	rl.Stop()
	rl.Stop()
}
