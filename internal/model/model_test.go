package model

import (
	"encoding/json"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListQuery(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		q, err := ParseListQuery(url.Values{})
		require.NoError(t, err)
		assert.Equal(t, 1, q.Page)
		assert.Equal(t, DefaultListLimit, q.Limit)
		assert.Equal(t, []SortField{{Column: "created_at", Descending: true}}, q.Sort)
		assert.Nil(t, q.Role)
		assert.Nil(t, q.Active)
		assert.Equal(t, 0, q.Offset())
	})

	t.Run("filters sort and paging", func(t *testing.T) {
		q, err := ParseListQuery(url.Values{
			"page":   {"3"},
			"limit":  {"500"},
			"role":   {"Admin"},
			"active": {"false"},
			"email":  {" Ada@Example.com "},
			"sort":   {"-name, email"},
		})
		require.NoError(t, err)
		assert.Equal(t, MaxListLimit, q.Limit)
		assert.Equal(t, 2*MaxListLimit, q.Offset())
		require.NotNil(t, q.Role)
		assert.Equal(t, RoleAdmin, *q.Role)
		require.NotNil(t, q.Active)
		assert.False(t, *q.Active)
		assert.Equal(t, "ada@example.com", q.Email)
		assert.Equal(t, []SortField{{Column: "name", Descending: true}, {Column: "email"}}, q.Sort)
	})

	t.Run("bad page falls back", func(t *testing.T) {
		q, err := ParseListQuery(url.Values{"page": {"-2"}, "limit": {"abc"}})
		require.NoError(t, err)
		assert.Equal(t, 1, q.Page)
		assert.Equal(t, DefaultListLimit, q.Limit)
	})

	t.Run("last reachable page", func(t *testing.T) {
		page := MaxListOffset/MaxListLimit + 1
		q, err := ParseListQuery(url.Values{"page": {strconv.Itoa(page)}, "limit": {"200"}})
		require.NoError(t, err)
		assert.Equal(t, page, q.Page)
		assert.Positive(t, q.Offset())
	})

	for name, values := range map[string]url.Values{
		"unknown role":          {"role": {"root"}},
		"non boolean":           {"active": {"maybe"}},
		"unsortable column":     {"sort": {"password_hash"}},
		"offset overflows":      {"page": {"50000000000000000"}, "limit": {"200"}},
		"page past max offset":  {"page": {strconv.Itoa(MaxListOffset/MaxListLimit + 2)}, "limit": {"200"}},
		"page beyond int range": {"page": {"99999999999999999999"}},
		"limit beyond range":    {"limit": {"99999999999999999999"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseListQuery(values)
			assert.Error(t, err)
		})
	}
}

func TestChangedPasswordAfter(t *testing.T) {
	issued := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	var fresh Identity
	assert.False(t, fresh.ChangedPasswordAfter(issued))

	changed := issued.Add(time.Second)
	identity := Identity{PasswordChangedAt: &changed}
	assert.True(t, identity.ChangedPasswordAfter(issued))
	assert.False(t, identity.ChangedPasswordAfter(changed))
	assert.False(t, identity.ChangedPasswordAfter(changed.Add(time.Second)))

	sameSecond := issued.Add(300 * time.Millisecond)
	identity.PasswordChangedAt = &sameSecond
	assert.True(t, identity.ChangedPasswordAfter(issued))
	assert.True(t, identity.ChangedPasswordAfter(sameSecond.Add(-time.Millisecond)))
	assert.False(t, identity.ChangedPasswordAfter(sameSecond))
}

func TestPasswordChangeStamp(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, int(300*time.Millisecond+999*time.Microsecond), time.UTC)
	stamp := PasswordChangeStamp(now)
	assert.Equal(t, now.Truncate(time.Millisecond), stamp)

	// A token minted in the same request carries the same millisecond.
	identity := Identity{PasswordChangedAt: &stamp}
	assert.False(t, identity.ChangedPasswordAfter(time.UnixMilli(now.UnixMilli())))
}

func TestPublicRedactsSecrets(t *testing.T) {
	hash := "abc123"
	identity := Identity{
		ID:             "id-1",
		Email:          "ada@example.com",
		PasswordHash:   "$2a$12$secret",
		ResetTokenHash: &hash,
		Role:           RoleUser,
		Active:         true,
	}

	raw, err := json.Marshal(identity.Public())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "$2a$12$secret")
	assert.NotContains(t, string(raw), "abc123")
	assert.Contains(t, string(raw), `"email":"ada@example.com"`)
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Moderator ")
	assert.True(t, ok)
	assert.Equal(t, RoleModerator, role)

	_, ok = ParseRole("superuser")
	assert.False(t, ok)
}

func TestPatchEmpty(t *testing.T) {
	assert.True(t, AdminPatch{}.Empty())

	name := "Ada"
	assert.False(t, ProfilePatch{Name: &name}.Empty())

	active := false
	assert.False(t, AdminPatch{Active: &active}.Empty())
}

func TestNewMeta(t *testing.T) {
	assert.Equal(t, &Meta{Page: 2, Limit: 20, Total: 41, TotalPages: 3}, NewMeta(2, 20, 41))
	assert.Equal(t, 0, NewMeta(1, 0, 10).TotalPages)
}
