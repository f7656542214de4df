package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	ps := []Participant{{ID: "me", Name: "Me"}, {ID: "a", Name: "Alice"}, {ID: "b", Name: "Bob"}}

	assert.Equal(t, "Design Team", DisplayName("  Design Team ", ps, "me"))
	assert.Equal(t, "Alice, Bob", DisplayName("", ps, "me"))
	assert.Equal(t, "", DisplayName("", ps[:1], "me"))
}

func TestAvatarInitials(t *testing.T) {
	ps := []Participant{{ID: "me", Name: "Me"}, {ID: "a", Name: "alice cooper"}}

	assert.Equal(t, "DT", AvatarInitials("Design Team Weekly", ps, "me"))
	assert.Equal(t, "AC", AvatarInitials("", ps, "me"))
	assert.Equal(t, "", AvatarInitials("", ps[:1], "me"))
}

func TestGroupReactionsCountsDuplicates(t *testing.T) {
	got := GroupReactions([]Reaction{
		{Emoji: "👍", UserID: "a", UserName: "Alice"},
		{Emoji: "🎉", UserID: "b"},
		{Emoji: "👍", UserID: "a", UserName: "Alice"},
	})

	assert.Equal(t, []ReactionGroup{
		{Emoji: "👍", Count: 2, Users: []string{"Alice", "Alice"}},
		{Emoji: "🎉", Count: 1, Users: []string{"b"}},
	}, got)
}

func TestNewReplyRefTrimsContent(t *testing.T) {
	long := strings.Repeat("é", 150)
	ref := NewReplyRef(Message{ID: "m1", Content: long, SenderName: "Alice"})

	assert.Equal(t, "m1", ref.ID)
	assert.Equal(t, 100, len([]rune(ref.Content)))
	assert.Equal(t, "Alice", ref.SenderName)
}

func TestCloneDoesNotAlias(t *testing.T) {
	m := Message{Reactions: []Reaction{{Emoji: "x", UserID: "a"}}, ReplyTo: &ReplyRef{ID: "p"}}
	c := m.Clone()
	c.Reactions[0].Emoji = "y"
	c.ReplyTo.ID = "q"

	assert.Equal(t, "x", m.Reactions[0].Emoji)
	assert.Equal(t, "p", m.ReplyTo.ID)
}

func TestSeverity(t *testing.T) {
	assert.True(t, SeverityInfo.Transient())
	assert.True(t, SeveritySuccess.Transient())
	assert.False(t, SeverityError.Transient())
	assert.False(t, Severity("fatal").Valid())
}
