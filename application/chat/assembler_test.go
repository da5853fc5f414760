package chat

import (
	"context"
	"testing"
	"time"

	"github.com/VozVule/local-knowledge/domain/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 5, 21, 43, 17, 0, time.UTC)

func TestAssemble_NewSessionBootstraps(t *testing.T) {
	store := newMemStore()
	assembler := NewSessionAssembler(store,
		WithClock(stepClock(t0, time.Millisecond)),
		WithIDGenerator(func() string { return "fresh-session" }),
	)

	assembly, err := assembler.Assemble(context.Background(), "", "hello")
	require.NoError(t, err)

	assert.True(t, assembly.Created)
	assert.Equal(t, "fresh-session", assembly.SessionID)
	require.Len(t, assembly.Messages, 2)
	assert.Equal(t, chat.RoleSystem, assembly.Messages[0].Sender)
	assert.Equal(t, SystemPrompt, assembly.Messages[0].Text)
	assert.Equal(t, chat.RoleUser, assembly.UserMessage().Sender)
	assert.Equal(t, "hello", assembly.UserMessage().Text)
	assert.True(t, assembly.Messages[0].Timestamp.Before(assembly.Messages[1].Timestamp))

	// only the bootstrap is persisted
	stored, err := store.FindMessages(context.Background(), "fresh-session")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, chat.RoleSystem, stored[0].Sender)
}

func TestAssemble_FreshSessionIsExistingOnSecondCall(t *testing.T) {
	store := newMemStore()
	assembler := NewSessionAssembler(store, WithClock(stepClock(t0, time.Millisecond)))

	first, err := assembler.Assemble(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, first.SessionID)

	second, err := assembler.Assemble(context.Background(), first.SessionID, "again")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.SessionID, second.SessionID)
	require.Len(t, second.Messages, 2)
	assert.Equal(t, chat.RoleSystem, second.Messages[0].Sender)
	assert.Equal(t, "again", second.UserMessage().Text)

	// no second bootstrap
	assert.Equal(t, 1, store.count())
}

func TestAssemble_UnknownSessionFails(t *testing.T) {
	store := newMemStore()
	assembler := NewSessionAssembler(store)

	_, err := assembler.Assemble(context.Background(), "no-such-session", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
	assert.Equal(t, 0, store.count())
}

func TestAssemble_ExistingSessionKeepsOrder(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.AppendMessages(context.Background(),
		chat.NewMessage("s1", chat.RoleSystem, SystemPrompt, t0),
		chat.NewMessage("s1", chat.RoleUser, "first", t0.Add(time.Second)),
		chat.NewMessage("s1", chat.RoleAssistant, "reply", t0.Add(2*time.Second)),
	))

	assembler := NewSessionAssembler(store, WithClock(func() time.Time { return t0.Add(time.Minute) }))

	assembly, err := assembler.Assemble(context.Background(), "s1", "second")
	require.NoError(t, err)

	require.Len(t, assembly.Messages, 4)
	assert.Equal(t, []string{SystemPrompt, "first", "reply", "second"}, texts(assembly.Messages))
	assertStrictlyAscending(t, assembly.Messages)
}

func TestAssemble_UserTimestampAfterLastStored(t *testing.T) {
	store := newMemStore()
	last := t0.Add(time.Hour)
	require.NoError(t, store.AppendMessages(context.Background(),
		chat.NewMessage("s1", chat.RoleSystem, SystemPrompt, t0),
		chat.NewMessage("s1", chat.RoleAssistant, "from the future", last),
	))

	// clock is behind the stored history
	assembler := NewSessionAssembler(store, WithClock(func() time.Time { return t0 }))

	assembly, err := assembler.Assemble(context.Background(), "s1", "hi")
	require.NoError(t, err)

	assert.Equal(t, last.Add(time.Microsecond), assembly.UserMessage().Timestamp)
	assertStrictlyAscending(t, assembly.Messages)
}

func TestAssemble_SameInstantClock(t *testing.T) {
	store := newMemStore()
	assembler := NewSessionAssembler(store, WithClock(func() time.Time { return t0 }))

	assembly, err := assembler.Assemble(context.Background(), "", "hi")
	require.NoError(t, err)
	assertStrictlyAscending(t, assembly.Messages)
}

func texts(msgs []chat.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func assertStrictlyAscending(t *testing.T, msgs []chat.ChatMessage) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i-1].Timestamp.Before(msgs[i].Timestamp),
			"message %d (%s) is not after message %d (%s)", i, msgs[i].Timestamp, i-1, msgs[i-1].Timestamp)
	}
}
