package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelNames(t *testing.T) {
	got := channelNames("ABCDEFGHIJ")
	assert.Equal(t, []string{
		"game_status_ABCDEFGHIJ",
		"chat_ABCDEFGHIJ",
		"opponent_connected_ABCDEFGHIJ",
	}, got)
}

func TestParseChannelGameStatus(t *testing.T) {
	u, ok := parseChannel("game_status_ABCDEFGHIJ", "")
	assert.True(t, ok)
	assert.Equal(t, UpdateGameStatus, u.Kind)
	assert.Equal(t, "ABCDEFGHIJ", u.Key)
}

func TestParseChannelChat(t *testing.T) {
	u, ok := parseChannel("chat_ABCDEFGHIJ", "")
	assert.True(t, ok)
	assert.Equal(t, UpdateChat, u.Kind)
	assert.Equal(t, "ABCDEFGHIJ", u.Key)
}

func TestParseChannelOpponentConnected(t *testing.T) {
	u, ok := parseChannel("opponent_connected_ABCDEFGHIJ", "0")
	assert.True(t, ok)
	assert.Equal(t, UpdateOpponentConnected, u.Kind)
	assert.Equal(t, "ABCDEFGHIJ", u.Key)
	assert.Equal(t, "0", u.Payload)
}

func TestParseChannelUnknown(t *testing.T) {
	_, ok := parseChannel("some_other_channel", "")
	assert.False(t, ok)
}

func TestQuoteIdentEscapesProperly(t *testing.T) {
	got := quoteIdent("game_status_ABCDEFGHIJ")
	assert.Equal(t, `"game_status_ABCDEFGHIJ"`, got)
}
