package aiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gobanserver/aiclient/policy"
)

func TestShouldCompleteOnComplete(t *testing.T) {
	assert.True(t, shouldComplete(policy.GameStatus{Status: "complete"}))
	assert.False(t, shouldComplete(policy.GameStatus{Status: "play"}))
}

func TestShouldActOnlyOnOwnTurnDuringPlay(t *testing.T) {
	assert.True(t, shouldAct(policy.GameStatus{Status: "play", Turn: "black"}, "black"))
	assert.False(t, shouldAct(policy.GameStatus{Status: "play", Turn: "white"}, "black"))
	assert.False(t, shouldAct(policy.GameStatus{Status: "endgame", Turn: "black"}, "black"))
}

func TestHandleOpponentDisconnectEndsSession(t *testing.T) {
	c := &Client{}
	done, err := c.handle(inboundFrame{
		MessageType: "opponent_connected",
		Data:        []byte(`{"opponentConnected":false}`),
	})
	assert.NoError(t, err)
	assert.True(t, done)
}

func TestHandleOpponentConnectedTrueContinues(t *testing.T) {
	c := &Client{}
	done, err := c.handle(inboundFrame{
		MessageType: "opponent_connected",
		Data:        []byte(`{"opponentConnected":true}`),
	})
	assert.NoError(t, err)
	assert.False(t, done)
}

func TestHandleGameStatusCompleteEndsSession(t *testing.T) {
	c := &Client{color: "white"}
	done, err := c.handle(inboundFrame{
		MessageType: "game_status",
		Data:        []byte(`{"status":"complete","turn":"white"}`),
	})
	assert.NoError(t, err)
	assert.True(t, done)
}

func TestHandleChatLogsAndContinues(t *testing.T) {
	c := &Client{}
	done, err := c.handle(inboundFrame{MessageType: "chat", Data: []byte(`[]`)})
	assert.NoError(t, err)
	assert.False(t, done)
}
