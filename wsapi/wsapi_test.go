package wsapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInboundFrameDecodesNewGame(t *testing.T) {
	raw := `{"type":"new_game","vs":"human","color":"black","size":9,"komi":6.5}`
	var f inboundFrame
	assert.NoError(t, json.Unmarshal([]byte(raw), &f))
	assert.Equal(t, "new_game", f.Type)
	assert.Equal(t, "human", f.Vs)
	assert.Equal(t, "black", f.Color)
	assert.Equal(t, 9, f.Size)
	assert.Equal(t, 6.5, f.Komi)
}

func TestInboundFrameDecodesGameAction(t *testing.T) {
	raw := `{"type":"game_action","key":"ABCDEFGHIJ","action_type":"place_stone","coords":[4,4]}`
	var f inboundFrame
	assert.NoError(t, json.Unmarshal([]byte(raw), &f))
	assert.Equal(t, "game_action", f.Type)
	assert.Equal(t, "place_stone", f.ActionType)
	assert.Equal(t, []int{4, 4}, f.Coords)
}

func TestOutboundFrameEncodesEnvelope(t *testing.T) {
	f := outboundFrame{MessageType: "opponent_connected", Data: map[string]bool{"opponentConnected": true}}
	raw, err := json.Marshal(f)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"message_type":"opponent_connected","data":{"opponentConnected":true}}`, string(raw))
}

type recordingSocket struct {
	sent   []outboundFrame
	closed bool
}

func (s *recordingSocket) Send(messageType string, data any) {
	s.sent = append(s.sent, outboundFrame{MessageType: messageType, Data: data})
}

func (s *recordingSocket) Close() { s.closed = true }

func TestDispatchRejectsUnknownType(t *testing.T) {
	sock := &recordingSocket{}
	ok := dispatch(nil, nil, sock, inboundFrame{Type: "teleport"})
	assert.False(t, ok)
	assert.Len(t, sock.sent, 1)
	assert.Equal(t, "error", sock.sent[0].MessageType)
}

func TestDispatchRejectsMalformedChatMessage(t *testing.T) {
	sock := &recordingSocket{}
	ok := dispatch(nil, nil, sock, inboundFrame{Type: "chat_message"})
	assert.False(t, ok)
	assert.Len(t, sock.sent, 1)
}
