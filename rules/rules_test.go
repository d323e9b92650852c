package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStateDefaults(t *testing.T) {
	s := NewState(9, 6.5)
	assert.Equal(t, 9, s.Size)
	assert.Equal(t, StatusPlay, s.Status)
	assert.Equal(t, White, s.Turn)
	assert.Equal(t, 0, s.Version())
}

func TestApplyPlaceStoneTogglesTurn(t *testing.T) {
	s := NewState(9, 6.5)
	ok, reason, next := s.Apply(Action{Type: ActionPlaceStone, Color: White, Row: 2, Col: 2, HasPos: true})
	assert.True(t, ok, reason)
	assert.Equal(t, Black, next.Turn)
	assert.Equal(t, 1, next.Version())
	assert.True(t, next.Board[2][2].occupied)
}

func TestApplyRejectsOutOfTurn(t *testing.T) {
	s := NewState(9, 6.5)
	ok, reason, _ := s.Apply(Action{Type: ActionPlaceStone, Color: Black, Row: 0, Col: 0, HasPos: true})
	assert.False(t, ok)
	assert.Equal(t, ErrOutOfTurn.Error(), reason)
}

func TestApplyRejectsOccupied(t *testing.T) {
	s := NewState(9, 6.5)
	_, _, s1 := s.Apply(Action{Type: ActionPlaceStone, Color: White, Row: 0, Col: 0, HasPos: true})
	ok, reason, _ := s1.Apply(Action{Type: ActionPlaceStone, Color: Black, Row: 0, Col: 0, HasPos: true})
	assert.False(t, ok)
	assert.Equal(t, ErrOccupied.Error(), reason)
}

func TestApplyRejectsOffBoard(t *testing.T) {
	s := NewState(9, 6.5)
	ok, reason, _ := s.Apply(Action{Type: ActionPlaceStone, Color: White, Row: 9, Col: 0, HasPos: true})
	assert.False(t, ok)
	assert.Equal(t, ErrOffBoard.Error(), reason)
}

func TestApplySuicideRejected(t *testing.T) {
	s := NewState(9, 6.5)
	moves := []struct {
		color   Color
		r, c    int
	}{
		{White, 5, 5}, {Black, 0, 1},
		{White, 5, 6}, {Black, 1, 0},
		{White, 5, 7}, {Black, 1, 2},
	}
	for _, m := range moves {
		ok, reason, next := s.Apply(Action{Type: ActionPlaceStone, Color: m.color, Row: m.r, Col: m.c, HasPos: true})
		assert.True(t, ok, reason)
		s = next
	}
	// White at 0,0 is now surrounded by black on the two open sides (1,0 and 0,1);
	// placing white there has no liberties and captures nothing, so it's suicide.
	ok, reason, _ := s.Apply(Action{Type: ActionPlaceStone, Color: White, Row: 0, Col: 0, HasPos: true})
	assert.False(t, ok)
	assert.Equal(t, ErrSuicide.Error(), reason)
}

func TestApplyCapture(t *testing.T) {
	s := NewState(9, 6.5)
	// Surround a single black stone at (1,1) with white on all four sides.
	moves := []struct {
		color Color
		r, c  int
	}{
		{White, 0, 1}, {Black, 1, 1},
		{White, 1, 0}, {Black, 5, 5},
		{White, 1, 2}, {Black, 5, 6},
		{White, 2, 1}, {Black, 5, 7},
	}
	for _, m := range moves {
		ok, reason, next := s.Apply(Action{Type: ActionPlaceStone, Color: m.color, Row: m.r, Col: m.c, HasPos: true})
		assert.True(t, ok, reason)
		s = next
	}
	assert.False(t, s.Board[1][1].occupied)
	assert.Equal(t, 1, s.Prisoners[White])
}

func TestApplyDoublePassEndsInEndgame(t *testing.T) {
	s := NewState(9, 6.5)
	_, _, s1 := s.Apply(Action{Type: ActionPass, Color: White})
	ok, reason, s2 := s1.Apply(Action{Type: ActionPass, Color: Black})
	assert.True(t, ok, reason)
	assert.Equal(t, StatusEndgame, s2.Status)
}

func TestApplyAcceptCompletesGame(t *testing.T) {
	s := NewState(9, 6.5)
	_, _, s1 := s.Apply(Action{Type: ActionPass, Color: White})
	_, _, s2 := s1.Apply(Action{Type: ActionPass, Color: Black})
	ok, reason, s3 := s2.Apply(Action{Type: ActionAccept, Color: White})
	assert.True(t, ok, reason)
	assert.Equal(t, StatusComplete, s3.Status)
}

func TestApplyRejectedOnCompletedGame(t *testing.T) {
	s := NewState(9, 6.5)
	_, _, s1 := s.Apply(Action{Type: ActionEndGame, Color: White})
	ok, reason, _ := s1.Apply(Action{Type: ActionPlaceStone, Color: Black, Row: 0, Col: 0, HasPos: true})
	assert.False(t, ok)
	assert.Equal(t, ErrGameOver.Error(), reason)
}

func TestJsonifyableShape(t *testing.T) {
	s := NewState(9, 6.5)
	out := s.Jsonifyable()
	assert.Contains(t, out, "board")
	assert.Contains(t, out, "status")
	assert.Contains(t, out, "komi")
	assert.Contains(t, out, "prisoners")
	assert.Contains(t, out, "turn")
	assert.Contains(t, out, "timePlayed")
	prisoners := out["prisoners"].(map[string]int)
	assert.Equal(t, 0, prisoners["white"])
	assert.Equal(t, 0, prisoners["black"])
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := NewState(9, 6.5)
	_, _, s1 := s.Apply(Action{Type: ActionPlaceStone, Color: White, Row: 3, Col: 3, HasPos: true})

	blob, err := Encode(s1)
	assert.NoError(t, err)

	decoded, err := Decode(blob)
	assert.NoError(t, err)
	assert.Equal(t, s1.Size, decoded.Size)
	assert.Equal(t, s1.Version(), decoded.Version())
	assert.True(t, decoded.Board[3][3].occupied)
}
