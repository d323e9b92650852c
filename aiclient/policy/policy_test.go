package policy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomLegalPassesOnFullBoard(t *testing.T) {
	board := [][]string{{"w", "b"}, {"b", "w"}}
	p := NewRandomLegal(rand.NewSource(1))
	action := p.SelectAction(GameStatus{Board: board})
	assert.Equal(t, "pass_move", action.Type)
}

func TestRandomLegalPlacesOnEmptyPoint(t *testing.T) {
	board := [][]string{{"", "b"}, {"b", "w"}}
	p := NewRandomLegal(rand.NewSource(1))
	action := p.SelectAction(GameStatus{Board: board})
	assert.Equal(t, "place_stone", action.Type)
	assert.Equal(t, []int{0, 0}, action.Coords)
}

func TestRandomLegalPassesOnEmptyBoardSlice(t *testing.T) {
	p := NewRandomLegal(rand.NewSource(1))
	action := p.SelectAction(GameStatus{Board: nil})
	assert.Equal(t, "pass_move", action.Type)
}
