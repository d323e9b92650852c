// Package policy defines the pluggable decision capability the AI
// Client Bridge consults on its turn, and a default implementation.
//
// Grounded on the spec's "capability set {select_action(game) -> Action}"
// — the AI bridge only ever sees the wire-shape game_status payload, so
// Policy operates on that JSON shape directly rather than on the Rules
// Engine's internal State.
package policy

import "math/rand"

// GameStatus is the decoded game_status payload, the only view of game
// state a policy is given.
type GameStatus struct {
	Board      [][]string     `json:"board"`
	Status     string         `json:"status"`
	Komi       float64        `json:"komi"`
	Prisoners  map[string]int `json:"prisoners"`
	Turn       string         `json:"turn"`
	TimePlayed float64        `json:"timePlayed"`
}

// Action is what a policy hands back to the bridge to send as a
// game_action frame.
type Action struct {
	Type   string
	Coords []int
}

// Policy selects a move given the current game status.
type Policy interface {
	SelectAction(status GameStatus) Action
}

// RandomLegal is the default policy: it plays uniformly at random among
// empty points, falling back to a pass if the board is full. It does not
// attempt to avoid suicide or ko — illegal attempts are rejected by the
// server and resent per the bridge's ERROR_SLEEP_PERIOD retry, same as
// any other client mistake.
type RandomLegal struct {
	Rand *rand.Rand
}

// NewRandomLegal returns a RandomLegal seeded from src.
func NewRandomLegal(src rand.Source) *RandomLegal {
	return &RandomLegal{Rand: rand.New(src)}
}

func (p *RandomLegal) SelectAction(status GameStatus) Action {
	size := len(status.Board)
	if size == 0 {
		return Action{Type: "pass_move"}
	}

	var empties [][2]int
	for r, row := range status.Board {
		for c, v := range row {
			if v == "" {
				empties = append(empties, [2]int{r, c})
			}
		}
	}
	if len(empties) == 0 {
		return Action{Type: "pass_move"}
	}

	pick := empties[p.Rand.Intn(len(empties))]
	return Action{Type: "place_stone", Coords: []int{pick[0], pick[1]}}
}
