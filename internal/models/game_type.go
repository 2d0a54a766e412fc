package models

// GameType tags which rule engine a room runs.
type GameType string

const (
	GameMorris GameType = "morris"
	GameMemory GameType = "memory"
	GameNaval  GameType = "naval"

	// GameMixed is only valid for tournaments: each match picks a concrete type.
	GameMixed GameType = "mixed"
)

// GameTypes lists the playable variants in a stable order.
var GameTypes = []GameType{GameMorris, GameMemory, GameNaval}

// Playable reports whether t names a concrete rule engine.
func (t GameType) Playable() bool {
	switch t {
	case GameMorris, GameMemory, GameNaval:
		return true
	}
	return false
}

// RoomStatus is the lifecycle state of a room or tournament.
type RoomStatus string

const (
	StatusWaiting    RoomStatus = "waiting"
	StatusInProgress RoomStatus = "in_progress"
	StatusFinished   RoomStatus = "finished"
)
