package domain

import "time"

// PINLength is the number of digits in a join PIN.
const PINLength = 6

// EntityKind names the record an event is about.
type EntityKind string

const (
	EntityGame   EntityKind = "game"
	EntityPlayer EntityKind = "player"
	EntityAnswer EntityKind = "answer"
	EntityReveal EntityKind = "reveal"
)

// EventType names the mutation.
type EventType string

const (
	EventGameCreated    EventType = "game.created"
	EventPlayerJoined   EventType = "player.joined"
	EventGameStarted    EventType = "game.started"
	EventGameAdvanced   EventType = "game.advanced"
	EventAnswerRecorded EventType = "answer.recorded"
	EventPlayerScored   EventType = "player.scored"
	EventGameRevealed   EventType = "game.revealed"
	EventGameFinished   EventType = "game.finished"
	EventGameRestarted  EventType = "game.restarted"
	EventGameReplayed   EventType = "game.replayed"
)

// Event signals that an entity of a game changed. Clients re-fetch the
// snapshot on receipt; the hint fields are advisory.
type Event struct {
	GameID     string     `json:"gameId"`
	Entity     EntityKind `json:"entity"`
	EntityID   string     `json:"entityId"`
	Version    int64      `json:"version"`
	Type       EventType  `json:"type"`
	Status     GameStatus `json:"status,omitempty"`
	Index      *int       `json:"questionIndex,omitempty"`
	NextGameID string     `json:"nextGameId,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// GameEvent builds an event describing the game record itself.
func GameEvent(g Game, typ EventType, at time.Time) Event {
	idx := g.CurrentIndex
	return Event{
		GameID:     g.ID,
		Entity:     EntityGame,
		EntityID:   g.ID,
		Version:    g.Version,
		Type:       typ,
		Status:     g.Status,
		Index:      &idx,
		OccurredAt: at,
	}
}

// PlayerEvent builds an event describing a player record.
func PlayerEvent(p Player, typ EventType, at time.Time) Event {
	return Event{
		GameID:     p.GameID,
		Entity:     EntityPlayer,
		EntityID:   p.ID,
		Version:    p.Version,
		Type:       typ,
		OccurredAt: at,
	}
}
