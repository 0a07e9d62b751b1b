package match

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType indicates the category of a match event.
type EventType string

const (
	EventMatchCreated     EventType = "MATCH_CREATED"
	EventPhaseChanged     EventType = "PHASE_CHANGED"
	EventPublicMessage    EventType = "PUBLIC_MESSAGE"
	EventWolfChatMessage  EventType = "WOLF_CHAT_MESSAGE"
	EventVoteCast         EventType = "VOTE_CAST"
	EventNightResult      EventType = "NIGHT_RESULT"
	EventPlayerEliminated EventType = "PLAYER_ELIMINATED"
	EventGameEnded        EventType = "GAME_ENDED"
	EventNarrator         EventType = "NARRATOR"
)

// VisibilityScope classifies who may read an event.
type VisibilityScope string

const (
	ScopePublic        VisibilityScope = "PUBLIC"
	ScopeWolves        VisibilityScope = "WOLVES"
	ScopePlayerPrivate VisibilityScope = "PLAYER_PRIVATE"
)

// Visibility scopes an event to an audience. PlayerID is set only for
// PLAYER_PRIVATE events.
type Visibility struct {
	Scope    VisibilityScope `json:"scope"`
	PlayerID string          `json:"playerId,omitempty"`
}

func PublicVisibility() Visibility { return Visibility{Scope: ScopePublic} }
func WolvesVisibility() Visibility { return Visibility{Scope: ScopeWolves} }
func PrivateVisibility(playerID string) Visibility {
	return Visibility{Scope: ScopePlayerPrivate, PlayerID: playerID}
}

// Payload is the closed set of event payloads. One concrete type exists per
// event type; there is deliberately no generic payload bag.
type Payload interface {
	eventPayload()
}

// MessageKind distinguishes the two public-speech stages.
type MessageKind string

const (
	KindOpening    MessageKind = "OPENING"
	KindDiscussion MessageKind = "DISCUSSION"
)

type MatchCreatedPayload struct {
	PlayerIDs []string       `json:"playerIds"`
	Seats     map[string]int `json:"seats"`
}

type PhaseChangedPayload struct {
	From        Phase `json:"from"`
	To          Phase `json:"to"`
	DayNumber   int   `json:"dayNumber"`
	NightNumber int   `json:"nightNumber"`
}

type PublicMessagePayload struct {
	PlayerID    string      `json:"playerId"`
	Text        string      `json:"text"`
	Kind        MessageKind `json:"kind"`
	ReplyTo     string      `json:"replyToEventId,omitempty"`
	Synthesized bool        `json:"synthesized,omitempty"`
}

type WolfChatPayload struct {
	PlayerID    string `json:"playerId"`
	Text        string `json:"text"`
	Synthesized bool   `json:"synthesized,omitempty"`
}

type VoteCastPayload struct {
	VoterID  string `json:"voterId"`
	TargetID string `json:"targetId,omitempty"`
	Abstain  bool   `json:"abstain,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// NightResultPayload is emitted twice per night with different audiences:
// a public variant carrying deaths/saves, and a seer-private variant
// carrying the inspection result.
type NightResultPayload struct {
	NightNumber   int      `json:"nightNumber"`
	Died          []string `json:"died,omitempty"`
	Saved         bool     `json:"saved,omitempty"`
	TimedOut      []string `json:"timedOut,omitempty"`
	InspectedID   string   `json:"inspectedId,omitempty"`
	InspectedRole Role     `json:"inspectedRole,omitempty"`
}

type PlayerEliminatedPayload struct {
	PlayerID string           `json:"playerId"`
	Role     Role             `json:"role"`
	Cause    EliminationCause `json:"cause"`
}

type GameEndedPayload struct {
	Winner Winner `json:"winner"`
	Forced bool   `json:"forced,omitempty"`
}

type NarratorPayload struct {
	Text string `json:"text"`
}

func (MatchCreatedPayload) eventPayload()     {}
func (PhaseChangedPayload) eventPayload()     {}
func (PublicMessagePayload) eventPayload()    {}
func (WolfChatPayload) eventPayload()         {}
func (VoteCastPayload) eventPayload()         {}
func (NightResultPayload) eventPayload()      {}
func (PlayerEliminatedPayload) eventPayload() {}
func (GameEndedPayload) eventPayload()        {}
func (NarratorPayload) eventPayload()         {}

// Event is one immutable entry of the append-only match log. Seq is assigned
// by the store on append and is monotonic per match.
type Event struct {
	ID         string
	MatchID    string
	Seq        int64
	Type       EventType
	Visibility Visibility
	At         time.Time
	Payload    Payload
}

// NewEvent builds an event with a fresh id. Seq stays zero until the store
// assigns it.
func NewEvent(matchID string, typ EventType, vis Visibility, at time.Time, payload Payload) Event {
	return Event{
		ID:         uuid.NewString(),
		MatchID:    matchID,
		Type:       typ,
		Visibility: vis,
		At:         at,
		Payload:    payload,
	}
}

// MarshalPayload serializes an event payload for persistence.
func MarshalPayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPayload decodes a persisted payload into its concrete type based
// on the event type tag.
func UnmarshalPayload(typ EventType, data []byte) (Payload, error) {
	var p Payload
	switch typ {
	case EventMatchCreated:
		p = &MatchCreatedPayload{}
	case EventPhaseChanged:
		p = &PhaseChangedPayload{}
	case EventPublicMessage:
		p = &PublicMessagePayload{}
	case EventWolfChatMessage:
		p = &WolfChatPayload{}
	case EventVoteCast:
		p = &VoteCastPayload{}
	case EventNightResult:
		p = &NightResultPayload{}
	case EventPlayerEliminated:
		p = &PlayerEliminatedPayload{}
	case EventGameEnded:
		p = &GameEndedPayload{}
	case EventNarrator:
		p = &NarratorPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", typ)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", typ, err)
	}
	switch v := p.(type) {
	case *MatchCreatedPayload:
		return *v, nil
	case *PhaseChangedPayload:
		return *v, nil
	case *PublicMessagePayload:
		return *v, nil
	case *WolfChatPayload:
		return *v, nil
	case *VoteCastPayload:
		return *v, nil
	case *NightResultPayload:
		return *v, nil
	case *PlayerEliminatedPayload:
		return *v, nil
	case *GameEndedPayload:
		return *v, nil
	case *NarratorPayload:
		return *v, nil
	}
	return nil, fmt.Errorf("unknown event type %q", typ)
}

// VisibleTo reports whether a viewer may read the event. An empty viewerID
// is a spectator and sees only public events. Wolf-scoped events are visible
// to werewolves regardless of whether they still live; a dead wolf keeps its
// knowledge.
func (e Event) VisibleTo(m Match, viewerID string) bool {
	switch e.Visibility.Scope {
	case ScopePublic:
		return true
	case ScopeWolves:
		if viewerID == "" {
			return false
		}
		p, ok := m.PlayerByID(viewerID)
		return ok && p.Role == RoleWerewolf
	case ScopePlayerPrivate:
		return viewerID != "" && e.Visibility.PlayerID == viewerID
	}
	return false
}
