// Package server exposes the match engine over HTTP: a small JSON command
// API plus a websocket event stream.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/nightcouncil/werewolf-server/internal/engine"
	"github.com/nightcouncil/werewolf-server/internal/match"
	"github.com/nightcouncil/werewolf-server/internal/repository"
)

// Server holds the HTTP surface.
type Server struct {
	engine *engine.Engine
	hub    *Hub
	log    *zap.Logger
}

// New builds the HTTP handler. The hub must already be wired as the
// engine's event sink.
func New(eng *engine.Engine, hub *Hub, logger *zap.Logger) http.Handler {
	s := &Server{engine: eng, hub: hub, log: logger}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	hcfg := huma.DefaultConfig("Werewolf Match API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, "/v1")

	s.registerHealth(group)
	s.registerMatches(group)
	s.registerCommands(group)
	s.registerQueries(group)

	router.Get("/v1/matches/{id}/ws", s.handleWebsocket)
	return router
}

// mapError translates domain errors into HTTP status errors. Validation
// failures are the client's fault; a lost fence means the submission was
// superseded by a concurrent phase change.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return huma.Error404NotFound("match not found")
	case errors.Is(err, match.ErrDuplicateSubmission):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, repository.ErrStale):
		return huma.Error409Conflict("submission superseded by a phase change")
	case match.IsValidation(err):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

func (s *Server) registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

type rosterEntry struct {
	PlayerID    string `json:"playerId" minLength:"1"`
	DisplayName string `json:"displayName"`
}

type createMatchInput struct {
	Body struct {
		Players []rosterEntry `json:"players" minItems:"8" maxItems:"8"`
		Seed    string        `json:"seed,omitempty"`
	}
}

type matchCreatedOutput struct {
	Body struct {
		MatchID     string      `json:"matchId"`
		Phase       match.Phase `json:"phase"`
		PhaseEndsAt string      `json:"phaseEndsAt"`
	}
}

func (s *Server) registerMatches(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-match",
		Method:        http.MethodPost,
		Path:          "/matches",
		Summary:       "Create a match from an 8-player roster",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *createMatchInput) (*matchCreatedOutput, error) {
		roster := make([]match.Roster, 0, len(input.Body.Players))
		for _, p := range input.Body.Players {
			roster = append(roster, match.Roster{PlayerID: p.PlayerID, DisplayName: p.DisplayName})
		}
		m, err := s.engine.CreateMatch(ctx, roster, input.Body.Seed)
		if err != nil {
			return nil, mapError(err)
		}
		out := &matchCreatedOutput{}
		out.Body.MatchID = m.ID
		out.Body.Phase = m.Phase
		out.Body.PhaseEndsAt = m.PhaseEndsAt.Format(httpTimeLayout)
		return out, nil
	})
}

const httpTimeLayout = "2006-01-02T15:04:05.000Z07:00"

type submissionOutput struct {
	Body struct {
		EventID  string `json:"eventId,omitempty"`
		Detail   string `json:"detail"`
		Replayed bool   `json:"replayed,omitempty"`
	}
}

func submissionResponse(sub engine.Submission) *submissionOutput {
	out := &submissionOutput{}
	out.Body.EventID = sub.EventID
	out.Body.Detail = sub.Detail
	out.Body.Replayed = sub.Replayed
	return out
}

func (s *Server) registerCommands(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "ready",
		Method:      http.MethodPost,
		Path:        "/matches/{id}/ready",
		Summary:     "Mark a lobby player ready",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IdempotencyKey string `header:"Idempotency-Key"`
		ID             string `path:"id"`
		Body           struct {
			PlayerID string `json:"playerId" minLength:"1"`
		}
	}) (*submissionOutput, error) {
		sub, err := s.engine.Ready(ctx, input.ID, input.Body.PlayerID, input.IdempotencyKey)
		if err != nil {
			return nil, mapError(err)
		}
		return submissionResponse(sub), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "say",
		Method:      http.MethodPost,
		Path:        "/matches/{id}/say",
		Summary:     "Post an opening statement or discussion message",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IdempotencyKey string `header:"Idempotency-Key"`
		ID             string `path:"id"`
		Body           struct {
			PlayerID string            `json:"playerId" minLength:"1"`
			Text     string            `json:"text" minLength:"1"`
			Kind     match.MessageKind `json:"kind" enum:"OPENING,DISCUSSION"`
			ReplyTo  string            `json:"replyToEventId,omitempty"`
		}
	}) (*submissionOutput, error) {
		sub, err := s.engine.SayPublic(ctx, input.ID, input.Body.PlayerID, input.Body.Text, input.Body.Kind, input.Body.ReplyTo, input.IdempotencyKey)
		if err != nil {
			return nil, mapError(err)
		}
		return submissionResponse(sub), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "wolf-chat",
		Method:      http.MethodPost,
		Path:        "/matches/{id}/wolf-chat",
		Summary:     "Post to the werewolf night channel",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IdempotencyKey string `header:"Idempotency-Key"`
		ID             string `path:"id"`
		Body           struct {
			PlayerID string `json:"playerId" minLength:"1"`
			Text     string `json:"text" minLength:"1"`
		}
	}) (*submissionOutput, error) {
		sub, err := s.engine.WolfChat(ctx, input.ID, input.Body.PlayerID, input.Body.Text, input.IdempotencyKey)
		if err != nil {
			return nil, mapError(err)
		}
		return submissionResponse(sub), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "vote",
		Method:      http.MethodPost,
		Path:        "/matches/{id}/vote",
		Summary:     "Cast a day vote or abstain",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IdempotencyKey string `header:"Idempotency-Key"`
		ID             string `path:"id"`
		Body           struct {
			PlayerID string `json:"playerId" minLength:"1"`
			TargetID string `json:"targetId,omitempty"`
			Abstain  bool   `json:"abstain,omitempty"`
			Reason   string `json:"reason,omitempty"`
		}
	}) (*submissionOutput, error) {
		sub, err := s.engine.CastVote(ctx, input.ID, input.Body.PlayerID, input.Body.TargetID, input.Body.Abstain, input.Body.Reason, input.IdempotencyKey)
		if err != nil {
			return nil, mapError(err)
		}
		return submissionResponse(sub), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "night-action",
		Method:      http.MethodPost,
		Path:        "/matches/{id}/night-action",
		Summary:     "Submit a private night action",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IdempotencyKey string `header:"Idempotency-Key"`
		ID             string `path:"id"`
		Body           struct {
			PlayerID string                 `json:"playerId" minLength:"1"`
			Action   engine.NightActionKind `json:"action" enum:"WOLF_KILL,SEER_INSPECT,DOCTOR_PROTECT"`
			TargetID string                 `json:"targetId" minLength:"1"`
		}
	}) (*submissionOutput, error) {
		sub, err := s.engine.SubmitNightAction(ctx, input.ID, input.Body.PlayerID, input.Body.Action, input.Body.TargetID, input.IdempotencyKey)
		if err != nil {
			return nil, mapError(err)
		}
		return submissionResponse(sub), nil
	})
}

type eventView struct {
	ID         string           `json:"id"`
	Seq        int64            `json:"seq"`
	Type       match.EventType  `json:"type"`
	Visibility match.Visibility `json:"visibility"`
	At         string           `json:"at"`
	Payload    any              `json:"payload"`
}

func toEventView(ev match.Event) eventView {
	return eventView{
		ID:         ev.ID,
		Seq:        ev.Seq,
		Type:       ev.Type,
		Visibility: ev.Visibility,
		At:         ev.At.Format(httpTimeLayout),
		Payload:    ev.Payload,
	}
}

func (s *Server) registerQueries(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-state",
		Method:      http.MethodGet,
		Path:        "/matches/{id}/state",
		Summary:     "Get the state view for a viewer",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID       string `path:"id"`
		ViewerID string `query:"viewer"`
		Spoilers bool   `query:"spoilers"`
	}) (*struct {
		Body match.StateView
	}, error) {
		view, err := s.engine.State(ctx, input.ID, input.ViewerID, input.Spoilers)
		if err != nil {
			return nil, mapError(err)
		}
		return &struct{ Body match.StateView }{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/matches/{id}/events",
		Summary:     "List events visible to a viewer",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID       string `path:"id"`
		ViewerID string `query:"viewer"`
		AfterSeq int64  `query:"after"`
		Limit    int    `query:"limit" maximum:"500"`
	}) (*struct {
		Body struct {
			Events []eventView `json:"events"`
		}
	}, error) {
		events, err := s.engine.Events(ctx, input.ID, input.ViewerID, input.AfterSeq, input.Limit)
		if err != nil {
			return nil, mapError(err)
		}
		out := &struct {
			Body struct {
				Events []eventView `json:"events"`
			}
		}{}
		out.Body.Events = make([]eventView, 0, len(events))
		for _, ev := range events {
			out.Body.Events = append(out.Body.Events, toEventView(ev))
		}
		return out, nil
	})
}
