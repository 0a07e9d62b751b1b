package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nightcouncil/werewolf-server/internal/agent"
	"github.com/nightcouncil/werewolf-server/internal/engine"
	"github.com/nightcouncil/werewolf-server/internal/match"
	"github.com/nightcouncil/werewolf-server/internal/repository"
	"github.com/nightcouncil/werewolf-server/internal/scheduler"
)

type testAPI struct {
	srv   *httptest.Server
	store *repository.MemStore
	sched *scheduler.ManualScheduler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := repository.NewMemStore()
	sched := scheduler.NewManualScheduler()
	gw := agent.NewScriptedGateway()
	logger := zap.NewNop()

	eng := engine.New(store, sched, gw, engine.Config{
		Match:       match.DefaultConfig(),
		Workers:     2,
		CallTimeout: time.Second,
	}, logger)
	sched.SetHandler(eng.HandleJob)

	hub := NewHub(store, logger)
	eng.SetEventSink(hub.Publish)

	srv := httptest.NewServer(New(eng, hub, logger))
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, store: store, sched: sched}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, raw
}

func rosterBody() map[string]any {
	players := make([]map[string]string, 0, match.PlayerCount)
	for i := 1; i <= match.PlayerCount; i++ {
		id := fmt.Sprintf("p%d", i)
		players = append(players, map[string]string{"playerId": id, "displayName": "Player " + id})
	}
	return map[string]any{"players": players, "seed": "seed-1"}
}

func (a *testAPI) createMatch(t *testing.T) string {
	t.Helper()
	resp, raw := a.do(t, http.MethodPost, "/v1/matches", rosterBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var out struct {
		MatchID string `json:"matchId"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.NotEmpty(t, out.MatchID)
	return out.MatchID
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	resp, raw := api.do(t, http.MethodGet, "/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"ok"`)
}

func TestCreateMatch(t *testing.T) {
	api := newTestAPI(t)

	t.Run("valid roster", func(t *testing.T) {
		id := api.createMatch(t)
		resp, raw := api.do(t, http.MethodGet, "/v1/matches/"+id+"/state", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var view match.StateView
		require.NoError(t, json.Unmarshal(raw, &view))
		assert.Equal(t, match.PhaseLobby, view.Phase)
		assert.Equal(t, match.PlayerCount, view.PlayersAlive)
	})

	t.Run("duplicate player ids rejected", func(t *testing.T) {
		body := rosterBody()
		players := body["players"].([]map[string]string)
		players[1]["playerId"] = players[0]["playerId"]
		resp, _ := api.do(t, http.MethodPost, "/v1/matches", body, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("short roster rejected", func(t *testing.T) {
		body := rosterBody()
		body["players"] = body["players"].([]map[string]string)[:3]
		resp, _ := api.do(t, http.MethodPost, "/v1/matches", body, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestReadyCommand(t *testing.T) {
	api := newTestAPI(t)
	id := api.createMatch(t)

	resp, raw := api.do(t, http.MethodPost, "/v1/matches/"+id+"/ready",
		map[string]any{"playerId": "p1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, _ = api.do(t, http.MethodPost, "/v1/matches/"+id+"/ready",
		map[string]any{"playerId": "nobody"}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode,
		"an unknown seat in a known match is an invariant failure, not client error")

	resp, _ = api.do(t, http.MethodPost, "/v1/matches/unknown/ready",
		map[string]any{"playerId": "p1"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCommandRejectedInWrongPhase(t *testing.T) {
	api := newTestAPI(t)
	id := api.createMatch(t)

	resp, raw := api.do(t, http.MethodPost, "/v1/matches/"+id+"/say",
		map[string]any{"playerId": "p1", "text": "hello", "kind": "DISCUSSION"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(raw))

	resp, _ = api.do(t, http.MethodPost, "/v1/matches/"+id+"/vote",
		map[string]any{"playerId": "p1", "targetId": "p2"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIdempotencyKeyReplay(t *testing.T) {
	api := newTestAPI(t)
	id := api.createMatch(t)

	headers := map[string]string{"Idempotency-Key": "ready-1"}
	resp, raw := api.do(t, http.MethodPost, "/v1/matches/"+id+"/ready",
		map[string]any{"playerId": "p1"}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var first struct {
		Replayed bool `json:"replayed"`
	}
	require.NoError(t, json.Unmarshal(raw, &first))
	assert.False(t, first.Replayed)

	resp, raw = api.do(t, http.MethodPost, "/v1/matches/"+id+"/ready",
		map[string]any{"playerId": "p1"}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second struct {
		Replayed bool `json:"replayed"`
	}
	require.NoError(t, json.Unmarshal(raw, &second))
	assert.True(t, second.Replayed)
}

func TestEventsEndpointScopesVisibility(t *testing.T) {
	api := newTestAPI(t)
	id := api.createMatch(t)

	// Push the match into the night and post wolf chat directly.
	m, err := api.store.LoadMatch(t.Context(), id)
	require.NoError(t, err)
	next := m.Clone()
	next.Phase = match.PhaseNight
	next.PhaseStartedAt = time.Now()
	next.PhaseEndsAt = time.Now().Add(90 * time.Second)
	require.NoError(t, api.store.WriteMatch(t.Context(), m, next))

	var wolfID string
	for _, p := range next.Players {
		if p.Role == match.RoleWerewolf {
			wolfID = p.ID
			break
		}
	}
	resp, raw := api.do(t, http.MethodPost, "/v1/matches/"+id+"/wolf-chat",
		map[string]any{"playerId": wolfID, "text": "tonight we hunt"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	type eventsResponse struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}

	var asWolf, asSpectator eventsResponse
	_, raw = api.do(t, http.MethodGet, "/v1/matches/"+id+"/events?viewer="+wolfID, nil, nil)
	require.NoError(t, json.Unmarshal(raw, &asWolf))
	_, raw = api.do(t, http.MethodGet, "/v1/matches/"+id+"/events", nil, nil)
	require.NoError(t, json.Unmarshal(raw, &asSpectator))

	assert.Equal(t, len(asSpectator.Events)+1, len(asWolf.Events))
	for _, ev := range asSpectator.Events {
		assert.NotEqual(t, string(match.EventWolfChatMessage), ev.Type)
	}
}

func TestStateEndpointSpoilers(t *testing.T) {
	api := newTestAPI(t)
	id := api.createMatch(t)

	_, raw := api.do(t, http.MethodGet, "/v1/matches/"+id+"/state?spoilers=true", nil, nil)
	var view match.StateView
	require.NoError(t, json.Unmarshal(raw, &view))
	roles := make(map[match.Role]int)
	for _, p := range view.Players {
		roles[p.RevealedRole]++
	}
	assert.Equal(t, 2, roles[match.RoleWerewolf])
	assert.Equal(t, 1, roles[match.RoleSeer])
	assert.Equal(t, 1, roles[match.RoleDoctor])
	assert.Equal(t, 4, roles[match.RoleVillager])
}
