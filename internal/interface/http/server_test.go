package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitmatch/fitmatch-core/internal/application/command"
	"github.com/fitmatch/fitmatch-core/internal/application/query"
	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/persistence/memory"
	"github.com/fitmatch/fitmatch-core/pkg/logger"
)

const testSecret = "test-secret"

type recordingPusher struct {
	deliveries []shared.Delivery
}

func (p *recordingPusher) Push(_ context.Context, outbox []shared.Delivery) {
	p.deliveries = append(p.deliveries, outbox...)
}

type testEnv struct {
	store  *memory.Store
	auth   *Authenticator
	pusher *recordingPusher
	server *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	gate := conversation.NewGate(store.Matches())
	auth := NewAuthenticator(testSecret, "")
	pusher := &recordingPusher{}

	deps := Dependencies{
		CreateMatch:            command.NewCreateMatchHandler(store.Matches(), store.Users()),
		ArchiveMatch:           command.NewArchiveMatchHandler(store.Matches()),
		UpdatePreferences:      command.NewUpdatePreferencesHandler(store.Preferences()),
		SendMessage:            command.NewSendMessageHandler(gate, store.Messages()),
		MarkAsRead:             command.NewMarkAsReadHandler(gate, store.Messages()),
		MarkConversationAsRead: command.NewMarkConversationAsReadHandler(gate, store.Messages()),
		DeleteMessage:          command.NewDeleteMessageHandler(gate, store.Messages()),
		GetPotentialMatches:    query.NewGetPotentialMatchesHandler(store.Users(), store.Preferences(), store.Matches(), matching.NewScorer(), 0),
		GetUserMatches:         query.NewGetUserMatchesHandler(store.Matches(), store.Users()),
		AreMatched:             query.NewAreMatchedHandler(store.Matches()),
		GetPreferences:         query.NewGetPreferencesHandler(store.Preferences()),
		GetMessages:            query.NewGetMessagesHandler(gate, store.Messages()),
		GetConversations:       query.NewGetConversationsHandler(store.Matches(), store.Messages(), store.Users()),
		GetUnreadCount:         query.NewGetUnreadCountHandler(store.Messages()),
		GetMatchStats:          query.NewGetMatchStatsHandler(query.NewAdminPolicy([]string{"admin"}), store.Matches(), store.Messages(), store.Users()),
		Auth:                   auth,
		Pusher:                 pusher,
		Hub:                    NewHub(HubConfig{Rooms: gate, Pusher: pusher, Logger: logger.Discard()}),
		Logger:                 logger.Discard(),
	}
	return &testEnv{store: store, auth: auth, pusher: pusher, server: NewServer(DefaultConfig(), deps)}
}

func (e *testEnv) seedUser(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.store.Users().Upsert(context.Background(), matching.Profile{
		ID:       id,
		Age:      30,
		Location: &shared.GeoPoint{Lat: 40.7128, Lon: -74.0060},
		Metrics:  &fitness.Metrics{WeeklyDistance: 40000, FavoriteActivities: []string{"Run"}},
	}))
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		token, err := e.auth.Issue(userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func dataMap(t *testing.T, resp JSONResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestServer_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/matching/matches", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unauthorized", resp.Error.Code)
}

func TestServer_RejectsForeignSignature(t *testing.T) {
	env := newTestEnv(t)
	token, err := NewAuthenticator("other-secret", "").Issue("alice", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/matching/matches", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_CreateMatchIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice")
	env.seedUser(t, "bob")
	body := map[string]interface{}{"targetUserId": "bob", "compatibilityScore": 80}

	rec, resp := env.do(t, http.MethodPost, "/matching/match", "alice", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := dataMap(t, resp)["match"].(map[string]interface{})
	assert.Len(t, env.pusher.deliveries, 2)

	rec, resp = env.do(t, http.MethodPost, "/matching/match", "bob", map[string]interface{}{"targetUserId": "alice", "compatibilityScore": 10})
	require.Equal(t, http.StatusOK, rec.Code)
	second := dataMap(t, resp)["match"].(map[string]interface{})
	assert.Equal(t, first["id"], second["id"])
	assert.Equal(t, float64(80), second["compatibilityScore"])
	assert.Len(t, env.pusher.deliveries, 2)

	rec, resp = env.do(t, http.MethodGet, "/matching/matched/bob", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, dataMap(t, resp)["matched"])
}

func TestServer_CreateMatchValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice")

	rec, resp := env.do(t, http.MethodPost, "/matching/match", "alice", map[string]interface{}{"targetUserId": "alice", "compatibilityScore": 50})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation_error", resp.Error.Code)
	assert.Equal(t, "targetUserId", resp.Error.Field)
}

func TestServer_UnknownFieldIsRejected(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/matching/match", "alice", map[string]interface{}{"target": "bob"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation_error", resp.Error.Code)
}

func TestServer_SendMessageRequiresMatch(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice")
	env.seedUser(t, "bob")

	rec, resp := env.do(t, http.MethodPost, "/messages", "alice", map[string]interface{}{
		"recipientId": "bob",
		"matchId":     "nope",
		"content":     "hi",
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, shared.ReasonNotMatched, resp.Error.Reason)
}

func TestServer_ConversationFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice")
	env.seedUser(t, "bob")

	_, resp := env.do(t, http.MethodPost, "/matching/match", "alice", map[string]interface{}{"targetUserId": "bob", "compatibilityScore": 70})
	matchID := dataMap(t, resp)["match"].(map[string]interface{})["id"].(string)

	rec, resp := env.do(t, http.MethodPost, "/messages", "alice", map[string]interface{}{
		"recipientId": "bob",
		"matchId":     matchID,
		"content":     "  morning run?  ",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := dataMap(t, resp)
	assert.Equal(t, "morning run?", msg["content"])

	rec, resp = env.do(t, http.MethodGet, "/messages/unread-count", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), dataMap(t, resp)["count"])

	rec, resp = env.do(t, http.MethodPut, "/messages/conversations/"+matchID+"/read", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), dataMap(t, resp)["readCount"])

	rec, resp = env.do(t, http.MethodDelete, "/messages/"+msg["id"].(string), "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, shared.ReasonNotSender, resp.Error.Reason)

	rec, _ = env.do(t, http.MethodGet, "/messages/"+matchID, "carol", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodPut, "/matching/matches/"+matchID+"/archive", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp = env.do(t, http.MethodPost, "/messages", "bob", map[string]interface{}{
		"recipientId": "alice",
		"matchId":     matchID,
		"content":     "still there?",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, shared.ReasonNotMatched, resp.Error.Reason)
}

func TestServer_PreferencesDefaults(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/matching/preferences", "alice", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, dataMap(t, resp)["isDefault"])
}

func TestServer_AdminStatsRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/admin/stats", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, shared.ReasonNotAdmin, resp.Error.Reason)

	rec, _ = env.do(t, http.MethodGet, "/admin/stats", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_PotentialMatchesClampsLimit(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice")
	env.seedUser(t, "bob")
	env.seedUser(t, "carol")

	cases := []struct {
		query string
		want  float64
	}{
		{"", float64(shared.DefaultPageLimit)},
		{"?limit=0", 1},
		{"?limit=-4", 1},
		{"?limit=500", 100},
	}
	for _, tc := range cases {
		rec, resp := env.do(t, http.MethodGet, "/matching/potential"+tc.query, "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code, tc.query)
		data := dataMap(t, resp)
		assert.Equal(t, tc.want, data["limit"], tc.query)
		assert.LessOrEqual(t, len(data["candidates"].([]interface{})), int(tc.want), tc.query)
	}
}
