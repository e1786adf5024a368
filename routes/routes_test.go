package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/db/dbtest"
	"github.com/Dosada05/bracket-engine/handlers"
	"github.com/Dosada05/bracket-engine/metrics"
	"github.com/Dosada05/bracket-engine/middleware"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/Dosada05/bracket-engine/services"
	"github.com/Dosada05/bracket-engine/storage"
	"github.com/Dosada05/bracket-engine/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtSecret = []byte("routes-test-secret")

type memoryUploader struct{}

func (memoryUploader) Upload(_ context.Context, key, _ string, r io.Reader) (*storage.UploadResult, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, err
	}
	return &storage.UploadResult{Key: key, Location: "https://cdn.test/" + key}, nil
}

func (memoryUploader) Delete(context.Context, string) error { return nil }

func (memoryUploader) GetPublicURL(key string) string { return "https://cdn.test/" + key }

type apiFixture struct {
	server       *httptest.Server
	tournaments  repositories.TournamentRepository
	participants repositories.ParticipantRepository
	adminToken   string
}

func newAPI(t *testing.T, configure ...func(*Dependencies)) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	database := dbtest.New(t)

	tournamentRepo := repositories.NewPostgresTournamentRepository(database)
	participantRepo := repositories.NewPostgresParticipantRepository(database)
	matchRepo := repositories.NewPostgresMatchRepository(database)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	generator := brackets.NewSingleEliminationGenerator(brackets.WithShuffle(func([]uuid.UUID) {}))
	bracketService := services.NewBracketService(database, tournamentRepo, participantRepo, matchRepo, generator, nil, logger, m)
	matchService := services.NewMatchService(database, matchRepo, tournamentRepo, nil, logger, m)
	disputeService := services.NewDisputeService(database, matchRepo, tournamentRepo, nil, logger, m)
	attachmentService := services.NewAttachmentService(matchRepo, memoryUploader{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	hub := brackets.NewHub(logger)
	go hub.Run(ctx)

	deps := Dependencies{
		JWTSecret:   jwtSecret,
		Metrics:     m,
		Gatherer:    registry,
		Brackets:    handlers.NewBracketHandler(bracketService),
		Matches:     handlers.NewMatchHandler(matchService),
		Disputes:    handlers.NewDisputeHandler(disputeService),
		Attachments: handlers.NewAttachmentHandler(attachmentService),
		WebSocket:   handlers.NewWebSocketHandler(hub, nil, logger),
		Health:      handlers.NewHealthHandler(database.PingContext),
	}
	for _, fn := range configure {
		fn(&deps)
	}
	router := chi.NewRouter()
	SetupRoutes(router, deps)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return &apiFixture{
		server:       server,
		tournaments:  tournamentRepo,
		participants: participantRepo,
		adminToken:   token(t, uuid.New(), models.RoleAdmin),
	}
}

func token(t *testing.T, userID uuid.UUID, role models.UserRole) string {
	t.Helper()
	signed, err := utils.GenerateJWT(jwtSecret, userID, string(role), time.Hour)
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) seed(t *testing.T, players int) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	tournament := &models.Tournament{Name: "Cup", Status: models.StatusRegistrationClosed, StartDate: time.Now().UTC()}
	require.NoError(t, f.tournaments.Create(ctx, nil, tournament))

	users := make([]uuid.UUID, players)
	for i := range users {
		users[i] = uuid.New()
		p := &models.Participant{TournamentID: tournament.ID, UserID: users[i], PaymentStatus: models.PaymentPaid}
		require.NoError(t, f.participants.Create(ctx, nil, p))
	}
	return tournament.ID, users
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body interface{}) (int, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return send(t, req)
}

func send(t *testing.T, req *http.Request) (int, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]json.RawMessage{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestAPI_FullMatchLifecycle(t *testing.T) {
	api := newAPI(t)
	tournamentID, users := api.seed(t, 2)
	bracketPath := "/api/v1/tournaments/" + tournamentID.String() + "/bracket"

	status, _ := api.do(t, http.MethodGet, bracketPath, "", nil)
	require.Equal(t, http.StatusNotFound, status)

	status, body := api.do(t, http.MethodPost, bracketPath, api.adminToken, nil)
	require.Equal(t, http.StatusCreated, status)
	view := decode[services.BracketView](t, body["bracket"])
	require.Len(t, view.Matches, 1)
	matchID := view.Matches[0].ID
	matchPath := "/api/v1/matches/" + matchID.String()

	status, _ = api.do(t, http.MethodPost, bracketPath, api.adminToken, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = api.do(t, http.MethodGet, bracketPath, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decode[services.BracketView](t, body["bracket"]).TotalRounds)

	a, b := users[0], users[1]
	status, _ = api.do(t, http.MethodPost, matchPath+"/results", token(t, uuid.New(), models.RolePlayer), services.SubmitResultInput{Score: 1})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = api.do(t, http.MethodPost, matchPath+"/results", token(t, a, models.RolePlayer), services.SubmitResultInput{Score: 7})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.MatchInProgress, decode[models.Match](t, body["match"]).Status)

	status, body = api.do(t, http.MethodPost, matchPath+"/results", token(t, b, models.RolePlayer), services.SubmitResultInput{Score: 2})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.MatchPendingVerification, decode[models.Match](t, body["match"]).Status)

	status, _ = api.do(t, http.MethodPost, matchPath+"/verify", token(t, a, models.RolePlayer), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = api.do(t, http.MethodPost, matchPath+"/verify", api.adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	verified := decode[models.Match](t, body["match"])
	assert.Equal(t, models.MatchCompleted, verified.Status)
	assert.Equal(t, a, *verified.WinnerID)

	status, body = api.do(t, http.MethodGet, "/api/v1/tournaments/"+tournamentID.String()+"/matches", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Match](t, body["matches"]), 1)

	status, body = api.do(t, http.MethodGet, bracketPath, "", nil)
	require.Equal(t, http.StatusOK, status)
	final := decode[services.BracketView](t, body["bracket"])
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, a, *final.WinnerID)
}

func TestAPI_DisputeFlow(t *testing.T) {
	api := newAPI(t)
	tournamentID, users := api.seed(t, 2)

	status, body := api.do(t, http.MethodPost, "/api/v1/tournaments/"+tournamentID.String()+"/bracket", api.adminToken, nil)
	require.Equal(t, http.StatusCreated, status)
	matchID := decode[services.BracketView](t, body["bracket"]).Matches[0].ID
	matchPath := "/api/v1/matches/" + matchID.String()

	status, _ = api.do(t, http.MethodPost, matchPath+"/dispute/resolve", api.adminToken, services.ResolveDisputeInput{Resolution: "early"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = api.do(t, http.MethodPost, matchPath+"/dispute", token(t, users[1], models.RolePlayer), services.ReportDisputeInput{Reason: "no show"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.MatchDisputed, decode[models.Match](t, body["match"]).Status)

	status, body = api.do(t, http.MethodPost, matchPath+"/dispute/resolve", api.adminToken, services.ResolveDisputeInput{Resolution: "voided"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.MatchCancelled, decode[models.Match](t, body["match"]).Status)
}

func TestAPI_RequestErrors(t *testing.T) {
	api := newAPI(t)
	tournamentID, users := api.seed(t, 1)

	status, _ := api.do(t, http.MethodPost, "/api/v1/tournaments/"+tournamentID.String()+"/bracket", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(t, http.MethodPost, "/api/v1/tournaments/"+tournamentID.String()+"/bracket", token(t, users[0], models.RolePlayer), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := api.do(t, http.MethodPost, "/api/v1/tournaments/"+tournamentID.String()+"/bracket", api.adminToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, string(body["error"]), "participants")

	status, _ = api.do(t, http.MethodGet, "/api/v1/matches/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodGet, "/api/v1/matches/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodPost, "/api/v1/matches/"+uuid.NewString()+"/results", token(t, users[0], models.RolePlayer), map[string]interface{}{"score": 1, "extra": true})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodGet, "/api/v1/tournaments/"+uuid.NewString()+"/bracket", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_UploadAttachment(t *testing.T) {
	api := newAPI(t)
	tournamentID, users := api.seed(t, 2)
	status, body := api.do(t, http.MethodPost, "/api/v1/tournaments/"+tournamentID.String()+"/bracket", api.adminToken, nil)
	require.Equal(t, http.StatusCreated, status)
	matchID := decode[services.BracketView](t, body["bracket"]).Matches[0].ID

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	require.NoError(t, writer.WriteField("kind", "evidence"))
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="proof.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/v1/matches/"+matchID.String()+"/attachments", &form)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, users[0], models.RolePlayer))

	status, body = send(t, req)
	require.Equal(t, http.StatusCreated, status)
	attachment := decode[services.Attachment](t, body["attachment"])
	assert.Contains(t, attachment.Key, "/evidence/"+users[0].String()+"-")
	assert.Equal(t, "https://cdn.test/"+attachment.Key, attachment.URL)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	api := newAPI(t)

	status, body := api.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"ok"`, string(body["status"]))

	api.do(t, http.MethodGet, "/api/v1/matches/"+uuid.NewString(), "", nil)

	resp, err := http.Get(api.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `route="/api/v1/matches/{matchID}"`)
}

func TestAPI_RateLimitKeysOnClientAddress(t *testing.T) {
	statuses := func(f *apiFixture) []int {
		var codes []int
		for i := 0; i < 3; i++ {
			req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/matches/"+uuid.NewString(), nil)
			require.NoError(t, err)
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			codes = append(codes, resp.StatusCode)
		}
		return codes
	}

	t.Run("forwarded headers ignored by default", func(t *testing.T) {
		f := newAPI(t, func(d *Dependencies) {
			d.RateLimiter = middleware.NewIPRateLimiter(0, 2)
		})
		assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, statuses(f))
	})

	t.Run("forwarded headers trusted behind a proxy", func(t *testing.T) {
		f := newAPI(t, func(d *Dependencies) {
			d.RateLimiter = middleware.NewIPRateLimiter(0, 2)
			d.TrustProxy = true
		})
		assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusNotFound}, statuses(f))
	})
}
