package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Dosada05/bracket-engine/middleware"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapServiceErrorToHTTP(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrMatchNotFound, http.StatusNotFound},
		{services.ErrBracketNotGenerated, http.StatusNotFound},
		{services.ErrForbiddenOperation, http.StatusForbidden},
		{services.ErrNotAParticipant, http.StatusForbidden},
		{services.ErrAlreadyGenerated, http.StatusConflict},
		{fmt.Errorf("%w (status %s)", services.ErrNotDisputed, models.MatchScheduled), http.StatusConflict},
		{services.ErrConflict, http.StatusConflict},
		{services.ErrInsufficientParticipants, http.StatusUnprocessableEntity},
		{services.ErrResultTie, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: reason is required", services.ErrValidationFailed), http.StatusBadRequest},
		{services.ErrUnsupportedAttachment, http.StatusBadRequest},
		{fmt.Errorf("%w: bucket gone", services.ErrExternalService), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mapServiceErrorToHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestReadJSON(t *testing.T) {
	var dst struct {
		Score int `json:"score"`
	}
	tests := []struct{ body, want string }{
		{"", "body must not be empty"},
		{`{"score":`, "badly-formed JSON"},
		{`{"score":"x"}`, `incorrect JSON type for field "score"`},
		{`{"unknown":1}`, "unknown key"},
		{`{"score":1}{"score":2}`, "single JSON value"},
		{"{\"score\":1\x00}", "badly-formed JSON"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
		err := readJSON(httptest.NewRecorder(), req, &dst)
		require.Error(t, err, tt.body)
		assert.Contains(t, err.Error(), tt.want, tt.body)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"score":3}`))
	require.NoError(t, readJSON(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, 3, dst.Score)
}

type verifyCall struct {
	auth     models.AuthContext
	matchID  uuid.UUID
	winnerID *uuid.UUID
}

type recordingMatchService struct {
	services.MatchService
	calls []verifyCall
}

func (s *recordingMatchService) VerifyResult(_ context.Context, auth models.AuthContext, matchID uuid.UUID, winnerID *uuid.UUID) (*models.Match, error) {
	s.calls = append(s.calls, verifyCall{auth: auth, matchID: matchID, winnerID: winnerID})
	return &models.Match{ID: matchID, Status: models.MatchCompleted, WinnerID: winnerID}, nil
}

func TestVerifyResultHandler_OptionalWinner(t *testing.T) {
	svc := &recordingMatchService{}
	h := NewMatchHandler(svc)
	router := chi.NewRouter()
	router.Post("/matches/{matchID}/verify", h.VerifyResultHandler)

	caller := models.AuthContext{UserID: uuid.New(), Role: models.RoleAdmin}
	matchID := uuid.New()
	winner := uuid.New()

	serve := func(body string, chunked bool) int {
		req := httptest.NewRequest(http.MethodPost, "/matches/"+matchID.String()+"/verify", strings.NewReader(body))
		if chunked {
			req.ContentLength = -1
			req.TransferEncoding = []string{"chunked"}
		}
		req = req.WithContext(middleware.WithAuth(req.Context(), caller))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, serve("", false))
	require.Equal(t, http.StatusOK, serve(`{"winner_id":"`+winner.String()+`"}`, false))
	require.Equal(t, http.StatusBadRequest, serve(`{"winner":"x"}`, false))
	require.Equal(t, http.StatusOK, serve("", true))

	require.Len(t, svc.calls, 3)
	assert.Nil(t, svc.calls[2].winnerID)
	assert.Equal(t, caller, svc.calls[0].auth)
	assert.Equal(t, matchID, svc.calls[0].matchID)
	assert.Nil(t, svc.calls[0].winnerID)
	require.NotNil(t, svc.calls[1].winnerID)
	assert.Equal(t, winner, *svc.calls[1].winnerID)
}

func TestGetIDFromURL(t *testing.T) {
	router := chi.NewRouter()
	var got uuid.UUID
	var gotErr error
	router.Get("/m/{matchID}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = getIDFromURL(r, "matchID")
	})

	id := uuid.New()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/m/"+id.String(), nil))
	require.NoError(t, gotErr)
	assert.Equal(t, id, got)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/m/42", nil))
	assert.Error(t, gotErr)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/m/"+uuid.Nil.String(), nil))
	assert.Error(t, gotErr)
}
