package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gamecatalog/catalogservice/internal/domain"
	"gamecatalog/catalogservice/internal/query"
)

type fakeSearchService struct {
	mu        sync.Mutex
	lastText  string
	lastID    int64
	lastIDs   []int64
	games     []domain.Game
	game      *domain.Game
	err       error
	panicking bool
}

func (f *fakeSearchService) Search(_ context.Context, text string) ([]domain.Game, error) {
	if f.panicking {
		panic("boom")
	}
	f.mu.Lock()
	f.lastText = text
	f.mu.Unlock()
	if _, err := query.SearchText(text); err != nil {
		return nil, err
	}
	return f.games, f.err
}

func (f *fakeSearchService) GameByID(_ context.Context, id int64) (*domain.Game, error) {
	f.mu.Lock()
	f.lastID = id
	f.mu.Unlock()
	return f.game, f.err
}

func (f *fakeSearchService) GamesByIDs(_ context.Context, ids []int64) ([]domain.Game, error) {
	f.mu.Lock()
	f.lastIDs = append([]int64(nil), ids...)
	f.mu.Unlock()
	return f.games, f.err
}

type fakeDiscoveryService struct {
	lastList  string
	lastLimit int
	games     []domain.Game
	err       error
}

func (f *fakeDiscoveryService) record(list string, limit int) ([]domain.Game, error) {
	f.lastList = list
	f.lastLimit = limit
	return f.games, f.err
}

func (f *fakeDiscoveryService) TopRated(_ context.Context, limit int) ([]domain.Game, error) {
	return f.record("top-rated", limit)
}

func (f *fakeDiscoveryService) MostPlayed(_ context.Context, limit int) ([]domain.Game, error) {
	return f.record("most-played", limit)
}

func (f *fakeDiscoveryService) RecentlyReleased(_ context.Context, limit int) ([]domain.Game, error) {
	return f.record("recently-released", limit)
}

func (f *fakeDiscoveryService) PopularityWeighted(_ context.Context, limit int) ([]domain.Game, error) {
	return f.record("popular", limit)
}

func serve(t *testing.T, handler http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeGames(t *testing.T, rec *httptest.ResponseRecorder) []gameResponse {
	t.Helper()
	var games []gameResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &games); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return games
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error response %q: %v", rec.Body.String(), err)
	}
	return payload.Error.Code, payload.Error.Message
}

func TestHealth(t *testing.T) {
	handler := NewServer(&fakeSearchService{}).Handler()
	rec := serve(t, handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSearch_ReturnsGamesWithCoverURLs(t *testing.T) {
	search := &fakeSearchService{games: []domain.Game{
		{ID: 7346, Name: "The Legend of Zelda: Breath of the Wild", Cover: &domain.Cover{ImageID: "co3p2d"}},
		{ID: 1025, Name: "Zelda II"},
	}}
	handler := NewServer(search).Handler()

	rec := serve(t, handler, http.MethodGet, "/games/search?q=zelda", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if search.lastText != "zelda" {
		t.Fatalf("expected query zelda, got %q", search.lastText)
	}
	games := decodeGames(t, rec)
	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}
	if games[0].CoverURL != "https://images.igdb.com/igdb/image/upload/t_cover_big/co3p2d.jpg" {
		t.Fatalf("unexpected cover url %q", games[0].CoverURL)
	}
	if games[1].CoverURL != "/default_game_cover.jpg" {
		t.Fatalf("expected default cover, got %q", games[1].CoverURL)
	}
}

func TestSearch_EmptyQueryIsBadRequest(t *testing.T) {
	handler := NewServer(&fakeSearchService{}).Handler()
	rec := serve(t, handler, http.MethodGet, "/games/search?q=%20%20", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code, _ := decodeError(t, rec); code != "invalid_request" {
		t.Fatalf("expected invalid_request, got %q", code)
	}
}

func TestSearch_UpstreamFailureIsGeneric(t *testing.T) {
	search := &fakeSearchService{err: errors.New("catalog games fetch failed with status 401: secret-token-abc")}
	handler := NewServer(search).Handler()

	rec := serve(t, handler, http.MethodGet, "/games/search?q=halo", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	code, message := decodeError(t, rec)
	if code != "internal_error" || message != "failed to fetch from catalog" {
		t.Fatalf("unexpected error payload %q %q", code, message)
	}
	if strings.Contains(rec.Body.String(), "secret-token-abc") {
		t.Fatal("upstream details leaked into response")
	}
}

func TestSearch_DeadlineIsGatewayTimeout(t *testing.T) {
	search := &fakeSearchService{err: fmt.Errorf("full_text search: %w", context.DeadlineExceeded)}
	handler := NewServer(search).Handler()

	rec := serve(t, handler, http.MethodGet, "/games/search?q=halo", nil)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
}

func TestSearchJSON(t *testing.T) {
	search := &fakeSearchService{games: []domain.Game{{ID: 1, Name: "Halo"}}}
	handler := NewServer(search).Handler()

	rec := serve(t, handler, http.MethodPost, "/api/search", []byte(`{"query":"halo"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if search.lastText != "halo" {
		t.Fatalf("expected halo, got %q", search.lastText)
	}

	rec = serve(t, handler, http.MethodPost, "/api/search", []byte(`{"query":`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestGame_Found(t *testing.T) {
	search := &fakeSearchService{game: &domain.Game{
		ID:                1942,
		Name:              "The Witcher 3: Wild Hunt",
		Cover:             &domain.Cover{ImageID: "co1wyy"},
		Genres:            []domain.NamedRef{{Name: "Role-playing (RPG)"}},
		InvolvedCompanies: []domain.InvolvedCompany{{Company: &domain.Company{Name: "CD Projekt RED"}}},
	}}
	handler := NewServer(search, WithImageBaseURL("https://img.example/upload/")).Handler()

	rec := serve(t, handler, http.MethodGet, "/games/1942", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if search.lastID != 1942 {
		t.Fatalf("expected id 1942, got %d", search.lastID)
	}
	var game gameResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &game); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if game.CoverURL != "https://img.example/upload/t_cover_big/co1wyy.jpg" {
		t.Fatalf("unexpected cover url %q", game.CoverURL)
	}
	if len(game.Genres) != 1 || len(game.Companies) != 1 || game.Companies[0] != "CD Projekt RED" {
		t.Fatalf("unexpected detail projection %+v", game)
	}
}

func TestGame_NotFound(t *testing.T) {
	handler := NewServer(&fakeSearchService{}).Handler()
	rec := serve(t, handler, http.MethodGet, "/games/99", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGame_InvalidID(t *testing.T) {
	search := &fakeSearchService{}
	handler := NewServer(search).Handler()
	for _, target := range []string{"/games/abc", "/games/12abc", "/games/-4"} {
		rec := serve(t, handler, http.MethodGet, target, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
	if search.lastID != 0 {
		t.Fatal("invalid id must not reach the service")
	}
}

func TestBatch_ParsesAndFiltersIDs(t *testing.T) {
	search := &fakeSearchService{games: []domain.Game{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}}
	handler := NewServer(search).Handler()

	rec := serve(t, handler, http.MethodGet, "/games/batch?ids=1,x,2,1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(search.lastIDs) != 2 || search.lastIDs[0] != 1 || search.lastIDs[1] != 2 {
		t.Fatalf("unexpected ids %v", search.lastIDs)
	}
	if games := decodeGames(t, rec); len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}
}

func TestBatch_RejectsMissingOrInvalidIDs(t *testing.T) {
	search := &fakeSearchService{}
	handler := NewServer(search).Handler()

	rec := serve(t, handler, http.MethodGet, "/games/batch", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing ids, got %d", rec.Code)
	}
	rec = serve(t, handler, http.MethodGet, "/games/batch?ids=x,y", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid ids, got %d", rec.Code)
	}
	if _, message := decodeError(t, rec); message != "no valid ids provided" {
		t.Fatalf("unexpected message %q", message)
	}
	if search.lastIDs != nil {
		t.Fatal("service must not be called")
	}
}

func TestDiscovery_DefaultAndClampedLimits(t *testing.T) {
	discovery := &fakeDiscoveryService{games: []domain.Game{{ID: 1, Name: "a"}}}
	handler := NewServer(&fakeSearchService{}, WithDiscovery(discovery)).Handler()

	cases := []struct {
		target string
		list   string
		limit  int
	}{
		{"/games/top-rated", "top-rated", 5},
		{"/games/most-played?limit=12", "most-played", 12},
		{"/games/recently-released?limit=500", "recently-released", 100},
		{"/games/popular", "popular", 10},
	}
	for _, tc := range cases {
		rec := serve(t, handler, http.MethodGet, tc.target, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.target, rec.Code)
		}
		if discovery.lastList != tc.list || discovery.lastLimit != tc.limit {
			t.Fatalf("%s: got list %q limit %d", tc.target, discovery.lastList, discovery.lastLimit)
		}
	}

	rec := serve(t, handler, http.MethodGet, "/games/top-rated?limit=0", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero limit, got %d", rec.Code)
	}
}

func TestDiscovery_NotConfigured(t *testing.T) {
	handler := NewServer(&fakeSearchService{}).Handler()
	rec := serve(t, handler, http.MethodGet, "/games/popular", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestDiscovery_FailureIsInternalError(t *testing.T) {
	discovery := &fakeDiscoveryService{err: errors.New("chunk failed")}
	handler := NewServer(&fakeSearchService{}, WithDiscovery(discovery)).Handler()
	rec := serve(t, handler, http.MethodGet, "/games/popular", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := NewServer(&fakeSearchService{}).Handler()
	rec := serve(t, handler, http.MethodPost, "/games/search?q=halo", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSearch_UpstreamCancellationWithLiveClientIsInternalError(t *testing.T) {
	search := &fakeSearchService{err: fmt.Errorf("catalog access token: %w", context.Canceled)}
	handler := NewServer(search).Handler()

	rec := serve(t, handler, http.MethodGet, "/games/search?q=halo", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if code, _ := decodeError(t, rec); code != "internal_error" {
		t.Fatalf("expected internal_error, got %q", code)
	}
}

func TestSearch_CancelledClientGetsNoBody(t *testing.T) {
	search := &fakeSearchService{err: context.Canceled}
	handler := NewServer(search).Handler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/games/search?q=halo", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Body.Len() != 0 {
		t.Fatalf("expected no body for a cancelled client, got %q", rec.Body.String())
	}
}
