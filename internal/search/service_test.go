package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"gamecatalog/catalogservice/internal/domain"
	"gamecatalog/catalogservice/internal/query"
)

type fakeCatalog struct {
	mu     sync.Mutex
	bodies []string
	calls  atomic.Int32
	games  func(body string) ([]domain.Game, error)
}

func (f *fakeCatalog) Games(_ context.Context, body string) ([]domain.Game, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()
	return f.games(body)
}

func (f *fakeCatalog) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func isFullText(body string) bool { return strings.HasPrefix(body, "search ") }

func TestSearch_FallsBackToPartialWithoutGoodMatch(t *testing.T) {
	catalog := &fakeCatalog{games: func(body string) ([]domain.Game, error) {
		if isFullText(body) {
			return gamesNamed("Unrelated Game"), nil
		}
		return gamesNamed("Night City Stories", "Cyberpunk 2077", "Cyberpunk 2077: Phantom Liberty"), nil
	}}
	svc := NewService(catalog)

	results, err := svc.Search(context.Background(), "cyberpunk 2077")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bodies := catalog.recorded()
	if len(bodies) != 2 {
		t.Fatalf("expected 2 catalog calls, got %d", len(bodies))
	}
	wantPartial, _ := query.PartialSearch("cyberpunk 2077")
	if bodies[1] != wantPartial {
		t.Fatalf("expected partial query %q, got %q", wantPartial, bodies[1])
	}
	assertNames(t, results, "Cyberpunk 2077", "Cyberpunk 2077: Phantom Liberty", "Night City Stories")
}

func TestSearch_GoodMatchSkipsPartial(t *testing.T) {
	catalog := &fakeCatalog{games: func(body string) ([]domain.Game, error) {
		if !isFullText(body) {
			t.Fatalf("partial search must not run, got %q", body)
		}
		return gamesNamed("Witcher Tales", "The Witcher", "The Witcher 2"), nil
	}}
	svc := NewService(catalog)

	results, err := svc.Search(context.Background(), "  The Witcher ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.calls.Load() != 1 {
		t.Fatalf("expected a single catalog call, got %d", catalog.calls.Load())
	}
	wantFullText, _ := query.FullTextSearch("The Witcher")
	if got := catalog.recorded()[0]; got != wantFullText {
		t.Fatalf("expected %q, got %q", wantFullText, got)
	}
	assertNames(t, results, "The Witcher", "The Witcher 2", "Witcher Tales")
}

func TestSearch_TruncatesToMaxResults(t *testing.T) {
	catalog := &fakeCatalog{games: func(string) ([]domain.Game, error) {
		games := make([]domain.Game, 0, 100)
		for i := 0; i < 100; i++ {
			games = append(games, domain.Game{ID: int64(i + 1), Name: fmt.Sprintf("Mario %d", i)})
		}
		return games, nil
	}}
	svc := NewService(catalog)

	results, err := svc.Search(context.Background(), "mario")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != MaxResults {
		t.Fatalf("expected %d results, got %d", MaxResults, len(results))
	}
	if results[0].ID != 1 || results[MaxResults-1].ID != MaxResults {
		t.Fatalf("expected first %d results in order, got ids %d..%d", MaxResults, results[0].ID, results[MaxResults-1].ID)
	}
}

func TestSearch_EmptyQueryRejectedBeforeCatalog(t *testing.T) {
	catalog := &fakeCatalog{games: func(string) ([]domain.Game, error) { return nil, nil }}
	svc := NewService(catalog)

	for _, raw := range []string{"", "   ", "\t\n"} {
		_, err := svc.Search(context.Background(), raw)
		if !errors.Is(err, query.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %q, got %v", raw, err)
		}
	}
	if catalog.calls.Load() != 0 {
		t.Fatalf("expected no catalog calls, got %d", catalog.calls.Load())
	}
}

func TestSearch_FullTextErrorAborts(t *testing.T) {
	upstream := errors.New("catalog unavailable")
	catalog := &fakeCatalog{games: func(string) ([]domain.Game, error) { return nil, upstream }}
	svc := NewService(catalog)

	results, err := svc.Search(context.Background(), "halo")
	if !errors.Is(err, upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results, got %v", results)
	}
	if catalog.calls.Load() != 1 {
		t.Fatalf("expected no fallback after failure, got %d calls", catalog.calls.Load())
	}
}

func TestSearch_PartialErrorAborts(t *testing.T) {
	upstream := errors.New("catalog unavailable")
	catalog := &fakeCatalog{games: func(body string) ([]domain.Game, error) {
		if isFullText(body) {
			return gamesNamed("Something Else"), nil
		}
		return nil, upstream
	}}
	svc := NewService(catalog)

	results, err := svc.Search(context.Background(), "halo")
	if !errors.Is(err, upstream) || results != nil {
		t.Fatalf("expected upstream error and no results, got %v, %v", results, err)
	}
}

func TestGameByID_ReturnsNilWhenMissing(t *testing.T) {
	catalog := &fakeCatalog{games: func(string) ([]domain.Game, error) { return []domain.Game{}, nil }}
	svc := NewService(catalog)

	game, err := svc.GameByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if game != nil {
		t.Fatalf("expected nil game, got %+v", game)
	}
}

func TestGameByID_ReturnsFirstRecord(t *testing.T) {
	catalog := &fakeCatalog{games: func(string) ([]domain.Game, error) {
		return []domain.Game{{ID: 42, Name: "Portal 2"}}, nil
	}}
	svc := NewService(catalog)

	game, err := svc.GameByID(context.Background(), 42)
	if err != nil || game == nil || game.Name != "Portal 2" {
		t.Fatalf("unexpected result %+v, %v", game, err)
	}
	want, _ := query.ByID(42)
	if got := catalog.recorded()[0]; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestGameByID_RejectsInvalidID(t *testing.T) {
	catalog := &fakeCatalog{games: func(string) ([]domain.Game, error) { return nil, nil }}
	svc := NewService(catalog)

	if _, err := svc.GameByID(context.Background(), 0); !errors.Is(err, query.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if catalog.calls.Load() != 0 {
		t.Fatal("invalid id must not reach the catalog")
	}
}

func TestGamesByIDs_ChunksAndKeepsChunkOrder(t *testing.T) {
	ids := make([]int64, 25)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	firstChunk, _ := query.ByIDs(ids[:20])
	catalog := &fakeCatalog{games: func(body string) ([]domain.Game, error) {
		if body == firstChunk {
			return []domain.Game{{ID: 1, Name: "first"}}, nil
		}
		return []domain.Game{{ID: 21, Name: "second"}}, nil
	}}
	svc := NewService(catalog)

	games, err := svc.GamesByIDs(context.Background(), ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.calls.Load() != 2 {
		t.Fatalf("expected 2 chunk queries, got %d", catalog.calls.Load())
	}
	assertNames(t, games, "first", "second")
}

func TestGamesByIDs_ChunkFailureFailsAll(t *testing.T) {
	ids := make([]int64, 41)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	upstream := errors.New("boom")
	var n atomic.Int32
	catalog := &fakeCatalog{games: func(string) ([]domain.Game, error) {
		if n.Add(1) == 2 {
			return nil, upstream
		}
		return []domain.Game{{ID: 1}}, nil
	}}
	svc := NewService(catalog)

	games, err := svc.GamesByIDs(context.Background(), ids)
	if !errors.Is(err, upstream) || games != nil {
		t.Fatalf("expected failure without games, got %v, %v", games, err)
	}
}

func TestGamesByIDs_EmptyInput(t *testing.T) {
	catalog := &fakeCatalog{games: func(string) ([]domain.Game, error) { return nil, nil }}
	svc := NewService(catalog)

	games, err := svc.GamesByIDs(context.Background(), nil)
	if err != nil || len(games) != 0 {
		t.Fatalf("expected empty result, got %v, %v", games, err)
	}
	if catalog.calls.Load() != 0 {
		t.Fatal("expected no catalog calls")
	}
}
