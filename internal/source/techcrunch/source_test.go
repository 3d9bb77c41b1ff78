package techcrunch

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDiscover_ExtractsCards(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
		<main>
		  <a class="loop-card__title-link" href="https://techcrunch.com/2025/08/20/startup-raises/">Startup raises $10M</a>
		  <a class="loop-card__title-link" href="/2025/08/20/relative-path/">  Relative article  </a>
		  <a class="loop-card__title-link" href="https://techcrunch.com/2025/08/20/startup-raises/">Startup raises $10M</a>
		</main>`))
	}))
	defer server.Close()

	src := New(Config{BaseURL: server.URL, MaxItems: 10, Timeout: time.Second}, testLogger())

	items, err := src.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Key != "https://techcrunch.com/2025/08/20/startup-raises/" {
		t.Fatalf("unexpected key: %s", items[0].Key)
	}
	if items[1].Key != server.URL+"/2025/08/20/relative-path/" {
		t.Fatalf("unexpected key: %s", items[1].Key)
	}
	if items[1].Title != "Relative article" {
		t.Fatalf("unexpected title: %q", items[1].Title)
	}
	if items[0].SourceID != SourceID {
		t.Fatalf("unexpected source id: %s", items[0].SourceID)
	}
}

func TestDiscover_LegacyLayoutFallback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
		<div class="river">
		  <h2 class="post-block__title"><a href="https://techcrunch.com/old-layout-article/">Old layout article</a></h2>
		</div>`))
	}))
	defer server.Close()

	src := New(Config{BaseURL: server.URL, MaxItems: 10, Timeout: time.Second}, testLogger())

	items, err := src.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Title != "Old layout article" {
		t.Fatalf("unexpected title: %s", items[0].Title)
	}
}

func TestDiscover_CapsAtMaxItems(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
		<main>
		  <a class="loop-card__title-link" href="https://techcrunch.com/a/">A</a>
		  <a class="loop-card__title-link" href="https://techcrunch.com/b/">B</a>
		  <a class="loop-card__title-link" href="https://techcrunch.com/c/">C</a>
		</main>`))
	}))
	defer server.Close()

	src := New(Config{BaseURL: server.URL, MaxItems: 2, Timeout: time.Second}, testLogger())

	items, err := src.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestDiscover_ErrorOnBadStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src := New(Config{BaseURL: server.URL, MaxItems: 10, Timeout: time.Second}, testLogger())

	if _, err := src.Discover(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}
