package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gameweek/internal/ics"
	"gameweek/internal/model"
	"gameweek/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), store.DefaultFile))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func vevent(uid, summary, start string) string {
	return "BEGIN:VEVENT\r\n" +
		"UID:" + uid + "\r\n" +
		"DTSTAMP:20250101T000000Z\r\n" +
		"SUMMARY:" + summary + "\r\n" +
		"DTSTART;VALUE=DATE:" + start + "\r\n" +
		"END:VEVENT\r\n"
}

func calendar(events ...string) string {
	out := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n"
	for _, e := range events {
		out += e
	}
	return out + "END:VCALENDAR\r\n"
}

func TestImportFeed(t *testing.T) {
	st := newStore(t)
	srv, _ := st.CreateServer(model.Server{Name: "EU 1"})

	var body atomic.Value
	body.Store(calendar(vevent("a", "Arena", "20250303"), vevent("b", "Boss", "20250305")))
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body.Load().(string)))
	}))
	defer upstream.Close()

	var changes int
	feed := ics.Feed{ID: "official", URL: upstream.URL, ServerID: srv.ID}
	im := NewImporter(st, ics.NewFetcher(t.TempDir(), upstream.Client()), []ics.Feed{feed}, func() { changes++ })

	res, err := im.ImportFeed(context.Background(), feed)
	if err != nil {
		t.Fatalf("ImportFeed: %v", err)
	}
	if res.Created != 2 || res.Removed != 0 {
		t.Errorf("first import = %+v", res)
	}
	evs, _ := st.ListEventsForServer(srv.ID)
	if len(evs) != 2 || evs[0].ServerID != srv.ID || evs[0].Source != "official" {
		t.Fatalf("imported events = %+v", evs)
	}

	body.Store(calendar(vevent("a", "Arena Finals", "20250303")))
	results, err := im.ImportAll(context.Background())
	if err != nil {
		t.Fatalf("ImportAll: %v", err)
	}
	if len(results) != 1 || results[0].Updated != 1 || results[0].Removed != 1 {
		t.Errorf("second import = %+v", results)
	}
	evs, _ = st.ListEvents()
	if len(evs) != 1 || evs[0].Name != "Arena Finals" {
		t.Errorf("after re-import = %+v", evs)
	}
	if changes != 2 {
		t.Errorf("onChange called %d times, want 2", changes)
	}
}

func TestApplyKeepsManualEvents(t *testing.T) {
	st := newStore(t)
	st.CreateEvent(model.Event{Name: "Manual", Week: 1})
	im := NewImporter(st, nil, nil, nil)

	events := []model.Event{
		{Name: "Ok", SourceUID: "1", Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Name: "", SourceUID: "2", Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	res, err := im.Apply("upload", "", events)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Created != 1 || res.Skipped != 1 {
		t.Errorf("Apply = %+v", res)
	}

	if _, err := im.Apply("upload", "ghost", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown server err = %v", err)
	}
	if _, err := im.Apply(" ", "", nil); err == nil {
		t.Error("empty source should be rejected")
	}

	all, _ := st.ListEvents()
	if len(all) != 2 {
		t.Errorf("events = %d, want manual + imported", len(all))
	}
}

func TestImportAllContinuesPastFailures(t *testing.T) {
	st := newStore(t)
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(calendar(vevent("x", "Expedition", "20250310"))))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer bad.Close()

	feeds := []ics.Feed{{ID: "bad", URL: bad.URL}, {ID: "good", URL: good.URL}}
	im := NewImporter(st, ics.NewFetcher(t.TempDir(), nil), feeds, nil)

	results, err := im.ImportAll(context.Background())
	if err == nil {
		t.Error("expected joined error for the failing feed")
	}
	if len(results) != 1 || results[0].Source != "good" {
		t.Errorf("results = %+v", results)
	}
}

func TestSchedulerRunOnce(t *testing.T) {
	var order []string
	failing := Task{Name: "fail", Run: func(context.Context) error {
		order = append(order, "fail")
		return errors.New("boom")
	}}
	pruned := 0
	prune := PruneSessionsTask(func() (int, error) {
		pruned++
		order = append(order, "prune")
		return 3, nil
	})

	s, err := NewScheduler(context.Background(), "*/5 * * * *", nil, failing, prune)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.RunOnce(context.Background())
	if len(order) != 2 || order[1] != "prune" || pruned != 1 {
		t.Errorf("order = %v", order)
	}

	s.Start()
	s.Stop()
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	var active, maxActive, runs int32
	started := make(chan struct{})
	release := make(chan struct{})
	slow := Task{Name: "slow", Run: func(context.Context) error {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		if atomic.AddInt32(&runs, 1) == 1 {
			close(started)
		}
		<-release
		return nil
	}}

	ctx := context.Background()
	s, err := NewScheduler(ctx, "@every 1s", nil, slow)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	// Same order as the server binary: startup pass, then the ticker.
	done := make(chan bool)
	go func() { done <- s.RunOnce(ctx) }()
	<-started
	s.Start()

	if s.RunOnce(ctx) {
		t.Error("RunOnce ran while the startup pass was busy")
	}
	// Let at least one tick fire while the first pass is still blocked.
	time.Sleep(1500 * time.Millisecond)
	s.Stop()
	close(release)
	if !<-done {
		t.Error("startup pass reported it did not run")
	}

	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Errorf("max concurrent runs = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("runs = %d, want 1 (ticks during the busy pass are skipped)", got)
	}
}

func TestImportFeedSerializesSameFeed(t *testing.T) {
	st := newStore(t)

	var inFlight, maxInFlight int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(calendar(vevent("a", "Arena", "20250303"))))
	}))
	defer upstream.Close()

	feed := ics.Feed{ID: "official", URL: upstream.URL}
	im := NewImporter(st, ics.NewFetcher(t.TempDir(), upstream.Client()), []ics.Feed{feed}, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := im.ImportFeed(context.Background(), feed); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("ImportFeed: %v", err)
	}

	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Errorf("concurrent fetches of one feed = %d, want 1", got)
	}
	events, err := st.ListEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("events = %d, want 1", len(events))
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := NewScheduler(context.Background(), "every tuesday", time.UTC); err == nil {
		t.Error("bad cron spec should be rejected")
	}
}
