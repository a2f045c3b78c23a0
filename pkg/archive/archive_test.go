package archive

import (
	"errors"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
)

// fixedSession 返回可修改的会话ID
type fixedSession struct{ id string }

func (f *fixedSession) SessionID() string { return f.id }

func newTestArchive(t *testing.T, src SessionSource) *Archive {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "archive.db")
	a, err := New(dbPath, src, nil)
	if err != nil {
		t.Fatalf("New(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func observation(seq int, outcome core.OutcomeKind) core.Observation {
	o := core.Observation{
		Sequence:        seq,
		Timestamp:       time.Date(2025, 1, 15, 14, 30, seq, 0, time.Local),
		Target:          "example.com",
		RoundTripMillis: -1,
		Outcome:         outcome,
		PayloadSize:     32,
	}
	if outcome == core.OutcomeSuccess {
		o.ResolvedAddress = netip.MustParseAddr("93.184.216.34")
		o.RoundTripMillis = int64(10 + seq)
		o.TTL = 56
	}
	return o
}

func TestArchiveObservations(t *testing.T) {
	src := &fixedSession{id: "session-a"}
	a := newTestArchive(t, src)

	a.OnLogLine("[14:30:00] Pinging example.com with 32 bytes of data:")
	a.OnObservation(observation(1, core.OutcomeSuccess), core.Statistics{})
	a.OnObservation(observation(2, core.OutcomeTimedOut), core.Statistics{})
	a.OnObservation(observation(3, core.OutcomeSuccess), core.Statistics{})

	got, err := a.Observations("session-a")
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d observations, want 3", len(got))
	}
	for i, o := range got {
		if o.Sequence != i+1 {
			t.Errorf("observation %d: sequence %d", i, o.Sequence)
		}
	}
	if got[1].HasAddress() || got[1].Outcome != core.OutcomeTimedOut || got[1].RoundTripMillis != -1 {
		t.Errorf("unexpected failed observation: %+v", got[1])
	}
	want := observation(3, core.OutcomeSuccess)
	if !got[2].Timestamp.Equal(want.Timestamp) || got[2].ResolvedAddress != want.ResolvedAddress || got[2].TTL != 56 {
		t.Errorf("got %+v, want %+v", got[2], want)
	}

	lines, err := a.LogLines("session-a")
	if err != nil {
		t.Fatalf("LogLines: %v", err)
	}
	if len(lines) != 1 {
		t.Errorf("got %d log lines, want 1", len(lines))
	}
}

func TestArchiveSessions(t *testing.T) {
	src := &fixedSession{id: "first"}
	a := newTestArchive(t, src)

	a.OnObservation(observation(1, core.OutcomeSuccess), core.Statistics{})
	a.OnObservation(observation(2, core.OutcomeTimedOut), core.Statistics{})

	src.id = "second"
	later := observation(1, core.OutcomeSuccess)
	later.Timestamp = later.Timestamp.Add(time.Hour)
	a.OnObservation(later, core.Statistics{})

	sessions, err := a.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != "second" {
		t.Errorf("expected newest session first, got %s", sessions[0].ID)
	}
	if sessions[1].Count != 2 || sessions[1].Received != 1 {
		t.Errorf("first session: got %d/%d, want 2/1", sessions[1].Count, sessions[1].Received)
	}
}

func TestArchiveNoSession(t *testing.T) {
	a := newTestArchive(t, &fixedSession{})
	a.OnObservation(observation(1, core.OutcomeSuccess), core.Statistics{})

	sessions, err := a.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("got %d sessions, want 0", len(sessions))
	}
	if _, err := a.Observations("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestArchiveReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "archive.db")
	src := &fixedSession{id: "persisted"}

	a, err := New(dbPath, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	a.OnObservation(observation(1, core.OutcomeSuccess), core.Statistics{})
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := New(dbPath, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	got, err := b.Observations("persisted")
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d observations after reopen, want 1", len(got))
	}
}

func TestIsTransientSQLiteErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"syntax", errors.New("syntax error"), false},
		{"busy", errors.New("SQLITE_BUSY"), true},
		{"locked text", errors.New("database is locked"), true},
		{"code 6", errors.New("sqlite: (6) table is locked"), true},
		{"short read", errors.New("disk I/O error (522)"), true},
		{"short read name", errors.New("SQLITE_IOERR_SHORT_READ"), true},
		{"constraint", errors.New("constraint failed: UNIQUE (2067)"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientSQLiteErr(tt.err); got != tt.want {
				t.Errorf("isTransientSQLiteErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestWithRetry 永久错误不重试，锁冲突在重试后成功
func TestWithRetry(t *testing.T) {
	a := newTestArchive(t, &fixedSession{id: "retry"})
	var waits []time.Duration
	a.retry = retryPolicy{
		attempts: 3,
		base:     time.Millisecond,
		limit:    2 * time.Millisecond,
		sleep:    func(d time.Duration) { waits = append(waits, d) },
	}

	calls := 0
	err := a.withRetry("test", func() error {
		calls++
		return errors.New("constraint failed")
	})
	if err == nil || calls != 1 || len(waits) != 0 {
		t.Errorf("Expected one call and an error, got %d calls, err=%v", calls, err)
	}

	calls = 0
	err = a.withRetry("test", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 || len(waits) != 2 {
		t.Errorf("Expected success after 3 calls and 2 waits, got %d calls, %d waits, err=%v", calls, len(waits), err)
	}

	calls = 0
	err = a.withRetry("test", func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	if err == nil || calls != 4 {
		t.Errorf("Expected 4 calls before giving up, got %d", calls)
	}
	for _, w := range waits {
		if w < time.Millisecond || w >= 3*time.Millisecond {
			t.Errorf("Expected wait within [1ms, 3ms), got %v", w)
		}
	}
}
