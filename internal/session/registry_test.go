// ABOUTME: Tests for the connection registry: open/close lifecycle, session
// ABOUTME: binding, pending-request cancellation, and graceful drain.
package session

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

type fakeOutbound struct{}

func (fakeOutbound) Send(frame []byte) error { return nil }

func TestRegistryOpen(t *testing.T) {
	r := New(slog.Default(), nil)
	conn := r.Open(TransportHTTP, "127.0.0.1:1234", fakeOutbound{})

	if conn.ID == "" {
		t.Fatal("expected non-empty connection id")
	}
	if conn.State() != StateOpen {
		t.Errorf("state = %v, want Open", conn.State())
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}
}

func TestRegistryBindAndLookupSession(t *testing.T) {
	r := New(slog.Default(), nil)
	conn := r.Open(TransportSSE, "127.0.0.1:1234", fakeOutbound{})

	sessionID := r.BindSession(conn)
	if sessionID == "" {
		t.Fatal("expected non-empty session id")
	}

	got, ok := r.LookupSession(sessionID)
	if !ok {
		t.Fatal("expected session to resolve")
	}
	if got.ID != conn.ID {
		t.Errorf("resolved connection = %s, want %s", got.ID, conn.ID)
	}
}

func TestRegistryLookupSession_Unknown(t *testing.T) {
	r := New(slog.Default(), nil)
	_, ok := r.LookupSession("nonexistent")
	if ok {
		t.Error("expected unknown session to not resolve")
	}
}

func TestRegistryLookupSession_AfterClose(t *testing.T) {
	r := New(slog.Default(), nil)
	conn := r.Open(TransportSSE, "127.0.0.1:1234", fakeOutbound{})
	sessionID := r.BindSession(conn)

	r.Close(conn, "peer disconnected")

	if _, ok := r.LookupSession(sessionID); ok {
		t.Error("expected session to no longer resolve after its connection closed")
	}
}

func TestRegistryCloseByRemoteAddr_InvalidatesPriorSession(t *testing.T) {
	r := New(slog.Default(), nil)
	first := r.Open(TransportSSE, "127.0.0.1:1234", fakeOutbound{})
	sessionID := r.BindSession(first)

	r.CloseByRemoteAddr(TransportSSE, "127.0.0.1:1234")

	if first.State() != StateClosed {
		t.Errorf("state = %v, want Closed", first.State())
	}
	if _, ok := r.LookupSession(sessionID); ok {
		t.Error("expected prior session to no longer resolve after reconnect invalidation")
	}
}

func TestRegistryCloseByRemoteAddr_IgnoresOtherAddrsAndTransports(t *testing.T) {
	r := New(slog.Default(), nil)
	http1 := r.Open(TransportHTTP, "127.0.0.1:1234", fakeOutbound{})
	sse1 := r.Open(TransportSSE, "10.0.0.1:5678", fakeOutbound{})

	r.CloseByRemoteAddr(TransportSSE, "127.0.0.1:1234")

	if http1.State() != StateOpen {
		t.Error("expected a different transport at the same address to be left alone")
	}
	if sse1.State() != StateOpen {
		t.Error("expected a different remote address to be left alone")
	}
}

func TestRegistryClose_IsIdempotent(t *testing.T) {
	r := New(slog.Default(), nil)
	conn := r.Open(TransportWS, "127.0.0.1:1234", fakeOutbound{})

	r.Close(conn, "first close")
	r.Close(conn, "second close") // must not panic

	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}
}

func TestRegistryClose_CancelsPendingRequests(t *testing.T) {
	r := New(slog.Default(), nil)
	conn := r.Open(TransportWS, "127.0.0.1:1234", fakeOutbound{})

	cancelled := false
	conn.TrackRequest("req-1", func() { cancelled = true })

	if conn.PendingCount() != 1 {
		t.Fatalf("pending count = %d, want 1", conn.PendingCount())
	}

	r.Close(conn, "disconnect")

	if !cancelled {
		t.Error("expected pending request's cancel func to be called on close")
	}
}

func TestConnection_UntrackRequest(t *testing.T) {
	conn := newConnection("conn-1", TransportHTTP, "", fakeOutbound{})
	conn.TrackRequest("req-1", func() {})
	conn.UntrackRequest("req-1")

	if conn.PendingCount() != 0 {
		t.Errorf("pending count = %d, want 0", conn.PendingCount())
	}
}

func TestRegistryDrainAll_WaitsForPendingThenCloses(t *testing.T) {
	r := New(slog.Default(), nil)
	conn := r.Open(TransportWS, "127.0.0.1:1234", fakeOutbound{})

	done := make(chan struct{})
	conn.TrackRequest("req-1", func() { close(done) })

	go func() {
		time.Sleep(20 * time.Millisecond)
		conn.UntrackRequest("req-1")
	}()

	r.DrainAll(context.Background(), 500*time.Millisecond)

	if conn.State() != StateClosed {
		t.Errorf("state = %v, want Closed", conn.State())
	}
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0 after drain", r.Count())
	}
}

func TestRegistryDrainAll_ForceClosesAfterGracePeriod(t *testing.T) {
	r := New(slog.Default(), nil)
	conn := r.Open(TransportWS, "127.0.0.1:1234", fakeOutbound{})
	conn.TrackRequest("stuck-request", func() {})

	start := time.Now()
	r.DrainAll(context.Background(), 50*time.Millisecond)
	elapsed := time.Since(start)

	if conn.State() != StateClosed {
		t.Errorf("state = %v, want Closed after grace period elapses", conn.State())
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("DrainAll took %v, expected to return promptly after grace period", elapsed)
	}
}
