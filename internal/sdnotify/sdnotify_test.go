package sdnotify

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
)

func TestNotify_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	err := Notify(Ready)
	if err == nil {
		t.Fatal("expected error when NOTIFY_SOCKET is empty")
	}
	if !strings.Contains(err.Error(), "NOTIFY_SOCKET not set") {
		t.Errorf("error = %q, want substring %q", err, "NOTIFY_SOCKET not set")
	}
}

func TestNotify_InvalidPath(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "nonexistent.sock"))

	err := Notify(Ready)
	if err == nil {
		t.Fatal("expected error for nonexistent socket")
	}
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("error = %q, want substring %q", err, "dial failed")
	}
}

func TestNotify_Delivers(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sockPath)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	defer func() { _ = conn.Close() }()

	t.Setenv("NOTIFY_SOCKET", sockPath)

	for _, state := range []string{Ready, Stopping} {
		if err := Notify(state); err != nil {
			t.Fatalf("Notify(%q) = %v, want nil", state, err)
		}

		buf := make([]byte, 256)
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			t.Fatalf("read from socket: %v", err)
		}
		if got := string(buf[:n]); got != state {
			t.Errorf("payload = %q, want %q", got, state)
		}
	}
}
