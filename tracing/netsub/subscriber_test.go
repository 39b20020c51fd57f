package netsub_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fimoengine/fimo/tracing"
	"github.com/fimoengine/fimo/tracing/netsub"
)

func TestSubscriberDeliversEventsToServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var mu sync.Mutex
	var received []any
	done := make(chan struct{}, 1)

	srv := netsub.NewServer(ln, 0, func(ev any) {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		if _, ok := ev.(netsub.EventFinish); ok {
			done <- struct{}{}
		}
	})
	go srv.Serve()
	defer srv.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	sub, err := netsub.New(conn, netsub.WithFlushInterval(5*time.Millisecond))
	require.NoError(t, err)

	tr := tracing.New(sub)
	_, err = tr.RegisterThread(1)
	require.NoError(t, err)
	info := tracing.NewEventInfo("work", "pkg", "scope", "f.go", 10, tracing.LevelInformational)
	require.NoError(t, tr.LogMessage(1, info, func(any) string { return "hi" }, nil))
	require.NoError(t, tr.UnregisterThread(1))
	tr.Finish()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed finish event")
	}
	require.NoError(t, sub.Close())

	mu.Lock()
	defer mu.Unlock()
	var sawLog bool
	for _, ev := range received {
		if lm, ok := ev.(netsub.EventLogMessage); ok && lm.Message == "hi" {
			sawLog = true
		}
	}
	assert.True(t, sawLog, "expected to observe the log_message event on the server side")
}

func TestServerRejectsUnknownClientName(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := netsub.NewServer(ln, 0, func(any) {})
	go srv.Serve()
	defer srv.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// Drive the handshake by hand with a 27-byte name that is not
	// ClientName; the server must answer with the reject tag.
	badName := make([]byte, len(netsub.ClientName))
	copy(badName, "Not A Valid Client Name!!!!!")
	bad := append(badName, 1, 0)
	_, err = conn.Write(bad)
	require.NoError(t, err)

	resp := make([]byte, 2)
	_, err = conn.Read(resp)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), resp[0]) // reject tag low byte
}
