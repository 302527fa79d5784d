package netserver

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func echoHandler() Handler {
	return HandlerFunc(func(_ context.Context, conn net.Conn) {
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			conn.Write([]byte(sc.Text() + "\n"))
		}
	})
}

func startTestServer(t *testing.T, h Handler, opts ...Option) *Server {
	t.Helper()
	srv := New("test", "127.0.0.1:0", h, zerolog.Nop(), opts...)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestServer_StartStop(t *testing.T) {
	srv := New("test", "127.0.0.1:0", echoHandler(), zerolog.Nop())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if srv.Addr() == "127.0.0.1:0" {
		t.Error("expected OS-assigned port after Start")
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestServer_ListenError(t *testing.T) {
	srv := New("test", "256.0.0.1:0", echoHandler(), zerolog.Nop())
	if err := srv.Start(); err == nil {
		srv.Stop()
		t.Fatal("expected listen error")
	}
}

func TestServer_ServesConnections(t *testing.T) {
	srv := startTestServer(t, echoHandler())

	for i := 0; i < 3; i++ {
		conn := dial(t, srv.Addr())
		conn.SetDeadline(time.Now().Add(2 * time.Second))
		conn.Write([]byte("ping\n"))
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if line != "ping\n" {
			t.Errorf("expected echo, got %q", line)
		}
		conn.Close()
	}
}

func TestServer_StopClosesActiveConnections(t *testing.T) {
	srv := New("test", "127.0.0.1:0", echoHandler(), zerolog.Nop())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	conn := dial(t, srv.Addr())
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.ActiveConns() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.ActiveConns() != 1 {
		t.Fatalf("expected 1 active connection, got %d", srv.ActiveConns())
	}

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return with an open client connection")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("expected client read to fail after Stop")
	}
}

func TestServer_HandlerSeesCancelOnStop(t *testing.T) {
	cancelled := make(chan struct{})
	h := HandlerFunc(func(ctx context.Context, _ net.Conn) {
		<-ctx.Done()
		close(cancelled)
	})
	srv := New("test", "127.0.0.1:0", h, zerolog.Nop())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	conn := dial(t, srv.Addr())
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	srv.Stop()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler context was not cancelled")
	}
}

func TestServer_RecoversFromPanic(t *testing.T) {
	var calls int
	var mu sync.Mutex
	h := HandlerFunc(func(_ context.Context, conn net.Conn) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("boom")
		}
		conn.Write([]byte("alive\n"))
	})
	srv := startTestServer(t, h)

	first := dial(t, srv.Addr())
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	first.Read(make([]byte, 1))
	first.Close()

	second := dial(t, srv.Addr())
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(second).ReadString('\n')
	if err != nil || line != "alive\n" {
		t.Errorf("expected server to keep serving after a panic, got %q (%v)", line, err)
	}
}

type recordingObserver struct {
	mu             sync.Mutex
	opened, closed int
}

func (o *recordingObserver) ConnOpened(string) {
	o.mu.Lock()
	o.opened++
	o.mu.Unlock()
}

func (o *recordingObserver) ConnClosed(string, time.Duration) {
	o.mu.Lock()
	o.closed++
	o.mu.Unlock()
}

func TestServer_Observer(t *testing.T) {
	obs := &recordingObserver{}
	srv := New("test", "127.0.0.1:0", HandlerFunc(func(context.Context, net.Conn) {}), zerolog.Nop(), WithObserver(obs))
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	conn := dial(t, srv.Addr())
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	conn.Read(make([]byte, 1))
	conn.Close()
	srv.Stop()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.opened != 1 || obs.closed != 1 {
		t.Errorf("expected 1 open and 1 close, got %d/%d", obs.opened, obs.closed)
	}
}
