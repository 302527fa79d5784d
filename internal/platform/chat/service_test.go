package chat

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carecircle/carecircle/internal/platform/netserver"
)

func startChat(t *testing.T) (*netserver.Server, *Hub) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	srv := netserver.New("chat", "127.0.0.1:0", NewService(hub, zerolog.Nop()), zerolog.Nop())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv, hub
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func connect(t *testing.T, addr, handshake string) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := conn.Write([]byte(handshake + "\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(t *testing.T, line string) {
	t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func (c *client) expect(t *testing.T, want string) {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		t.Fatalf("expected %q, read failed: %v", want, err)
	}
	if got := line[:len(line)-1]; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func (c *client) expectNothing(t *testing.T) {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if line, err := c.r.ReadString('\n'); err == nil {
		t.Fatalf("expected no traffic, got %q", line)
	}
}

func waitMembers(t *testing.T, hub *Hub, channel string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.MemberCount(channel) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d members in %s, got %d", n, channel, hub.MemberCount(channel))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestParseJoin(t *testing.T) {
	cases := []struct {
		line              string
		channel, identity string
		ok                bool
	}{
		{"JOIN|roomA|alice", "roomA", "alice", true},
		{" JOIN| roomA | alice \r", "roomA", "alice", true},
		{"JOIN|roomA|", "", "", false},
		{"JOIN||alice", "", "", false},
		{"JOIN|roomA", "", "", false},
		{"HELLO|roomA|alice", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		ch, id, ok := ParseJoin(tc.line)
		if ok != tc.ok || ch != tc.channel || id != tc.identity {
			t.Errorf("ParseJoin(%q) = %q, %q, %v", tc.line, ch, id, ok)
		}
	}
}

func TestService_GroupsAreIsolated(t *testing.T) {
	srv, hub := startChat(t)

	alice := connect(t, srv.Addr(), "JOIN|roomA|alice")
	alice.expect(t, "alice has joined the group.")
	bob := connect(t, srv.Addr(), "JOIN|roomB|bob")
	bob.expect(t, "bob has joined the group.")

	alice.send(t, "hi")
	alice.expect(t, "alice: hi")
	bob.expectNothing(t)

	carol := connect(t, srv.Addr(), "JOIN|roomA|carol")
	alice.expect(t, "carol has joined the group.")
	carol.expect(t, "carol has joined the group.")

	carol.send(t, "hello, all")
	alice.expect(t, "carol: hello, all")
	carol.expect(t, "carol: hello, all")

	carol.conn.Close()
	alice.expect(t, "carol has left the group.")
	waitMembers(t, hub, "roomA", 1)
}

func TestService_RejectsBadHandshake(t *testing.T) {
	srv, hub := startChat(t)

	c := connect(t, srv.Addr(), "HELLO")
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.r.ReadString('\n'); err == nil {
		t.Fatal("expected connection to be closed")
	}
	if hub.GroupCount() != 0 {
		t.Errorf("expected no groups, got %d", hub.GroupCount())
	}
}

func TestService_LastMemberPrunesGroup(t *testing.T) {
	srv, hub := startChat(t)

	alice := connect(t, srv.Addr(), "JOIN|roomA|alice")
	alice.expect(t, "alice has joined the group.")
	alice.conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.GroupCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected group pruned, still have %v", hub.Channels())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
