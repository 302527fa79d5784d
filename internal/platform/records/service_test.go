package records

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carecircle/carecircle/internal/domain/vitals"
	"github.com/carecircle/carecircle/internal/platform/filestore"
	"github.com/carecircle/carecircle/internal/platform/netserver"
)

func startRecords(t *testing.T, store Store, opts ...Option) string {
	t.Helper()
	srv := netserver.New("records", "127.0.0.1:0", NewService(store, zerolog.Nop(), opts...), zerolog.Nop())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv.Addr()
}

func vitalsStore(t *testing.T) Store {
	t.Helper()
	fs, err := filestore.New(filepath.Join(t.TempDir(), "vitals.csv"), vitals.Schema)
	if err != nil {
		t.Fatalf("filestore.New failed: %v", err)
	}
	return vitals.NewRowRepo(fs)
}

type session struct {
	conn net.Conn
	r    *bufio.Reader
}

func open(t *testing.T, addr string) *session {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &session{conn: conn, r: bufio.NewReader(conn)}
}

func (s *session) send(t *testing.T, line string) {
	t.Helper()
	if _, err := s.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func (s *session) read(t *testing.T) string {
	t.Helper()
	s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := s.r.ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return strings.TrimSuffix(line, "\n")
}

// readListing reads lines up to and including END.
func (s *session) readListing(t *testing.T) []string {
	t.Helper()
	var out []string
	for {
		line := s.read(t)
		out = append(out, line)
		if line == RespEnd {
			return out
		}
	}
}

func TestParse(t *testing.T) {
	cases := []struct{ in, cmd, arg string }{
		{"QUIT", CmdQuit, ""},
		{" quit ", CmdQuit, ""},
		{"LIST ALL", CmdListAll, ""},
		{"list all", CmdListAll, ""},
		{"LIST P1", CmdList, "P1"},
		{"List   p2 ", CmdList, "p2"},
		{"LIST", CmdList, ""},
		{"LIST   ", CmdList, ""},
		{"", "", ""},
		{"   ", "", ""},
		{"P1,Jane,72", CmdSubmit, "P1,Jane,72"},
		{"LISTING,x", CmdSubmit, "LISTING,x"},
	}
	for _, tc := range cases {
		cmd, arg := Parse(tc.in)
		if cmd != tc.cmd || arg != tc.arg {
			t.Errorf("Parse(%q) = %q, %q; want %q, %q", tc.in, cmd, arg, tc.cmd, tc.arg)
		}
	}
}

func TestService_SubmitAndList(t *testing.T) {
	addr := startRecords(t, vitalsStore(t))
	s := open(t, addr)

	s.send(t, "P1,Jane,72,120,80,36.6,Good,,70")
	if got := s.read(t); got != "OK saved to vitals.csv" {
		t.Fatalf("unexpected submit response %q", got)
	}
	s.send(t, "P2,Ali,65,110,70,36.5,Okay,\"rice, beans\",80")
	if got := s.read(t); got != "OK saved to vitals.csv" {
		t.Fatalf("unexpected submit response %q", got)
	}

	s.send(t, "LIST P1")
	got := s.readListing(t)
	if len(got) != 3 {
		t.Fatalf("expected header, 1 row, END; got %q", got)
	}
	if got[0] != strings.Join(vitals.Header, ",") {
		t.Errorf("unexpected header %q", got[0])
	}
	if !strings.HasPrefix(got[1], "P1,Jane,72,") {
		t.Errorf("unexpected row %q", got[1])
	}

	s.send(t, "list p2")
	got = s.readListing(t)
	if len(got) != 3 || !strings.HasPrefix(got[1], "P2,Ali,65,110,70,36.5,Okay,\"rice, beans\",80,") {
		t.Errorf("expected P2's quoted row, got %q", got)
	}

	s.send(t, "LIST ALL")
	if got := s.readListing(t); len(got) != 4 {
		t.Errorf("expected header, 2 rows, END; got %q", got)
	}

	s.send(t, "LIST P9")
	if got := s.readListing(t); len(got) != 2 {
		t.Errorf("expected header and END only, got %q", got)
	}
}

func TestService_ErrorsKeepConnectionOpen(t *testing.T) {
	addr := startRecords(t, vitalsStore(t))
	s := open(t, addr)

	s.send(t, "")
	if got := s.read(t); got != "ERROR: empty submission" {
		t.Errorf("unexpected response %q", got)
	}
	s.send(t, "LIST ")
	if got := s.read(t); got != "ERROR: Missing patientId after LIST" {
		t.Errorf("unexpected response %q", got)
	}
	s.send(t, "P1,Jane\r")
	if got := s.read(t); got != "OK saved to vitals.csv" {
		t.Errorf("expected connection to stay usable, got %q", got)
	}
}

func TestService_Quit(t *testing.T) {
	addr := startRecords(t, vitalsStore(t))
	s := open(t, addr)

	s.send(t, "quit")
	if got := s.read(t); got != RespGoodbye {
		t.Fatalf("expected Goodbye, got %q", got)
	}
	s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := s.r.ReadString('\n'); err == nil {
		t.Error("expected connection closed after QUIT")
	}
}

type failingStore struct{ err error }

func (f failingStore) Submit(context.Context, string) (string, error) { return "", f.err }
func (f failingStore) Header() []string { return vitals.Header }
func (f failingStore) Rows(context.Context, string) ([][]string, error) { return nil, f.err }

func TestService_StoreFailures(t *testing.T) {
	addr := startRecords(t, failingStore{err: errors.New("disk unavailable")})
	s := open(t, addr)

	s.send(t, "P1,Jane,72")
	if got := s.read(t); got != "ERROR: disk unavailable" {
		t.Errorf("unexpected submit failure response %q", got)
	}
	s.send(t, "LIST ALL")
	got := s.readListing(t)
	if len(got) != 2 || got[0] != "ERROR: disk unavailable" {
		t.Errorf("expected error then END, got %q", got)
	}
}

type commandLog struct {
	mu   sync.Mutex
	cmds []string
	errs int
}

func (c *commandLog) Command(cmd string, _ time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds = append(c.cmds, cmd)
	if err != nil {
		c.errs++
	}
}

func TestService_Observer(t *testing.T) {
	obs := &commandLog{}
	addr := startRecords(t, vitalsStore(t), WithObserver(obs))
	s := open(t, addr)

	s.send(t, "P1,Jane")
	s.read(t)
	s.send(t, "LIST P1")
	s.readListing(t)
	s.send(t, "QUIT")
	s.read(t)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	want := []string{CmdSubmit, CmdList, CmdQuit}
	if strings.Join(obs.cmds, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, obs.cmds)
	}
	if obs.errs != 0 {
		t.Errorf("expected no errors, got %d", obs.errs)
	}
}

func TestService_ListAllPastMalformedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitals.csv")
	fs, err := filestore.New(path, vitals.Schema)
	if err != nil {
		t.Fatalf("filestore.New failed: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	f.WriteString("P1,72,\"salad,2025-01-01T00:00:00Z\n")
	f.WriteString("P2,80,rice,2025-01-02T00:00:00Z\n")
	f.WriteString("P3,90,soup,2025-01-03T00:00:00Z\n")
	f.Close()

	addr := startRecords(t, vitals.NewRowRepo(fs))
	s := open(t, addr)

	s.send(t, "LIST ALL")
	got := s.readListing(t)
	want := []string{
		strings.Join(vitals.Header, ","),
		"P1,72,\"salad,2025-01-01T00:00:00Z\"",
		"P2,80,rice,2025-01-02T00:00:00Z",
		"P3,90,soup,2025-01-03T00:00:00Z",
		RespEnd,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %q", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}

	s.send(t, "LIST P3")
	if got := s.readListing(t); len(got) != 3 || !strings.HasPrefix(got[1], "P3,") {
		t.Errorf("expected P3's row after a malformed one, got %q", got)
	}
}
