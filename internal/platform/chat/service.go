package chat

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// JoinCommand is the verb of the handshake line JOIN|<channel>|<identity>.
const JoinCommand = "JOIN"

// ParseJoin parses a handshake line. Channel and identity are trimmed and
// must both be non-blank.
func ParseJoin(line string) (channel, identity string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(line), "|", 3)
	if len(parts) != 3 || parts[0] != JoinCommand {
		return "", "", false
	}
	channel = strings.TrimSpace(parts[1])
	identity = strings.TrimSpace(parts[2])
	if channel == "" || identity == "" {
		return "", "", false
	}
	return channel, identity, true
}

// Service serves chat connections against a Hub. It implements
// netserver.Handler.
type Service struct {
	hub    *Hub
	logger zerolog.Logger
}

func NewService(hub *Hub, logger zerolog.Logger) *Service {
	return &Service{hub: hub, logger: logger}
}

// Hub returns the hub connections are joined to.
func (s *Service) Hub() *Hub { return s.hub }

// ServeConn runs one connection: a JOIN handshake, then every line is relayed
// to the channel until the client disconnects.
func (s *Service) ServeConn(_ context.Context, conn net.Conn) {
	r := bufio.NewReader(conn)

	first, err := readLine(r)
	if err != nil && first == "" {
		return
	}
	channel, identity, ok := ParseJoin(first)
	if !ok {
		s.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("rejected connection without JOIN handshake")
		return
	}

	m := NewMember(identity, conn)
	s.hub.Join(channel, m)
	defer s.hub.Leave(channel, m)

	for {
		line, err := readLine(r)
		if err != nil {
			// A final unterminated line is still relayed.
			if line != "" {
				s.hub.Say(channel, m, line)
			}
			if !errors.Is(err, io.EOF) {
				s.logger.Debug().Err(err).Str("identity", identity).Msg("chat read ended")
			}
			return
		}
		s.hub.Say(channel, m, line)
	}
}

// readLine reads one line without its \n or \r\n terminator.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, err
}
