// Package records serves the line protocol clients use to submit vitals rows
// and to list them back.
package records

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/carecircle/carecircle/internal/platform/csvline"
)

// Protocol keywords and fixed responses.
const (
	CmdQuit    = "QUIT"
	CmdList    = "LIST"
	CmdListAll = "LIST ALL"
	CmdSubmit  = "SUBMIT"

	RespGoodbye   = "Goodbye"
	RespEnd       = "END"
	RespOKPrefix  = "OK saved to "
	RespErrPrefix = "ERROR: "

	msgEmptySubmission = "empty submission"
	msgMissingPatient  = "Missing patientId after LIST"
)

// Store is the record file the service reads and appends to.
type Store interface {
	// Submit stores one raw CSV row and returns the name of the file it went to.
	Submit(ctx context.Context, raw string) (string, error)
	Header() []string
	// Rows returns rows for patientID, or all rows when it is empty.
	Rows(ctx context.Context, patientID string) ([][]string, error)
}

// Observer is told the outcome of every command.
type Observer interface {
	Command(cmd string, elapsed time.Duration, err error)
}

type Option func(*Service)

// WithObserver reports command outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// Service handles record connections. It implements netserver.Handler.
type Service struct {
	store    Store
	logger   zerolog.Logger
	observer Observer
}

func NewService(store Store, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeConn reads commands until QUIT or disconnect.
func (s *Service) ServeConn(ctx context.Context, conn net.Conn) {
	log := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		raw, readErr := r.ReadString('\n')
		if readErr != nil && raw == "" {
			if !errors.Is(readErr, io.EOF) {
				log.Debug().Err(readErr).Msg("read ended")
			}
			return
		}
		line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")

		quit := s.handle(ctx, log, w, line)
		if err := w.Flush(); err != nil {
			log.Debug().Err(err).Msg("write failed")
			return
		}
		if quit || readErr != nil {
			return
		}
	}
}

// handle answers one line on w and reports whether the connection should
// close.
func (s *Service) handle(ctx context.Context, log zerolog.Logger, w *bufio.Writer, line string) bool {
	start := time.Now()
	cmd, arg := Parse(line)

	var err error
	switch cmd {
	case CmdQuit:
		writeLine(w, RespGoodbye)
		s.observe(cmd, start, nil)
		return true
	case CmdListAll:
		err = s.list(ctx, w, "")
	case CmdList:
		if arg == "" {
			writeLine(w, RespErrPrefix+msgMissingPatient)
			s.observe(cmd, start, nil)
			return false
		}
		err = s.list(ctx, w, arg)
	case "":
		writeLine(w, RespErrPrefix+msgEmptySubmission)
		cmd = "EMPTY"
	case CmdSubmit:
		err = s.submit(ctx, w, arg)
	}
	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("record command failed")
	}
	s.observe(cmd, start, err)
	return false
}

// Parse classifies a protocol line. Keywords match case-insensitively. For
// CmdList, arg is the requested patient id; for CmdSubmit it is the trimmed
// row. A blank line yields an empty cmd.
func Parse(line string) (cmd, arg string) {
	trimmed := strings.TrimSpace(line)
	upper := strings.ToUpper(trimmed)
	switch {
	case trimmed == "":
		return "", ""
	case upper == CmdQuit:
		return CmdQuit, ""
	case upper == CmdListAll:
		return CmdListAll, ""
	case upper == CmdList || strings.HasPrefix(upper, CmdList+" "):
		return CmdList, strings.TrimSpace(trimmed[len(CmdList):])
	}
	return CmdSubmit, trimmed
}

func (s *Service) list(ctx context.Context, w *bufio.Writer, patientID string) error {
	// Rows are fully materialized before anything is written, so no store
	// lock is held during socket writes.
	rows, err := s.store.Rows(ctx, patientID)
	if err != nil {
		writeLine(w, RespErrPrefix+err.Error())
		writeLine(w, RespEnd)
		return err
	}
	writeLine(w, csvline.Join(s.store.Header()...))
	for _, row := range rows {
		writeLine(w, csvline.Join(row...))
	}
	writeLine(w, RespEnd)
	return nil
}

func (s *Service) submit(ctx context.Context, w *bufio.Writer, row string) error {
	dest, err := s.store.Submit(ctx, row)
	if err != nil {
		writeLine(w, RespErrPrefix+err.Error())
		return err
	}
	writeLine(w, RespOKPrefix+dest)
	return nil
}

func (s *Service) observe(cmd string, start time.Time, err error) {
	if s.observer != nil {
		s.observer.Command(cmd, time.Since(start), err)
	}
}

func writeLine(w *bufio.Writer, s string) {
	w.WriteString(s)
	w.WriteByte('\n')
}
