package server

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/0xADE/ade-progd/internal/catalog"
	"github.com/0xADE/ade-progd/internal/programs"
	"github.com/0xADE/ade-progd/internal/query"
	"github.com/0xADE/ade-progd/internal/settings"
	"github.com/0xADE/ade-progd/parser"
)

const optTerminal = "opt: terminal"

// Server handles Unix socket connections and command execution
type Server struct {
	listener net.Listener
	plugin   *programs.Plugin
	logger   *log.Logger
	running  bool
	mu       sync.RWMutex
}

// session holds the per-connection state
type session struct {
	lang string
}

// NewServer listens on socketPath. The caller must hold the data directory
// lock so that a live socket of another instance is never removed.
func NewServer(socketPath string, plugin *programs.Plugin, logger *log.Logger) (*Server, error) {
	// Create directory if needed
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, err
	}

	// Remove a stale socket left by a crashed instance
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	return newServer(listener, plugin, logger), nil
}

func newServer(listener net.Listener, plugin *programs.Plugin, logger *log.Logger) *Server {
	return &Server{
		listener: listener,
		plugin:   plugin,
		logger:   logger,
	}
}

// Start accepts connections until ctx is done or Stop is called
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = s.Stop() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			running := s.running
			s.mu.RUnlock()
			if !running {
				return nil
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

// Stop stops accepting connections
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	return s.listener.Close()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	s.logger.Debug("new connection accepted")

	p, err := parser.NewParser(conn)
	if err != nil {
		s.logger.Error("failed to create parser", "err", err)
		s.writeError(conn, "parser", "invalid header", err.Error())
		return
	}

	sess := &session{}
	for {
		cmd, err := p.ParseCommand()
		if err == io.EOF {
			s.logger.Debug("connection closed by client")
			break
		}
		if errors.Is(err, parser.ErrUnknownCommand) {
			s.logger.Warn("unknown command", "err", err)
			s.writeError(conn, "parser", "unknown command", err.Error())
			continue
		}
		if errors.Is(err, parser.ErrSyntax) {
			s.logger.Error("parse error", "err", err)
			s.writeError(conn, "parser", "parse error", err.Error())
			continue
		}
		if err != nil {
			s.logger.Debug("connection read failed", "err", err)
			break
		}

		s.logger.Debug("executing command", "cmd", cmd.Name, "args", len(cmd.Args))
		s.executeCommand(ctx, conn, sess, cmd)
	}
}

func (s *Server) executeCommand(ctx context.Context, conn net.Conn, sess *session, cmd *parser.Command) {
	switch cmd.Name {
	case parser.CmdQuery:
		s.handleQuery(conn, sess, cmd)
	case parser.CmdRun:
		s.handleRun(conn, cmd)
	case parser.CmdMenu:
		s.handleMenu(conn, cmd)
	case parser.CmdAction:
		s.handleAction(conn, cmd)
	case parser.CmdDisable:
		s.handleDisable(conn, cmd)
	case parser.CmdEnable:
		s.handleEnable(conn, cmd)
	case parser.CmdDisabled:
		s.handleDisabled(conn)
	case parser.CmdReindex:
		s.handleReindex(ctx, conn)
	case parser.CmdSave:
		s.handleSave(conn)
	case parser.CmdStatus:
		s.handleStatus(conn)
	case parser.CmdLang:
		s.handleLang(conn, sess, cmd)
	case parser.CmdSource:
		s.handleSource(conn, cmd)
	default:
		s.writeError(conn, cmd.Name, "unknown command", "Command not recognized")
	}
}

func (s *Server) handleQuery(conn net.Conn, sess *session, cmd *parser.Command) {
	text := strings.Join(stringArgs(cmd), " ")
	results := s.plugin.Query(text)
	s.logger.Debug("query answered", "query", text, "results", len(results))

	r := parser.NewResponse(cmd.Name)
	r.Set("count", len(results))
	for _, res := range results {
		r.AddLine(
			res.ID,
			strconv.Itoa(res.Score),
			res.Kind.String(),
			localizedTitle(res, sess.lang),
			res.SubTitle,
		)
	}
	s.writeResponse(conn, r)
}

func localizedTitle(res query.Result, lang string) string {
	if p, ok := res.Program.(*catalog.Packaged); ok && lang != "" {
		return p.LocalizedName(lang)
	}
	return res.Title
}

func (s *Server) handleRun(conn net.Conn, cmd *parser.Command) {
	var id string
	inTerminal := false
	for _, arg := range stringArgs(cmd) {
		if arg == optTerminal {
			inTerminal = true
			continue
		}
		id = arg
	}
	if id == "" {
		s.writeError(conn, cmd.Name, "missing id", "run command requires an id parameter")
		return
	}

	pid, err := s.plugin.Run(id, inTerminal)
	if errors.Is(err, programs.ErrUnknownProgram) {
		s.writeError(conn, cmd.Name, "unknown program", "Can't run application, requested id not found.")
		return
	}
	if err != nil {
		s.writeError(conn, cmd.Name, "execution failed", err.Error())
		return
	}
	s.logger.Debug("program started", "id", id, "pid", pid, "terminal", inTerminal)

	r := parser.NewResponse(cmd.Name)
	r.Set("id", id)
	r.Set("pid", pid)
	s.writeResponse(conn, r)
}

func (s *Server) handleMenu(conn net.Conn, cmd *parser.Command) {
	id, ok := s.requireID(conn, cmd)
	if !ok {
		return
	}
	actions := s.plugin.LoadContextMenuActions(query.Result{ID: id})
	if actions == nil {
		s.writeError(conn, cmd.Name, "unknown program", id)
		return
	}

	r := parser.NewResponse(cmd.Name)
	r.Set("id", id)
	for i, a := range actions {
		r.AddLine(strconv.Itoa(i), a.Title, a.Icon)
	}
	s.writeResponse(conn, r)
}

func (s *Server) handleAction(conn net.Conn, cmd *parser.Command) {
	id, ok := s.requireID(conn, cmd)
	if !ok {
		return
	}
	index := -1
	for _, arg := range cmd.Args {
		if arg.Type == parser.TypeInt {
			index = int(arg.Int)
		}
	}

	actions := s.plugin.LoadContextMenuActions(query.Result{ID: id})
	if actions == nil {
		s.writeError(conn, cmd.Name, "unknown program", id)
		return
	}
	if index < 0 || index >= len(actions) {
		s.writeError(conn, cmd.Name, "invalid argument", "action index out of range")
		return
	}

	hide := actions[index].Run()
	r := parser.NewResponse(cmd.Name)
	r.Set("id", id)
	r.Set("action", actions[index].Title)
	r.Set("hide", hide)
	s.writeResponse(conn, r)
}

func (s *Server) handleDisable(conn net.Conn, cmd *parser.Command) {
	id, ok := s.requireID(conn, cmd)
	if !ok {
		return
	}
	changed, err := s.plugin.Disable(id)
	if err != nil {
		s.writeError(conn, cmd.Name, "unknown program", err.Error())
		return
	}
	r := parser.NewResponse(cmd.Name)
	r.Set("id", id)
	r.Set("changed", changed)
	s.writeResponse(conn, r)
}

func (s *Server) handleEnable(conn net.Conn, cmd *parser.Command) {
	id, ok := s.requireID(conn, cmd)
	if !ok {
		return
	}
	changed, err := s.plugin.Enable(id)
	if err != nil {
		s.writeError(conn, cmd.Name, "enable failed", err.Error())
		return
	}
	r := parser.NewResponse(cmd.Name)
	r.Set("id", id)
	r.Set("changed", changed)
	s.writeResponse(conn, r)
}

func (s *Server) handleDisabled(conn net.Conn) {
	disabled := s.plugin.Disabled()
	r := parser.NewResponse(parser.CmdDisabled)
	r.Set("count", len(disabled))
	for _, d := range disabled {
		r.AddLine(d.UniqueIdentifier, d.Name, d.Location)
	}
	s.writeResponse(conn, r)
}

func (s *Server) handleReindex(ctx context.Context, conn net.Conn) {
	report, err := s.plugin.ReloadData(ctx)
	// Both sources failing leaves the catalog untouched
	if err != nil && len(report.Errors) == 2 {
		s.writeError(conn, parser.CmdReindex, "reindex failed", err.Error())
		return
	}

	r := parser.NewResponse(parser.CmdReindex)
	r.Set("native", report.Native)
	r.Set("packaged", report.Packaged)
	r.Set("duplicates", report.Duplicates)
	r.Set("generation", report.Generation)
	r.Set("took", report.Duration.Round(time.Millisecond))
	if err != nil {
		r.Set("warning", err.Error())
	}
	s.writeResponse(conn, r)
}

func (s *Server) handleSave(conn net.Conn) {
	if err := s.plugin.Save(); err != nil {
		s.writeError(conn, parser.CmdSave, "save failed", err.Error())
		return
	}
	s.writeResponse(conn, parser.NewResponse(parser.CmdSave))
}

func (s *Server) handleStatus(conn net.Conn) {
	st := s.plugin.Status()
	r := parser.NewResponse(parser.CmdStatus)
	r.Set("plugin", s.plugin.Title())
	r.Set("description", s.plugin.Description())
	r.Set("state", st.State)
	r.Set("generation", st.Generation)
	r.Set("native", st.Native)
	r.Set("packaged", st.Packaged)
	r.Set("disabled", st.Disabled)
	if st.LastIndexed.IsZero() {
		r.Set("last-indexed", "never")
	} else {
		r.Set("last-indexed", st.LastIndexed.Format(time.RFC3339))
	}
	s.writeResponse(conn, r)
}

func (s *Server) handleLang(conn net.Conn, sess *session, cmd *parser.Command) {
	args := stringArgs(cmd)
	if len(args) == 0 {
		s.logger.Warn("lang command missing string parameter")
		s.writeError(conn, cmd.Name, "missing parameter", "lang command requires a string parameter")
		return
	}
	sess.lang = args[len(args)-1]
	s.logger.Debug("language set", "lang", sess.lang)

	r := parser.NewResponse(cmd.Name)
	r.Set("lang", sess.lang)
	s.writeResponse(conn, r)
}

// handleSource takes a name and a directory, and an optional flag that
// defaults to enabled
func (s *Server) handleSource(conn net.Conn, cmd *parser.Command) {
	args := stringArgs(cmd)
	if len(args) < 2 {
		s.writeError(conn, cmd.Name, "missing parameter", "source command requires a name and a location")
		return
	}
	src := settings.ProgramSource{
		Name:     args[len(args)-2],
		Location: args[len(args)-1],
		Enabled:  true,
	}
	for _, arg := range cmd.Args {
		if arg.Type == parser.TypeBool {
			src.Enabled = arg.Bool
		}
	}
	s.plugin.AddSource(src)

	r := parser.NewResponse(cmd.Name)
	r.Set("name", src.Name)
	r.Set("location", src.Location)
	r.Set("enabled", src.Enabled)
	s.writeResponse(conn, r)
}

// requireID returns the last string argument of cmd, writing an error
// response when there is none
func (s *Server) requireID(conn net.Conn, cmd *parser.Command) (string, bool) {
	args := stringArgs(cmd)
	if len(args) == 0 {
		s.writeError(conn, cmd.Name, "missing id", cmd.Name+" command requires an id parameter")
		return "", false
	}
	return args[len(args)-1], true
}

func stringArgs(cmd *parser.Command) []string {
	var out []string
	for _, arg := range cmd.Args {
		if arg.Type == parser.TypeString {
			out = append(out, arg.Str)
		}
	}
	return out
}

func (s *Server) writeResponse(conn net.Conn, r *parser.Response) {
	if err := parser.WriteResponse(conn, r); err != nil {
		s.logger.Error("failed to write response", "err", err)
	}
}

func (s *Server) writeError(conn net.Conn, cmd, errType, desc string) {
	s.logger.Debug("writing error response", "cmd", cmd, "type", errType, "desc", desc)
	s.writeResponse(conn, parser.ErrorResponse(cmd, errType, desc))
}
