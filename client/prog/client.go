// Package prog is a client for the ade-progd socket protocol.
package prog

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/0xADE/ade-progd/parser"
)

// Result is one ranked program of a query
type Result struct {
	ID       string
	Score    int
	Kind     string
	Title    string
	SubTitle string
}

// MenuAction is a context menu entry of a program
type MenuAction struct {
	Index int
	Title string
	Icon  string
}

// DisabledProgram is an exclusion record
type DisabledProgram struct {
	ID       string
	Name     string
	Location string
}

// Client handles a connection to the ade-progd server
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// Dial connects to the server listening on socketPath
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", socketPath, err)
	}
	c, err := NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient starts a session on an open connection
func NewClient(conn net.Conn) (*Client, error) {
	// Send header
	if _, err := io.WriteString(conn, parser.Header); err != nil {
		return nil, fmt.Errorf("failed to send header: %w", err)
	}
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// FormatArgument formats a raw argument according to its type: strings get
// the quote prefix unless they already have it
func FormatArgument(arg string) string {
	arg = strings.TrimSpace(arg)

	// If starts with ", it's a string (keep prefix)
	if strings.HasPrefix(arg, `"`) {
		return arg
	}

	// Check for boolean literals
	if arg == "t" || arg == "f" {
		return arg
	}

	// Check if it's numeric (all digits)
	if _, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return arg
	}

	// Default: treat as string (add prefix)
	return Quote(arg)
}

// Quote formats s as a string value
func Quote(s string) string {
	return `"` + strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// Do sends the formatted values followed by cmdName and returns the
// response. Error responses are returned as *parser.RemoteError.
func (c *Client) Do(cmdName string, values ...string) (*parser.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	for _, v := range values {
		b.WriteString(v)
		b.WriteByte('\n')
	}
	b.WriteString(cmdName)
	b.WriteByte('\n')
	if _, err := io.WriteString(c.conn, b.String()); err != nil {
		return nil, fmt.Errorf("failed to send %s command: %w", cmdName, err)
	}

	r, err := parser.ReadResponse(c.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if err := r.Err(); err != nil {
		return r, err
	}
	return r, nil
}

// Query returns the programs matching text, best first
func (c *Client) Query(text string) ([]Result, error) {
	r, err := c.Do(parser.CmdQuery, Quote(text))
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(r.Body))
	for _, line := range r.Body {
		if len(line) < 5 {
			return nil, fmt.Errorf("malformed query line: %q", line)
		}
		score, err := strconv.Atoi(line[1])
		if err != nil {
			return nil, fmt.Errorf("malformed score %q: %w", line[1], err)
		}
		results = append(results, Result{
			ID:       line[0],
			Score:    score,
			Kind:     line[2],
			Title:    line[3],
			SubTitle: line[4],
		})
	}
	return results, nil
}

// Run starts a program and returns its pid
func (c *Client) Run(id string, inTerminal bool) (int, error) {
	values := []string{Quote(id)}
	if inTerminal {
		values = append([]string{Quote("opt: terminal")}, values...)
	}
	r, err := c.Do(parser.CmdRun, values...)
	if err != nil {
		return 0, err
	}
	pid, err := r.Int("pid")
	return int(pid), err
}

// Menu lists the context menu actions of a program
func (c *Client) Menu(id string) ([]MenuAction, error) {
	r, err := c.Do(parser.CmdMenu, Quote(id))
	if err != nil {
		return nil, err
	}

	actions := make([]MenuAction, 0, len(r.Body))
	for _, line := range r.Body {
		if len(line) < 3 {
			return nil, fmt.Errorf("malformed menu line: %q", line)
		}
		index, err := strconv.Atoi(line[0])
		if err != nil {
			return nil, fmt.Errorf("malformed action index %q: %w", line[0], err)
		}
		actions = append(actions, MenuAction{Index: index, Title: line[1], Icon: line[2]})
	}
	return actions, nil
}

// Action runs a context menu action and reports whether the host should hide
// its window
func (c *Client) Action(id string, index int) (bool, error) {
	r, err := c.Do(parser.CmdAction, Quote(id), strconv.Itoa(index))
	if err != nil {
		return false, err
	}
	return boolAttr(r, "hide")
}

// Disable hides a program from results and reports whether it changed
func (c *Client) Disable(id string) (bool, error) {
	r, err := c.Do(parser.CmdDisable, Quote(id))
	if err != nil {
		return false, err
	}
	return boolAttr(r, "changed")
}

// Enable shows a disabled program again and reports whether it changed
func (c *Client) Enable(id string) (bool, error) {
	r, err := c.Do(parser.CmdEnable, Quote(id))
	if err != nil {
		return false, err
	}
	return boolAttr(r, "changed")
}

// Disabled lists the exclusion records
func (c *Client) Disabled() ([]DisabledProgram, error) {
	r, err := c.Do(parser.CmdDisabled)
	if err != nil {
		return nil, err
	}

	disabled := make([]DisabledProgram, 0, len(r.Body))
	for _, line := range r.Body {
		if len(line) < 3 {
			return nil, fmt.Errorf("malformed disabled line: %q", line)
		}
		disabled = append(disabled, DisabledProgram{ID: line[0], Name: line[1], Location: line[2]})
	}
	return disabled, nil
}

// Reindex rescans both sources
func (c *Client) Reindex() (*parser.Response, error) {
	return c.Do(parser.CmdReindex)
}

// Save persists the catalog and the settings
func (c *Client) Save() error {
	_, err := c.Do(parser.CmdSave)
	return err
}

// AddSource registers a directory scanned for executables on the next
// reindex
func (c *Client) AddSource(name, location string, enabled bool) error {
	flag := "f"
	if enabled {
		flag = "t"
	}
	_, err := c.Do(parser.CmdSource, Quote(name), Quote(location), flag)
	return err
}

// Status returns the catalog state attributes
func (c *Client) Status() (*parser.Response, error) {
	return c.Do(parser.CmdStatus)
}

// Lang sets the locale used for titles on this connection
func (c *Client) Lang(locale string) error {
	_, err := c.Do(parser.CmdLang, Quote(locale))
	return err
}

func boolAttr(r *parser.Response, key string) (bool, error) {
	v, ok := r.Get(key)
	if !ok {
		return false, fmt.Errorf("missing attribute %q", key)
	}
	return strconv.ParseBool(v)
}
