package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header starts every request stream and every response
const Header = "TXT01"

var (
	// ErrSyntax wraps every error caused by the request text itself
	ErrSyntax = errors.New("parse error")
	// ErrUnknownCommand is returned for a word that is neither a value nor a
	// known command
	ErrUnknownCommand = errors.New("unknown command")
)

// Known commands
const (
	CmdQuery    = "query"
	CmdRun      = "run"
	CmdMenu     = "menu"
	CmdAction   = "action"
	CmdDisable  = "disable"
	CmdEnable   = "enable"
	CmdDisabled = "disabled"
	CmdReindex  = "reindex"
	CmdSave     = "save"
	CmdStatus   = "status"
	CmdLang     = "lang"
	CmdSource   = "source"
)

var commands = []string{
	CmdQuery,
	CmdRun,
	CmdMenu,
	CmdAction,
	CmdDisable,
	CmdEnable,
	CmdDisabled,
	CmdReindex,
	CmdSave,
	CmdStatus,
	CmdLang,
	CmdSource,
}

// ValueType represents the type of a value on the stack
type ValueType int

const (
	TypeString ValueType = iota
	TypeInt
	TypeBool
)

// Value represents a value on the stack
type Value struct {
	Type ValueType
	Str  string
	Int  int64
	Bool bool
}

// Command represents a parsed command
type Command struct {
	Name string
	Args []Value
}

// Parser parses Forth-style commands
type Parser struct {
	reader  *bufio.Reader
	header  string
	version string
}

// NewParser creates a new parser
func NewParser(reader io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(reader),
	}

	// Read header
	headerBytes := make([]byte, 5)
	if n, err := io.ReadFull(p.reader, headerBytes); err != nil || n != 5 {
		return nil, fmt.Errorf("invalid header")
	}

	p.header = string(headerBytes[:3])
	p.version = string(headerBytes[3:5])

	if p.header != Header[:3] {
		return nil, fmt.Errorf("unsupported format: %s", p.header)
	}

	return p, nil
}

// ParseCommand parses the next command from input
func (p *Parser) ParseCommand() (*Command, error) {
	stack := make([]Value, 0)

	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			// Values without a command word are dropped
			return nil, err
		}
		// The last line may lack its newline
		eof := err == io.EOF

		line = strings.TrimSpace(line)

		// Skip empty lines
		if line == "" {
			if eof {
				return nil, io.EOF
			}
			continue
		}

		// Skip comments
		if strings.HasPrefix(line, "#") {
			if eof {
				return nil, io.EOF
			}
			continue
		}

		// Check if it's a command
		if cmd := parseCommand(line); cmd != "" {
			// Return command with current stack
			return &Command{
				Name: cmd,
				Args: stack,
			}, nil
		}

		// Otherwise, parse as value and push to stack
		value, err := parseValue(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
		}
		stack = append(stack, value)
		if eof {
			return nil, io.EOF
		}
	}
}

func parseCommand(line string) string {
	line = strings.TrimSpace(line)
	for _, cmd := range commands {
		if line == cmd {
			return cmd
		}
	}
	return ""
}

func parseValue(line string) (Value, error) {
	line = strings.TrimSpace(line)

	// String value (prefixed with ")
	// Supports special option strings like "opt: terminal" for run command
	if after, ok := strings.CutPrefix(line, `"`); ok {
		str := after
		return Value{Type: TypeString, Str: str}, nil
	}

	// Boolean literals (t/f)
	switch line {
	case "t":
		return Value{Type: TypeBool, Bool: true}, nil
	case "f":
		return Value{Type: TypeBool, Bool: false}, nil
	}

	// Try parsing as integer (must be all digits)
	if intVal, err := strconv.ParseInt(line, 10, 64); err == nil {
		return Value{Type: TypeInt, Int: intVal}, nil
	}

	if isWord(line) {
		return Value{}, fmt.Errorf("%w: %s", ErrUnknownCommand, line)
	}
	return Value{}, fmt.Errorf("cannot parse value: %s", line)
}

func isWord(line string) bool {
	for _, r := range line {
		if !(r == '-' || r == '+' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
