package parser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const bodyLenKey = "body-len"

// Attr is a single "key: value" line of a response
type Attr struct {
	Key   string
	Value string
}

// Response is a header, an attribute block and an optional body of
// tab-separated lines
type Response struct {
	Attrs []Attr
	Body  [][]string
}

// NewResponse creates a successful response for cmd
func NewResponse(cmd string) *Response {
	r := &Response{}
	r.Set("cmd", cmd)
	r.Set("status", "0")
	return r
}

// ErrorResponse creates an error response for cmd
func ErrorResponse(cmd, kind, desc string) *Response {
	r := &Response{}
	r.Set("error-cmd", cmd)
	r.Set("error", kind)
	r.Set("desc", desc)
	return r
}

// Set adds or replaces an attribute
func (r *Response) Set(key string, value any) {
	v := sanitize(fmt.Sprint(value))
	for i := range r.Attrs {
		if r.Attrs[i].Key == key {
			r.Attrs[i].Value = v
			return
		}
	}
	r.Attrs = append(r.Attrs, Attr{Key: key, Value: v})
}

// Get returns the value of an attribute
func (r *Response) Get(key string) (string, bool) {
	for _, a := range r.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Int returns an attribute parsed as an integer
func (r *Response) Int(key string) (int64, error) {
	v, ok := r.Get(key)
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	return strconv.ParseInt(v, 10, 64)
}

// AddLine appends a body line
func (r *Response) AddLine(fields ...string) {
	line := make([]string, len(fields))
	for i, f := range fields {
		line[i] = sanitize(f)
	}
	r.Body = append(r.Body, line)
}

// Err returns the remote error carried by an error response
func (r *Response) Err() error {
	kind, ok := r.Get("error")
	if !ok {
		return nil
	}
	cmd, _ := r.Get("error-cmd")
	desc, _ := r.Get("desc")
	return &RemoteError{Cmd: cmd, Kind: kind, Desc: desc}
}

// RemoteError is an error reported by the server
type RemoteError struct {
	Cmd  string
	Kind string
	Desc string
}

func (e *RemoteError) Error() string {
	if e.Desc == "" {
		return fmt.Sprintf("%s: %s", e.Cmd, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Cmd, e.Kind, e.Desc)
}

// WriteResponse writes r with its header. Successful responses always carry
// body-len so readers know how many lines follow the blank line.
func WriteResponse(w io.Writer, r *Response) error {
	var b strings.Builder
	b.WriteString(Header)
	for _, a := range r.Attrs {
		if a.Key == bodyLenKey {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", a.Key, a.Value)
	}
	if r.Err() == nil {
		fmt.Fprintf(&b, "%s: %d\n", bodyLenKey, len(r.Body))
	}
	b.WriteString("\n")
	for _, line := range r.Body {
		b.WriteString(strings.Join(line, "\t"))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// ReadResponse reads one response written by WriteResponse
func ReadResponse(reader *bufio.Reader) (*Response, error) {
	header := make([]byte, len(Header))
	if _, err := io.ReadFull(reader, header); err != nil {
		return nil, fmt.Errorf("failed to read response header: %w", err)
	}
	if string(header[:3]) != Header[:3] {
		return nil, fmt.Errorf("unsupported format: %s", header[:3])
	}

	r := &Response{}
	bodyLen := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed attribute: %q", line)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == bodyLenKey {
			if bodyLen, err = strconv.Atoi(value); err != nil || bodyLen < 0 {
				return nil, fmt.Errorf("bad %s: %q", bodyLenKey, value)
			}
			continue
		}
		r.Attrs = append(r.Attrs, Attr{Key: key, Value: value})
	}

	for range bodyLen {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		r.Body = append(r.Body, strings.Split(strings.TrimRight(line, "\r\n"), "\t"))
	}
	return r, nil
}

var sanitizer = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

func sanitize(s string) string {
	return sanitizer.Replace(s)
}
