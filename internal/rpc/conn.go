package rpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/mwiater/codeintel/internal/logging"
)

// MaxFrameSize bounds both the JSON body and the binary attachment of a frame.
const MaxFrameSize = 256 << 20

const (
	headerContentLength = "content-length"
	headerBinaryLength  = "binary-length"
)

// Conn frames Messages over a byte stream. Each frame is a block of
// "Name: value" headers, a blank line, the JSON body and, when the
// Binary-Length header is present, that many attachment bytes.
//
// Write is safe for concurrent use. Read must be called from one goroutine.
type Conn struct {
	reader *bufio.Reader

	wmu    sync.Mutex
	writer *bufio.Writer

	outLabel string
	inLabel  string
}

// NewConn wraps r and w. local and remote name the two ends in request logs.
func NewConn(r io.Reader, w io.Writer, local, remote string) *Conn {
	return &Conn{
		reader:   bufio.NewReader(r),
		writer:   bufio.NewWriter(w),
		outLabel: local + "->" + remote,
		inLabel:  remote + "->" + local,
	}
}

// Write sends one frame and flushes it.
func (c *Conn) Write(m *Message) error {
	if m.JSONRPC == "" {
		m.JSONRPC = Version
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	logFrame(c.outLabel, m, data)

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n", len(data)); err != nil {
		return err
	}
	if m.Binary != nil {
		if _, err := fmt.Fprintf(c.writer, "Binary-Length: %d\r\n", len(m.Binary)); err != nil {
			return err
		}
	}
	if _, err := c.writer.WriteString("\r\n"); err != nil {
		return err
	}
	if _, err := c.writer.Write(data); err != nil {
		return err
	}
	if m.Binary != nil {
		if _, err := c.writer.Write(m.Binary); err != nil {
			return err
		}
	}
	return c.writer.Flush()
}

// Read blocks for the next frame. A stream that ends cleanly between frames
// returns io.EOF.
func (c *Conn) Read() (*Message, error) {
	headers, err := c.readHeaders()
	if err != nil {
		return nil, err
	}

	bodyLen, ok, err := headerSize(headers, headerContentLength)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Protocolf("missing Content-Length header")
	}
	binLen, hasBinary, err := headerSize(headers, headerBinaryLength)
	if err != nil {
		return nil, err
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", unexpected(err))
	}

	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, Protocolf("decode frame: %v", err)
	}
	if m.JSONRPC != Version {
		return nil, Protocolf("unsupported jsonrpc version %q", m.JSONRPC)
	}
	if hasBinary {
		m.Binary = make([]byte, binLen)
		if _, err := io.ReadFull(c.reader, m.Binary); err != nil {
			return nil, fmt.Errorf("read attachment: %w", unexpected(err))
		}
	}
	logFrame(c.inLabel, &m, body)
	return &m, nil
}

func (c *Conn) readHeaders() (map[string]string, error) {
	headers := make(map[string]string)
	first := true
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if first && line == "" && errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header: %w", unexpected(err))
		}
		first = false
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return headers, nil
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, Protocolf("malformed header %q", line)
		}
		headers[strings.ToLower(strings.TrimSpace(line[:idx]))] = strings.TrimSpace(line[idx+1:])
	}
}

func headerSize(headers map[string]string, name string) (int, bool, error) {
	raw, ok := headers[name]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, Protocolf("invalid %s %q", name, raw)
	}
	if n < 0 || n > MaxFrameSize {
		return 0, false, Protocolf("%s %d out of range", name, n)
	}
	return n, true, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func logFrame(label string, m *Message, body []byte) {
	if !logging.Debug() {
		return
	}
	var id any
	if m.ID != nil {
		id = *m.ID
	}
	logging.LogRequest(label, m.Method, id, body)
	if m.Binary != nil {
		logging.LogRequest(label, m.Method, id, logging.Attachment(m.Binary))
	}
}
