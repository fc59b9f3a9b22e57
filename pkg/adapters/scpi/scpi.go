// Package scpi implements instrument drivers over the SCPI line protocol.
// The drivers speak newline-terminated commands against any transport; a
// TCP opener covers the LAN instruments of a typical probe station setup.
package scpi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// Conn frames SCPI commands and queries over an open transport. It is not
// safe for concurrent use.
type Conn struct {
	w io.Writer
	r *bufio.Reader
}

// NewConn wraps an open transport.
func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{w: rwc, r: bufio.NewReader(rwc)}
}

// Write sends one command.
func (c *Conn) Write(cmd string) error {
	if _, err := fmt.Fprintf(c.w, "%s\n", cmd); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	return nil
}

// Query sends a command and reads the single-line response.
func (c *Conn) Query(cmd string) (string, error) {
	if err := c.Write(cmd); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	return strings.TrimSpace(line), nil
}

// QueryFloat sends a query and parses a numeric response. Multi-element
// responses yield the first element.
func (c *Conn) QueryFloat(cmd string) (float64, error) {
	line, err := c.Query(cmd)
	if err != nil {
		return 0, err
	}
	if i := strings.IndexByte(line, ','); i >= 0 {
		line = line[:i]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected instrument response %q", line)
	}
	return v, nil
}

// QueryBool sends a query expecting a 0/1 response.
func (c *Conn) QueryBool(cmd string) (bool, error) {
	v, err := c.QueryFloat(cmd)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// TCPOpener dials an instrument's LAN socket. It satisfies
// ports.ResourceOpener, so callers may reopen after transport failures.
type TCPOpener struct {
	address string
	timeout time.Duration
}

var _ ports.ResourceOpener = (*TCPOpener)(nil)

// NewTCPOpener returns an opener for host:port.
func NewTCPOpener(address string) *TCPOpener {
	return &TCPOpener{address: address, timeout: 10 * time.Second}
}

// Open implements ports.ResourceOpener.
func (o *TCPOpener) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", o.address)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", domain.ErrResource, o.address, err)
	}
	return conn, nil
}

// parseSystemError parses a ":SYST:ERR?" response of the form
// `-221,"Settings conflict"`.
func parseSystemError(line string) (ports.InstrumentError, error) {
	code, message, found := strings.Cut(line, ",")
	c, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return ports.InstrumentError{}, fmt.Errorf("unexpected error response %q", line)
	}
	if found {
		message = strings.Trim(strings.TrimSpace(message), `"`)
	}
	return ports.InstrumentError{Code: c, Message: message}, nil
}
