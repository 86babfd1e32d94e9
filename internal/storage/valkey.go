package storage

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/k8s-ai-assistant/expert-engine/internal/utils"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	Key          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// ValkeyBackend stores the snapshot under a single key. Each call opens a
// short-lived connection; snapshot writes are infrequent.
type ValkeyBackend struct {
	cfg ValkeyConfig
}

// NewValkeyBackend pings the server so bad credentials fail at startup. An
// unreachable server yields a utils.KindUnavailable error.
func NewValkeyBackend(ctx context.Context, cfg ValkeyConfig) (*ValkeyBackend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	applyValkeyDefaults(&cfg)
	b := &ValkeyBackend{cfg: cfg}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	err := b.do(pingCtx, func(c *respConn) error {
		reply, err := c.call("PING")
		if err != nil {
			return err
		}
		if reply.kind != '+' || string(reply.data) != "PONG" {
			return fmt.Errorf("unexpected PING reply %q", reply.data)
		}
		return nil
	})
	var reply respErr
	switch {
	case errors.As(err, &reply):
		return nil, fmt.Errorf("valkey handshake: %w", err)
	case err != nil:
		return nil, utils.UnavailableError("valkey.ping", cfg.Addr, err)
	}
	return b, nil
}

// Load fetches the snapshot key.
func (b *ValkeyBackend) Load(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := b.do(ctx, func(c *respConn) error {
		reply, err := c.call("GET", b.cfg.Key)
		if err != nil {
			return err
		}
		switch {
		case reply.null:
			return ErrNoSnapshot
		case reply.kind == '$':
			payload = reply.data
			return nil
		default:
			return fmt.Errorf("unexpected GET reply type %q", reply.kind)
		}
	})
	return payload, err
}

// Save overwrites the snapshot key. SET is atomic on the server.
func (b *ValkeyBackend) Save(ctx context.Context, data []byte) error {
	return b.do(ctx, func(c *respConn) error {
		reply, err := c.call("SET", b.cfg.Key, string(data))
		if err != nil {
			return err
		}
		if reply.kind != '+' || string(reply.data) != "OK" {
			return fmt.Errorf("unexpected SET reply %q", reply.data)
		}
		return nil
	})
}

// Close is a no-op; connections are not pooled.
func (b *ValkeyBackend) Close() error { return nil }

func (b *ValkeyBackend) do(ctx context.Context, fn func(*respConn) error) error {
	var lastErr error
	for attempt := 0; attempt < b.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			time.Sleep(time.Duration(1<<(attempt-1)) * 25 * time.Millisecond)
		}
		c, err := b.connect(ctx)
		if err == nil {
			err = fn(c)
			c.close()
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}
	return lastErr
}

func (b *ValkeyBackend) connect(ctx context.Context) (*respConn, error) {
	dialer := net.Dialer{Timeout: b.cfg.DialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if b.cfg.TLS {
		host, _, splitErr := net.SplitHostPort(b.cfg.Addr)
		if splitErr != nil {
			host = b.cfg.Addr
		}
		td := tls.Dialer{NetDialer: &dialer, Config: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}}
		conn, err = td.DialContext(ctx, "tcp", b.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", b.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}

	c := &respConn{
		conn:         conn,
		r:            bufio.NewReader(conn),
		w:            bufio.NewWriter(conn),
		readTimeout:  b.cfg.ReadTimeout,
		writeTimeout: b.cfg.WriteTimeout,
	}
	if err := b.handshake(c); err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

func (b *ValkeyBackend) handshake(c *respConn) error {
	if b.cfg.Password != "" {
		args := []string{b.cfg.Password}
		if b.cfg.Username != "" {
			args = []string{b.cfg.Username, b.cfg.Password}
		}
		reply, err := c.call("AUTH", args...)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		if !strings.EqualFold(string(reply.data), "OK") {
			return fmt.Errorf("auth failed: %s", reply.data)
		}
	}
	if b.cfg.DB > 0 {
		reply, err := c.call("SELECT", strconv.Itoa(b.cfg.DB))
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}
		if !strings.EqualFold(string(reply.data), "OK") {
			return fmt.Errorf("select failed: %s", reply.data)
		}
	}
	return nil
}

func applyValkeyDefaults(cfg *ValkeyConfig) {
	if cfg.Key == "" {
		cfg.Key = "expert-engine:" + defaultSnapshotKey
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
}

func retryable(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// respReply is the subset of RESP2 replies the backend needs.
type respReply struct {
	kind byte
	data []byte
	null bool
}

// respErr is an error reply sent by the server.
type respErr string

func (e respErr) Error() string { return string(e) }

type respConn struct {
	conn         net.Conn
	r            *bufio.Reader
	w            *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *respConn) close() { _ = c.conn.Close() }

func (c *respConn) call(command string, args ...string) (respReply, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return respReply{}, err
	}
	fmt.Fprintf(c.w, "*%d\r\n", len(args)+1)
	for _, part := range append([]string{command}, args...) {
		fmt.Fprintf(c.w, "$%d\r\n%s\r\n", len(part), part)
	}
	if err := c.w.Flush(); err != nil {
		return respReply{}, err
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return respReply{}, err
	}
	return c.readReply()
}

func (c *respConn) readReply() (respReply, error) {
	kind, err := c.r.ReadByte()
	if err != nil {
		return respReply{}, err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return respReply{}, err
	}
	line = strings.TrimRight(line, "\r\n")

	switch kind {
	case '+', ':':
		return respReply{kind: kind, data: []byte(line)}, nil
	case '-':
		return respReply{}, respErr(line)
	case '_':
		return respReply{kind: kind, null: true}, nil
	case '$':
		size, err := strconv.Atoi(line)
		if err != nil {
			return respReply{}, fmt.Errorf("bad bulk length %q", line)
		}
		if size < 0 {
			return respReply{kind: kind, null: true}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(c.r, buf); err != nil {
			return respReply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return respReply{}, errors.New("invalid bulk terminator")
		}
		return respReply{kind: kind, data: buf[:size]}, nil
	default:
		return respReply{}, fmt.Errorf("unexpected RESP prefix %q", kind)
	}
}
