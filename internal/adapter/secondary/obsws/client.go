package obsws

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"obsdock/internal/domain"
	"obsdock/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 16 << 20
)

// Dialer opens obs-websocket sessions. The zero value uses defaults.
type Dialer struct {
	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration
	EventBuffer      int
	// EventSubscriptions defaults to SubscribeAll.
	EventSubscriptions int
}

// Dial implements domain.Dialer.
func (d Dialer) Dial(ctx context.Context, address, password string) (domain.Transport, error) {
	c, err := d.DialClient(ctx, address, password)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Client is one identified obs-websocket session.
type Client struct {
	address string
	conn    *websocket.Conn
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *requestResponse

	events    chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
	err       error

	serverVersion string
}

// Dial connects with default settings.
func Dial(ctx context.Context, address, password string) (*Client, error) {
	return Dialer{}.DialClient(ctx, address, password)
}

// DialClient connects, performs the Hello/Identify handshake and starts the read loop.
func (d Dialer) DialClient(ctx context.Context, address, password string) (*Client, error) {
	handshakeTimeout := d.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	requestTimeout := d.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	buffer := d.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}
	subs := d.EventSubscriptions
	if subs == 0 {
		subs = SubscribeAll
	}

	endpoint, err := Endpoint(address)
	if err != nil {
		return nil, &domain.ConnectionError{Address: address, Err: err}
	}

	wsDialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{Subprotocol},
	}
	conn, _, err := wsDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, &domain.ConnectionError{Address: address, Err: err}
	}
	conn.SetReadLimit(maxMessageSize)

	deadline := time.Now().Add(handshakeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetReadDeadline(deadline)

	hello, err := handshake(conn, password, subs)
	if err != nil {
		conn.Close()
		return nil, &domain.ConnectionError{Address: address, Err: err}
	}
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		address:       address,
		conn:          conn,
		timeout:       requestTimeout,
		pending:       make(map[string]chan *requestResponse),
		events:        make(chan domain.Event, buffer),
		done:          make(chan struct{}),
		serverVersion: hello.OBSWebSocketVersion,
	}
	go c.readLoop()

	logging.Component("obsws").Debug().
		Str("address", address).
		Str("obs_websocket_version", hello.OBSWebSocketVersion).
		Msg("identified")
	return c, nil
}

func handshake(conn *websocket.Conn, password string, subs int) (helloData, error) {
	var hello helloData
	if err := readOp(conn, OpHello, &hello); err != nil {
		return hello, fmt.Errorf("read hello: %w", err)
	}
	if hello.RPCVersion < RPCVersion {
		return hello, fmt.Errorf("server rpc version %d is older than %d", hello.RPCVersion, RPCVersion)
	}

	identify := identifyData{RPCVersion: RPCVersion, EventSubscriptions: subs}
	if hello.Authentication != nil {
		if password == "" {
			return hello, ErrAuthenticationRequired
		}
		identify.Authentication = authResponse(password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}
	msg, err := encode(OpIdentify, identify)
	if err != nil {
		return hello, err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return hello, fmt.Errorf("send identify: %w", err)
	}

	var identified identifiedData
	if err := readOp(conn, OpIdentified, &identified); err != nil {
		return hello, fmt.Errorf("read identified: %w", err)
	}
	return hello, nil
}

func readOp(conn *websocket.Conn, op int, out any) error {
	var msg message
	if err := conn.ReadJSON(&msg); err != nil {
		return closeError(err)
	}
	if msg.Op != op {
		return fmt.Errorf("expected op %d, got %d", op, msg.Op)
	}
	if err := json.Unmarshal(msg.D, out); err != nil {
		return fmt.Errorf("decode op %d: %w", op, err)
	}
	return nil
}

// Endpoint normalizes "host", "host:port" or a ws(s):// URL.
func Endpoint(address string) (string, error) {
	a := strings.TrimSpace(address)
	if a == "" {
		return "", domain.ErrInvalidAddress
	}
	if !strings.Contains(a, "://") {
		a = "ws://" + a
	}
	u, err := url.Parse(a)
	if err != nil {
		return "", fmt.Errorf("parse address %q: %w", address, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("address %q has no host", address)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(DefaultPort))
	}
	return u.String(), nil
}

// ServerVersion is the obs-websocket version announced in Hello.
func (c *Client) ServerVersion() string {
	return c.serverVersion
}

// Events implements domain.Transport.
func (c *Client) Events() <-chan domain.Event {
	return c.events
}

// Done implements domain.Transport.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the session ended, or nil while it is alive.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.shutdown(closeError(err))
			return
		}
		switch msg.Op {
		case OpEvent:
			var ev domain.Event
			if err := json.Unmarshal(msg.D, &ev); err != nil {
				logging.Debugf("obsws: bad event payload: %v", err)
				continue
			}
			select {
			case c.events <- ev:
			default:
				logging.Warnf("obsws: event buffer full, dropping %s", ev.Type)
			}
		case OpRequestResponse:
			var resp requestResponse
			if err := json.Unmarshal(msg.D, &resp); err != nil {
				logging.Debugf("obsws: bad request response: %v", err)
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.RequestID]
			delete(c.pending, resp.RequestID)
			c.mu.Unlock()
			if ok {
				ch <- &resp
			}
		default:
			logging.Tracef("obsws: ignoring op %d", msg.Op)
		}
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		c.conn.Close()
	})
}

// Call implements domain.Transport.
func (c *Client) Call(ctx context.Context, requestType string, params, out any) error {
	req := requestData{RequestType: requestType, RequestID: uuid.NewString()}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode %s params: %w", requestType, err)
		}
		req.RequestData = raw
	}

	ch := make(chan *requestResponse, 1)
	c.mu.Lock()
	c.pending[req.RequestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
	}()

	if err := c.write(OpRequest, req); err != nil {
		select {
		case <-c.done:
			return c.closedErr()
		default:
		}
		return &domain.ConnectionError{Address: c.address, Err: err}
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if !resp.RequestStatus.Result {
			return &domain.ProtocolError{
				RequestType: requestType,
				Code:        resp.RequestStatus.Code,
				Comment:     resp.RequestStatus.Comment,
			}
		}
		if out != nil && len(resp.ResponseData) > 0 {
			if err := json.Unmarshal(resp.ResponseData, out); err != nil {
				return fmt.Errorf("decode %s response: %w", requestType, err)
			}
		}
		return nil
	case <-c.done:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%s: %w", requestType, ErrRequestTimeout)
	}
}

func (c *Client) closedErr() error {
	return &domain.ConnectionError{Address: c.address, Err: domain.ErrConnectionClosed}
}

func (c *Client) write(op int, d any) error {
	msg, err := encode(op, d)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// Close sends a normal close frame and waits for the read loop to stop.
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	c.shutdown(domain.ErrConnectionClosed)
	<-c.done
	return nil
}
