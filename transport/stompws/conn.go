package stompws

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coregx/chatrelay"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 40 * time.Second
	pingPeriod   = 30 * time.Second
	maxFrameSize = 128 * 1024

	authorizationHeader = "Authorization"
	stompVersion        = "1.2"
)

type outbound struct {
	data       []byte
	closeAfter bool
}

// conn is one client connection. Only writePump writes to ws.
type conn struct {
	ws      *websocket.Conn
	server  *Server
	session *chatrelay.Session
	limiter *rate.Limiter

	send    chan outbound
	closeCh chan struct{}
	closed  atomic.Bool

	connected atomic.Bool
	closing   atomic.Bool
	messageID atomic.Uint64

	mu   sync.Mutex
	subs map[string]string // subscription id -> destination
}

func newConn(ws *websocket.Conn, s *Server) *conn {
	return &conn{
		ws:      ws,
		server:  s,
		session: chatrelay.NewSession(),
		limiter: rate.NewLimiter(s.rateLimit, s.burst),
		send:    make(chan outbound, s.sendQueue),
		closeCh: make(chan struct{}),
		subs:    make(map[string]string, 4),
	}
}

func (c *conn) close(reason string) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.closeCh)
	_ = c.ws.Close()
	c.server.hub.removeConn(c, c.takeDestinations())
	c.server.logger.Debugf("Connection closed: session=%s, reason=%s", c.session.ID(), reason)
}

// enqueue hands data to the write pump. A full queue means the client is
// too slow and the connection is dropped.
func (c *conn) enqueue(out outbound) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- out:
		return true
	case <-c.closeCh:
		return false
	default:
		c.server.logger.Warnf("Slow consumer disconnected: session=%s", c.session.ID())
		c.close("send_queue_full")
		return false
	}
}

func (c *conn) writeFrame(f *frame.Frame, closeAfter bool) {
	data, err := encodeFrame(f)
	if err != nil {
		c.server.logger.Errorf("Failed to encode %s frame: %v", f.Command, err)
		c.close("encode_error")
		return
	}
	if closeAfter {
		c.closing.Store(true)
	}
	c.enqueue(outbound{data: data, closeAfter: closeAfter})
}

// deliver emits one MESSAGE frame per subscription this connection holds on destination.
func (c *conn) deliver(destination string, payload []byte) {
	c.mu.Lock()
	ids := make([]string, 0, 1)
	for id, d := range c.subs {
		if d == destination {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		f := frame.New(frame.MESSAGE,
			frame.Destination, destination,
			frame.Subscription, id,
			frame.MessageId, c.session.ID()+"-"+strconv.FormatUint(c.messageID.Add(1), 10),
			frame.ContentType, "application/json",
		)
		f.Body = payload
		c.writeFrame(f, false)
	}
}

// subscribe registers the subscription unless the connection is already
// closed. The hub entry is added under c.mu so close cannot miss it.
func (c *conn) subscribe(id, destination string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return false
	}
	c.subs[id] = destination
	c.server.hub.add(c, destination)
	return true
}

func (c *conn) unsubscribe(id string) {
	c.mu.Lock()
	destination, ok := c.subs[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, id)
	stillUsed := false
	for _, d := range c.subs {
		if d == destination {
			stillUsed = true
			break
		}
	}
	c.mu.Unlock()

	if !stillUsed {
		c.server.hub.drop(c, destination)
	}
}

func (c *conn) takeDestinations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{}, len(c.subs))
	out := make([]string, 0, len(c.subs))
	for _, d := range c.subs {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	c.subs = make(map[string]string)
	return out
}

func (c *conn) readPump(ctx context.Context) {
	defer func() {
		// let the write pump flush a final ERROR or RECEIPT first
		if c.closing.Load() {
			select {
			case <-c.closeCh:
			case <-time.After(writeWait):
			}
		}
		c.close("read_exit")
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.server.logger.Debugf("Read failed: session=%s, error=%v", c.session.ID(), err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		f, err := frame.NewReader(bytes.NewReader(data)).Read()
		if err != nil {
			c.fail("malformed frame", "")
			return
		}
		if f == nil {
			// heart-beat
			continue
		}
		if !c.handle(ctx, f) {
			return
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close("write_exit")
	}()

	for {
		select {
		case <-c.closeCh:
			return

		case out := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, out.data); err != nil {
				return
			}
			if out.closeAfter {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handle processes one client frame and reports whether the connection stays open.
func (c *conn) handle(ctx context.Context, f *frame.Frame) bool {
	receipt := f.Header.Get(frame.Receipt)

	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		return c.handleConnect(ctx, f)

	case frame.DISCONNECT:
		if receipt != "" {
			c.writeFrame(frame.New(frame.RECEIPT, frame.ReceiptId, receipt), true)
		} else {
			c.close("disconnect")
		}
		return false
	}

	if !c.connected.Load() {
		c.fail("not connected", receipt)
		return false
	}

	switch f.Command {
	case frame.SEND:
		return c.handleSend(ctx, f, receipt)

	case frame.SUBSCRIBE:
		id := f.Header.Get(frame.Id)
		destination := f.Header.Get(frame.Destination)
		if id == "" || destination == "" {
			c.fail("subscription requires id and destination", receipt)
			return false
		}
		channelID, ok := chatrelay.ChannelFromDestination(destination)
		if !ok {
			c.fail("unknown destination: "+destination, receipt)
			return false
		}
		if !c.subscribe(id, destination) {
			return false
		}
		c.server.logger.Debugf("Subscribed: session=%s, channel=%s, id=%s, destination=%s",
			c.session.ID(), channelID, id, destination)

	case frame.UNSUBSCRIBE:
		id := f.Header.Get(frame.Id)
		if id == "" {
			c.fail("unsubscribe requires id", receipt)
			return false
		}
		c.unsubscribe(id)

	default:
		// ACK, NACK and transactions are accepted and ignored.
	}

	c.sendReceipt(receipt)
	return true
}

func (c *conn) handleConnect(ctx context.Context, f *frame.Frame) bool {
	auth := f.Header.Get(authorizationHeader)
	if err := c.server.gate.Inspect(ctx, chatrelay.CommandConnect, auth, c.session); err != nil {
		c.fail(chatrelay.MsgTokenInvalid, "")
		return false
	}

	c.connected.Store(true)
	c.writeFrame(frame.New(frame.CONNECTED,
		frame.Version, stompVersion,
		frame.HeartBeat, "0,0",
		frame.Server, "chatrelay",
		frame.Session, c.session.ID(),
	), false)

	c.server.logger.Infof("Session connected: session=%s, identity=%s", c.session.ID(), c.session.Identity())
	return true
}

func (c *conn) handleSend(ctx context.Context, f *frame.Frame, receipt string) bool {
	auth := f.Header.Get(authorizationHeader)
	if err := c.server.gate.Inspect(ctx, chatrelay.CommandSend, auth, c.session); err != nil {
		c.fail(chatrelay.MsgTokenInvalid, receipt)
		return false
	}

	if !c.limiter.Allow() {
		c.fail("rate limit exceeded", receipt)
		return false
	}

	destination := f.Header.Get(frame.Destination)
	route, ok := c.server.router.Resolve(destination)
	if !ok {
		c.fail("unknown destination: "+destination, receipt)
		return false
	}

	if err := c.server.router.Dispatch(ctx, route, c.session.Identity(), f.Body); err != nil {
		c.fail("server busy", receipt)
		return false
	}

	c.sendReceipt(receipt)
	return true
}

func (c *conn) sendReceipt(receipt string) {
	if receipt != "" {
		c.writeFrame(frame.New(frame.RECEIPT, frame.ReceiptId, receipt), false)
	}
}

// fail sends an ERROR frame and closes the connection after it is written.
func (c *conn) fail(message, receipt string) {
	f := frame.New(frame.ERROR, frame.Message, message)
	if receipt != "" {
		f.Header.Add(frame.ReceiptId, receipt)
	}
	c.writeFrame(f, true)
}

func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
