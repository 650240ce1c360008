package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/agent-hub/backend/internal/agent"
	"github.com/agent-hub/backend/internal/session"
	"github.com/eapache/queue"
	"github.com/gorilla/websocket"
)

type client struct {
	conn *websocket.Conn
	send chan []byte

	done     chan struct{}
	doneOnce sync.Once
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// close stops the write pump. The send channel is never closed: a
// concurrent broadcast holding a stale client snapshot may still try to
// send, and a send on a closed channel would panic.
func (c *client) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Broadcaster fans session lifecycle and agent events out to websocket
// clients. Events are queued FIFO and flushed on a throttle so a chatty
// runner produces one write burst, not one write per event. A periodic
// full snapshot lets late or lossy clients resynchronize.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool

	store  *session.Store
	redact *session.RedactFilter

	throttle       time.Duration
	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once

	flushMu    sync.Mutex
	pending    *queue.Queue // of WSMessage
	flushTimer *time.Timer
}

func NewBroadcaster(store *session.Store, redact *session.RedactFilter, throttle, snapshotInterval time.Duration) *Broadcaster {
	if redact == nil {
		redact = &session.RedactFilter{}
	}
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		store:    store,
		redact:   redact,
		throttle: throttle,
		stop:     make(chan struct{}),
		pending:  queue.New(),
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	data, _ := json.Marshal(b.snapshotMessage())
	select {
	case c.send <- data:
	default:
		// Client too slow, drop the snapshot
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// QueueAgentEvent enqueues a forwarded runner event for the next flush.
func (b *Broadcaster) QueueAgentEvent(ev agent.Event) {
	b.enqueue(WSMessage{Type: MsgAgentEvent, Payload: AgentEventPayload{Event: ev}})
}

// QueueLifecycle enqueues a session admission or removal notice.
func (b *Broadcaster) QueueLifecycle(id, reason string) {
	if b.redact.MaskIDs {
		id = b.redact.Apply(session.View{ID: id}).ID
	}
	b.enqueue(WSMessage{Type: MsgLifecycle, Payload: LifecyclePayload{SessionID: id, Reason: reason}})
}

func (b *Broadcaster) enqueue(msg WSMessage) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pending.Add(msg)

	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	msgs := make([]WSMessage, 0, b.pending.Length())
	for b.pending.Length() > 0 {
		msgs = append(msgs, b.pending.Remove().(WSMessage))
	}
	b.flushTimer = nil
	b.flushMu.Unlock()

	for _, msg := range msgs {
		b.broadcast(msg)
	}
}

func (b *Broadcaster) snapshotMessage() WSMessage {
	return WSMessage{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			Sessions: b.redact.FilterSlice(b.store.Views()),
		},
	}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(b.snapshotMessage())
		}
	}
}

// Close stops the snapshot loop. Queued messages already scheduled for
// flush still go out.
func (b *Broadcaster) Close() {
	b.stopOnce.Do(func() {
		b.snapshotTicker.Stop()
		close(b.stop)
	})
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			// Client can't keep up, disconnect it
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
