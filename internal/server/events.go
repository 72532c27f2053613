package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/runvault/runvault/internal/metrics"
	"github.com/runvault/runvault/pkg/api"
)

const eventPingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Authentication happens before the upgrade
	},
}

// eventConn is a subscribed event stream client.
type eventConn struct {
	conn      *websocket.Conn
	writeChan chan api.Event // buffered channel for async writes
	closeChan chan struct{}  // signals writer goroutine to stop
	closed    bool
	closeMu   sync.Mutex
}

// Close stops the writer goroutine and closes the connection.
func (ec *eventConn) Close() {
	ec.closeMu.Lock()
	defer ec.closeMu.Unlock()
	if ec.closed {
		return
	}
	ec.closed = true
	close(ec.closeChan)
	_ = ec.conn.Close()
}

// writeLoop drains queued events to the client and keeps the connection
// alive with pings.
func (ec *eventConn) writeLoop() {
	pingTicker := time.NewTicker(eventPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ec.closeChan:
			return
		case <-pingTicker.C:
			if err := ec.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				log.Debug().Err(err).Msg("event stream ping failed")
				ec.Close()
				return
			}
		case evt := <-ec.writeChan:
			if err := ec.conn.WriteJSON(evt); err != nil {
				log.Debug().Err(err).Msg("event stream write failed")
				ec.Close()
				return
			}
		}
	}
}

// eventBroker fans store mutation events out to websocket subscribers.
type eventBroker struct {
	mu      sync.Mutex
	conns   map[*eventConn]struct{}
	metrics *metrics.VaultMetrics
}

func newEventBroker(m *metrics.VaultMetrics) *eventBroker {
	return &eventBroker{
		conns:   make(map[*eventConn]struct{}),
		metrics: m,
	}
}

func (b *eventBroker) add(conn *websocket.Conn) *eventConn {
	ec := &eventConn{
		conn:      conn,
		writeChan: make(chan api.Event, 64), // Buffered channel to prevent blocking
		closeChan: make(chan struct{}),
	}

	b.mu.Lock()
	b.conns[ec] = struct{}{}
	count := len(b.conns)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EventClients.Set(float64(count))
	}
	return ec
}

func (b *eventBroker) remove(ec *eventConn) {
	b.mu.Lock()
	delete(b.conns, ec)
	count := len(b.conns)
	b.mu.Unlock()

	ec.Close()
	if b.metrics != nil {
		b.metrics.EventClients.Set(float64(count))
	}
}

// publish queues an event for every subscriber. Slow subscribers whose
// write channel is full miss the event rather than blocking the caller.
func (b *eventBroker) publish(evt api.Event) {
	b.mu.Lock()
	conns := make([]*eventConn, 0, len(b.conns))
	for ec := range b.conns {
		conns = append(conns, ec)
	}
	b.mu.Unlock()

	for _, ec := range conns {
		select {
		case ec.writeChan <- evt:
		default:
			log.Warn().Str("type", evt.Type).Str("uri", evt.URI).Msg("event channel full, dropping event")
		}
	}
}

// closeAll disconnects every subscriber.
func (b *eventBroker) closeAll() {
	b.mu.Lock()
	conns := make([]*eventConn, 0, len(b.conns))
	for ec := range b.conns {
		conns = append(conns, ec)
	}
	b.conns = make(map[*eventConn]struct{})
	b.mu.Unlock()

	for _, ec := range conns {
		ec.Close()
	}
	if b.metrics != nil {
		b.metrics.EventClients.Set(0)
	}
}

// publishEvent notifies event stream subscribers of a store mutation.
func (s *Server) publishEvent(eventType, uri, tag string) {
	s.events.publish(api.Event{
		Type: eventType,
		URI:  uri,
		Tag:  tag,
		Time: time.Now().UTC(),
	})
}

// handleEvents upgrades the request to a websocket and streams store
// mutation events until the client disconnects. The connection hijack
// means this handler must not run behind the metrics response recorder.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("event stream upgrade failed")
		return
	}

	ec := s.events.add(conn)
	defer s.events.remove(ec)

	log.Debug().Str("remote", r.RemoteAddr).Msg("event stream client connected")
	go ec.writeLoop()

	// Drain client frames so pongs are processed; exit on close or error.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("event stream closed unexpectedly")
			}
			return
		}
	}
}
