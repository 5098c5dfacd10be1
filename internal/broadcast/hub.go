// Package broadcast implements the broadcast fabric (component G):
// topic-partitioned sets of downstream duplex subscribers, serialize-once
// fan-out, and failure-tolerant removal of dead subscribers. Grounded on
// the teacher's ws.Hub (register/unregister/broadcast channel triad) and
// internal/api/websocket.AnalyticsHub (topic partitioning, keepalive),
// generalized from the teacher's single implicit topic to the six named
// topics this system requires.
package broadcast

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/statarb/engine/internal/metrics"
)

// Topic is one of the six named broadcast channels.
type Topic string

const (
	TopicPrices      Topic = "prices"
	TopicSpread      Topic = "spread"
	TopicCorrelation Topic = "correlation"
	TopicSummary     Topic = "summary"
	TopicAlerts      Topic = "alerts"
	TopicAnalytics   Topic = "analytics"
)

var topics = []Topic{TopicPrices, TopicSpread, TopicCorrelation, TopicSummary, TopicAlerts, TopicAnalytics}

// ValidTopic reports whether t is one of the six recognized topics.
func ValidTopic(t string) bool {
	for _, valid := range topics {
		if Topic(t) == valid {
			return true
		}
	}
	return false
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subscriber is one duplex downstream session, tagged with exactly one
// topic. writeMu serializes writes against this connection: the fabric's
// fan-out and the per-subscriber keepalive ping both write to the same
// conn from different goroutines.
type Subscriber struct {
	topic   Topic
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	closeOnce sync.Once
}

func (s *Subscriber) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Subscriber) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Hub owns the topic-partitioned subscriber sets under a single mutex.
// Publishing snapshots the set under that mutex but performs the network
// sends outside it, so one slow subscriber cannot block registration.
// Sends within one publish are made one after another, so a slow
// subscriber delays those after it, each write bounded by writeWait.
type Hub struct {
	mu   sync.Mutex
	sets map[Topic]map[*Subscriber]struct{}
}

// New creates an empty broadcast fabric.
func New() *Hub {
	sets := make(map[Topic]map[*Subscriber]struct{}, len(topics))
	for _, t := range topics {
		sets[t] = make(map[*Subscriber]struct{})
	}
	return &Hub{sets: sets}
}

// Register adds sub to its topic's set.
func (h *Hub) Register(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sets[sub.topic][sub] = struct{}{}
}

// Unregister removes sub from its topic's set, if present.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sets[sub.topic], sub)
}

// Count returns the number of active subscribers on topic.
func (h *Hub) Count(topic Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sets[topic])
}

// Publish serializes message once and sends it to every subscriber of
// topic. Any send failure marks that subscriber for removal; removal is
// applied after the full fan-out completes so one failing subscriber
// never affects delivery to the others in the same publish call.
func (h *Hub) Publish(topic Topic, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[Broadcast] failed to serialize message for topic %s: %v", topic, err)
		return
	}

	h.mu.Lock()
	snapshot := make([]*Subscriber, 0, len(h.sets[topic]))
	for sub := range h.sets[topic] {
		snapshot = append(snapshot, sub)
	}
	h.mu.Unlock()

	var dead []*Subscriber
	for _, sub := range snapshot {
		if err := sub.write(data); err != nil {
			metrics.BroadcastSendFailures.WithLabelValues(string(topic)).Inc()
			dead = append(dead, sub)
		}
	}

	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, sub := range dead {
		delete(h.sets[topic], sub)
	}
	h.mu.Unlock()
	for _, sub := range dead {
		sub.close()
	}
}

// Frame is the envelope used by every topic except `analytics`.
type Frame struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	TimestampMs int64 `json:"timestamp_ms"`
}

// AnalyticsFrame is the unwrapped envelope used only by the `analytics`
// topic.
type AnalyticsFrame struct {
	Timestamp   string             `json:"timestamp"`
	Prices      map[string]float64 `json:"prices"`
	Spread      float64            `json:"spread"`
	ZScore      float64            `json:"z_score"`
	Correlation float64            `json:"correlation"`
}

// Serve upgrades r to a websocket and registers it on topic, blocking
// until the connection closes. pongHandler resets the read deadline on
// every pong, and a background goroutine sends keepalive pings; both
// mirror the teacher's AnalyticsClient readPump/writePump keepalive
// handling.
func (h *Hub) Serve(topic Topic, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Broadcast] upgrade failed for topic %s: %v", topic, err)
		return
	}

	sub := &Subscriber{topic: topic, conn: conn, done: make(chan struct{})}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	h.Register(sub)
	log.Printf("[Broadcast] subscriber joined topic %s", topic)

	go h.keepalive(sub)

	defer func() {
		h.Unregister(sub)
		sub.close()
		log.Printf("[Broadcast] subscriber left topic %s", topic)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) keepalive(sub *Subscriber) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			if err := sub.ping(); err != nil {
				return
			}
		}
	}
}
