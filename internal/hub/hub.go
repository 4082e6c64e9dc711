package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/gridsense/meterhub/internal/domain"
	"github.com/gridsense/meterhub/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

type meterClients map[*websocket.Conn]*clientWriter

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	accessID     string
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	accessID   string
	connection *websocket.Conn
}

type broadcastCmd struct {
	baseHubCmd
	accessID string
	data     []byte
}

type sendCmd struct {
	baseHubCmd
	accessID   string
	connection *websocket.Conn
	data       []byte
}

type clientCountCmd struct {
	baseHubCmd
	accessID     string
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub maintains the per-meter subscriber sets and fans ingested readings out
// to them. A single goroutine owns the map and processes commands in arrival
// order; per-connection writer goroutines absorb slow clients.
type Hub struct {
	cmdCh              chan hubCmd
	clock              clockwork.Clock
	clients            map[string]meterClients
	done               chan struct{}
	maxClientsPerMeter int
	sendBufferSize     int
}

// New creates a hub and starts its actor goroutine.
// maxClientsPerMeter caps subscribers per meter (resource exhaustion guard).
// sendBufferSize is the per-connection outbound buffer; a full buffer marks
// the client slow and evicts it rather than blocking the fan-out.
func New(clock clockwork.Clock, maxClientsPerMeter, sendBufferSize int) *Hub {
	h := &Hub{
		cmdCh:              make(chan hubCmd, 256),
		clock:              clock,
		clients:            make(map[string]meterClients),
		done:               make(chan struct{}),
		maxClientsPerMeter: maxClientsPerMeter,
		sendBufferSize:     sendBufferSize,
	}
	go h.run()
	return h
}

// Register adds a subscriber connection for a meter's access ID, creating the
// set on first subscriber. Returns an error only if the per-meter client cap
// is reached or the hub is unresponsive.
func (h *Hub) Register(accessID string, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- registerCmd{accessID: accessID, connection: conn, errorChannel: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a subscriber connection from a meter's set. No-op if the
// connection or meter entry is absent; idempotent.
func (h *Hub) Unregister(accessID string, conn *websocket.Conn) {
	h.cmdCh <- unregisterCmd{accessID: accessID, connection: conn}
}

// Broadcast delivers a message to every current subscriber of the message's
// meter. Best-effort: no subscribers means the message is discarded, and a
// failing subscriber is evicted without affecting the rest.
func (h *Hub) Broadcast(msg domain.BroadcastMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal broadcast message", "meter_id", msg.MeterID, "error", err)
		return
	}
	h.cmdCh <- broadcastCmd{accessID: msg.MeterID, data: data}
}

// Send delivers a message to one specific subscriber. It goes through the
// actor and the connection's writer channel, so it never interleaves with
// fan-out writes. Used for the initial snapshot after registration. No-op if
// the connection is no longer registered.
func (h *Hub) Send(accessID string, conn *websocket.Conn, msg domain.BroadcastMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal message", "meter_id", msg.MeterID, "error", err)
		return
	}
	h.cmdCh <- sendCmd{accessID: accessID, connection: conn, data: data}
}

// ClientCount returns the number of subscribers for a meter's access ID.
// Returns -1 if the command times out.
func (h *Hub) ClientCount(accessID string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- clientCountCmd{accessID: accessID, replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the hub, closing all subscriber connections.
// Blocks until the actor goroutine has exited or the timeout is reached.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c.accessID, c.connection)
		case broadcastCmd:
			h.handleBroadcast(c)
		case sendCmd:
			h.handleSend(c)
		case clientCountCmd:
			c.replyChannel <- len(h.clients[c.accessID])
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	clients, exists := h.clients[c.accessID]
	if exists && len(clients) >= h.maxClientsPerMeter {
		slog.Warn("Rejecting subscriber: max clients reached", "meter_id", c.accessID, "max_clients", h.maxClientsPerMeter)
		c.connection.Close()
		c.errorChannel <- fmt.Errorf("max clients per meter (%d) reached", h.maxClientsPerMeter)
		return
	}
	if !exists {
		clients = make(meterClients)
		h.clients[c.accessID] = clients
	}

	cw := newClientWriter(c.connection, h.clock, h.sendBufferSize)
	clients[c.connection] = cw

	metrics.HubActiveMeters.Set(float64(len(h.clients)))
	metrics.HubConnectedClients.Inc()

	slog.Debug("Subscriber registered", "meter_id", c.accessID, "total_clients", len(clients))
	c.errorChannel <- nil
}

func (h *Hub) handleUnregister(accessID string, conn *websocket.Conn) {
	clients, exists := h.clients[accessID]
	if !exists {
		return
	}

	cw, exists := clients[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(clients, conn)
	metrics.HubConnectedClients.Dec()

	// Entries exist only while their subscriber set is non-empty.
	if len(clients) == 0 {
		delete(h.clients, accessID)
		metrics.HubActiveMeters.Set(float64(len(h.clients)))
		slog.Info("Last subscriber disconnected", "meter_id", accessID)
	} else {
		slog.Debug("Subscriber unregistered", "meter_id", accessID, "remaining_clients", len(clients))
	}
}

func (h *Hub) handleBroadcast(c broadcastCmd) {
	clients, exists := h.clients[c.accessID]
	if !exists {
		metrics.HubBroadcastsTotal.WithLabelValues("no_subscribers").Inc()
		return
	}

	var slow []*websocket.Conn
	for conn, writer := range clients {
		select {
		case writer.sendChannel <- c.data:
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow subscriber", "meter_id", c.accessID)
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(c.accessID, conn)
	}

	metrics.HubBroadcastsTotal.WithLabelValues("delivered").Inc()
}

func (h *Hub) handleSend(c sendCmd) {
	writer, exists := h.clients[c.accessID][c.connection]
	if !exists {
		return
	}

	select {
	case writer.sendChannel <- c.data:
	default:
		slog.Warn("Disconnecting slow subscriber", "meter_id", c.accessID)
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(c.accessID, c.connection)
	}
}

func (h *Hub) handleStop() {
	totalClients := 0
	for _, clients := range h.clients {
		totalClients += len(clients)
	}
	slog.Info("Hub shutting down", "meters", len(h.clients), "total_clients", totalClients)

	for accessID, clients := range h.clients {
		for _, cw := range clients {
			cw.stopGraceful("Server shutting down")
		}
		delete(h.clients, accessID)
	}
	metrics.HubActiveMeters.Set(0)
	metrics.HubConnectedClients.Set(0)
}
