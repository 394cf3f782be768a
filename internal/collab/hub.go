package collab

import (
	"encoding/json"
	"time"

	"collab-server/internal/database"
	"collab-server/internal/models"
	"collab-server/pkg/logger"
)

// Options tunes the hub; zero values fall back to production defaults.
type Options struct {
	OplogRetention int
	SendBufferSize int
}

type inboundEvent struct {
	client *Client
	env    models.Envelope
}

// Hub owns the session registry: every room, every participant, and every
// user's personal channel. All mutation happens on the single Run goroutine,
// so membership changes, cursor updates, and the broadcasts that follow them
// are atomic with respect to other connections.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	events     chan inboundEvent
	commands   chan func()
	shutdown   chan struct{}
	stopped    chan struct{}

	rooms     map[string]*RoomSession
	userConns map[string]map[*Client]bool

	oplog          *OperationLogWriter
	jobs           database.JobStore
	sendBufferSize int
}

func NewHub(oplog database.OperationLog, jobs database.JobStore, opts Options) *Hub {
	if opts.OplogRetention <= 0 {
		opts.OplogRetention = 100
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}

	return &Hub{
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		events:         make(chan inboundEvent),
		commands:       make(chan func(), 64),
		shutdown:       make(chan struct{}),
		stopped:        make(chan struct{}),
		rooms:          make(map[string]*RoomSession),
		userConns:      make(map[string]map[*Client]bool),
		oplog:          NewOperationLogWriter(oplog, opts.OplogRetention),
		jobs:           jobs,
		sendBufferSize: opts.SendBufferSize,
	}
}

func (h *Hub) Run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.shutdown:
			for _, conns := range h.userConns {
				for client := range conns {
					client.shutdown()
				}
			}
			h.userConns = make(map[string]map[*Client]bool)
			h.rooms = make(map[string]*RoomSession)
			h.oplog.Close()
			return

		case client := <-h.Register:
			h.addConnection(client)

		case client := <-h.Unregister:
			h.dropConnection(client)

		case ev := <-h.events:
			h.dispatch(ev.client, ev.env)

		case cmd := <-h.commands:
			cmd()
		}
	}
}

// Stop tears the hub down, disconnects every client, and waits for the run
// loop and log writer to drain. Call once, from outside the hub goroutine.
func (h *Hub) Stop() {
	close(h.shutdown)
	<-h.stopped
}

// addConnection places a freshly authenticated connection into its user's
// personal channel. Room membership comes later, via join-project.
func (h *Hub) addConnection(c *Client) {
	conns, ok := h.userConns[c.identity.UserID]
	if !ok {
		conns = make(map[*Client]bool)
		h.userConns[c.identity.UserID] = conns
	}
	conns[c] = true
	logger.Info("User %s connected (%s)", c.identity.UserID, c.id)
}

// dropConnection runs the full disconnect path: leave the current room,
// detach from the personal channel, release the writer. Idempotent.
func (h *Hub) dropConnection(c *Client) {
	conns, ok := h.userConns[c.identity.UserID]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.userConns, c.identity.UserID)
	}

	h.leaveRoom(c)
	c.shutdown()
	logger.Info("User %s disconnected (%s)", c.identity.UserID, c.id)
}

func (h *Hub) dispatch(c *Client, env models.Envelope) {
	switch env.Event {
	case models.EventJoinProject:
		var payload models.JoinProjectPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.RoomID == "" {
			h.sendError(c, "invalid join-project payload")
			return
		}
		h.joinRoom(c, payload.RoomID)

	case models.EventCanvasOperation:
		h.handleCanvasOperation(c, env.Data)

	case models.EventCursorMove:
		h.handleCursorMove(c, env.Data)

	case models.EventElementSelect:
		h.handleElementSelect(c, env.Data)

	case models.EventCodeChange:
		h.handleCodeChange(c, env.Data)

	case models.EventAIJobStatus:
		h.handleJobStatus(c, env.Data)

	default:
		h.sendError(c, "unknown event: "+string(env.Event))
	}
}

// joinRoom moves the connection into the target room, enforcing
// single-room-per-connection and dedup by userID: a rejoin from a new
// connection takes over the existing participant record instead of adding a
// second one.
func (h *Hub) joinRoom(c *Client, roomID string) {
	if c.room != nil && c.room.ID != roomID {
		h.leaveRoom(c)
	}

	room, ok := h.rooms[roomID]
	if !ok {
		room = NewRoomSession(roomID)
		h.rooms[roomID] = room
	}

	if p := room.find(c.identity.UserID); p != nil {
		p.client = c
	} else {
		room.add(&roomParticipant{
			userID: c.identity.UserID,
			email:  c.identity.Email,
			client: c,
		})
	}
	c.room = room

	h.broadcastToRoom(room, c, models.EventUserJoined, models.UserJoinedPayload{
		UserID: c.identity.UserID,
		Email:  c.identity.Email,
	})
	h.sendEvent(c, models.EventParticipantsUpdate, models.ParticipantsUpdatePayload{
		Participants: room.snapshot(c.identity.UserID),
	})
	logger.Info("User %s joined room %s", c.identity.UserID, roomID)
}

// leaveRoom removes the connection's participant record from its current
// room, notifies the remainder, and deletes the room once empty. A no-op for
// connections that are not in a room, and for stale connections whose record
// was already taken over by a reconnect.
func (h *Hub) leaveRoom(c *Client) {
	room := c.room
	if room == nil {
		return
	}
	c.room = nil

	p := room.find(c.identity.UserID)
	if p == nil || p.client != c {
		return
	}
	room.remove(c.identity.UserID)

	if len(room.participants) == 0 {
		delete(h.rooms, room.ID)
		logger.Debug("Room %s is empty, removed", room.ID)
		return
	}

	h.broadcastToRoom(room, c, models.EventUserLeft, models.UserLeftPayload{
		UserID: c.identity.UserID,
	})
	logger.Info("User %s left room %s", c.identity.UserID, room.ID)
}

func (h *Hub) handleCanvasOperation(c *Client, data json.RawMessage) {
	if c.room == nil {
		return
	}

	var op map[string]interface{}
	if err := json.Unmarshal(data, &op); err != nil {
		h.sendError(c, "invalid canvas-operation payload")
		return
	}

	timestamp := time.Now().UnixMilli()
	entry := &models.OperationEntry{
		UserID:    c.identity.UserID,
		Timestamp: timestamp,
		Operation: op,
	}

	enriched := make(map[string]interface{}, len(op)+2)
	for k, v := range op {
		enriched[k] = v
	}
	enriched["userId"] = c.identity.UserID
	enriched["timestamp"] = timestamp

	h.broadcastToRoom(c.room, c, models.EventCanvasOperation, enriched)
	h.oplog.Write(c.room.ID, entry)
}

func (h *Hub) handleCursorMove(c *Client, data json.RawMessage) {
	if c.room == nil {
		return
	}

	var cursor models.Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		h.sendError(c, "invalid cursor-move payload")
		return
	}

	if p := c.room.find(c.identity.UserID); p != nil && p.client == c {
		p.cursor = &cursor
	}

	h.broadcastToRoom(c.room, c, models.EventCursorUpdate, models.CursorUpdatePayload{
		UserID: c.identity.UserID,
		Cursor: cursor,
	})
}

func (h *Hub) handleElementSelect(c *Client, data json.RawMessage) {
	if c.room == nil {
		return
	}

	var payload models.ElementSelectPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(c, "invalid element-select payload")
		return
	}

	if p := c.room.find(c.identity.UserID); p != nil && p.client == c {
		p.selection = payload.ElementID
	}

	h.broadcastToRoom(c.room, c, models.EventSelectionUpdate, models.SelectionUpdatePayload{
		UserID:    c.identity.UserID,
		ElementID: payload.ElementID,
	})
}

func (h *Hub) handleCodeChange(c *Client, data json.RawMessage) {
	if c.room == nil {
		return
	}

	var payload models.CodeChangePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(c, "invalid code-change payload")
		return
	}
	payload.UserID = c.identity.UserID
	payload.Timestamp = time.Now().UnixMilli()

	h.broadcastToRoom(c.room, c, models.EventCodeChange, payload)
}

// handleJobStatus reads external job state off the hub goroutine and answers
// only the requesting connection.
func (h *Hub) handleJobStatus(c *Client, data json.RawMessage) {
	var payload models.AIJobStatusPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.JobID == "" {
		h.sendError(c, "invalid ai-job-status payload")
		return
	}

	if h.jobs == nil {
		h.sendError(c, "job status unavailable")
		return
	}

	go func() {
		ctx, cancel := contextWithQueryTimeout()
		defer cancel()

		job, err := h.jobs.GetJob(ctx, payload.JobID)
		if err != nil {
			logger.Error("Error fetching job %s: %v", payload.JobID, err)
			c.sendEvent(models.EventError, models.ErrorPayload{Message: "job not found"})
			return
		}
		c.sendEvent(models.EventAIJobUpdate, models.AIJobUpdatePayload{
			JobID:    job.ID,
			Status:   job.Status,
			Progress: job.Progress,
		})
	}()
}

// broadcastToRoom fans a message out to every participant except sender.
// Participants whose send queue is full are dropped, the same way a dead
// socket would be.
func (h *Hub) broadcastToRoom(room *RoomSession, sender *Client, event models.EventType, payload interface{}) {
	data, err := json.Marshal(models.Envelope{Event: event, Data: mustMarshal(payload)})
	if err != nil {
		logger.Error("Error marshaling %s event: %v", event, err)
		return
	}

	var stalled []*Client
	for _, p := range room.participants {
		if sender != nil && p.client == sender {
			continue
		}
		if !p.client.enqueue(data) {
			stalled = append(stalled, p.client)
		}
	}
	for _, client := range stalled {
		logger.Warn("Dropping slow connection %s (user %s)", client.id, client.identity.UserID)
		h.dropConnection(client)
	}
}

func (h *Hub) sendEvent(c *Client, event models.EventType, payload interface{}) {
	if !c.sendEvent(event, payload) {
		h.dropConnection(c)
	}
}

func (h *Hub) sendError(c *Client, message string) {
	h.sendEvent(c, models.EventError, models.ErrorPayload{Message: message})
}

// NotifyUser delivers a payload to every live connection of one user under
// the notification event, independent of room membership. Best-effort: no
// connections, no delivery.
func (h *Hub) NotifyUser(userID string, payload interface{}) {
	h.do(func() {
		for client := range h.userConns[userID] {
			client.sendEvent(models.EventNotification, payload)
		}
	})
}

// BroadcastRoomEvent pushes a room-scoped event on behalf of an external
// collaborator, reaching every current participant.
func (h *Hub) BroadcastRoomEvent(roomID string, event models.EventType, payload interface{}) {
	h.do(func() {
		if room, ok := h.rooms[roomID]; ok {
			h.broadcastToRoom(room, nil, event, payload)
		}
	})
}

// RoomParticipants reports the current participant snapshot for a room, or
// nil if the room does not exist.
func (h *Hub) RoomParticipants(roomID string) []*models.Participant {
	var result []*models.Participant
	h.doWait(func() {
		if room, ok := h.rooms[roomID]; ok {
			result = room.snapshot("")
		}
	})
	return result
}

// RoomCount reports how many rooms currently have participants.
func (h *Hub) RoomCount() int {
	var n int
	h.doWait(func() { n = len(h.rooms) })
	return n
}

// UserConnectionCount reports how many live connections a user has.
func (h *Hub) UserConnectionCount(userID string) int {
	var n int
	h.doWait(func() { n = len(h.userConns[userID]) })
	return n
}

// do schedules fn on the hub goroutine; dropped if the hub has stopped.
func (h *Hub) do(fn func()) {
	select {
	case h.commands <- fn:
	case <-h.shutdown:
	}
}

func (h *Hub) doWait(fn func()) {
	done := make(chan struct{})
	h.do(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-h.shutdown:
	}
}

func mustMarshal(payload interface{}) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Error marshaling payload: %v", err)
		return json.RawMessage("null")
	}
	return data
}
