package handler

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/room"
	"whiteboard-backend/internal/session"
	"whiteboard-backend/internal/undo"
)

// UserStore resolves identities for inbound events.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// BoardStore answers board existence and access-list questions.
type BoardStore interface {
	GetByID(ctx context.Context, id int64) (*model.Whiteboard, error)
	HasAccess(ctx context.Context, boardID int64, userID string) (bool, error)
}

// StrokeStore is the durable stroke log.
type StrokeStore interface {
	Create(ctx context.Context, stroke *model.Stroke) error
	GetByID(ctx context.Context, id int64) (*model.Stroke, error)
	ListByBoard(ctx context.Context, boardID int64) ([]model.Stroke, error)
	LatestByAuthor(ctx context.Context, boardID int64, userID string) (*model.Stroke, error)
	DeleteByID(ctx context.Context, id int64) error
	DeleteByBoard(ctx context.Context, boardID int64) error
}

// BoardWSHandler is the realtime event router. Each inbound event is
// validated once at the boundary, then handled persist-then-broadcast under
// a per-board lock: same-board events keep a total order while different
// boards proceed in parallel. Malformed or unresolvable events are dropped
// and logged; the client never receives a protocol-level error.
type BoardWSHandler struct {
	users     UserStore
	boards    BoardStore
	strokes   StrokeStore
	registry  *room.Registry
	ledger    *undo.Ledger
	lifecycle *session.Lifecycle
	presence  *presence.Manager

	mu      sync.Mutex
	boardMu map[int64]*sync.Mutex
}

func NewBoardWSHandler(
	users UserStore,
	boards BoardStore,
	strokes StrokeStore,
	registry *room.Registry,
	ledger *undo.Ledger,
	lifecycle *session.Lifecycle,
	presenceMgr *presence.Manager,
) *BoardWSHandler {
	return &BoardWSHandler{
		users:     users,
		boards:    boards,
		strokes:   strokes,
		registry:  registry,
		ledger:    ledger,
		lifecycle: lifecycle,
		presence:  presenceMgr,
		boardMu:   make(map[int64]*sync.Mutex),
	}
}

// lockBoard serializes event handling per board.
func (h *BoardWSHandler) lockBoard(boardID int64) func() {
	h.mu.Lock()
	mu, ok := h.boardMu[boardID]
	if !ok {
		mu = &sync.Mutex{}
		h.boardMu[boardID] = mu
	}
	h.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// HandleWebSocket runs one client connection to completion.
func (h *BoardWSHandler) HandleWebSocket(c *websocket.Conn) {
	sess := session.New(c)
	log.Printf("[Router] Session %s connected", sess.ID)

	if err := sess.Send(EventConnectionEstablished, ConnectionEstablished{
		Message: "connected to whiteboard server",
		SID:     sess.ID,
	}); err != nil {
		log.Printf("[Router] Session %s handshake failed: %v", sess.ID, err)
		sess.Close()
		return
	}

	defer h.disconnect(sess)

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}

		var env session.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("[Router] Session %s sent malformed frame, dropping", sess.ID)
			continue
		}

		h.dispatch(sess, env)
	}
}

// disconnect tears a session down: leave the room, clear presence, and reap
// the guest identity when this was its last session.
func (h *BoardWSHandler) disconnect(sess *session.Session) {
	ctx := context.Background()

	if boardID := sess.BoardID(); boardID != 0 {
		h.registry.Leave(boardID, sess)
		if err := h.presence.Leave(ctx, boardID, sess.UserID()); err != nil {
			log.Printf("[Router] Presence leave failed for session %s: %v", sess.ID, err)
		}
	}

	h.lifecycle.OnDisconnect(ctx, sess)
	sess.Close()
	log.Printf("[Router] Session %s disconnected", sess.ID)
}

func (h *BoardWSHandler) dispatch(sess *session.Session, env session.Envelope) {
	ctx := context.Background()

	switch env.Event {
	case EventJoinBoard:
		var ev JoinBoardEvent
		if !decode(env.Data, &ev, sess.ID, env.Event) {
			return
		}
		defer h.lockBoard(ev.BoardID)()
		h.handleJoin(ctx, sess, ev)

	case EventDrawStroke:
		var ev DrawStrokeEvent
		if !decode(env.Data, &ev, sess.ID, env.Event) {
			return
		}
		defer h.lockBoard(ev.BoardID)()
		h.handleDrawStroke(ctx, sess, ev)

	case EventDrawingInProgress:
		var ev DrawingInProgressEvent
		if !decode(env.Data, &ev, sess.ID, env.Event) {
			return
		}
		defer h.lockBoard(ev.BoardID)()
		// Live preview: relayed verbatim, never persisted.
		h.registry.Broadcast(ev.BoardID, EventDrawingInProgress, env.Data, sess.ID)

	case EventCursorMove:
		var ev CursorMoveEvent
		if !decode(env.Data, &ev, sess.ID, env.Event) {
			return
		}
		defer h.lockBoard(ev.BoardID)()
		h.handleCursorMove(ctx, sess, ev)

	case EventUndoRequest:
		var ev UndoRedoEvent
		if !decode(env.Data, &ev, sess.ID, env.Event) {
			return
		}
		defer h.lockBoard(ev.BoardID)()
		h.handleUndo(ctx, sess, ev)

	case EventRedoRequest:
		var ev UndoRedoEvent
		if !decode(env.Data, &ev, sess.ID, env.Event) {
			return
		}
		// No lock here: the restore locks the board the popped stroke
		// belongs to, which can differ from the board in the request.
		h.handleRedo(ctx, sess, ev)

	case EventEraseStroke:
		var ev EraseStrokeEvent
		if !decode(env.Data, &ev, sess.ID, env.Event) {
			return
		}
		defer h.lockBoard(ev.BoardID)()
		h.handleErase(ctx, sess, ev)

	case EventClearCanvas:
		var ev ClearCanvasEvent
		if !decode(env.Data, &ev, sess.ID, env.Event) {
			return
		}
		defer h.lockBoard(ev.BoardID)()
		h.handleClearCanvas(ctx, sess, ev)

	default:
		log.Printf("[Router] Session %s sent unknown event %q, dropping", sess.ID, env.Event)
	}
}

// decode unmarshals and validates an inbound payload, logging drops.
func decode[T interface{ Validate() error }](raw json.RawMessage, ev T, sid, event string) bool {
	if err := json.Unmarshal(raw, ev); err != nil {
		log.Printf("[Router] Session %s sent unparsable %s, dropping", sid, event)
		return false
	}
	if err := ev.Validate(); err != nil {
		log.Printf("[Router] Session %s sent invalid %s, dropping", sid, event)
		return false
	}
	return true
}

// resolveUser maps an email to an identity, logging the drop when unknown.
func (h *BoardWSHandler) resolveUser(ctx context.Context, email, sid, event string) *model.User {
	user, err := h.users.FindByEmail(ctx, email)
	if err != nil {
		log.Printf("[Router] User lookup failed for %s (%s): %v", email, event, err)
		return nil
	}
	if user == nil {
		log.Printf("[Router] Unknown user %s on %s from session %s, dropping", email, event, sid)
		return nil
	}
	return user
}

func (h *BoardWSHandler) handleJoin(ctx context.Context, sess *session.Session, ev JoinBoardEvent) {
	user := h.resolveUser(ctx, ev.UserEmail, sess.ID, EventJoinBoard)
	if user == nil {
		return
	}

	board, err := h.boards.GetByID(ctx, ev.BoardID)
	if err != nil {
		log.Printf("[Router] Board lookup failed for %d: %v", ev.BoardID, err)
		return
	}
	if board == nil {
		log.Printf("[Router] Session %s tried to join missing board %d", sess.ID, ev.BoardID)
		return
	}

	allowed, err := h.boards.HasAccess(ctx, board.ID, user.ID)
	if err != nil {
		log.Printf("[Router] Access check failed for user %s on board %d: %v", user.ID, board.ID, err)
		return
	}
	if !allowed {
		log.Printf("[Router] User %s denied access to board %d", user.ID, board.ID)
		return
	}

	// Re-joining from the same session moves it between rooms.
	if prev := sess.BoardID(); prev != 0 && prev != board.ID {
		h.registry.Leave(prev, sess)
		if err := h.presence.Leave(ctx, prev, sess.UserID()); err != nil {
			log.Printf("[Router] Presence leave failed for session %s: %v", sess.ID, err)
		}
	}

	sess.Join(board.ID, user.ID, user.Name, user.IsGuest)
	h.registry.Join(board.ID, sess)
	if user.IsGuest {
		h.lifecycle.TrackGuest(sess, user.ID)
	}
	if err := h.presence.Join(ctx, board.ID, user.ID, user.Name); err != nil {
		log.Printf("[Router] Presence join failed for session %s: %v", sess.ID, err)
	}

	strokes, err := h.strokes.ListByBoard(ctx, board.ID)
	if err != nil {
		log.Printf("[Router] Stroke snapshot failed for board %d: %v", board.ID, err)
		strokes = nil
	}

	snapshot := InitialDrawing{Strokes: make([]StrokePayload, 0, len(strokes))}
	for i := range strokes {
		payload, ok := strokePayload(&strokes[i], "")
		if !ok {
			log.Printf("[Router] Skipping stroke %d with undecodable path", strokes[i].ID)
			continue
		}
		snapshot.Strokes = append(snapshot.Strokes, payload)
	}

	if err := sess.Send(EventInitialDrawing, snapshot); err != nil {
		log.Printf("[Router] Failed to send initial drawing to session %s: %v", sess.ID, err)
	}
}

func (h *BoardWSHandler) handleDrawStroke(ctx context.Context, sess *session.Session, ev DrawStrokeEvent) {
	user := h.resolveUser(ctx, ev.UserEmail, sess.ID, EventDrawStroke)
	if user == nil {
		return
	}

	board, err := h.boards.GetByID(ctx, ev.BoardID)
	if err != nil || board == nil {
		log.Printf("[Router] Board %d not available for draw (err=%v), dropping", ev.BoardID, err)
		return
	}

	points, err := model.EncodePoints(ev.Points)
	if err != nil {
		log.Printf("[Router] Failed to encode points for session %s: %v", sess.ID, err)
		return
	}

	stroke := model.Stroke{
		WhiteboardID: board.ID,
		UserID:       user.ID,
		Color:        ev.Color,
		LineWidth:    ev.LineWidth,
		Points:       points,
	}
	if err := h.strokes.Create(ctx, &stroke); err != nil {
		log.Printf("[Router] Failed to save stroke on board %d: %v", board.ID, err)
		return
	}

	// A fresh stroke invalidates the author's redo history.
	h.ledger.Clear(user.ID)

	payload, ok := strokePayload(&stroke, ev.TempID)
	if !ok {
		payload = StrokePayload{
			ID: stroke.ID, BoardID: board.ID, UserID: user.ID,
			Color: ev.Color, LineWidth: ev.LineWidth, Points: ev.Points, TempID: ev.TempID,
		}
	}

	// The author is included so it can swap temp_id for the server id.
	h.registry.Broadcast(board.ID, EventStrokeReceived, payload, "")
}

func (h *BoardWSHandler) handleCursorMove(ctx context.Context, sess *session.Session, ev CursorMoveEvent) {
	user := h.resolveUser(ctx, ev.UserEmail, sess.ID, EventCursorMove)
	if user == nil {
		return
	}

	h.registry.Broadcast(ev.BoardID, EventCursorUpdate, CursorUpdate{
		UserID:   user.ID,
		UserName: user.Name,
		Position: ev.Position,
	}, sess.ID)
}

func (h *BoardWSHandler) handleUndo(ctx context.Context, sess *session.Session, ev UndoRedoEvent) {
	user := h.resolveUser(ctx, ev.UserEmail, sess.ID, EventUndoRequest)
	if user == nil {
		return
	}

	stroke, err := h.strokes.LatestByAuthor(ctx, ev.BoardID, user.ID)
	if err != nil {
		log.Printf("[Router] Undo lookup failed for user %s on board %d: %v", user.ID, ev.BoardID, err)
		return
	}
	if stroke == nil {
		return // nothing to undo, silent no-op
	}

	if err := h.strokes.DeleteByID(ctx, stroke.ID); err != nil {
		log.Printf("[Router] Undo delete failed for stroke %d: %v", stroke.ID, err)
		return
	}

	h.ledger.RecordRemoval(user.ID, *stroke)

	// The requester sees the removal too.
	h.registry.Broadcast(ev.BoardID, EventStrokeRemoved, StrokeRemoved{
		StrokeID: stroke.ID,
		BoardID:  ev.BoardID,
	}, "")
}

func (h *BoardWSHandler) handleRedo(ctx context.Context, sess *session.Session, ev UndoRedoEvent) {
	user := h.resolveUser(ctx, ev.UserEmail, sess.ID, EventRedoRequest)
	if user == nil {
		return
	}

	snapshot, ok := h.ledger.PopForRedo(user.ID)
	if !ok {
		return // empty ledger, silent no-op
	}

	// The ledger is global per user, so the snapshot may belong to another
	// board than the one named in the request. Serialize against the board
	// actually being written.
	defer h.lockBoard(snapshot.WhiteboardID)()

	// Restore with a fresh id but the original creation time, so the stroke
	// keeps its place in the board's paint order.
	restored := model.Stroke{
		WhiteboardID: snapshot.WhiteboardID,
		UserID:       snapshot.UserID,
		Color:        snapshot.Color,
		LineWidth:    snapshot.LineWidth,
		Points:       snapshot.Points,
		CreatedAt:    snapshot.CreatedAt,
	}
	if err := h.strokes.Create(ctx, &restored); err != nil {
		log.Printf("[Router] Redo recreate failed on board %d: %v", snapshot.WhiteboardID, err)
		h.ledger.RecordRemoval(user.ID, snapshot)
		return
	}

	payload, ok := strokePayload(&restored, "")
	if !ok {
		log.Printf("[Router] Restored stroke %d has undecodable path", restored.ID)
		return
	}

	h.registry.Broadcast(restored.WhiteboardID, EventStrokeReceived, payload, "")
}

func (h *BoardWSHandler) handleErase(ctx context.Context, sess *session.Session, ev EraseStrokeEvent) {
	stroke, err := h.strokes.GetByID(ctx, ev.StrokeID)
	if err != nil {
		log.Printf("[Router] Erase lookup failed for stroke %d: %v", ev.StrokeID, err)
		return
	}
	if stroke == nil {
		log.Printf("[Router] Session %s tried to erase missing stroke %d", sess.ID, ev.StrokeID)
		return
	}

	if err := h.strokes.DeleteByID(ctx, stroke.ID); err != nil {
		log.Printf("[Router] Erase delete failed for stroke %d: %v", stroke.ID, err)
		return
	}

	h.registry.Broadcast(stroke.WhiteboardID, EventStrokeRemoved, StrokeRemoved{
		StrokeID: stroke.ID,
		BoardID:  stroke.WhiteboardID,
	}, "")
}

func (h *BoardWSHandler) handleClearCanvas(ctx context.Context, sess *session.Session, ev ClearCanvasEvent) {
	board, err := h.boards.GetByID(ctx, ev.BoardID)
	if err != nil || board == nil {
		log.Printf("[Router] Board %d not available for clear (err=%v), dropping", ev.BoardID, err)
		return
	}

	if err := h.strokes.DeleteByBoard(ctx, board.ID); err != nil {
		log.Printf("[Router] Clear failed for board %d: %v", board.ID, err)
		return
	}

	h.registry.Broadcast(board.ID, EventCanvasCleared, CanvasCleared{BoardID: board.ID}, sess.ID)
}
