package handler

import (
	"errors"
	"regexp"

	"whiteboard-backend/internal/model"
)

// Inbound event names.
const (
	EventJoinBoard         = "join_board"
	EventDrawStroke        = "draw_stroke_event"
	EventDrawingInProgress = "drawing_in_progress"
	EventCursorMove        = "cursor_move"
	EventUndoRequest       = "undo_request"
	EventRedoRequest       = "redo_request"
	EventEraseStroke       = "erase_stroke"
	EventClearCanvas       = "clear_canvas_event"
)

// Outbound event names.
const (
	EventConnectionEstablished = "connection_established"
	EventInitialDrawing        = "initial_drawing"
	EventStrokeReceived        = "stroke_received"
	EventStrokeRemoved         = "stroke_removed"
	EventCursorUpdate          = "cursor_update"
	EventCanvasCleared         = "canvas_cleared"
)

var errInvalidEvent = errors.New("invalid event payload")

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// JoinBoardEvent asks to enter a board's room.
type JoinBoardEvent struct {
	BoardID   int64  `json:"board_id"`
	UserEmail string `json:"user_email"`
}

func (e *JoinBoardEvent) Validate() error {
	if e.BoardID <= 0 || e.UserEmail == "" {
		return errInvalidEvent
	}
	return nil
}

// DrawStrokeEvent carries one completed stroke. TempID is the client's
// provisional id, echoed back so the author can reconcile its local copy
// with the server-assigned id.
type DrawStrokeEvent struct {
	BoardID   int64         `json:"board_id"`
	UserEmail string        `json:"user_email"`
	Color     string        `json:"color"`
	LineWidth float64       `json:"lineWidth"`
	Points    []model.Point `json:"points"`
	TempID    string        `json:"temp_id,omitempty"`
}

func (e *DrawStrokeEvent) Validate() error {
	if e.BoardID <= 0 || e.UserEmail == "" || len(e.Points) == 0 {
		return errInvalidEvent
	}
	if e.LineWidth <= 0 || !hexColorRe.MatchString(e.Color) {
		return errInvalidEvent
	}
	return nil
}

// DrawingInProgressEvent is an ephemeral live preview. Only board_id is
// inspected; the rest of the payload is relayed verbatim and never stored.
type DrawingInProgressEvent struct {
	BoardID int64 `json:"board_id"`
}

func (e *DrawingInProgressEvent) Validate() error {
	if e.BoardID <= 0 {
		return errInvalidEvent
	}
	return nil
}

// CursorMoveEvent reports a pointer position.
type CursorMoveEvent struct {
	BoardID   int64       `json:"board_id"`
	UserEmail string      `json:"user_email"`
	Position  model.Point `json:"position"`
}

func (e *CursorMoveEvent) Validate() error {
	if e.BoardID <= 0 || e.UserEmail == "" {
		return errInvalidEvent
	}
	return nil
}

// UndoRedoEvent targets the caller's stroke history on one board.
type UndoRedoEvent struct {
	BoardID   int64  `json:"board_id"`
	UserEmail string `json:"user_email"`
}

func (e *UndoRedoEvent) Validate() error {
	if e.BoardID <= 0 || e.UserEmail == "" {
		return errInvalidEvent
	}
	return nil
}

// EraseStrokeEvent deletes a stroke by id. Any room member may erase any
// stroke (eraser tool); only undo is per-author.
type EraseStrokeEvent struct {
	StrokeID int64 `json:"stroke_id"`
	BoardID  int64 `json:"board_id"`
}

func (e *EraseStrokeEvent) Validate() error {
	if e.StrokeID <= 0 || e.BoardID <= 0 {
		return errInvalidEvent
	}
	return nil
}

// ClearCanvasEvent wipes a board.
type ClearCanvasEvent struct {
	BoardID int64 `json:"board_id"`
}

func (e *ClearCanvasEvent) Validate() error {
	if e.BoardID <= 0 {
		return errInvalidEvent
	}
	return nil
}

// ConnectionEstablished is sent once per connection.
type ConnectionEstablished struct {
	Message string `json:"message"`
	SID     string `json:"sid"`
}

// StrokePayload is the wire form of a persisted stroke.
type StrokePayload struct {
	ID        int64         `json:"id"`
	BoardID   int64         `json:"board_id"`
	UserID    string        `json:"user_id"`
	Color     string        `json:"color"`
	LineWidth float64       `json:"lineWidth"`
	Points    []model.Point `json:"points"`
	TempID    string        `json:"temp_id,omitempty"`
}

// InitialDrawing is the full ordered snapshot sent to a joining client.
type InitialDrawing struct {
	Strokes []StrokePayload `json:"strokes"`
}

// StrokeRemoved announces a deleted stroke.
type StrokeRemoved struct {
	StrokeID int64 `json:"stroke_id"`
	BoardID  int64 `json:"board_id"`
}

// CursorUpdate relays another member's pointer.
type CursorUpdate struct {
	UserID   string      `json:"user_id"`
	UserName string      `json:"user_name"`
	Position model.Point `json:"position"`
}

// CanvasCleared announces a wiped board.
type CanvasCleared struct {
	BoardID int64 `json:"board_id"`
}

// strokePayload converts a stored stroke for the wire. Returns false when
// the stored path cannot be decoded.
func strokePayload(s *model.Stroke, tempID string) (StrokePayload, bool) {
	points, err := s.DecodePoints()
	if err != nil {
		return StrokePayload{}, false
	}
	return StrokePayload{
		ID:        s.ID,
		BoardID:   s.WhiteboardID,
		UserID:    s.UserID,
		Color:     s.Color,
		LineWidth: s.LineWidth,
		Points:    points,
		TempID:    tempID,
	}, true
}
