package handler

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/room"
	"whiteboard-backend/internal/session"
	"whiteboard-backend/internal/undo"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received(t *testing.T) []session.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	envs := make([]session.Envelope, 0, len(c.frames))
	for _, frame := range c.frames {
		var env session.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		envs = append(envs, env)
	}
	return envs
}

func (c *fakeConn) lastEvent(t *testing.T, event string) (session.Envelope, bool) {
	t.Helper()
	envs := c.received(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Event == event {
			return envs[i], true
		}
	}
	return session.Envelope{}, false
}

func (c *fakeConn) countEvent(t *testing.T, event string) int {
	t.Helper()
	n := 0
	for _, env := range c.received(t) {
		if env.Event == event {
			n++
		}
	}
	return n
}

// memStores is an in-memory stand-in for the repositories.
type memStores struct {
	mu      sync.Mutex
	users   map[string]*model.User // email -> user
	boards  map[int64]*model.Whiteboard
	access  map[int64]map[string]bool // board id -> user id -> allowed
	strokes map[int64]*model.Stroke
	nextID  int64
	clock   int64
}

func newMemStores() *memStores {
	return &memStores{
		users:   make(map[string]*model.User),
		boards:  make(map[int64]*model.Whiteboard),
		access:  make(map[int64]map[string]bool),
		strokes: make(map[int64]*model.Stroke),
	}
}

func (m *memStores) addUser(id, email, name string, isGuest bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[email] = &model.User{ID: id, Email: email, Name: name, IsGuest: isGuest}
}

func (m *memStores) addBoard(id int64, ownerID string, userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[id] = &model.Whiteboard{ID: id, Nickname: "board", OwnerID: ownerID}
	m.access[id] = map[string]bool{ownerID: true}
	for _, uid := range userIDs {
		m.access[id][uid] = true
	}
}

func (m *memStores) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[email], nil
}

func (m *memStores) GetByID(ctx context.Context, id int64) (*model.Whiteboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boards[id], nil
}

func (m *memStores) HasAccess(ctx context.Context, boardID int64, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access[boardID][userID], nil
}

func (m *memStores) Create(ctx context.Context, stroke *model.Stroke) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	stroke.ID = m.nextID
	if stroke.CreatedAt.IsZero() {
		m.clock++
		stroke.CreatedAt = time.Unix(0, m.clock*int64(time.Millisecond))
	}
	cp := *stroke
	m.strokes[stroke.ID] = &cp
	return nil
}

func (m *memStores) getStroke(id int64) (*model.Stroke, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.strokes[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStores) ListByBoard(ctx context.Context, boardID int64) ([]model.Stroke, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Stroke
	for _, s := range m.strokes {
		if s.WhiteboardID == boardID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStores) LatestByAuthor(ctx context.Context, boardID int64, userID string) (*model.Stroke, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.Stroke
	for _, s := range m.strokes {
		if s.WhiteboardID != boardID || s.UserID != userID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) ||
			(s.CreatedAt.Equal(latest.CreatedAt) && s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memStores) DeleteByID(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strokes, id)
	return nil
}

func (m *memStores) DeleteByBoard(ctx context.Context, boardID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.strokes {
		if s.WhiteboardID == boardID {
			delete(m.strokes, id)
		}
	}
	return nil
}

// strokeStoreAdapter disambiguates GetByID, which memStores already uses for
// boards.
type strokeStoreAdapter struct{ *memStores }

func (a strokeStoreAdapter) GetByID(ctx context.Context, id int64) (*model.Stroke, error) {
	return a.memStores.getStroke(id)
}

type nopGuestStore struct{}

func (nopGuestStore) DeleteGuestCascade(ctx context.Context, userID string) error { return nil }

type routerFixture struct {
	h      *BoardWSHandler
	stores *memStores
}

func newRouterFixture() *routerFixture {
	stores := newMemStores()
	return &routerFixture{
		h: NewBoardWSHandler(
			stores,
			stores,
			strokeStoreAdapter{stores},
			room.NewRegistry(),
			undo.NewLedger(),
			session.NewLifecycle(nopGuestStore{}),
			nil,
		),
		stores: stores,
	}
}

func (f *routerFixture) send(t *testing.T, sess *session.Session, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.h.dispatch(sess, session.Envelope{Event: event, Data: raw})
}

func (f *routerFixture) join(t *testing.T, boardID int64, email string) (*session.Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	sess := session.New(conn)
	f.send(t, sess, EventJoinBoard, JoinBoardEvent{BoardID: boardID, UserEmail: email})
	return sess, conn
}

func TestJoin_SendsOrderedSnapshotToCallerOnly(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addUser("u2", "b@e.com", "Bob", false)
	f.stores.addBoard(1, "u1", "u2")

	aliceSess, aliceConn := f.join(t, 1, "a@e.com")
	f.send(t, aliceSess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#111111", LineWidth: 1,
		Points: []model.Point{{X: 0, Y: 0}},
	})
	f.send(t, aliceSess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#222222", LineWidth: 1,
		Points: []model.Point{{X: 1, Y: 1}},
	})

	_, bobConn := f.join(t, 1, "b@e.com")

	env, ok := bobConn.lastEvent(t, EventInitialDrawing)
	require.True(t, ok)
	var snapshot InitialDrawing
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	require.Len(t, snapshot.Strokes, 2)
	assert.Equal(t, "#111111", snapshot.Strokes[0].Color)
	assert.Equal(t, "#222222", snapshot.Strokes[1].Color)

	// Alice got exactly her own join snapshot, not Bob's.
	assert.Equal(t, 1, aliceConn.countEvent(t, EventInitialDrawing))
	assert.Equal(t, 2, f.h.registry.Count(1))
}

func TestJoin_SilentlyDropsDeniedAndMissing(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addUser("u2", "b@e.com", "Bob", false)
	f.stores.addBoard(1, "u1")

	// Not on the access list.
	_, bobConn := f.join(t, 1, "b@e.com")
	assert.Empty(t, bobConn.received(t))
	assert.Equal(t, 0, f.h.registry.Count(1))

	// Missing board.
	_, conn := f.join(t, 42, "a@e.com")
	assert.Empty(t, conn.received(t))

	// Unknown user.
	_, conn = f.join(t, 1, "nobody@e.com")
	assert.Empty(t, conn.received(t))
}

func TestDrawStroke_BroadcastIncludesAuthorWithTempID(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addUser("u2", "b@e.com", "Bob", false)
	f.stores.addBoard(1, "u1", "u2")

	aliceSess, aliceConn := f.join(t, 1, "a@e.com")
	_, bobConn := f.join(t, 1, "b@e.com")

	f.send(t, aliceSess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#FF0000", LineWidth: 3,
		Points: []model.Point{{X: 1, Y: 2}}, TempID: "tmp-1",
	})

	env, ok := aliceConn.lastEvent(t, EventStrokeReceived)
	require.True(t, ok)
	var got StrokePayload
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "tmp-1", got.TempID)
	assert.NotZero(t, got.ID)
	assert.Equal(t, "u1", got.UserID)

	env, ok = bobConn.lastEvent(t, EventStrokeReceived)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "#FF0000", got.Color)
}

func TestUndo_RemovesOwnLatestStrokeOnly(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addUser("u2", "b@e.com", "Bob", false)
	f.stores.addBoard(1, "u1", "u2")

	aliceSess, _ := f.join(t, 1, "a@e.com")
	bobSess, bobConn := f.join(t, 1, "b@e.com")

	f.send(t, aliceSess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#111111", LineWidth: 1,
		Points: []model.Point{{X: 0, Y: 0}},
	})
	f.send(t, bobSess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "b@e.com", Color: "#222222", LineWidth: 1,
		Points: []model.Point{{X: 1, Y: 1}},
	})

	// Alice undoes: her stroke goes, Bob's most recent one stays.
	f.send(t, aliceSess, EventUndoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})

	env, ok := bobConn.lastEvent(t, EventStrokeRemoved)
	require.True(t, ok)
	var removed StrokeRemoved
	require.NoError(t, json.Unmarshal(env.Data, &removed))

	remaining, err := f.stores.ListByBoard(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "u2", remaining[0].UserID)
	assert.NotEqual(t, remaining[0].ID, removed.StrokeID)
}

func TestUndo_NothingToUndoIsSilent(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addBoard(1, "u1")

	sess, conn := f.join(t, 1, "a@e.com")
	before := len(conn.received(t))

	f.send(t, sess, EventUndoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})

	assert.Equal(t, before, len(conn.received(t)))
}

func TestUndoRedo_RoundTripKeepsPaintOrder(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addBoard(1, "u1")

	sess, conn := f.join(t, 1, "a@e.com")

	f.send(t, sess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#111111", LineWidth: 1,
		Points: []model.Point{{X: 0, Y: 0}},
	})
	f.send(t, sess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#222222", LineWidth: 1,
		Points: []model.Point{{X: 1, Y: 1}},
	})

	f.send(t, sess, EventUndoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})
	f.send(t, sess, EventRedoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})

	env, ok := conn.lastEvent(t, EventStrokeReceived)
	require.True(t, ok)
	var restored StrokePayload
	require.NoError(t, json.Unmarshal(env.Data, &restored))
	assert.Equal(t, "#222222", restored.Color)

	// Restored stroke keeps its place: second in paint order under a new id.
	strokes, err := f.stores.ListByBoard(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, strokes, 2)
	assert.Equal(t, "#111111", strokes[0].Color)
	assert.Equal(t, "#222222", strokes[1].Color)
	assert.Equal(t, restored.ID, strokes[1].ID)
}

func TestUndoUndoRedoRedo_LIFOChain(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addBoard(1, "u1")

	sess, _ := f.join(t, 1, "a@e.com")

	for _, color := range []string{"#010101", "#020202"} {
		f.send(t, sess, EventDrawStroke, DrawStrokeEvent{
			BoardID: 1, UserEmail: "a@e.com", Color: color, LineWidth: 1,
			Points: []model.Point{{X: 0, Y: 0}},
		})
	}

	f.send(t, sess, EventUndoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})
	f.send(t, sess, EventUndoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})

	strokes, _ := f.stores.ListByBoard(context.Background(), 1)
	assert.Empty(t, strokes)

	f.send(t, sess, EventRedoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})
	f.send(t, sess, EventRedoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})

	strokes, _ = f.stores.ListByBoard(context.Background(), 1)
	require.Len(t, strokes, 2)
	assert.Equal(t, "#010101", strokes[0].Color)
	assert.Equal(t, "#020202", strokes[1].Color)
}

func TestRedo_RestoresOntoOriginBoard(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addUser("u2", "b@e.com", "Bob", false)
	f.stores.addBoard(1, "u1", "u2")
	f.stores.addBoard(2, "u1")

	aliceSess, _ := f.join(t, 1, "a@e.com")
	_, bobConn := f.join(t, 1, "b@e.com")

	f.send(t, aliceSess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#111111", LineWidth: 1,
		Points: []model.Point{{X: 0, Y: 0}},
	})
	f.send(t, aliceSess, EventUndoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})

	// Alice moves to another board and redoes from there. The snapshot came
	// from board 1, so that is where the stroke reappears.
	f.send(t, aliceSess, EventJoinBoard, JoinBoardEvent{BoardID: 2, UserEmail: "a@e.com"})
	f.send(t, aliceSess, EventRedoRequest, UndoRedoEvent{BoardID: 2, UserEmail: "a@e.com"})

	strokes, err := f.stores.ListByBoard(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, strokes, 1)
	assert.Equal(t, "#111111", strokes[0].Color)

	strokes, err = f.stores.ListByBoard(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, strokes)

	// Bob, still on board 1, sees the restored stroke.
	env, ok := bobConn.lastEvent(t, EventStrokeReceived)
	require.True(t, ok)
	var restored StrokePayload
	require.NoError(t, json.Unmarshal(env.Data, &restored))
	assert.Equal(t, int64(1), restored.BoardID)
}

func TestDraw_ClearsRedoHistory(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addBoard(1, "u1")

	sess, conn := f.join(t, 1, "a@e.com")

	f.send(t, sess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#111111", LineWidth: 1,
		Points: []model.Point{{X: 0, Y: 0}},
	})
	f.send(t, sess, EventUndoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})

	// A new stroke after the undo invalidates the redo history.
	f.send(t, sess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#333333", LineWidth: 1,
		Points: []model.Point{{X: 2, Y: 2}},
	})
	before := conn.countEvent(t, EventStrokeReceived)

	f.send(t, sess, EventRedoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})

	assert.Equal(t, before, conn.countEvent(t, EventStrokeReceived))
	strokes, _ := f.stores.ListByBoard(context.Background(), 1)
	require.Len(t, strokes, 1)
	assert.Equal(t, "#333333", strokes[0].Color)
}

func TestErase_AnyMemberRemovesAnyStroke(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addUser("u2", "b@e.com", "Bob", false)
	f.stores.addBoard(1, "u1", "u2")

	aliceSess, aliceConn := f.join(t, 1, "a@e.com")
	bobSess, _ := f.join(t, 1, "b@e.com")

	f.send(t, aliceSess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#111111", LineWidth: 1,
		Points: []model.Point{{X: 0, Y: 0}},
	})
	strokes, _ := f.stores.ListByBoard(context.Background(), 1)
	require.Len(t, strokes, 1)

	// Bob erases Alice's stroke.
	f.send(t, bobSess, EventEraseStroke, EraseStrokeEvent{StrokeID: strokes[0].ID, BoardID: 1})

	env, ok := aliceConn.lastEvent(t, EventStrokeRemoved)
	require.True(t, ok)
	var removed StrokeRemoved
	require.NoError(t, json.Unmarshal(env.Data, &removed))
	assert.Equal(t, strokes[0].ID, removed.StrokeID)

	strokes, _ = f.stores.ListByBoard(context.Background(), 1)
	assert.Empty(t, strokes)
}

func TestErase_IsNotRedoable(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addBoard(1, "u1")

	sess, _ := f.join(t, 1, "a@e.com")
	f.send(t, sess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#111111", LineWidth: 1,
		Points: []model.Point{{X: 0, Y: 0}},
	})
	strokes, _ := f.stores.ListByBoard(context.Background(), 1)
	require.Len(t, strokes, 1)

	f.send(t, sess, EventEraseStroke, EraseStrokeEvent{StrokeID: strokes[0].ID, BoardID: 1})
	f.send(t, sess, EventRedoRequest, UndoRedoEvent{BoardID: 1, UserEmail: "a@e.com"})

	strokes, _ = f.stores.ListByBoard(context.Background(), 1)
	assert.Empty(t, strokes)
}

func TestClearCanvas_WipesBoardAndExcludesSender(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addUser("u2", "b@e.com", "Bob", false)
	f.stores.addBoard(1, "u1", "u2")
	f.stores.addBoard(2, "u1")

	aliceSess, aliceConn := f.join(t, 1, "a@e.com")
	_, bobConn := f.join(t, 1, "b@e.com")

	f.send(t, aliceSess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "#111111", LineWidth: 1,
		Points: []model.Point{{X: 0, Y: 0}},
	})

	// A stroke on another board survives the clear.
	other := model.Stroke{WhiteboardID: 2, UserID: "u1", Color: "#999999", LineWidth: 1}
	other.Points, _ = model.EncodePoints([]model.Point{{X: 5, Y: 5}})
	require.NoError(t, f.stores.Create(context.Background(), &other))

	f.send(t, aliceSess, EventClearCanvas, ClearCanvasEvent{BoardID: 1})

	assert.Equal(t, 0, aliceConn.countEvent(t, EventCanvasCleared))
	assert.Equal(t, 1, bobConn.countEvent(t, EventCanvasCleared))

	strokes, _ := f.stores.ListByBoard(context.Background(), 1)
	assert.Empty(t, strokes)
	strokes, _ = f.stores.ListByBoard(context.Background(), 2)
	assert.Len(t, strokes, 1)
}

func TestCursorMove_ExcludesSender(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addUser("u2", "b@e.com", "Bob", false)
	f.stores.addBoard(1, "u1", "u2")

	aliceSess, aliceConn := f.join(t, 1, "a@e.com")
	_, bobConn := f.join(t, 1, "b@e.com")

	f.send(t, aliceSess, EventCursorMove, CursorMoveEvent{
		BoardID: 1, UserEmail: "a@e.com", Position: model.Point{X: 10, Y: 20},
	})

	assert.Equal(t, 0, aliceConn.countEvent(t, EventCursorUpdate))

	env, ok := bobConn.lastEvent(t, EventCursorUpdate)
	require.True(t, ok)
	var update CursorUpdate
	require.NoError(t, json.Unmarshal(env.Data, &update))
	assert.Equal(t, "u1", update.UserID)
	assert.Equal(t, "Alice", update.UserName)
	assert.Equal(t, model.Point{X: 10, Y: 20}, update.Position)
}

func TestDrawingInProgress_RelayedVerbatimNotPersisted(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addUser("u2", "b@e.com", "Bob", false)
	f.stores.addBoard(1, "u1", "u2")

	aliceSess, aliceConn := f.join(t, 1, "a@e.com")
	_, bobConn := f.join(t, 1, "b@e.com")

	f.send(t, aliceSess, EventDrawingInProgress, map[string]any{
		"board_id": 1, "partial": []float64{1, 2, 3},
	})

	env, ok := bobConn.lastEvent(t, EventDrawingInProgress)
	require.True(t, ok)
	var relayed map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &relayed))
	assert.Contains(t, relayed, "partial")

	assert.Equal(t, 0, aliceConn.countEvent(t, EventDrawingInProgress))
	strokes, _ := f.stores.ListByBoard(context.Background(), 1)
	assert.Empty(t, strokes)
}

func TestDispatch_DropsMalformedAndUnknown(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addBoard(1, "u1")

	sess, conn := f.join(t, 1, "a@e.com")
	before := len(conn.received(t))

	f.h.dispatch(sess, session.Envelope{Event: "no_such_event", Data: []byte(`{}`)})
	f.h.dispatch(sess, session.Envelope{Event: EventDrawStroke, Data: []byte(`not json`)})
	f.send(t, sess, EventDrawStroke, DrawStrokeEvent{
		BoardID: 1, UserEmail: "a@e.com", Color: "purple", LineWidth: 1,
		Points: []model.Point{{X: 0, Y: 0}},
	})

	assert.Equal(t, before, len(conn.received(t)))
	strokes, _ := f.stores.ListByBoard(context.Background(), 1)
	assert.Empty(t, strokes)
}

func TestRejoin_MovesSessionBetweenRooms(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addBoard(1, "u1")
	f.stores.addBoard(2, "u1")

	sess, _ := f.join(t, 1, "a@e.com")
	assert.Equal(t, 1, f.h.registry.Count(1))

	f.send(t, sess, EventJoinBoard, JoinBoardEvent{BoardID: 2, UserEmail: "a@e.com"})

	assert.Equal(t, 0, f.h.registry.Count(1))
	assert.Equal(t, 1, f.h.registry.Count(2))
	assert.Equal(t, int64(2), sess.BoardID())
}

func TestDisconnect_LeavesRoomAndClosesConn(t *testing.T) {
	f := newRouterFixture()
	f.stores.addUser("u1", "a@e.com", "Alice", false)
	f.stores.addBoard(1, "u1")

	sess, conn := f.join(t, 1, "a@e.com")
	require.Equal(t, 1, f.h.registry.Count(1))

	f.h.disconnect(sess)

	assert.Equal(t, 0, f.h.registry.Count(1))
	assert.True(t, conn.closed)
	assert.True(t, sess.IsClosed())
}
