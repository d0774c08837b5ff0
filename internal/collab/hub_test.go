package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"inkboard/internal/models"
	"inkboard/internal/rpc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errNoBoard = errors.New("no such board")

type memoryBoards struct {
	mu       sync.Mutex
	scenes   map[string]models.Scene
	versions map[string]int64
	saves    int
}

func newMemoryBoards(ids ...string) *memoryBoards {
	b := &memoryBoards{scenes: map[string]models.Scene{}, versions: map[string]int64{}}
	for _, id := range ids {
		b.scenes[id] = models.EmptyScene()
		b.versions[id] = 1
	}
	return b
}

func (b *memoryBoards) Authorize(_ context.Context, _ *models.User, boardID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.scenes[boardID]; !ok {
		return errNoBoard
	}
	return nil
}

func (b *memoryBoards) LoadScene(_ context.Context, boardID string) (models.Scene, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	scene, ok := b.scenes[boardID]
	if !ok {
		return models.Scene{}, 0, errNoBoard
	}
	return scene, b.versions[boardID], nil
}

func (b *memoryBoards) PersistScene(_ context.Context, boardID string, scene models.Scene, expectedVersion int64) (int64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.scenes[boardID]; !ok {
		return 0, false, errNoBoard
	}
	if b.versions[boardID] != expectedVersion {
		return b.versions[boardID], false, nil
	}
	b.scenes[boardID] = scene
	b.versions[boardID]++
	b.saves++
	return b.versions[boardID], true, nil
}

// saveOutside stores scene the way a REST save does and returns the new version.
func (b *memoryBoards) saveOutside(boardID string, scene models.Scene) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scenes[boardID] = scene
	b.versions[boardID]++
	return b.versions[boardID]
}

func (b *memoryBoards) saved(boardID string) (models.Scene, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scenes[boardID], b.saves
}

type testHub struct {
	hub    *Hub
	boards *memoryBoards
	url    string
}

func startHub(t *testing.T, opts Options, boards *memoryBoards) *testHub {
	t.Helper()
	opts.Boards = boards
	hub, err := NewHub(opts)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("user")
		user := &models.User{ID: "au-" + name, Username: name}
		_ = hub.Upgrade(w, r, r.URL.Query().Get("board"), user)
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, hub.Close(ctx))
		srv.Close()
	})
	return &testHub{hub: hub, boards: boards, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (h *testHub) dial(t *testing.T, boardID, user string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.url+"/?board="+boardID+"&user="+user, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) Envelope {
	t.Helper()
	for {
		env := readEnvelope(t, conn)
		if env.Type == msgType {
			return env
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg, err := encodeMessage(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))
}

func sceneElements(t *testing.T, env Envelope) []models.Element {
	t.Helper()
	var payload ScenePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	return payload.Elements
}

func hangUp(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
}

func TestJoinReceivesInitRoom(t *testing.T) {
	boards := newMemoryBoards("bd-1")
	boards.scenes["bd-1"] = models.Scene{Elements: []models.Element{el(t, "seed", 1, 1, false)}}
	th := startHub(t, Options{}, boards)

	a := th.dial(t, "bd-1", "ada")
	env := readEnvelope(t, a)
	require.Equal(t, MsgInitRoom, env.Type)
	var init InitRoomPayload
	require.NoError(t, json.Unmarshal(env.Payload, &init))
	assert.NotEmpty(t, init.SocketID)
	require.Len(t, init.Elements, 1)
	assert.Equal(t, "seed", init.Elements[0].ID)
	require.Len(t, init.Collaborators, 1)
	assert.Equal(t, "ada", init.Collaborators[init.SocketID].Username)
	assert.Equal(t, models.IdleActive, init.Collaborators[init.SocketID].IdleState)

	b := th.dial(t, "bd-1", "bob")
	readUntil(t, b, MsgInitRoom)
	collab := readUntil(t, a, MsgCollaborators)
	var presence CollaboratorsPayload
	require.NoError(t, json.Unmarshal(collab.Payload, &presence))
	assert.Len(t, presence.Collaborators, 2)
}

func TestClientsSeeAcceptedUpdatesOnly(t *testing.T) {
	th := startHub(t, Options{PersistDebounce: time.Hour}, newMemoryBoards("bd-1"))

	a := th.dial(t, "bd-1", "ada")
	readUntil(t, a, MsgInitRoom)
	b := th.dial(t, "bd-1", "bob")
	readUntil(t, b, MsgInitRoom)

	send(t, a, MsgSceneUpdate, ScenePayload{Elements: []models.Element{el(t, "x", 2, 10, false)}})
	got := sceneElements(t, readUntil(t, b, MsgSceneUpdate))
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].ID)
	assert.Equal(t, int64(2), got[0].Version)

	// Stale version of x is dropped; only y reaches bob.
	send(t, a, MsgSceneUpdate, ScenePayload{Elements: []models.Element{el(t, "x", 1, 1, false)}})
	send(t, a, MsgSceneUpdate, ScenePayload{Elements: []models.Element{el(t, "y", 1, 1, false)}})
	got = sceneElements(t, readUntil(t, b, MsgSceneUpdate))
	require.Len(t, got, 1)
	assert.Equal(t, "y", got[0].ID)

	// Nonce tie-break from bob's side.
	send(t, b, MsgSceneUpdate, ScenePayload{Elements: []models.Element{el(t, "x", 2, 3, false)}})
	got = sceneElements(t, readUntil(t, a, MsgSceneUpdate))
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].VersionNonce)

	info := th.hub.RoomInfo("bd-1")
	assert.Equal(t, 2, info.ElementCount)
	assert.Len(t, info.Collaborators, 2)
}

func TestPointerAndIdleStatus(t *testing.T) {
	th := startHub(t, Options{}, newMemoryBoards("bd-1"))

	a := th.dial(t, "bd-1", "ada")
	initEnv := readUntil(t, a, MsgInitRoom)
	var init InitRoomPayload
	require.NoError(t, json.Unmarshal(initEnv.Payload, &init))
	b := th.dial(t, "bd-1", "bob")
	readUntil(t, b, MsgInitRoom)

	send(t, a, MsgPointerUpdate, PointerPayload{Pointer: Pointer{X: 4, Y: 2}, Button: "down"})
	env := readUntil(t, b, MsgPointerUpdate)
	var pointer PointerPayload
	require.NoError(t, json.Unmarshal(env.Payload, &pointer))
	assert.Equal(t, init.SocketID, pointer.SocketID)
	assert.Equal(t, "ada", pointer.Username)
	assert.Equal(t, 4.0, pointer.Pointer.X)

	send(t, b, MsgIdleStatus, IdlePayload{State: models.IdleAway})
	for {
		env := readUntil(t, a, MsgCollaborators)
		var presence CollaboratorsPayload
		require.NoError(t, json.Unmarshal(env.Payload, &presence))
		away := false
		for _, c := range presence.Collaborators {
			if c.Username == "bob" && c.IdleState == models.IdleAway {
				away = true
			}
		}
		if away {
			break
		}
	}

	send(t, b, MsgIdleStatus, IdlePayload{State: "sleeping"})
	errEnv := readUntil(t, b, MsgError)
	assert.Contains(t, string(errEnv.Payload), "invalid idle status")

	send(t, b, "bogus", nil)
	errEnv = readUntil(t, b, MsgError)
	assert.Contains(t, string(errEnv.Payload), "unknown message type")
}

func TestDebouncedPersist(t *testing.T) {
	th := startHub(t, Options{PersistDebounce: 20 * time.Millisecond}, newMemoryBoards("bd-1"))

	a := th.dial(t, "bd-1", "ada")
	readUntil(t, a, MsgInitRoom)
	send(t, a, MsgSceneUpdate, ScenePayload{Elements: []models.Element{el(t, "x", 1, 1, false)}})

	require.Eventually(t, func() bool {
		scene, saves := th.boards.saved("bd-1")
		return saves >= 1 && len(scene.Elements) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLastLeaveFlushesAndClosesRoom(t *testing.T) {
	th := startHub(t, Options{PersistDebounce: time.Hour}, newMemoryBoards("bd-1"))

	a := th.dial(t, "bd-1", "ada")
	readUntil(t, a, MsgInitRoom)
	send(t, a, MsgSceneUpdate, ScenePayload{Elements: []models.Element{el(t, "x", 1, 1, false)}})
	require.Eventually(t, func() bool { return th.hub.RoomInfo("bd-1").ElementCount == 1 }, 5*time.Second, 10*time.Millisecond)

	hangUp(t, a)

	require.Eventually(t, func() bool {
		scene, _ := th.boards.saved("bd-1")
		return len(scene.Elements) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(th.hub.RoomInfo("bd-1").Collaborators) == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, th.hub.RoomInfo("bd-1").ElementCount)
}

func TestCloseFlushesDirtyRooms(t *testing.T) {
	th := startHub(t, Options{PersistDebounce: time.Hour}, newMemoryBoards("bd-1"))

	a := th.dial(t, "bd-1", "ada")
	readUntil(t, a, MsgInitRoom)
	send(t, a, MsgSceneUpdate, ScenePayload{Elements: []models.Element{el(t, "x", 1, 1, false)}})
	require.Eventually(t, func() bool { return th.hub.RoomInfo("bd-1").ElementCount == 1 }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, th.hub.Close(ctx))

	scene, saves := th.boards.saved("bd-1")
	assert.Equal(t, 1, saves)
	assert.Len(t, scene.Elements, 1)

	require.NoError(t, a.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := a.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
			break
		}
	}
}

func TestMessageTooBigClosesSocket(t *testing.T) {
	th := startHub(t, Options{MaxMessageBytes: 256}, newMemoryBoards("bd-1"))

	a := th.dial(t, "bd-1", "ada")
	readUntil(t, a, MsgInitRoom)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 1024))))

	require.NoError(t, a.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := a.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseMessageTooBig), "unexpected error: %v", err)
			break
		}
	}
}

func TestSceneReplacedAndBoardDeleted(t *testing.T) {
	th := startHub(t, Options{PersistDebounce: time.Hour}, newMemoryBoards("bd-1"))

	a := th.dial(t, "bd-1", "ada")
	readUntil(t, a, MsgInitRoom)

	replacement := models.Scene{Elements: []models.Element{el(t, "ext", 5, 1, false)}}
	th.hub.SceneReplaced("bd-1", replacement, th.boards.saveOutside("bd-1", replacement))
	var initPayload InitRoomPayload
	require.NoError(t, json.Unmarshal(readUntil(t, a, MsgInitRoom).Payload, &initPayload))
	require.Len(t, initPayload.Elements, 1)
	assert.Equal(t, "ext", initPayload.Elements[0].ID)

	th.hub.BoardDeleted("bd-1")
	require.NoError(t, a.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := a.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
			break
		}
	}
	_, saves := th.boards.saved("bd-1")
	assert.Equal(t, 0, saves)
}

func TestOutsideSaveDiscardsPendingRoomEdits(t *testing.T) {
	th := startHub(t, Options{PersistDebounce: time.Hour}, newMemoryBoards("bd-1"))

	a := th.dial(t, "bd-1", "ada")
	readUntil(t, a, MsgInitRoom)
	send(t, a, MsgSceneUpdate, ScenePayload{Elements: []models.Element{el(t, "a", 2, 5, false)}})
	require.Eventually(t, func() bool { return th.hub.RoomInfo("bd-1").ElementCount == 1 }, 5*time.Second, 10*time.Millisecond)

	empty := models.EmptyScene()
	th.hub.SceneReplaced("bd-1", empty, th.boards.saveOutside("bd-1", empty))
	var initPayload InitRoomPayload
	require.NoError(t, json.Unmarshal(readUntil(t, a, MsgInitRoom).Payload, &initPayload))
	assert.Empty(t, initPayload.Elements)
	assert.Equal(t, 0, th.hub.RoomInfo("bd-1").ElementCount)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, th.hub.Close(ctx))

	scene, saves := th.boards.saved("bd-1")
	assert.Empty(t, scene.Elements)
	assert.Equal(t, 0, saves)
}

func TestStaleFlushDoesNotOverwriteOutsideSave(t *testing.T) {
	th := startHub(t, Options{PersistDebounce: time.Hour}, newMemoryBoards("bd-1"))

	a := th.dial(t, "bd-1", "ada")
	readUntil(t, a, MsgInitRoom)
	send(t, a, MsgSceneUpdate, ScenePayload{Elements: []models.Element{el(t, "a", 2, 5, false)}})
	require.Eventually(t, func() bool { return th.hub.RoomInfo("bd-1").ElementCount == 1 }, 5*time.Second, 10*time.Millisecond)

	// The board moves on without the room hearing about it.
	outside := models.Scene{Elements: []models.Element{el(t, "b", 1, 1, false)}}
	th.boards.saveOutside("bd-1", outside)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, th.hub.Close(ctx))

	scene, saves := th.boards.saved("bd-1")
	assert.Equal(t, 0, saves)
	require.Len(t, scene.Elements, 1)
	assert.Equal(t, "b", scene.Elements[0].ID)
}

func TestUnknownBoardRejected(t *testing.T) {
	th := startHub(t, Options{}, newMemoryBoards())

	a := th.dial(t, "bd-missing", "ada")
	require.NoError(t, a.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := a.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "unexpected error: %v", err)
}

func TestEnqueueReportsFullBuffer(t *testing.T) {
	hub, err := NewHub(Options{Boards: newMemoryBoards(), ClientBuffer: 1})
	require.NoError(t, err)
	c := newClient(hub, nil, &models.User{ID: "au-1"})

	assert.True(t, c.enqueue([]byte("one")))
	assert.False(t, c.enqueue([]byte("two")))

	c.closeWith(websocket.CloseNormalClosure, "")
	assert.True(t, c.closing())
	assert.False(t, c.enqueue([]byte("three")))
}

func drainQueued(c *client) []Envelope {
	var out []Envelope
	for {
		select {
		case msg := <-c.send:
			var env Envelope
			if err := json.Unmarshal(msg, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func TestSlowCollaboratorIsDropped(t *testing.T) {
	hub, err := NewHub(Options{Boards: newMemoryBoards("bd-1"), ClientBuffer: 1, PersistDebounce: time.Hour})
	require.NoError(t, err)
	r := newRoom(hub, "bd-1", models.EmptyScene(), 1)
	t.Cleanup(func() { r.shutdown(websocket.CloseNormalClosure, "", false) })

	sender := newClient(hub, nil, &models.User{ID: "au-ada", Username: "ada"})
	fast := newClient(hub, nil, &models.User{ID: "au-bob", Username: "bob"})
	slow := newClient(hub, nil, &models.User{ID: "au-cy", Username: "cy"})

	r.add(sender)
	drainQueued(sender)
	r.add(fast)
	drainQueued(fast)
	drainQueued(sender)
	// slow never reads, so its init-room fills the buffer.
	r.add(slow)
	drainQueued(fast)
	drainQueued(sender)
	require.False(t, slow.closing())

	r.applyElements(sender, []models.Element{el(t, "x", 1, 1, false)})

	require.True(t, slow.closing())
	assert.Equal(t, websocket.CloseTryAgainLater, slow.closeCode)
	got := drainQueued(fast)
	require.Len(t, got, 1)
	assert.Equal(t, MsgSceneUpdate, got[0].Type)

	r.applyElements(sender, []models.Element{el(t, "x", 2, 1, false)})
	got = drainQueued(fast)
	require.Len(t, got, 1)
	assert.Equal(t, MsgSceneUpdate, got[0].Type)
	assert.False(t, fast.closing())
}

func TestRoomInfoMethod(t *testing.T) {
	th := startHub(t, Options{}, newMemoryBoards("bd-1"))
	method := th.hub.Methods()["roomInfo"]
	user := &models.User{ID: "au-ada", Username: "ada"}

	_, err := method(context.Background(), rpc.Call{Params: json.RawMessage(`{"boardId":"bd-1"}`)})
	assert.ErrorIs(t, err, rpc.ErrLoginRequired)

	_, err = method(context.Background(), rpc.Call{User: user, Params: json.RawMessage(`{"boardId":"bd-x"}`)})
	assert.ErrorIs(t, err, errNoBoard)

	result, err := method(context.Background(), rpc.Call{User: user, Params: json.RawMessage(`{"boardId":"bd-1"}`)})
	require.NoError(t, err)
	info := result.(RoomInfo)
	assert.Equal(t, "bd-1", info.BoardID)
	assert.Empty(t, info.Collaborators)
}
