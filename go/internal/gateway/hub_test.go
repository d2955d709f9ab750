package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marazzai/scoreboard/go/internal/command"
	"github.com/marazzai/scoreboard/go/internal/match"
)

type tapRecorder struct {
	mu   sync.Mutex
	cmds []command.Command
}

func (tp *tapRecorder) PublishCommand(cmd command.Command) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.cmds = append(tp.cmds, cmd)
}

func (tp *tapRecorder) count() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.cmds)
}

func newTestHub(t *testing.T) (*Hub, *match.Store) {
	t.Helper()
	store := match.NewStore()
	router := command.NewRouter(store)
	return NewHub(store, router, DefaultConnectionConfig()), store
}

// fakeSession registers an in-memory peer without a real socket. Tests
// using it must stay off the slow-peer eviction path, which touches Conn.
func fakeSession(h *Hub) *Session {
	sess := &Session{
		ID:   "test-session",
		Send: make(chan []byte, 64),
		hub:  h,
		done: make(chan struct{}),
	}
	h.register(sess)
	return sess
}

func recv(t *testing.T, sess *Session) Envelope {
	t.Helper()
	select {
	case data := <-sess.Send:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return Envelope{}
	}
}

func assertSilent(t *testing.T, sess *Session) {
	t.Helper()
	select {
	case data := <-sess.Send:
		t.Fatalf("unexpected frame: %s", data)
	default:
	}
}

func TestDisplayJoinGetsImmediateResync(t *testing.T) {
	h, store := newTestHub(t)
	store.Merge(match.Partial{HomeGoals: intPtr(3)})
	// Drain the broadcast the merge queued; this test is about the direct
	// push on join, not the fan-out path.
	for len(h.broadcastCh) > 0 {
		<-h.broadcastCh
	}

	sess := fakeSession(h)
	h.join(sess, RoomDisplays)

	env := recv(t, sess)
	assert.Equal(t, EventUpdate, env.Event)
	var s match.State
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, 3, s.HomeGoals)
}

func TestControllerJoinGetsNoResync(t *testing.T) {
	h, _ := newTestHub(t)
	sess := fakeSession(h)

	h.join(sess, RoomControllers)

	assertSilent(t, sess)
}

func TestStateBroadcastReachesEveryRoom(t *testing.T) {
	h, store := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	controller := fakeSession(h)
	h.join(controller, RoomControllers)
	display := fakeSession(h)
	h.join(display, RoomDisplays)
	<-display.Send // discard the join resync

	store.Merge(match.Partial{AwayGoals: intPtr(1)})

	for _, sess := range []*Session{controller, display} {
		env := recv(t, sess)
		assert.Equal(t, EventUpdate, env.Event)
		var s match.State
		require.NoError(t, json.Unmarshal(env.Data, &s))
		assert.Equal(t, 1, s.AwayGoals)
	}
}

func TestCommandGoesToDisplaysOnly(t *testing.T) {
	h, _ := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	controller := fakeSession(h)
	h.join(controller, RoomControllers)
	display := fakeSession(h)
	h.join(display, RoomDisplays)
	<-display.Send

	h.BroadcastCommand(command.Command{Cmd: command.CmdSiren})

	env := recv(t, display)
	assert.Equal(t, EventCmd, env.Event)
	var cmd command.Command
	require.NoError(t, json.Unmarshal(env.Data, &cmd))
	assert.Equal(t, command.CmdSiren, cmd.Cmd)

	assertSilent(t, controller)
}

func TestCommandTapMirrorsBroadcasts(t *testing.T) {
	h, _ := newTestHub(t)
	tap := &tapRecorder{}
	h.SetCommandTap(tap)

	h.BroadcastCommand(command.Command{Cmd: command.CmdSiren})

	assert.Equal(t, 1, tap.count())
}

func TestInboundUpdateMergesIntoStore(t *testing.T) {
	h, store := newTestHub(t)
	sess := fakeSession(h)

	h.handleInbound(sess, []byte(`{"event":"scoreboard:update","data":{"homeGoals":4,"timerRunning":true}}`))

	got := store.Get()
	assert.Equal(t, 4, got.HomeGoals)
	assert.True(t, got.TimerRunning)
	assert.Equal(t, match.DefaultTimeSeconds, got.TimeSeconds, "untouched fields survive the merge")
}

func TestInboundCommandRelaysAndApplies(t *testing.T) {
	h, store := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	display := fakeSession(h)
	h.join(display, RoomDisplays)
	<-display.Send

	sender := fakeSession(h)
	h.handleInbound(sender, []byte(`{"event":"scoreboard:cmd","data":{"cmd":"setClock","payload":{"secs":300}}}`))

	assert.Equal(t, 300, store.Get().TimeSeconds)

	// The display sees the raw command relay and then the merged snapshot.
	env := recv(t, display)
	assert.Equal(t, EventCmd, env.Event)
	env = recv(t, display)
	assert.Equal(t, EventUpdate, env.Event)
}

func TestInboundGarbageIsDropped(t *testing.T) {
	h, store := newTestHub(t)
	sess := fakeSession(h)

	before := store.Get()
	h.handleInbound(sess, []byte(`not json`))
	h.handleInbound(sess, []byte(`{"event":"made:up","data":{}}`))
	h.handleInbound(sess, []byte(`{"event":"scoreboard:update","data":"nope"}`))

	assert.Equal(t, before, store.Get())
	assertSilent(t, sess)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h, _ := newTestHub(t)
	sess := fakeSession(h)
	h.join(sess, RoomControllers)

	h.unregister(sess)
	h.unregister(sess)

	stats := h.GetStats()
	assert.Zero(t, stats.TotalSessions)
	assert.Empty(t, stats.Rooms)
	select {
	case <-sess.done:
	default:
		t.Fatal("done not closed on unregister")
	}
}

func TestGetStatsCountsRooms(t *testing.T) {
	h, _ := newTestHub(t)
	a := fakeSession(h)
	h.join(a, RoomControllers)
	b := fakeSession(h)
	h.join(b, RoomDisplays)
	<-b.Send
	c := fakeSession(h)
	h.join(c, RoomDisplays)
	<-c.Send

	stats := h.GetStats()
	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, map[string]int{RoomControllers: 1, RoomDisplays: 2}, stats.Rooms)
}

func TestWebSocketEndToEnd(t *testing.T) {
	h, store := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.Upgrade(w, r); err != nil {
			t.Errorf("upgrade: %v", err)
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"join","data":{"room":"displays"}}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, EventUpdate, env.Event, "display gets a resync right after joining")

	store.Merge(match.Partial{HomeGoals: intPtr(2)})
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	var s match.State
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, 2, s.HomeGoals)
}

func intPtr(v int) *int { return &v }
