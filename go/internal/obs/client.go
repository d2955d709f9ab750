package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Settings locate the obs-websocket server of the venue's mixing machine.
type Settings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password,omitempty"`
}

// URL returns the ws endpoint for the settings.
func (s Settings) URL() string {
	return fmt.Sprintf("ws://%s:%d", s.Host, s.Port)
}

// Reconnect backoff bounds. A drop retries after ~2s and backs off up to
// 30s between attempts, forever, until a connect succeeds or the bridge
// is closed.
const (
	reconnectInitial = 2 * time.Second
	reconnectMax     = 30 * time.Second
	requestTimeout   = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

// ErrNotConnected is returned by scene actions when the bridge is down and
// a lazy reconnect attempt failed as well.
var ErrNotConnected = errors.New("obs: not connected")

// Bridge is the scene-control capability over obs-websocket v5. It keeps
// one client connection, reconnects with exponential backoff after drops,
// and exposes the small surface the scoreboard core needs. Bridge failures
// never propagate beyond the immediate caller.
type Bridge struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	lastSettings *Settings
	pending      map[string]chan responseData
	reconnecting bool
	closed       bool
}

// NewBridge creates a disconnected bridge.
func NewBridge() *Bridge {
	return &Bridge{pending: make(map[string]chan responseData)}
}

// Connect dials the obs-websocket server and completes the Identify
// handshake. On failure the settings are remembered and background
// reconnection starts.
func (b *Bridge) Connect(ctx context.Context, settings Settings) error {
	b.mu.Lock()
	b.lastSettings = &settings
	b.mu.Unlock()

	if err := b.dial(ctx, settings); err != nil {
		log.Error().Err(err).Str("url", settings.URL()).Msg("obs connect failed")
		b.scheduleReconnect()
		return err
	}
	log.Info().Str("url", settings.URL()).Msg("connected to obs")
	return nil
}

// Disconnect closes the connection and stops reconnecting.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	b.closed = true
	conn := b.conn
	b.conn = nil
	b.connected = false
	b.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// IsConnected reports whether the bridge currently holds an identified
// connection.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// AdoptSettings records settings for lazy reconnection without dialing.
func (b *Bridge) AdoptSettings(settings Settings) {
	b.mu.Lock()
	b.lastSettings = &settings
	b.mu.Unlock()
}

// EnsureConnected lazily reconnects with the last-known settings when the
// bridge is down. Returns ErrNotConnected when no settings are known or
// the attempt fails.
func (b *Bridge) EnsureConnected(ctx context.Context) error {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return nil
	}
	settings := b.lastSettings
	b.mu.Unlock()

	if settings == nil {
		return ErrNotConnected
	}
	if err := b.dial(ctx, *settings); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// SwitchScene cuts the program output to the named scene.
func (b *Bridge) SwitchScene(ctx context.Context, name string) error {
	_, err := b.request(ctx, "SetCurrentProgramScene", map[string]any{"sceneName": name})
	return err
}

// SetSourceVisibility shows or hides a named source inside a scene.
func (b *Bridge) SetSourceVisibility(ctx context.Context, scene, source string, visible bool) error {
	id, err := b.sceneItemID(ctx, scene, source)
	if err != nil {
		return err
	}
	_, err = b.request(ctx, "SetSceneItemEnabled", map[string]any{
		"sceneName":        scene,
		"sceneItemId":      id,
		"sceneItemEnabled": visible,
	})
	if err == nil {
		return nil
	}
	// Older servers predate SetSceneItemEnabled.
	_, legacyErr := b.request(ctx, "SetSceneItemRender", map[string]any{
		"sceneName":   scene,
		"sceneItemId": id,
		"render":      visible,
	})
	if legacyErr != nil {
		return err
	}
	return nil
}

// ListScenes returns the scene names currently configured in the mixer.
func (b *Bridge) ListScenes(ctx context.Context) ([]string, error) {
	raw, err := b.request(ctx, "GetSceneList", nil)
	if err != nil {
		return nil, err
	}
	scenes := normalizeScenes(raw)
	names := make([]string, 0, len(scenes))
	for _, s := range scenes {
		names = append(names, s.Name)
	}
	return names, nil
}

// CurrentScene returns the current program scene name.
func (b *Bridge) CurrentScene(ctx context.Context) (string, error) {
	raw, err := b.request(ctx, "GetCurrentProgramScene", nil)
	if err != nil {
		return "", err
	}
	name := normalizeCurrentScene(raw)
	if name == "" {
		return "", fmt.Errorf("obs: no current scene in response")
	}
	return name, nil
}

// sceneItemID resolves a source name to its scene item id, preferring the
// direct lookup and falling back to scanning the item list.
func (b *Bridge) sceneItemID(ctx context.Context, scene, source string) (int, error) {
	raw, err := b.request(ctx, "GetSceneItemId", map[string]any{
		"sceneName":  scene,
		"sourceName": source,
	})
	if err == nil {
		var resp struct {
			SceneItemID int `json:"sceneItemId"`
		}
		if err := json.Unmarshal(raw, &resp); err == nil && resp.SceneItemID != 0 {
			return resp.SceneItemID, nil
		}
	}

	raw, err = b.request(ctx, "GetSceneItemList", map[string]any{"sceneName": scene})
	if err != nil {
		return 0, err
	}
	for _, item := range normalizeSceneItems(raw) {
		if item.Source == source {
			return item.ID, nil
		}
	}
	return 0, fmt.Errorf("obs: scene item %q not found in scene %q", source, scene)
}

// dial connects and completes the Hello/Identify handshake.
func (b *Bridge) dial(ctx context.Context, settings Settings) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, settings.URL(), nil)
	if err != nil {
		return fmt.Errorf("dial obs: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var hello envelope
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		conn.Close()
		return fmt.Errorf("unexpected opcode %d during handshake", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		conn.Close()
		return fmt.Errorf("decode hello: %w", err)
	}

	identify := identifyData{RPCVersion: rpcVersion}
	if hd.Authentication != nil {
		identify.Authentication = authResponse(settings.Password, hd.Authentication.Salt, hd.Authentication.Challenge)
	}
	idPayload, err := json.Marshal(identify)
	if err != nil {
		conn.Close()
		return fmt.Errorf("encode identify: %w", err)
	}
	if err := conn.WriteJSON(envelope{Op: opIdentify, D: idPayload}); err != nil {
		conn.Close()
		return fmt.Errorf("send identify: %w", err)
	}

	var identified envelope
	if err := conn.ReadJSON(&identified); err != nil {
		conn.Close()
		return fmt.Errorf("read identified: %w", err)
	}
	if identified.Op != opIdentified {
		conn.Close()
		return fmt.Errorf("identify rejected, opcode %d", identified.Op)
	}
	conn.SetReadDeadline(time.Time{})

	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.conn = conn
	b.connected = true
	b.closed = false
	b.mu.Unlock()

	go b.readLoop(conn)
	return nil
}

// readLoop dispatches request responses until the connection drops, then
// kicks off background reconnection.
func (b *Bridge) readLoop(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			break
		}
		if env.Op != opRequestResponse {
			// Events and other opcodes are not consumed by the bridge.
			continue
		}
		var resp responseData
		if err := json.Unmarshal(env.D, &resp); err != nil {
			continue
		}
		b.mu.Lock()
		ch, ok := b.pending[resp.RequestID]
		if ok {
			delete(b.pending, resp.RequestID)
		}
		b.mu.Unlock()
		if ok {
			ch <- resp
		}
	}

	b.mu.Lock()
	stale := b.conn == conn
	if stale {
		b.conn = nil
		b.connected = false
	}
	closed := b.closed
	b.mu.Unlock()

	if stale && !closed {
		log.Warn().Msg("obs connection lost")
		b.scheduleReconnect()
	}
}

// scheduleReconnect retries the last-known settings with exponential
// backoff, 2s doubling to a 30s cap, until a connect succeeds or the
// bridge is closed. Only one reconnect loop runs at a time, and a
// successful foreground Connect ends it at the next attempt.
func (b *Bridge) scheduleReconnect() {
	b.mu.Lock()
	if b.reconnecting || b.closed || b.lastSettings == nil {
		b.mu.Unlock()
		return
	}
	b.reconnecting = true
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			b.reconnecting = false
			b.mu.Unlock()
		}()

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = reconnectInitial
		bo.MaxInterval = reconnectMax
		bo.MaxElapsedTime = 0
		bo.Reset()

		for {
			wait := bo.NextBackOff()
			time.Sleep(wait)

			b.mu.Lock()
			if b.connected || b.closed || b.lastSettings == nil {
				b.mu.Unlock()
				return
			}
			settings := *b.lastSettings
			b.mu.Unlock()

			if err := b.dial(context.Background(), settings); err != nil {
				log.Debug().Err(err).Dur("next_wait", wait).Msg("obs reconnect attempt failed")
				continue
			}
			log.Info().Str("url", settings.URL()).Msg("obs reconnected")
			return
		}
	}()
}

// request issues one obs-websocket request and waits for its response.
func (b *Bridge) request(ctx context.Context, requestType string, data any) (json.RawMessage, error) {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := uuid.New().String()
	ch := make(chan responseData, 1)
	b.pending[id] = ch

	payload, err := json.Marshal(requestData{RequestType: requestType, RequestID: id, RequestData: data})
	if err != nil {
		delete(b.pending, id)
		b.mu.Unlock()
		return nil, fmt.Errorf("encode request: %w", err)
	}
	err = conn.WriteJSON(envelope{Op: opRequest, D: payload})
	if err != nil {
		delete(b.pending, id)
		b.mu.Unlock()
		return nil, fmt.Errorf("send request: %w", err)
	}
	b.mu.Unlock()

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		b.dropPending(id)
		return nil, ctx.Err()
	case <-timer.C:
		b.dropPending(id)
		return nil, fmt.Errorf("obs request %s timed out", requestType)
	case resp := <-ch:
		if !resp.RequestStatus.Result {
			return nil, fmt.Errorf("obs request %s failed: %s (code %d)",
				requestType, resp.RequestStatus.Comment, resp.RequestStatus.Code)
		}
		return resp.ResponseData, nil
	}
}

func (b *Bridge) dropPending(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}
