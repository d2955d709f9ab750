package obs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
)

// obs-websocket v5 opcodes used by the bridge.
const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opRequest         = 6
	opRequestResponse = 7
)

const rpcVersion = 1

// envelope is the outer frame of every obs-websocket message.
type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	ObsWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type identifyData struct {
	RPCVersion     int    `json:"rpcVersion"`
	Authentication string `json:"authentication,omitempty"`
}

type requestData struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type responseData struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData"`
}

// authResponse derives the Identify authentication string:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secretSum := sha256.Sum256([]byte(password + salt))
	secret := base64.StdEncoding.EncodeToString(secretSum[:])
	authSum := sha256.Sum256([]byte(secret + challenge))
	return base64.StdEncoding.EncodeToString(authSum[:])
}

// Scene is the canonical scene record. obs-websocket responses have
// carried the name under different keys across versions; everything the
// bridge returns goes through normalization so callers never branch on
// field names.
type Scene struct {
	Name string
}

// SceneItem is the canonical scene item record.
type SceneItem struct {
	ID      int
	Source  string
	Enabled bool
}

// normalizeScenes flattens a GetSceneList response into canonical records.
func normalizeScenes(raw json.RawMessage) []Scene {
	var resp struct {
		Scenes []map[string]json.RawMessage `json:"scenes"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	out := make([]Scene, 0, len(resp.Scenes))
	for _, s := range resp.Scenes {
		if name := firstString(s, "sceneName", "name"); name != "" {
			out = append(out, Scene{Name: name})
		}
	}
	return out
}

// normalizeSceneItems flattens a GetSceneItemList response.
func normalizeSceneItems(raw json.RawMessage) []SceneItem {
	var resp struct {
		SceneItems []map[string]json.RawMessage `json:"sceneItems"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	out := make([]SceneItem, 0, len(resp.SceneItems))
	for _, it := range resp.SceneItems {
		item := SceneItem{
			Source:  firstString(it, "sourceName", "name"),
			Enabled: firstBool(it, "sceneItemEnabled", "render"),
		}
		if id, ok := firstInt(it, "sceneItemId", "itemId"); ok {
			item.ID = id
			out = append(out, item)
		}
	}
	return out
}

// normalizeCurrentScene extracts the program scene name from a
// GetCurrentProgramScene response.
func normalizeCurrentScene(raw json.RawMessage) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	return firstString(m, "currentProgramSceneName", "sceneName", "name")
}

func firstString(m map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if raw, ok := m[k]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				return s
			}
		}
	}
	return ""
}

func firstBool(m map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if raw, ok := m[k]; ok {
			var b bool
			if err := json.Unmarshal(raw, &b); err == nil {
				return b
			}
		}
	}
	return false
}

func firstInt(m map[string]json.RawMessage, keys ...string) (int, bool) {
	for _, k := range keys {
		if raw, ok := m[k]; ok {
			var n int
			if err := json.Unmarshal(raw, &n); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
