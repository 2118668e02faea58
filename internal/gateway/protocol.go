package gateway

import (
	"encoding/json"
	"fmt"
	"runtime"
)

// Gateway opcodes handled by the transport itself.
const (
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Properties identify the connecting client to the gateway.
type Properties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// DefaultProperties describes this program.
func DefaultProperties() Properties {
	return Properties{
		OS:      runtime.GOOS,
		Browser: "guild-roster",
		Device:  "guild-roster",
	}
}

type envelope struct {
	Op int             `json:"op"`
	S  *int64          `json:"s"`
	T  string          `json:"t,omitempty"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyPayload struct {
	Op int          `json:"op"`
	D  identifyData `json:"d"`
}

type identifyData struct {
	Token      string     `json:"token"`
	Properties Properties `json:"properties"`
	Compress   bool       `json:"compress"`
}

type heartbeatPayload struct {
	Op int    `json:"op"`
	D  *int64 `json:"d"`
}

func buildIdentify(token string, props Properties) ([]byte, error) {
	data, err := json.Marshal(identifyPayload{
		Op: opIdentify,
		D: identifyData{
			Token:      token,
			Properties: props,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode identify: %w", err)
	}
	return data, nil
}

func buildHeartbeat(seq *int64) ([]byte, error) {
	data, err := json.Marshal(heartbeatPayload{Op: opHeartbeat, D: seq})
	if err != nil {
		return nil, fmt.Errorf("encode heartbeat: %w", err)
	}
	return data, nil
}
