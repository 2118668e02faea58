package roster

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Gateway dispatch types the scraper reacts to.
const (
	EventReadySupplemental     = "READY_SUPPLEMENTAL"
	EventGuildMemberListUpdate = "GUILD_MEMBER_LIST_UPDATE"

	opLazyRequest = 14
)

// Message is a classified inbound gateway frame: Handshake, ListUpdate or Other.
type Message interface {
	isMessage()
}

// Handshake signals the session is ready for member list subscriptions.
type Handshake struct{}

// ListUpdate carries the ops of a member list update.
type ListUpdate struct {
	Ops []ListOp
}

// ListOp is one op of a list update. Items counts every list item of the op,
// including group headers, while MemberIDs holds only the members found.
type ListOp struct {
	Kind      string
	HasItems  bool
	Items     int
	MemberIDs []string
}

// Full reports whether the op returned a complete batch, the only hint that
// more members may follow.
func (o ListOp) Full(batchSize int) bool {
	return o.HasItems && o.Items == batchSize
}

// Other is any frame the scraper does not act on.
type Other struct {
	Op   int
	Type string
}

func (Handshake) isMessage()  {}
func (ListUpdate) isMessage() {}
func (Other) isMessage()      {}

type inboundEnvelope struct {
	Op int             `json:"op"`
	T  string          `json:"t"`
	D  json.RawMessage `json:"d"`
}

type listUpdatePayload struct {
	Ops []struct {
		Op    string      `json:"op"`
		Items *[]listItem `json:"items"`
	} `json:"ops"`
}

type listItem struct {
	Member *struct {
		User *struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"member"`
}

// Classify decodes a raw gateway frame. Only invalid JSON is an error;
// frames with an unexpected shape classify as Other.
func Classify(raw []byte) (Message, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(raw))
	}

	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Other{}, nil
	}

	switch env.T {
	case EventReadySupplemental:
		return Handshake{}, nil

	case EventGuildMemberListUpdate:
		if len(env.D) == 0 || bytes.Equal(env.D, []byte("null")) {
			return Other{Op: env.Op, Type: env.T}, nil
		}
		var payload listUpdatePayload
		if err := json.Unmarshal(env.D, &payload); err != nil {
			return Other{Op: env.Op, Type: env.T}, nil
		}
		return ListUpdate{Ops: convertOps(payload)}, nil

	default:
		return Other{Op: env.Op, Type: env.T}, nil
	}
}

func convertOps(payload listUpdatePayload) []ListOp {
	ops := make([]ListOp, 0, len(payload.Ops))
	for _, o := range payload.Ops {
		op := ListOp{Kind: o.Op}
		if o.Items != nil {
			op.HasItems = true
			op.Items = len(*o.Items)
			for _, item := range *o.Items {
				// group headers and members without a user are skipped
				if item.Member == nil || item.Member.User == nil || item.Member.User.ID == "" {
					continue
				}
				op.MemberIDs = append(op.MemberIDs, item.Member.User.ID)
			}
		}
		ops = append(ops, op)
	}
	return ops
}

type subscribeRequest struct {
	Op int           `json:"op"`
	D  subscribeData `json:"d"`
}

type subscribeData struct {
	GuildID    string              `json:"guild_id"`
	Typing     bool                `json:"typing"`
	Activities bool                `json:"activities"`
	Threads    bool                `json:"threads"`
	Channels   map[string][][2]int `json:"channels"`
}

// EncodeSubscribe builds the lazy guild request subscribing channelID to r.
func EncodeSubscribe(guildID, channelID string, r Range) ([]byte, error) {
	req := subscribeRequest{
		Op: opLazyRequest,
		D: subscribeData{
			GuildID:    guildID,
			Typing:     true,
			Activities: true,
			Threads:    true,
			Channels: map[string][][2]int{
				channelID: {{r.Start, r.End}},
			},
		},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode subscribe request: %w", err)
	}
	return data, nil
}
