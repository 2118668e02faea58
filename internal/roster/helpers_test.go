package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var errConnLost = errors.New("connection lost")

// fakeConn replays scripted inbound frames, then fails with err.
type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	err     error
	sendErr error
	sent    [][]byte
	closed  bool
}

func newFakeConn(frames ...[]byte) *fakeConn {
	return &fakeConn{frames: frames, err: errConnLost}
}

func (c *fakeConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.frames) == 0 {
		return nil, c.err
	}
	frame := c.frames[0]
	c.frames = c.frames[1:]
	return frame, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out one scripted connection per attempt. A nil entry
// makes that dial fail.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("no more connections")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	if conn == nil {
		return nil, errors.New("dial refused")
	}
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type recordingSink struct {
	ids []string
	err error
}

func (s *recordingSink) Emit(id string) error {
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, id)
	return nil
}

func readyFrame() []byte {
	return []byte(`{"op":0,"s":2,"t":"READY_SUPPLEMENTAL","d":{"guilds":[]}}`)
}

// listFrame builds a member list update with one op per argument. An empty
// id stands for a group header item.
func listFrame(ops ...[]string) []byte {
	type user struct {
		ID string `json:"id"`
	}
	type member struct {
		User user `json:"user"`
	}
	type group struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}
	type item struct {
		Member *member `json:"member,omitempty"`
		Group  *group  `json:"group,omitempty"`
	}
	type op struct {
		Op    string `json:"op"`
		Range [2]int `json:"range"`
		Items []item `json:"items"`
	}
	payload := struct {
		GuildID string `json:"guild_id"`
		Ops     []op   `json:"ops"`
	}{GuildID: "g1"}
	for _, ids := range ops {
		o := op{Op: "SYNC", Items: []item{}}
		for _, id := range ids {
			if id == "" {
				o.Items = append(o.Items, item{Group: &group{ID: "online", Count: 1}})
				continue
			}
			o.Items = append(o.Items, item{Member: &member{User: user{ID: id}}})
		}
		payload.Ops = append(payload.Ops, o)
	}
	data, err := json.Marshal(map[string]any{
		"op": 0,
		"t":  EventGuildMemberListUpdate,
		"d":  payload,
	})
	if err != nil {
		panic(err)
	}
	return data
}

func ids(prefix string, from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

func decodeRange(data []byte, channelID string) Range {
	var req struct {
		Op int `json:"op"`
		D  struct {
			Channels map[string][][2]int `json:"channels"`
		} `json:"d"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		panic(err)
	}
	r := req.D.Channels[channelID][0]
	return Range{Start: r[0], End: r[1]}
}
