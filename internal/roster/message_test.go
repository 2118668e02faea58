package roster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyHandshake(t *testing.T) {
	msg, err := Classify(readyFrame())
	require.NoError(t, err)
	require.Equal(t, Handshake{}, msg)
}

func TestClassifyListUpdateSkipsGroups(t *testing.T) {
	msg, err := Classify(listFrame([]string{"", "u1", "u2", "", "u3"}))
	require.NoError(t, err)

	update, ok := msg.(ListUpdate)
	require.True(t, ok)
	require.Len(t, update.Ops, 1)
	require.Equal(t, "SYNC", update.Ops[0].Kind)
	require.Equal(t, 5, update.Ops[0].Items)
	require.Equal(t, []string{"u1", "u2", "u3"}, update.Ops[0].MemberIDs)
	require.True(t, update.Ops[0].Full(5))
	require.False(t, update.Ops[0].Full(25))
}

func TestClassifyOpWithoutItems(t *testing.T) {
	raw := []byte(`{"t":"GUILD_MEMBER_LIST_UPDATE","d":{"ops":[{"op":"INVALIDATE","range":[0,99]}]}}`)
	msg, err := Classify(raw)
	require.NoError(t, err)

	update := msg.(ListUpdate)
	require.Len(t, update.Ops, 1)
	require.False(t, update.Ops[0].HasItems)
	require.False(t, update.Ops[0].Full(0))
}

func TestClassifyMemberWithoutUser(t *testing.T) {
	raw := []byte(`{"t":"GUILD_MEMBER_LIST_UPDATE","d":{"ops":[{"op":"SYNC","items":[{"member":{}},{"member":{"user":{"id":"u9"}}}]}]}}`)
	msg, err := Classify(raw)
	require.NoError(t, err)

	op := msg.(ListUpdate).Ops[0]
	require.Equal(t, 2, op.Items)
	require.Equal(t, []string{"u9"}, op.MemberIDs)
}

func TestClassifyOther(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Other
	}{
		{"hello", `{"op":10,"d":{"heartbeat_interval":41250}}`, Other{Op: 10}},
		{"dispatch", `{"op":0,"t":"READY","d":{}}`, Other{Op: 0, Type: "READY"}},
		{"missing data", `{"op":0,"t":"GUILD_MEMBER_LIST_UPDATE"}`, Other{Op: 0, Type: EventGuildMemberListUpdate}},
		{"null data", `{"op":0,"t":"GUILD_MEMBER_LIST_UPDATE","d":null}`, Other{Op: 0, Type: EventGuildMemberListUpdate}},
		{"ops not a list", `{"op":0,"t":"GUILD_MEMBER_LIST_UPDATE","d":{"ops":"nope"}}`, Other{Op: 0, Type: EventGuildMemberListUpdate}},
		{"items not objects", `{"op":0,"t":"GUILD_MEMBER_LIST_UPDATE","d":{"ops":[{"items":[1,2]}]}}`, Other{Op: 0, Type: EventGuildMemberListUpdate}},
		{"op as string", `{"op":"0","t":"READY_SUPPLEMENTAL"}`, Other{}},
		{"type as number", `{"op":0,"t":5}`, Other{}},
		{"top level array", `[1,2]`, Other{}},
		{"bare string", `"x"`, Other{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Classify([]byte(tc.raw))
			require.NoError(t, err)
			require.Equal(t, tc.want, msg)
		})
	}
}

func TestClassifyInvalidJSON(t *testing.T) {
	_, err := Classify([]byte(`{"op":`))
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestEncodeSubscribe(t *testing.T) {
	data, err := EncodeSubscribe("g1", "c1", Range{Start: 25, End: 49})
	require.NoError(t, err)

	require.JSONEq(t, `{
		"op": 14,
		"d": {
			"guild_id": "g1",
			"typing": true,
			"activities": true,
			"threads": true,
			"channels": {"c1": [[25, 49]]}
		}
	}`, string(data))
}
