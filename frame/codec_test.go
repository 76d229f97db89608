package frame

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFortyByteMessage(t *testing.T) {
	msg := "hello world this is a long test message!"
	require.Len(t, msg, 40)

	chunks := Encode(msg)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 20)
	assert.Len(t, chunks[1], 20)
	assert.Len(t, chunks[2], 3)
	assert.Equal(t, []byte(Terminator), chunks[2])
}

func TestEncodeRoundTrip(t *testing.T) {
	payloads := []string{
		"",
		"a",
		"exactly seventeen",     // 17 + 3 = one full chunk
		strings.Repeat("x", 37), // 37 + 3 = two full chunks
		`{"cmd":"milk","liters":12.5}`,
		"ünïcødé payloads split mid-rune 🐄🐄🐄",
		strings.Repeat("moo ", 100),
	}

	for _, p := range payloads {
		chunks := Encode(p)
		total := len(p) + len(Terminator)

		assert.Len(t, chunks, (total+ChunkSize-1)/ChunkSize, "chunk count for %q", p)
		for i, c := range chunks[:len(chunks)-1] {
			assert.Len(t, c, ChunkSize, "chunk %d of %q", i, p)
		}
		assert.LessOrEqual(t, len(chunks[len(chunks)-1]), ChunkSize)

		joined := Join(chunks)
		assert.True(t, IsComplete(joined))
		assert.Equal(t, p, strings.TrimSuffix(string(joined), Terminator))
	}
}

func TestSplit(t *testing.T) {
	assert.Nil(t, Split(nil, 20))
	assert.Equal(t, [][]byte{[]byte("abc"), []byte("de")}, Split([]byte("abcde"), 3))
	// non-positive sizes fall back to the characteristic size
	assert.Len(t, Split(make([]byte, 41), 0), 3)
}

func TestSplitCopiesInput(t *testing.T) {
	data := []byte("abcdef")
	chunks := Split(data, 4)
	data[0] = 'z'
	assert.Equal(t, []byte("abcd"), chunks[0])
}

func TestDecodeIfComplete(t *testing.T) {
	_, ok := DecodeIfComplete([]byte("partial message"))
	assert.False(t, ok)

	_, ok = DecodeIfComplete([]byte("almost#$"))
	assert.False(t, ok)

	p, ok := DecodeIfComplete([]byte("hello world#$%"))
	require.True(t, ok)
	assert.Equal(t, Text, p.Kind)
	assert.Equal(t, "hello world", p.Text)

	p, ok = DecodeIfComplete([]byte(`{"cmd":"milk","n":3}#$%`))
	require.True(t, ok)
	assert.Equal(t, Structured, p.Kind)
	assert.Equal(t, map[string]interface{}{"cmd": "milk", "n": float64(3)}, p.Value)
}

func TestDecodeStripsOnlyTrailingTerminator(t *testing.T) {
	p, ok := DecodeIfComplete([]byte("a#$%b#$%"))
	require.True(t, ok)
	assert.Equal(t, "a#$%b", p.Text)
}

func TestMarshal(t *testing.T) {
	s, err := Marshal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", s)

	s, err = Marshal([]byte("bytes"))
	require.NoError(t, err)
	assert.Equal(t, "bytes", s)

	s, err = Marshal(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, s)

	s, err = Marshal(Parse(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, s)

	_, err = Marshal(nil)
	assert.ErrorIs(t, err, ErrNilPayload)

	_, err = Marshal(make(chan int))
	assert.Error(t, err)
}

func TestPayloadJSON(t *testing.T) {
	type envelope struct {
		Payload Payload `json:"payload"`
	}

	out, err := json.Marshal(envelope{Payload: Parse(`{"a": [1, 2]}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"payload":{"a":[1,2]}}`, string(out))

	out, err = json.Marshal(envelope{Payload: Parse("moo")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"payload":"moo"}`, string(out))
}

func TestPayloadUnmarshalAndProto(t *testing.T) {
	var dst struct {
		Cmd string `json:"cmd"`
	}
	require.NoError(t, Parse(`{"cmd":"milk"}`).Unmarshal(&dst))
	assert.Equal(t, "milk", dst.Cmd)
	assert.Error(t, NewText("nope").Unmarshal(&dst))

	v, err := Parse(`{"cmd":"milk"}`).Proto()
	require.NoError(t, err)
	assert.Equal(t, "milk", v.GetStructValue().GetFields()["cmd"].GetStringValue())

	v, err = NewText("moo").Proto()
	require.NoError(t, err)
	assert.Equal(t, "moo", v.GetStringValue())
}
