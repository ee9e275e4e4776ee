package broadcast

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

func TestAppendUTFMatchesJava(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"", []byte{0, 0}},
		{"ALL", []byte{0, 3, 'A', 'L', 'L'}},
		{"\x00", []byte{0, 2, 0xC0, 0x80}},
		{"é", []byte{0, 2, 0xC3, 0xA9}},
		{"€", []byte{0, 3, 0xE2, 0x82, 0xAC}},
		// U+1F600 becomes the surrogate pair D83D DE00.
		{"😀", []byte{0, 6, 0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := AppendUTF(nil, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			back, err := ReadUTF(bytes.NewReader(got))
			require.NoError(t, err)
			assert.Equal(t, tt.in, back)
		})
	}
}

func TestAppendUTFTooLong(t *testing.T) {
	_, err := AppendUTF(nil, strings.Repeat("a", maxUTFLen+1))
	assert.ErrorIs(t, err, ErrTooLong)

	_, err = AppendUTF(nil, strings.Repeat("a", maxUTFLen))
	assert.NoError(t, err)
}

func TestReadUTFMalformed(t *testing.T) {
	for name, b := range map[string][]byte{
		"short length": {0},
		"short body":   {0, 4, 'a'},
		"bad lead":     {0, 1, 0xFF},
		"cut sequence": {0, 2, 0xE2, 0x82},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadUTF(bytes.NewReader(b))
			assert.Error(t, err)
		})
	}
}

func TestRecordRoundTrip(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	ch := &chatdb.Channel{Name: "GLOBAL"}
	f := NewFrame(ch, "rank=vip", chatdb.RichMessage{Markup: "<red>a~~b</red>"}, now)

	assert.Equal(t, "1700000000123~~global~~rank=vip~~<red>a~~b</red>", f.Record())

	back, err := ParseRecord(f.Record())
	require.NoError(t, err)
	assert.True(t, back.Timestamp.Equal(now))
	assert.Equal(t, "global", back.Channel)
	assert.Equal(t, "rank=vip", back.Data)
	assert.Equal(t, "<red>a~~b</red>", back.Message)
}

func TestParseRecordErrors(t *testing.T) {
	for _, rec := range []string{
		"global~~hello",
		"abc~~global~~~~hi",
		"123~~~~~~hi",
	} {
		_, err := ParseRecord(rec)
		var te *chatdb.TransportError
		assert.True(t, errors.As(err, &te), rec)
	}
}

func TestStale(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		age   time.Duration
		stale bool
	}{
		{"fresh", 0, false},
		{"500ms", 500 * time.Millisecond, false},
		{"exactly 1000ms", 1000 * time.Millisecond, false},
		{"1500ms", 1500 * time.Millisecond, true},
		{"future", -2 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Frame{Timestamp: now.Add(-tt.age)}
			assert.Equal(t, tt.stale, f.Stale(now))
		})
	}
}

func TestForwardEnvelope(t *testing.T) {
	f := Frame{Timestamp: time.UnixMilli(42), Channel: "global", Message: "hi 😀"}
	payload, err := Encode(f)
	require.NoError(t, err)

	target, sub, record, err := DecodeForward(payload)
	require.NoError(t, err)
	assert.Equal(t, TargetAll, target)
	assert.Equal(t, Subchannel, sub)
	assert.Equal(t, "42~~global~~~~hi 😀", record)

	_, _, _, err = DecodeForward(payload[:5])
	assert.Error(t, err)

	other, err := EncodeInbound("Connect", "x")
	require.NoError(t, err)
	_, _, _, err = DecodeForward(other)
	assert.Error(t, err)
}

func TestInboundRoundTripNonBMP(t *testing.T) {
	f := Frame{Timestamp: time.UnixMilli(1000), Channel: "global", Data: "", Message: "<gold>🎉 party 𝄞</gold>"}
	payload, err := EncodeInbound(Subchannel, f.Record())
	require.NoError(t, err)

	back, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, f.Message, back.Message)
	assert.Equal(t, "global", back.Channel)
}

func TestDecodeForeignSubchannel(t *testing.T) {
	payload, err := EncodeInbound("someoneelse", "1~~global~~~~hi")
	require.NoError(t, err)
	_, err = Decode(payload)
	assert.ErrorIs(t, err, ErrForeignSubchannel)

	_, err = Decode([]byte{0, 9, 'j'})
	var te *chatdb.TransportError
	assert.True(t, errors.As(err, &te))
}
