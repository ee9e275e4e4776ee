// Package broadcast encodes channel messages for sibling processes and
// decodes the ones they send back.
//
// A frame travels as a record
//
//	timestampMillis~~channel~~data~~message
//
// inside the proxy's plugin-message envelope. Outbound the envelope is
// UTF("Forward") UTF(target) UTF("jadedchat") UTF(record); the proxy
// delivers UTF("jadedchat") UTF(record) to every other process.
package broadcast

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

const (
	// Subchannel names this system's messages inside the envelope.
	Subchannel = "jadedchat"
	// Forward is the proxy directive to relay a message to other processes.
	Forward = "Forward"
	// TargetAll addresses every other process.
	TargetAll = "ALL"
	// Separator joins the record fields.
	Separator = "~~"
	// MaxAge is how old a frame may be when it arrives.
	MaxAge = 1000 * time.Millisecond
)

// ErrForeignSubchannel marks an envelope addressed to another subchannel.
var ErrForeignSubchannel = errors.New("not a " + Subchannel + " message")

// Frame is one cross-process channel message.
type Frame struct {
	Timestamp time.Time
	Channel   string // lowercase channel name
	Data      string // opaque extension field set by broadcast hooks
	Message   string // serialized rich message
}

// NewFrame builds a frame for ch stamped with now.
func NewFrame(ch *chatdb.Channel, data string, msg chatdb.RichMessage, now time.Time) Frame {
	return Frame{
		Timestamp: now,
		Channel:   strings.ToLower(ch.Name),
		Data:      data,
		Message:   msg.Markup,
	}
}

// Record serializes the frame. The message goes last so it may itself
// contain the separator.
func (f Frame) Record() string {
	return strings.Join([]string{
		strconv.FormatInt(f.Timestamp.UnixMilli(), 10),
		f.Channel,
		f.Data,
		f.Message,
	}, Separator)
}

// ParseRecord is the inverse of Frame.Record.
func ParseRecord(record string) (Frame, error) {
	parts := strings.SplitN(record, Separator, 4)
	if len(parts) != 4 {
		return Frame{}, &chatdb.TransportError{Reason: "record has " + strconv.Itoa(len(parts)) + " fields, want 4"}
	}
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Frame{}, &chatdb.TransportError{Reason: "bad timestamp", Err: err}
	}
	if parts[1] == "" {
		return Frame{}, &chatdb.TransportError{Reason: "empty channel"}
	}
	return Frame{
		Timestamp: time.UnixMilli(ms),
		Channel:   strings.ToLower(parts[1]),
		Data:      parts[2],
		Message:   parts[3],
	}, nil
}

// Stale reports whether the frame is older than MaxAge at now. Frames
// stamped in the future are accepted.
func (f Frame) Stale(now time.Time) bool {
	return now.Sub(f.Timestamp) > MaxAge
}

// EncodeForward wraps a record in the outbound proxy envelope.
func EncodeForward(target, subchannel, record string) ([]byte, error) {
	var out []byte
	var err error
	for _, s := range []string{Forward, target, subchannel, record} {
		if out, err = AppendUTF(out, s); err != nil {
			return nil, &chatdb.TransportError{Reason: "encoding envelope", Err: err}
		}
	}
	return out, nil
}

// DecodeForward unwraps an outbound envelope, as the relay hub does.
func DecodeForward(payload []byte) (target, subchannel, record string, err error) {
	r := bytes.NewReader(payload)
	directive, err := ReadUTF(r)
	if err != nil {
		return "", "", "", &chatdb.TransportError{Reason: "reading directive", Err: err}
	}
	if directive != Forward {
		return "", "", "", &chatdb.TransportError{Reason: "unsupported directive " + strconv.Quote(directive)}
	}
	if target, err = ReadUTF(r); err != nil {
		return "", "", "", &chatdb.TransportError{Reason: "reading target", Err: err}
	}
	if subchannel, err = ReadUTF(r); err != nil {
		return "", "", "", &chatdb.TransportError{Reason: "reading subchannel", Err: err}
	}
	if record, err = ReadUTF(r); err != nil {
		return "", "", "", &chatdb.TransportError{Reason: "reading record", Err: err}
	}
	return target, subchannel, record, nil
}

// EncodeInbound builds the envelope the proxy delivers to receivers.
func EncodeInbound(subchannel, record string) ([]byte, error) {
	out, err := AppendUTF(nil, subchannel)
	if err == nil {
		out, err = AppendUTF(out, record)
	}
	if err != nil {
		return nil, &chatdb.TransportError{Reason: "encoding envelope", Err: err}
	}
	return out, nil
}

// DecodeInbound unwraps a delivered envelope.
func DecodeInbound(payload []byte) (subchannel, record string, err error) {
	r := bytes.NewReader(payload)
	if subchannel, err = ReadUTF(r); err != nil {
		return "", "", &chatdb.TransportError{Reason: "reading subchannel", Err: err}
	}
	if record, err = ReadUTF(r); err != nil {
		return "", "", &chatdb.TransportError{Reason: "reading record", Err: err}
	}
	return subchannel, record, nil
}

// Encode produces the outbound payload for f, addressed to every process.
func Encode(f Frame) ([]byte, error) {
	return EncodeForward(TargetAll, Subchannel, f.Record())
}

// Decode parses an inbound payload into a frame.
func Decode(payload []byte) (Frame, error) {
	sub, record, err := DecodeInbound(payload)
	if err != nil {
		return Frame{}, err
	}
	if !strings.EqualFold(sub, Subchannel) {
		return Frame{}, &chatdb.TransportError{Reason: "subchannel " + strconv.Quote(sub), Err: ErrForeignSubchannel}
	}
	return ParseRecord(record)
}
