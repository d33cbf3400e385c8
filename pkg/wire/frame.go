// Package wire defines the frame model for the RTM stream. Every frame
// is a flat JSON object: outbound frames carry a locally allocated id
// and a type tag, inbound frames are either a correlated response
// (reply_to/ok/error) or a server-initiated event (type).
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxFrameSize is the hard protocol ceiling on one serialized outbound
// frame. Exceeding it fails locally, before any transport write.
const MaxFrameSize = 16384

var (
	// ErrFrameTooLarge is returned when a marshaled frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("wire: frame exceeds 16384 bytes")

	// ErrMalformedFrame is returned for an inbound frame that carries
	// neither a reply_to correlation id nor a type tag.
	ErrMalformedFrame = errors.New("wire: frame has neither reply_to nor type")
)

// Field is one outbound frame field: a name paired with a typed value.
// Values are validated at construction so frames never carry unescaped
// or hand-concatenated JSON.
type Field struct {
	Name  string
	value json.RawMessage
}

// String builds a JSON string field.
func String(name, v string) Field {
	b, _ := json.Marshal(v)
	return Field{Name: name, value: b}
}

// Bool builds a JSON boolean field.
func Bool(name string, v bool) Field {
	return Field{Name: name, value: strconv.AppendBool(nil, v)}
}

// Raw attaches an already-serialized JSON fragment.
func Raw(name string, v json.RawMessage) Field {
	return Field{Name: name, value: v}
}

// Marshal serializes an outbound frame {"id":N,"type":"...",...fields}.
// Field order is stable: id, type, then fields in argument order.
func Marshal(id uint64, typ string, fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	buf.WriteString(strconv.FormatUint(id, 10))
	buf.WriteString(`,"type":`)
	t, _ := json.Marshal(typ)
	buf.Write(t)
	for _, f := range fields {
		buf.WriteByte(',')
		n, _ := json.Marshal(f.Name)
		buf.Write(n)
		buf.WriteByte(':')
		buf.Write(f.value)
	}
	buf.WriteByte('}')
	if buf.Len() > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return buf.Bytes(), nil
}

// Inbound is a decoded inbound frame envelope. Payload retains the raw
// frame so handlers can extract type-specific fields themselves.
type Inbound struct {
	ReplyTo *uint64
	OK      bool
	Error   string
	Type    string
	Payload json.RawMessage
}

// ParseInbound decodes the envelope of one inbound frame. A frame with
// neither reply_to nor type is a protocol violation.
func ParseInbound(data []byte) (*Inbound, error) {
	var env struct {
		ReplyTo *uint64     `json:"reply_to"`
		OK      *bool       `json:"ok"`
		Error   *errorField `json:"error"`
		Type    string      `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.ReplyTo == nil && env.Type == "" {
		return nil, ErrMalformedFrame
	}
	in := &Inbound{
		ReplyTo: env.ReplyTo,
		Type:    env.Type,
		Payload: json.RawMessage(bytes.Clone(data)),
	}
	if env.OK != nil {
		in.OK = *env.OK
	}
	if env.Error != nil {
		in.Error = env.Error.msg
	}
	return in, nil
}

// errorField accepts both "error":"msg" and "error":{"msg":"..."} forms.
type errorField struct {
	msg string
}

func (e *errorField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.msg = s
		return nil
	}
	var obj struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.msg = obj.Msg
	return nil
}

// CompareTS orders two protocol timestamps of the form
// "1234567890.000123". Empty or unparsable timestamps sort first.
func CompareTS(a, b string) int {
	as, af := splitTS(a)
	bs, bf := splitTS(b)
	if as != bs {
		if as < bs {
			return -1
		}
		return 1
	}
	// fraction widths can differ between servers; right-pad before comparing
	for len(af) < len(bf) {
		af += "0"
	}
	for len(bf) < len(af) {
		bf += "0"
	}
	return strings.Compare(af, bf)
}

func splitTS(ts string) (int64, string) {
	sec, frac, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return 0, ""
	}
	return n, frac
}

// TSTime converts a protocol timestamp to wall-clock time, dropping the
// sub-second uniqueness suffix. The zero time is returned for empty or
// unparsable input.
func TSTime(ts string) time.Time {
	sec, _ := splitTS(ts)
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
