package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/teranos/logtap/errors"
)

type envelope struct {
	Type string `json:"type"`
}

// EncodeCommand renders cmd as a JSON object with its type discriminator
func EncodeCommand(cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, errors.NewInvalidRequestError("nil command")
	}
	return encode(cmd.CommandType(), cmd)
}

// EncodeEvent renders ev as a JSON object with its type discriminator
func EncodeEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, errors.NewInvalidRequestError("nil event")
	}
	return encode(ev.EventType(), normalize(ev))
}

// encode splices "type" in front of the payload's own fields
func encode(typ string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", typ)
	}
	tag, err := json.Marshal(typ)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", typ)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// normalize replaces nil result lists so they encode as [] rather than null
func normalize(ev Event) Event {
	if br, ok := ev.(BatchResults); ok {
		if br.Hits == nil {
			br.Hits = []Hit{}
		}
		if br.Errors == nil {
			br.Errors = []RuleError{}
		}
		return br
	}
	return ev
}

func readType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", errors.Wrap(errors.ErrInvalidRequest, "malformed message: "+err.Error())
	}
	if env.Type == "" {
		return "", errors.NewInvalidRequestError("message has no type")
	}
	return env.Type, nil
}

// DecodeCommand parses a command. An unknown type is an error.
func DecodeCommand(data []byte) (Command, error) {
	typ, err := readType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeInit:
		var c Init
		return decodeCommand(data, typ, &c)
	case TypeStart:
		var c Start
		return decodeCommand(data, typ, &c)
	case TypeCancel:
		return Cancel{}, nil
	default:
		return nil, errors.NewInvalidRequestError("unknown command type %q", typ)
	}
}

// DecodeEvent parses an event. An unknown type is an error.
func DecodeEvent(data []byte) (Event, error) {
	typ, err := readType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeInitDone:
		return InitDone{}, nil
	case TypeInitError:
		var e InitError
		return decodeEvent(data, typ, &e)
	case TypeProgress:
		var e Progress
		return decodeEvent(data, typ, &e)
	case TypeProgressDetail:
		var e ProgressDetail
		return decodeEvent(data, typ, &e)
	case TypeBatchResults:
		var e BatchResults
		return decodeEvent(data, typ, &e)
	case TypeError:
		var e Error
		return decodeEvent(data, typ, &e)
	case TypeComplete:
		var e Complete
		return decodeEvent(data, typ, &e)
	case TypeCancelled:
		return Cancelled{}, nil
	case TypeCriticalError:
		var e CriticalError
		return decodeEvent(data, typ, &e)
	default:
		return nil, errors.NewInvalidRequestError("unknown event type %q", typ)
	}
}

func decodeCommand[T Command](data []byte, typ string, dst *T) (Command, error) {
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "malformed %s command: %v", typ, err)
	}
	return *dst, nil
}

// decodeEvent returns the value, not the pointer, so callers can switch
// on the plain event types
func decodeEvent[T Event](data []byte, typ string, dst *T) (Event, error) {
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "malformed %s event: %v", typ, err)
	}
	return *dst, nil
}
