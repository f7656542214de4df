package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var ErrInvalidPayload = errors.New("invalid event payload")

// Decode turns a named frame into its typed event. Unknown names come back
// as Raw so generic listeners still see them.
func Decode(name string, data []byte) (Event, error) {
	var ev Event
	switch name {
	case NewMessage:
		var e NewMessageEvent
		if err := unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case MessageDeleted:
		var e MessageDeletedEvent
		if err := unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case Typing:
		var e TypingEvent
		if err := unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case ReactionAdded:
		var e ReactionAddedEvent
		if err := unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case MessageRead:
		var e MessageReadEvent
		if err := unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case MessagesRead:
		var e MessagesReadEvent
		if err := unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case UserOnline, UserOffline:
		e := PresenceEvent{name: name}
		if err := unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case Notification:
		var e NotificationEvent
		if err := unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case TaskUpdated, TaskCreated:
		e := TaskEvent{name: name}
		if err := unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	default:
		return Raw{Name: name, Data: append([]byte(nil), data...)}, nil
	}
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidPayload, name, describe(err))
	}
	return ev, nil
}

// Validate runs the struct tags on any value; the REST client uses it for
// response bodies.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPayload, describe(err))
	}
	return nil
}

func unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// Encode builds an outbound frame.
func Encode(name string, payload any) ([]byte, error) {
	env := Envelope{Event: name}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = b
	}
	return json.Marshal(env)
}
