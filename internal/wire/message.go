package wire

import (
	"encoding/json"
	"fmt"
)

// Message type tags. The encoding is a self-describing JSON envelope: the
// tag selects the variant, the payload carries its fields.
const (
	TypeKeyExchange = "key_exchange"
	TypeIdentify    = "identify"
	TypeChat        = "chat"
	TypeGoodbye     = "goodbye"
	TypeError       = "error"
)

// Error codes carried in Error frames. Deliberately coarse: the peer never
// learns which check failed.
const (
	ErrCodeProtocol = 1
	ErrCodeInternal = 2
)

type (
	KeyExchange struct {
		EphemeralPublic []byte `json:"ephemeral_public"`
	}

	Identify struct {
		OnionID        string `json:"onion_id"`
		LongTermPublic []byte `json:"long_term_public"`
		Signature      []byte `json:"signature"`
	}

	Chat struct {
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Timestamp int64  `json:"timestamp"`
		Body      string `json:"body"`
	}

	Goodbye struct{}

	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}

	envelope struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}
)

type UnknownTagError string

func (e UnknownTagError) Error() string {
	return fmt.Sprintf("wire: unknown message tag %q", string(e))
}

// Marshal encodes a typed message into its tagged envelope form.
func Marshal(msg any) ([]byte, error) {
	var tag string
	switch msg.(type) {
	case *KeyExchange, KeyExchange:
		tag = TypeKeyExchange
	case *Identify, Identify:
		tag = TypeIdentify
	case *Chat, Chat:
		tag = TypeChat
	case *Goodbye, Goodbye:
		tag = TypeGoodbye
	case *Error, Error:
		tag = TypeError
	default:
		return nil, fmt.Errorf("wire: cannot marshal %T", msg)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal payload: %w", err)
	}
	return json.Marshal(envelope{Type: tag, Payload: payload})
}

// Unmarshal decodes a tagged envelope into the typed message it carries.
// An unknown or missing tag is an error.
func Unmarshal(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: malformed envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case TypeKeyExchange:
		msg = &KeyExchange{}
	case TypeIdentify:
		msg = &Identify{}
	case TypeChat:
		msg = &Chat{}
	case TypeGoodbye:
		return &Goodbye{}, nil
	case TypeError:
		msg = &Error{}
	default:
		return nil, UnknownTagError(env.Type)
	}

	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return nil, fmt.Errorf("wire: malformed %s payload: %w", env.Type, err)
	}
	return msg, nil
}
