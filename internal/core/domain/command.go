package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind is the discriminator of a Command, carried in the "command" field.
type Kind string

// Command kinds.
const (
	KindPublish     Kind = "PUBLISH"
	KindRemove      Kind = "REMOVE"
	KindShare       Kind = "SHARE"
	KindQuery       Kind = "QUERY"
	KindFetch       Kind = "FETCH"
	KindExchange    Kind = "EXCHANGE"
	KindSubscribe   Kind = "SUBSCRIBE"
	KindUnsubscribe Kind = "UNSUBSCRIBE"
)

// commandField is the JSON name of the discriminator.
const commandField = "command"

// Command is one of the closed set of protocol requests. The concrete
// types are Publish, Remove, Share, Query, Fetch, Exchange, Subscribe and
// Unsubscribe.
type Command interface {
	Kind() Kind
}

// Publish registers a resource with a non-file URI.
type Publish struct {
	Resource *Resource `json:"resource"`
}

// Remove deletes a resource owned by the requester.
type Remove struct {
	Resource *Resource `json:"resource"`
}

// Share registers a local file resource. Secret must match the node secret.
type Share struct {
	Resource *Resource `json:"resource"`
	Secret   *string   `json:"secret"`
}

// Query asks for every resource matching Template, federation-wide when Relay is set.
type Query struct {
	Template *Resource `json:"resourceTemplate"`
	Relay    bool      `json:"relay"`
}

// Fetch downloads the file behind a shared resource.
type Fetch struct {
	Template *Resource `json:"resourceTemplate"`
}

// Exchange delivers a peer list to merge into the receiver's peer directory.
type Exchange struct {
	Servers []Peer `json:"serverList"`
}

// Subscribe registers Template under ID for live updates.
type Subscribe struct {
	Template *Resource `json:"resourceTemplate"`
	Relay    bool      `json:"relay"`
	ID       string    `json:"id,omitempty"`
}

// Unsubscribe cancels the subscription registered under ID.
type Unsubscribe struct {
	ID string `json:"id"`
}

func (Publish) Kind() Kind     { return KindPublish }
func (Remove) Kind() Kind      { return KindRemove }
func (Share) Kind() Kind       { return KindShare }
func (Query) Kind() Kind       { return KindQuery }
func (Fetch) Kind() Kind       { return KindFetch }
func (Exchange) Kind() Kind    { return KindExchange }
func (Subscribe) Kind() Kind   { return KindSubscribe }
func (Unsubscribe) Kind() Kind { return KindUnsubscribe }

// The plain* aliases drop the MarshalJSON methods below so the variant
// bodies can be encoded without recursion.
type (
	plainPublish     Publish
	plainRemove      Remove
	plainShare       Share
	plainQuery       Query
	plainFetch       Fetch
	plainExchange    Exchange
	plainSubscribe   Subscribe
	plainUnsubscribe Unsubscribe
)

func (c Publish) MarshalJSON() ([]byte, error)   { return marshalCommand(c.Kind(), plainPublish(c)) }
func (c Remove) MarshalJSON() ([]byte, error)    { return marshalCommand(c.Kind(), plainRemove(c)) }
func (c Share) MarshalJSON() ([]byte, error)     { return marshalCommand(c.Kind(), plainShare(c)) }
func (c Query) MarshalJSON() ([]byte, error)     { return marshalCommand(c.Kind(), plainQuery(c)) }
func (c Fetch) MarshalJSON() ([]byte, error)     { return marshalCommand(c.Kind(), plainFetch(c)) }
func (c Exchange) MarshalJSON() ([]byte, error)  { return marshalCommand(c.Kind(), plainExchange(c)) }
func (c Subscribe) MarshalJSON() ([]byte, error) { return marshalCommand(c.Kind(), plainSubscribe(c)) }
func (c Unsubscribe) MarshalJSON() ([]byte, error) {
	return marshalCommand(c.Kind(), plainUnsubscribe(c))
}

// marshalCommand encodes body as an object and adds the discriminator.
func marshalCommand(kind Kind, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	name, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}
	fields[commandField] = name
	return json.Marshal(fields)
}

// commandDecoder decodes the body of one command kind.
type commandDecoder func(body []byte) (Command, error)

// commandDecoders is the fixed dispatch table from discriminator to decoder.
var commandDecoders = map[Kind]commandDecoder{
	KindPublish:     decodeInto[Publish],
	KindRemove:      decodeInto[Remove],
	KindShare:       decodeInto[Share],
	KindQuery:       decodeInto[Query],
	KindFetch:       decodeInto[Fetch],
	KindExchange:    decodeInto[Exchange],
	KindSubscribe:   decodeInto[Subscribe],
	KindUnsubscribe: decodeInto[Unsubscribe],
}

// decodeInto strictly decodes body into a T. The pointer to T is never a
// Command; the plain value is returned.
func decodeInto[T Command](body []byte) (Command, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeCommand decodes one command frame.
//
// A frame that is not a JSON object, or whose "command" field is missing or
// not a string, fails with ErrMalformedCommand. An unknown discriminator or
// a body that does not fit the variant fails with ErrInvalidCommand.
func DecodeCommand(frame []byte) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil || fields == nil {
		return nil, ErrMalformedCommand.WithCause(err)
	}
	raw, ok := fields[commandField]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, ErrMalformedCommand
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return nil, ErrMalformedCommand.WithCause(err)
	}

	decode, ok := commandDecoders[Kind(strings.ToUpper(name))]
	if !ok {
		return nil, ErrInvalidCommand.WithDetails(name)
	}

	delete(fields, commandField)
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, ErrInvalidCommand.WithCause(err)
	}
	cmd, err := decode(body)
	if err != nil {
		return nil, ErrInvalidCommand.WithCause(err)
	}
	return cmd, nil
}
