// Package api defines the wire API between studio clients and the relay.
//
// Each call is a JSON-encoded "packet" of the following structure:
//
//	id - (optional) a unique packet id for tracking request/response pairs;
//	 t - (required) one of the predefined unique packet types;
//	to - (optional) the destination session id for unicast packets;
//	 f - (optional) the source session id, stamped by the relay on forward;
//	 p - (optional) packet payload with type-specific data.
//
// The packets differentiate by their predefined types with which it is
// possible to unwrap the payload into distinct request/response structures.
// The relay validates the envelope but never interprets unicast payloads
// beyond routing.
//
// Example:
//
//	{"t":102,"to":"cfv68irdrc3ifu3jn6bg","p":{"candidate":"candidate:1 1 udp ..."}}
package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PT is a packet type discriminant.
type PT uint8

type In struct {
	Id      string          `json:"id,omitempty"`
	T       PT              `json:"t"`
	To      string          `json:"to,omitempty"`
	From    string          `json:"f,omitempty"`
	Payload json.RawMessage `json:"p,omitempty"` // should be json.RawMessage for 2-pass unmarshal
}

type Out struct {
	Id      string `json:"id,omitempty"`
	T       PT     `json:"t"`
	To      string `json:"to,omitempty"`
	From    string `json:"f,omitempty"`
	Payload any    `json:"p,omitempty"`
}

// Packet codes:
//
//	x - presence codes
//	1xx - negotiation codes
//	2xx - studio (collaboration) codes
const (
	Join             PT = 1
	JoinAck          PT = 2
	PresenceSnapshot PT = 3
	SessionJoined    PT = 4
	SessionLeft      PT = 5
	Offer            PT = 100
	Answer           PT = 101
	IceCandidate     PT = 102
	VideoMessage     PT = 110
	VideoMessageAck  PT = 111
	StickerUpdate    PT = 112
	StudioJoin       PT = 200
	StudioLeave      PT = 201
	CursorUpdate     PT = 202
	ObjectAdded      PT = 203
	ObjectModified   PT = 204
	ObjectRemoved    PT = 205
	Reaction         PT = 206
	CanvasSyncAsk    PT = 207
	CanvasSync       PT = 208
)

func (p PT) String() string {
	switch p {
	case Join:
		return "Join"
	case JoinAck:
		return "JoinAck"
	case PresenceSnapshot:
		return "PresenceSnapshot"
	case SessionJoined:
		return "SessionJoined"
	case SessionLeft:
		return "SessionLeft"
	case Offer:
		return "Offer"
	case Answer:
		return "Answer"
	case IceCandidate:
		return "IceCandidate"
	case VideoMessage:
		return "VideoMessage"
	case VideoMessageAck:
		return "VideoMessageAck"
	case StickerUpdate:
		return "StickerUpdate"
	case StudioJoin:
		return "StudioJoin"
	case StudioLeave:
		return "StudioLeave"
	case CursorUpdate:
		return "CursorUpdate"
	case ObjectAdded:
		return "ObjectAdded"
	case ObjectModified:
		return "ObjectModified"
	case ObjectRemoved:
		return "ObjectRemoved"
	case Reaction:
		return "Reaction"
	case CanvasSyncAsk:
		return "CanvasSyncAsk"
	case CanvasSync:
		return "CanvasSync"
	default:
		return "Unknown"
	}
}

// IsUnicast says whether packets of this type are forwarded to a single
// destination session taken from the envelope's to field.
func (p PT) IsUnicast() bool {
	switch p {
	case Offer, Answer, IceCandidate, VideoMessage, CanvasSync:
		return true
	}
	return false
}

// IsBroadcast says whether packets of this type are forwarded to every
// studio room member except the sender.
func (p PT) IsBroadcast() bool {
	switch p {
	case StickerUpdate, StudioJoin, StudioLeave, CursorUpdate,
		ObjectAdded, ObjectModified, ObjectRemoved, Reaction, CanvasSyncAsk:
		return true
	}
	return false
}

var (
	ErrForbidden = errors.New("forbidden")
	ErrMalformed = errors.New("malformed")
)

// Validate rejects envelopes the relay must not forward:
// unknown kinds and unicast kinds without a destination.
func (i *In) Validate() error {
	if i.T.String() == "Unknown" {
		return fmt.Errorf("%w: unknown packet type %d", ErrMalformed, i.T)
	}
	if i.T.IsUnicast() && i.To == "" {
		return fmt.Errorf("%w: %v requires a destination", ErrMalformed, i.T)
	}
	return nil
}

func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}

func UnwrapChecked[T any](bytes []byte, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	return Unwrap[T](bytes), nil
}
