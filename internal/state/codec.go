package state

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedAction is returned when an encoded action cannot be decoded.
var ErrMalformedAction = errors.New("malformed action")

// wireAction is the encoded form of an action: {"type": ..., "payload": ...}.
type wireAction struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func decodeAs[T Action](raw json.RawMessage) (Action, error) {
	var v T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

var decoders = map[Type]func(json.RawMessage) (Action, error){
	TypeSetState:         decodeAs[SetState],
	TypeAddCustomer:      decodeAs[AddCustomer],
	TypeBulkAddCustomers: decodeAs[BulkAddCustomers],
	TypeUpdateCustomer:   decodeAs[UpdateCustomer],
	TypeDeleteCustomer:   decodeAs[DeleteCustomer],
	TypeAddRequest:       decodeAs[AddRequest],
	TypeUpdateRequest:    decodeAs[UpdateRequest],
	TypeDeleteRequest:    decodeAs[DeleteRequest],
	TypeApproveRequest:   decodeAs[ApproveRequest],
	TypeRejectRequest:    decodeAs[RejectRequest],
	TypeSendMessage:      decodeAs[SendMessage],
	TypeUpdateMessage:    decodeAs[UpdateMessage],
	TypeDeleteMessage:    decodeAs[DeleteMessage],
	TypeMarkMessagesRead: decodeAs[MarkMessagesRead],
	TypeAddPayment:       decodeAs[AddPayment],
	TypeUpdatePayment:    decodeAs[UpdatePayment],
	TypeDeletePayment:    decodeAs[DeletePayment],
	TypeAddClaim:         decodeAs[AddClaim],
	TypeUpdateClaim:      decodeAs[UpdateClaim],
	TypeDeleteClaim:      decodeAs[DeleteClaim],
	TypeAddAgent:         decodeAs[AddAgent],
	TypeUpdateAgent:      decodeAs[UpdateAgent],
	TypeDeleteAgent:      decodeAs[DeleteAgent],
	TypeAddAdmin:         decodeAs[AddAdmin],
	TypeUpdateAdmin:      decodeAs[UpdateAdmin],
	TypeDeleteAdmin:      decodeAs[DeleteAdmin],
}

// Known reports whether t is an action type this build can reduce.
func Known(t Type) bool {
	_, ok := decoders[t]
	return ok
}

// MarshalAction encodes a as {"type": ..., "payload": ...}.
func MarshalAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("marshal action: %w", ErrMalformedAction)
	}
	w := wireAction{Type: a.Type()}
	if u, ok := a.(Unknown); ok {
		w.Payload = u.Payload
	} else {
		payload, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", a.Type(), err)
		}
		w.Payload = payload
	}
	return json.Marshal(w)
}

// UnmarshalAction decodes an action produced by MarshalAction. Unrecognised
// type tags decode to Unknown rather than failing.
func UnmarshalAction(data []byte) (Action, error) {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	if w.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedAction)
	}
	decode, ok := decoders[w.Type]
	if !ok {
		return Unknown{Kind: w.Type, Payload: w.Payload}, nil
	}
	a, err := decode(w.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedAction, w.Type, err)
	}
	return a, nil
}
