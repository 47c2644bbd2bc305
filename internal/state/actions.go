package state

import (
	"encoding/json"
	"time"

	"github.com/marcus/agencysync/internal/models"
)

// Type is the tag carried by every action on the wire.
type Type string

const (
	TypeSetState Type = "SET_STATE"

	TypeAddCustomer      Type = "ADD_CUSTOMER"
	TypeBulkAddCustomers Type = "BULK_ADD_CUSTOMERS"
	TypeUpdateCustomer   Type = "UPDATE_CUSTOMER"
	TypeDeleteCustomer   Type = "DELETE_CUSTOMER"

	TypeAddRequest     Type = "ADD_REQUEST"
	TypeUpdateRequest  Type = "UPDATE_REQUEST"
	TypeDeleteRequest  Type = "DELETE_REQUEST"
	TypeApproveRequest Type = "APPROVE_REQUEST"
	TypeRejectRequest  Type = "REJECT_REQUEST"

	TypeSendMessage      Type = "SEND_MESSAGE"
	TypeUpdateMessage    Type = "UPDATE_MESSAGE"
	TypeDeleteMessage    Type = "DELETE_MESSAGE"
	TypeMarkMessagesRead Type = "MARK_MESSAGES_READ"

	TypeAddPayment    Type = "ADD_PAYMENT"
	TypeUpdatePayment Type = "UPDATE_PAYMENT"
	TypeDeletePayment Type = "DELETE_PAYMENT"

	TypeAddClaim    Type = "ADD_CLAIM"
	TypeUpdateClaim Type = "UPDATE_CLAIM"
	TypeDeleteClaim Type = "DELETE_CLAIM"

	TypeAddAgent    Type = "ADD_AGENT"
	TypeUpdateAgent Type = "UPDATE_AGENT"
	TypeDeleteAgent Type = "DELETE_AGENT"

	TypeAddAdmin    Type = "ADD_ADMIN"
	TypeUpdateAdmin Type = "UPDATE_ADMIN"
	TypeDeleteAdmin Type = "DELETE_ADMIN"
)

// Action is one intended state mutation. The set of implementations is
// closed; Reduce switches over all of them.
type Action interface {
	Type() Type
	isAction()
}

// SetState replaces every collection. Used to seed state at startup and on a
// full refresh, where remote state wins.
type SetState AppState

// Single-record actions are defined on the record type itself so the wire
// payload is the record.

type (
	AddCustomer    models.Customer
	UpdateCustomer models.Customer
	AddRequest     models.Request
	UpdateRequest  models.Request
	SendMessage    models.Message
	UpdateMessage  models.Message
	AddPayment     models.Payment
	UpdatePayment  models.Payment
	AddClaim       models.Claim
	UpdateClaim    models.Claim
	AddAgent       models.Agent
	UpdateAgent    models.Agent
	AddAdmin       models.Admin
	UpdateAdmin    models.Admin
)

// Delete actions carry only the identifier.

type (
	DeleteCustomer struct {
		ID int64 `json:"id"`
	}
	DeleteRequest struct {
		ID int64 `json:"id"`
	}
	DeleteMessage struct {
		ID int64 `json:"id"`
	}
	DeletePayment struct {
		ID int64 `json:"id"`
	}
	DeleteClaim struct {
		ID int64 `json:"id"`
	}
	DeleteAgent struct {
		ID int64 `json:"id"`
	}
	DeleteAdmin struct {
		ID int64 `json:"id"`
	}
)

// BulkAddCustomers inserts every customer whose id is not already present.
type BulkAddCustomers struct {
	Customers []models.Customer `json:"customers"`
}

// ApproveRequest approves a pending request and applies its derived change:
// a payment approval reactivates the customer's policy, a new-policy approval
// creates the customer from the request's draft.
type ApproveRequest struct {
	RequestID  int64     `json:"request_id"`
	ApprovedAt time.Time `json:"approved_at"`
	ApprovedBy int64     `json:"approved_by,omitempty"`
	// Origin is stamped on records the approval creates.
	Origin models.Origin `json:"origin,omitempty"`
}

// RejectRequest rejects a pending request with a note.
type RejectRequest struct {
	RequestID  int64     `json:"request_id"`
	Note       string    `json:"note"`
	RejectedAt time.Time `json:"rejected_at"`
	RejectedBy int64     `json:"rejected_by,omitempty"`
}

// MarkMessagesRead marks every unread message sent by CounterpartyID to
// ViewerID as read.
type MarkMessagesRead struct {
	CounterpartyID int64 `json:"counterparty_id"`
	ViewerID       int64 `json:"viewer_id"`
}

// Unknown is an action whose tag this build does not recognise. It is kept
// so it can be relayed, and it reduces to no change.
type Unknown struct {
	Kind    Type
	Payload json.RawMessage
}

func (SetState) Type() Type         { return TypeSetState }
func (AddCustomer) Type() Type      { return TypeAddCustomer }
func (BulkAddCustomers) Type() Type { return TypeBulkAddCustomers }
func (UpdateCustomer) Type() Type   { return TypeUpdateCustomer }
func (DeleteCustomer) Type() Type   { return TypeDeleteCustomer }
func (AddRequest) Type() Type       { return TypeAddRequest }
func (UpdateRequest) Type() Type    { return TypeUpdateRequest }
func (DeleteRequest) Type() Type    { return TypeDeleteRequest }
func (ApproveRequest) Type() Type   { return TypeApproveRequest }
func (RejectRequest) Type() Type    { return TypeRejectRequest }
func (SendMessage) Type() Type      { return TypeSendMessage }
func (UpdateMessage) Type() Type    { return TypeUpdateMessage }
func (DeleteMessage) Type() Type    { return TypeDeleteMessage }
func (MarkMessagesRead) Type() Type { return TypeMarkMessagesRead }
func (AddPayment) Type() Type       { return TypeAddPayment }
func (UpdatePayment) Type() Type    { return TypeUpdatePayment }
func (DeletePayment) Type() Type    { return TypeDeletePayment }
func (AddClaim) Type() Type         { return TypeAddClaim }
func (UpdateClaim) Type() Type      { return TypeUpdateClaim }
func (DeleteClaim) Type() Type      { return TypeDeleteClaim }
func (AddAgent) Type() Type         { return TypeAddAgent }
func (UpdateAgent) Type() Type      { return TypeUpdateAgent }
func (DeleteAgent) Type() Type      { return TypeDeleteAgent }
func (AddAdmin) Type() Type         { return TypeAddAdmin }
func (UpdateAdmin) Type() Type      { return TypeUpdateAdmin }
func (DeleteAdmin) Type() Type      { return TypeDeleteAdmin }
func (u Unknown) Type() Type        { return u.Kind }

func (SetState) isAction()         {}
func (AddCustomer) isAction()      {}
func (BulkAddCustomers) isAction() {}
func (UpdateCustomer) isAction()   {}
func (DeleteCustomer) isAction()   {}
func (AddRequest) isAction()       {}
func (UpdateRequest) isAction()    {}
func (DeleteRequest) isAction()    {}
func (ApproveRequest) isAction()   {}
func (RejectRequest) isAction()    {}
func (SendMessage) isAction()      {}
func (UpdateMessage) isAction()    {}
func (DeleteMessage) isAction()    {}
func (MarkMessagesRead) isAction() {}
func (AddPayment) isAction()       {}
func (UpdatePayment) isAction()    {}
func (DeletePayment) isAction()    {}
func (AddClaim) isAction()         {}
func (UpdateClaim) isAction()      {}
func (DeleteClaim) isAction()      {}
func (AddAgent) isAction()         {}
func (UpdateAgent) isAction()      {}
func (DeleteAgent) isAction()      {}
func (AddAdmin) isAction()         {}
func (UpdateAdmin) isAction()      {}
func (DeleteAdmin) isAction()      {}
func (Unknown) isAction()          {}

// StampOrigin returns a copy of a with every record it creates tagged with o.
// Actions that create nothing are returned unchanged.
func StampOrigin(a Action, o models.Origin) Action {
	switch act := a.(type) {
	case AddCustomer:
		act.Origin = o
		return act
	case BulkAddCustomers:
		customers := make([]models.Customer, len(act.Customers))
		for i, c := range act.Customers {
			c.Origin = o
			customers[i] = c
		}
		return BulkAddCustomers{Customers: customers}
	case AddRequest:
		act.Origin = o
		return act
	case ApproveRequest:
		act.Origin = o
		return act
	case SendMessage:
		act.Origin = o
		return act
	case AddPayment:
		act.Origin = o
		return act
	case AddClaim:
		act.Origin = o
		return act
	case AddAgent:
		act.Origin = o
		return act
	case AddAdmin:
		act.Origin = o
		return act
	}
	return a
}
