package models

import (
	"time"
)

// Collection names a synced collection. The same names are used for the
// in-memory state, the remote tables and the realtime channels.
type Collection string

const (
	CollectionCustomers Collection = "customers"
	CollectionRequests  Collection = "requests"
	CollectionMessages  Collection = "messages"
	CollectionPayments  Collection = "payments"
	CollectionClaims    Collection = "claims"
	CollectionAgents    Collection = "agents"
	CollectionAdmins    Collection = "admins"
)

// Collections lists every synced collection in load order.
var Collections = []Collection{
	CollectionCustomers,
	CollectionRequests,
	CollectionMessages,
	CollectionPayments,
	CollectionClaims,
	CollectionAgents,
	CollectionAdmins,
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// Origin records where a record created during a session came from.
// Records loaded at startup or on refresh carry no origin.
type Origin string

const (
	OriginNone   Origin = ""
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// PolicyStatus is the status of a customer's policy
type PolicyStatus string

const (
	PolicyActive    PolicyStatus = "Active"
	PolicySuspended PolicyStatus = "Suspended"
	PolicyPending   PolicyStatus = "Pending"
	PolicyCancelled PolicyStatus = "Cancelled"
)

// RequestType is the kind of change a customer asked for
type RequestType string

const (
	RequestMakePayment RequestType = "make_payment"
	RequestNewPolicy   RequestType = "new_policy"
	RequestClaim       RequestType = "claim"
	RequestUpdateInfo  RequestType = "update_info"
)

// RequestStatus tracks a request through review
type RequestStatus string

const (
	RequestPending  RequestStatus = "Pending"
	RequestApproved RequestStatus = "Approved"
	RequestRejected RequestStatus = "Rejected"
)

// MessageStatus is the read state of a message
type MessageStatus string

const (
	MessageUnread MessageStatus = "unread"
	MessageRead   MessageStatus = "read"
)

// ClaimStatus tracks a claim
type ClaimStatus string

const (
	ClaimOpen     ClaimStatus = "Open"
	ClaimApproved ClaimStatus = "Approved"
	ClaimDenied   ClaimStatus = "Denied"
	ClaimClosed   ClaimStatus = "Closed"
)

// Customer is a policy holder. Each customer row carries exactly one policy,
// so policy status transitions are customer status transitions.
type Customer struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	Email             string       `json:"email,omitempty"`
	Phone             string       `json:"phone,omitempty"`
	AgentID           int64        `json:"agent_id,omitempty"`
	PolicyNumber      string       `json:"policy_number,omitempty"`
	PolicyType        string       `json:"policy_type,omitempty"`
	Status            PolicyStatus `json:"status"`
	Premium           float64      `json:"premium,omitempty"`
	LastPaymentDate   *time.Time   `json:"last_payment_date,omitempty"`
	LastPaymentAmount float64      `json:"last_payment_amount,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	Origin            Origin       `json:"origin,omitempty"`
}

// PolicyDraft is the policy a new-policy request asks to create
type PolicyDraft struct {
	Name         string  `json:"name"`
	Email        string  `json:"email,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	AgentID      int64   `json:"agent_id,omitempty"`
	PolicyNumber string  `json:"policy_number"`
	PolicyType   string  `json:"policy_type,omitempty"`
	Premium      float64 `json:"premium,omitempty"`
}

// Request is a customer request awaiting agent or admin review
type Request struct {
	ID               int64         `json:"id"`
	CustomerID       int64         `json:"customer_id,omitempty"`
	Kind             RequestType   `json:"type"`
	Status           RequestStatus `json:"status"`
	Amount           float64       `json:"amount,omitempty"`
	Draft            *PolicyDraft  `json:"draft,omitempty"`
	Note             string        `json:"note,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy       int64         `json:"resolved_by,omitempty"`
	ResultCustomerID int64         `json:"result_customer_id,omitempty"`
	Origin           Origin        `json:"origin,omitempty"`
}

// Message is a direct message between two users
type Message struct {
	ID         int64         `json:"id"`
	SenderID   int64         `json:"sender_id"`
	ReceiverID int64         `json:"receiver_id"`
	Body       string        `json:"body"`
	Status     MessageStatus `json:"status"`
	SentAt     time.Time     `json:"sent_at"`
	Origin     Origin        `json:"origin,omitempty"`
}

// Payment is a recorded premium payment
type Payment struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Amount     float64   `json:"amount"`
	Method     string    `json:"method,omitempty"`
	PaidAt     time.Time `json:"paid_at"`
	Origin     Origin    `json:"origin,omitempty"`
}

// Claim is an insurance claim filed against a customer's policy
type Claim struct {
	ID          int64       `json:"id"`
	CustomerID  int64       `json:"customer_id"`
	Description string      `json:"description"`
	Amount      float64     `json:"amount,omitempty"`
	Status      ClaimStatus `json:"status"`
	FiledAt     time.Time   `json:"filed_at"`
	Origin      Origin      `json:"origin,omitempty"`
}

// Agent is an insurance agent account
type Agent struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Active bool   `json:"active"`
	Origin Origin `json:"origin,omitempty"`
}

// Admin is a back-office administrator account
type Admin struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Origin Origin `json:"origin,omitempty"`
}

// Identifier accessors let the reducer treat every collection the same way.

func (c Customer) Key() int64 { return c.ID }
func (r Request) Key() int64  { return r.ID }
func (m Message) Key() int64  { return m.ID }
func (p Payment) Key() int64  { return p.ID }
func (c Claim) Key() int64    { return c.ID }
func (a Agent) Key() int64    { return a.ID }
func (a Admin) Key() int64    { return a.ID }
