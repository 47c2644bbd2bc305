package state

import (
	"encoding/json"
	"fmt"

	"github.com/marcus/agencysync/internal/models"
)

// Op is the kind of remote write a change needs.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Change is one record that must be written to (or removed from) the remote
// store after an action has been applied.
type Change struct {
	Collection models.Collection
	ID         int64
	Op         Op
	Record     any // nil for deletes
}

// Document encodes the changed record as stored remotely. The origin tag is
// session-local and is left out.
func (c Change) Document() (json.RawMessage, error) {
	var rec any
	switch r := c.Record.(type) {
	case models.Customer:
		r.Origin = models.OriginNone
		rec = r
	case models.Request:
		r.Origin = models.OriginNone
		rec = r
	case models.Message:
		r.Origin = models.OriginNone
		rec = r
	case models.Payment:
		r.Origin = models.OriginNone
		rec = r
	case models.Claim:
		r.Origin = models.OriginNone
		rec = r
	case models.Agent:
		r.Origin = models.OriginNone
		rec = r
	case models.Admin:
		r.Origin = models.OriginNone
		rec = r
	default:
		return nil, fmt.Errorf("document for %s/%d: unexpected record %T", c.Collection, c.ID, c.Record)
	}
	return json.Marshal(rec)
}

func upsertOf[T keyed](c models.Collection, list []T, ids ...int64) []Change {
	var out []Change
	for _, id := range ids {
		if rec, ok := find(list, id); ok {
			out = append(out, Change{Collection: c, ID: id, Op: OpUpsert, Record: rec})
		}
	}
	return out
}

func deleteOf(c models.Collection, id int64) []Change {
	return []Change{{Collection: c, ID: id, Op: OpDelete}}
}

// Affected selects the records a has touched, read from s, the state after a
// was applied. It reads the current records rather than the action payload so
// derived changes are included, and so replaying an action that was already
// applied locally still yields the writes the remote store is missing.
//
// SetState and unknown actions affect nothing remotely.
func Affected(s AppState, a Action) []Change {
	switch act := a.(type) {
	case AddCustomer:
		return upsertOf(models.CollectionCustomers, s.Customers, act.ID)
	case UpdateCustomer:
		return upsertOf(models.CollectionCustomers, s.Customers, act.ID)
	case BulkAddCustomers:
		ids := make([]int64, 0, len(act.Customers))
		for _, c := range act.Customers {
			ids = append(ids, c.ID)
		}
		return upsertOf(models.CollectionCustomers, s.Customers, ids...)
	case DeleteCustomer:
		return deleteOf(models.CollectionCustomers, act.ID)

	case AddRequest:
		return upsertOf(models.CollectionRequests, s.Requests, act.ID)
	case UpdateRequest:
		return upsertOf(models.CollectionRequests, s.Requests, act.ID)
	case DeleteRequest:
		return deleteOf(models.CollectionRequests, act.ID)
	case RejectRequest:
		return upsertOf(models.CollectionRequests, s.Requests, act.RequestID)
	case ApproveRequest:
		changes := upsertOf(models.CollectionRequests, s.Requests, act.RequestID)
		req, ok := find(s.Requests, act.RequestID)
		if !ok || req.Status != models.RequestApproved {
			return changes
		}
		switch req.Kind {
		case models.RequestMakePayment:
			changes = append(changes, upsertOf(models.CollectionCustomers, s.Customers, req.CustomerID)...)
		case models.RequestNewPolicy:
			changes = append(changes, upsertOf(models.CollectionCustomers, s.Customers, req.ResultCustomerID)...)
		}
		return changes

	case SendMessage:
		return upsertOf(models.CollectionMessages, s.Messages, act.ID)
	case UpdateMessage:
		return upsertOf(models.CollectionMessages, s.Messages, act.ID)
	case DeleteMessage:
		return deleteOf(models.CollectionMessages, act.ID)
	case MarkMessagesRead:
		var changes []Change
		for _, m := range s.Messages {
			if m.SenderID == act.CounterpartyID && m.ReceiverID == act.ViewerID && m.Status == models.MessageRead {
				changes = append(changes, Change{Collection: models.CollectionMessages, ID: m.ID, Op: OpUpsert, Record: m})
			}
		}
		return changes

	case AddPayment:
		return upsertOf(models.CollectionPayments, s.Payments, act.ID)
	case UpdatePayment:
		return upsertOf(models.CollectionPayments, s.Payments, act.ID)
	case DeletePayment:
		return deleteOf(models.CollectionPayments, act.ID)

	case AddClaim:
		return upsertOf(models.CollectionClaims, s.Claims, act.ID)
	case UpdateClaim:
		return upsertOf(models.CollectionClaims, s.Claims, act.ID)
	case DeleteClaim:
		return deleteOf(models.CollectionClaims, act.ID)

	case AddAgent:
		return upsertOf(models.CollectionAgents, s.Agents, act.ID)
	case UpdateAgent:
		return upsertOf(models.CollectionAgents, s.Agents, act.ID)
	case DeleteAgent:
		return deleteOf(models.CollectionAgents, act.ID)

	case AddAdmin:
		return upsertOf(models.CollectionAdmins, s.Admins, act.ID)
	case UpdateAdmin:
		return upsertOf(models.CollectionAdmins, s.Admins, act.ID)
	case DeleteAdmin:
		return deleteOf(models.CollectionAdmins, act.ID)
	}
	return nil
}

// RemoteAction translates a realtime notification for collection c into the
// action that applies it locally. data is the record document; it is unused
// for deletes.
func RemoteAction(c models.Collection, op RemoteOp, id int64, data json.RawMessage) (Action, error) {
	if op == RemoteDelete {
		return deleteAction(c, id)
	}
	switch c {
	case models.CollectionCustomers:
		return recordAction[models.Customer](data, op,
			func(v models.Customer) Action { return AddCustomer(v) },
			func(v models.Customer) Action { return UpdateCustomer(v) })
	case models.CollectionRequests:
		return recordAction[models.Request](data, op,
			func(v models.Request) Action { return AddRequest(v) },
			func(v models.Request) Action { return UpdateRequest(v) })
	case models.CollectionMessages:
		return recordAction[models.Message](data, op,
			func(v models.Message) Action { return SendMessage(v) },
			func(v models.Message) Action { return UpdateMessage(v) })
	case models.CollectionPayments:
		return recordAction[models.Payment](data, op,
			func(v models.Payment) Action { return AddPayment(v) },
			func(v models.Payment) Action { return UpdatePayment(v) })
	case models.CollectionClaims:
		return recordAction[models.Claim](data, op,
			func(v models.Claim) Action { return AddClaim(v) },
			func(v models.Claim) Action { return UpdateClaim(v) })
	case models.CollectionAgents:
		return recordAction[models.Agent](data, op,
			func(v models.Agent) Action { return AddAgent(v) },
			func(v models.Agent) Action { return UpdateAgent(v) })
	case models.CollectionAdmins:
		return recordAction[models.Admin](data, op,
			func(v models.Admin) Action { return AddAdmin(v) },
			func(v models.Admin) Action { return UpdateAdmin(v) })
	}
	return nil, fmt.Errorf("remote action: unknown collection %q", c)
}

// RemoteOp is the kind of change a realtime notification reports.
type RemoteOp string

const (
	RemoteInsert RemoteOp = "insert"
	RemoteUpdate RemoteOp = "update"
	RemoteDelete RemoteOp = "delete"
)

func recordAction[T any](data json.RawMessage, op RemoteOp, onInsert, onUpdate func(T) Action) (Action, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", op, err)
	}
	if op == RemoteInsert {
		return onInsert(v), nil
	}
	return onUpdate(v), nil
}

func deleteAction(c models.Collection, id int64) (Action, error) {
	switch c {
	case models.CollectionCustomers:
		return DeleteCustomer{ID: id}, nil
	case models.CollectionRequests:
		return DeleteRequest{ID: id}, nil
	case models.CollectionMessages:
		return DeleteMessage{ID: id}, nil
	case models.CollectionPayments:
		return DeletePayment{ID: id}, nil
	case models.CollectionClaims:
		return DeleteClaim{ID: id}, nil
	case models.CollectionAgents:
		return DeleteAgent{ID: id}, nil
	case models.CollectionAdmins:
		return DeleteAdmin{ID: id}, nil
	}
	return nil, fmt.Errorf("remote delete: unknown collection %q", c)
}

// Seed builds the SetState that loads raw collection documents, as returned
// by a full fetch, into state.
func Seed(docs map[models.Collection][]json.RawMessage) (SetState, error) {
	var s SetState
	var err error
	if s.Customers, err = decodeAll[models.Customer](docs[models.CollectionCustomers]); err != nil {
		return SetState{}, fmt.Errorf("seed customers: %w", err)
	}
	if s.Requests, err = decodeAll[models.Request](docs[models.CollectionRequests]); err != nil {
		return SetState{}, fmt.Errorf("seed requests: %w", err)
	}
	if s.Messages, err = decodeAll[models.Message](docs[models.CollectionMessages]); err != nil {
		return SetState{}, fmt.Errorf("seed messages: %w", err)
	}
	if s.Payments, err = decodeAll[models.Payment](docs[models.CollectionPayments]); err != nil {
		return SetState{}, fmt.Errorf("seed payments: %w", err)
	}
	if s.Claims, err = decodeAll[models.Claim](docs[models.CollectionClaims]); err != nil {
		return SetState{}, fmt.Errorf("seed claims: %w", err)
	}
	if s.Agents, err = decodeAll[models.Agent](docs[models.CollectionAgents]); err != nil {
		return SetState{}, fmt.Errorf("seed agents: %w", err)
	}
	if s.Admins, err = decodeAll[models.Admin](docs[models.CollectionAdmins]); err != nil {
		return SetState{}, fmt.Errorf("seed admins: %w", err)
	}
	clearOrigins(&s)
	return s, nil
}

// clearOrigins drops origin tags persisted by earlier sessions; a freshly
// loaded record was not created during this one.
func clearOrigins(s *SetState) {
	for i := range s.Customers {
		s.Customers[i].Origin = models.OriginNone
	}
	for i := range s.Requests {
		s.Requests[i].Origin = models.OriginNone
	}
	for i := range s.Messages {
		s.Messages[i].Origin = models.OriginNone
	}
	for i := range s.Payments {
		s.Payments[i].Origin = models.OriginNone
	}
	for i := range s.Claims {
		s.Claims[i].Origin = models.OriginNone
	}
	for i := range s.Agents {
		s.Agents[i].Origin = models.OriginNone
	}
	for i := range s.Admins {
		s.Admins[i].Origin = models.OriginNone
	}
}

func decodeAll[T any](docs []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
