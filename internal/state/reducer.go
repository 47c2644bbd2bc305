package state

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/marcus/agencysync/internal/models"
)

// Reduce applies a to s and returns the new state. It is pure and total:
// actions it does not recognise return s unchanged.
//
// Conflict rules: inserts keep the first record applied for an id, replaces
// keep the last one, deletes and approvals are idempotent.
func Reduce(s AppState, a Action) AppState {
	switch act := a.(type) {
	case SetState:
		return AppState{
			Customers: dedupe(act.Customers),
			Requests:  dedupe(act.Requests),
			Messages:  dedupe(act.Messages),
			Payments:  dedupe(act.Payments),
			Claims:    dedupe(act.Claims),
			Agents:    dedupe(act.Agents),
			Admins:    dedupe(act.Admins),
		}

	case AddCustomer:
		s.Customers = insert(s.Customers, models.Customer(act))
	case BulkAddCustomers:
		s.Customers = bulkInsert(s.Customers, act.Customers)
	case UpdateCustomer:
		s.Customers = replace(s.Customers, models.Customer(act))
	case DeleteCustomer:
		s.Customers = remove(s.Customers, act.ID)

	case AddRequest:
		s.Requests = insert(s.Requests, models.Request(act))
	case UpdateRequest:
		s.Requests = replace(s.Requests, models.Request(act))
	case DeleteRequest:
		s.Requests = remove(s.Requests, act.ID)
	case ApproveRequest:
		return approveRequest(s, act)
	case RejectRequest:
		return rejectRequest(s, act)

	case SendMessage:
		s.Messages = insert(s.Messages, models.Message(act))
	case UpdateMessage:
		s.Messages = replace(s.Messages, models.Message(act))
	case DeleteMessage:
		s.Messages = remove(s.Messages, act.ID)
	case MarkMessagesRead:
		s.Messages = markRead(s.Messages, act.CounterpartyID, act.ViewerID)

	case AddPayment:
		s.Payments = insert(s.Payments, models.Payment(act))
	case UpdatePayment:
		s.Payments = replace(s.Payments, models.Payment(act))
	case DeletePayment:
		s.Payments = remove(s.Payments, act.ID)

	case AddClaim:
		s.Claims = insert(s.Claims, models.Claim(act))
	case UpdateClaim:
		s.Claims = replace(s.Claims, models.Claim(act))
	case DeleteClaim:
		s.Claims = remove(s.Claims, act.ID)

	case AddAgent:
		s.Agents = insert(s.Agents, models.Agent(act))
	case UpdateAgent:
		s.Agents = replace(s.Agents, models.Agent(act))
	case DeleteAgent:
		s.Agents = remove(s.Agents, act.ID)

	case AddAdmin:
		s.Admins = insert(s.Admins, models.Admin(act))
	case UpdateAdmin:
		s.Admins = replace(s.Admins, models.Admin(act))
	case DeleteAdmin:
		s.Admins = remove(s.Admins, act.ID)
	}
	return s
}

// bulkInsert appends every incoming customer whose id is neither in existing
// nor earlier in the batch. The id set is built once for the whole batch.
func bulkInsert(existing, incoming []models.Customer) []models.Customer {
	seen := mapset.NewThreadUnsafeSetWithSize[int64](len(existing) + len(incoming))
	for _, c := range existing {
		seen.Add(c.ID)
	}
	var fresh []models.Customer
	for _, c := range incoming {
		if !seen.Add(c.ID) {
			continue
		}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return existing
	}
	out := make([]models.Customer, 0, len(existing)+len(fresh))
	out = append(out, existing...)
	return append(out, fresh...)
}

func markRead(msgs []models.Message, counterpartyID, viewerID int64) []models.Message {
	var out []models.Message
	for i, m := range msgs {
		if m.SenderID != counterpartyID || m.ReceiverID != viewerID || m.Status != models.MessageUnread {
			continue
		}
		if out == nil {
			out = make([]models.Message, len(msgs))
			copy(out, msgs)
		}
		m.Status = models.MessageRead
		out[i] = m
	}
	if out == nil {
		return msgs
	}
	return out
}

func approveRequest(s AppState, act ApproveRequest) AppState {
	i := indexOf(s.Requests, act.RequestID)
	if i < 0 {
		return s
	}
	req := s.Requests[i]
	if req.Status != models.RequestPending {
		return s
	}

	at := act.ApprovedAt
	req.ResolvedAt = &at
	req.ResolvedBy = act.ApprovedBy
	req.Status = models.RequestApproved

	switch req.Kind {
	case models.RequestMakePayment:
		j := indexOf(s.Customers, req.CustomerID)
		if j < 0 {
			req.Status = models.RequestRejected
			req.Note = fmt.Sprintf("customer %d not found", req.CustomerID)
			break
		}
		c := s.Customers[j]
		c.Status = models.PolicyActive
		c.LastPaymentDate = &at
		c.LastPaymentAmount = req.Amount
		s.Customers = replaceAt(s.Customers, j, c)

	case models.RequestNewPolicy:
		if reason := validateDraft(s.Customers, req.Draft); reason != "" {
			req.Status = models.RequestRejected
			req.Note = reason
			break
		}
		d := req.Draft
		c := models.Customer{
			ID:           nextID(s.Customers),
			Name:         d.Name,
			Email:        d.Email,
			Phone:        d.Phone,
			AgentID:      d.AgentID,
			PolicyNumber: d.PolicyNumber,
			PolicyType:   d.PolicyType,
			Status:       models.PolicyActive,
			Premium:      d.Premium,
			CreatedAt:    at,
			Origin:       act.Origin,
		}
		s.Customers = insert(s.Customers, c)
		req.ResultCustomerID = c.ID
	}

	s.Requests = replaceAt(s.Requests, i, req)
	return s
}

// validateDraft returns why draft cannot become a policy, or "" if it can.
func validateDraft(customers []models.Customer, draft *models.PolicyDraft) string {
	if draft == nil {
		return "request has no policy draft"
	}
	number := strings.TrimSpace(draft.PolicyNumber)
	if number == "" {
		return "policy draft has no policy number"
	}
	if strings.TrimSpace(draft.Name) == "" {
		return "policy draft has no holder name"
	}
	for _, c := range customers {
		if strings.EqualFold(c.PolicyNumber, number) {
			return fmt.Sprintf("policy number %s already belongs to customer %d", number, c.ID)
		}
	}
	return ""
}

func rejectRequest(s AppState, act RejectRequest) AppState {
	i := indexOf(s.Requests, act.RequestID)
	if i < 0 {
		return s
	}
	req := s.Requests[i]
	if req.Status != models.RequestPending {
		return s
	}
	at := act.RejectedAt
	req.Status = models.RequestRejected
	req.Note = act.Note
	req.ResolvedAt = &at
	req.ResolvedBy = act.RejectedBy
	s.Requests = replaceAt(s.Requests, i, req)
	return s
}
