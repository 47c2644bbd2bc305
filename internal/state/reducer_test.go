package state

import (
	"testing"
	"time"

	"github.com/marcus/agencysync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func messageIDs(s AppState) []int64 {
	ids := make([]int64, 0, len(s.Messages))
	for _, m := range s.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestReduce_UpsertIsIdempotent(t *testing.T) {
	base := AppState{
		Customers: []models.Customer{{ID: 1, Name: "Ada", Status: models.PolicyActive}},
	}
	inserts := []Action{
		AddCustomer{ID: 2, Name: "Grace", Status: models.PolicyPending},
		AddRequest{ID: 7, CustomerID: 1, Kind: models.RequestClaim, Status: models.RequestPending},
		SendMessage{ID: 3, SenderID: 1, ReceiverID: 2, Body: "hi", Status: models.MessageUnread},
		AddPayment{ID: 4, CustomerID: 1, Amount: 120},
		AddClaim{ID: 5, CustomerID: 1, Description: "hail", Status: models.ClaimOpen},
		AddAgent{ID: 6, Name: "Lin", Active: true},
		AddAdmin{ID: 8, Name: "Root"},
		BulkAddCustomers{Customers: []models.Customer{{ID: 9}, {ID: 10}}},
	}
	for _, a := range inserts {
		t.Run(string(a.Type()), func(t *testing.T) {
			once := Reduce(base, a)
			twice := Reduce(once, a)
			assert.Equal(t, once, twice)
		})
	}
}

func TestReduce_InsertFirstAppliedWins(t *testing.T) {
	a1 := SendMessage{ID: 42, SenderID: 1, ReceiverID: 2, Body: "first", Status: models.MessageUnread}
	a2 := SendMessage{ID: 42, SenderID: 1, ReceiverID: 2, Body: "second", Status: models.MessageUnread}

	s := Reduce(Reduce(AppState{}, a1), a2)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "first", s.Messages[0].Body)

	s = Reduce(Reduce(AppState{}, a2), a1)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "second", s.Messages[0].Body)
}

func TestReduce_SendMessageTwiceKeepsOneEntry(t *testing.T) {
	msg := SendMessage{ID: 42, SenderID: 3, ReceiverID: 4, Body: "policy renewal", Status: models.MessageUnread, SentAt: t0}
	s := Reduce(AppState{}, msg)
	s = Reduce(s, msg)
	assert.Equal(t, []int64{42}, messageIDs(s))
}

func TestReduce_ReplaceLastAppliedWins(t *testing.T) {
	s := AppState{Agents: []models.Agent{{ID: 1, Name: "Lin", Active: true}, {ID: 2, Name: "Sam", Active: true}}}

	s = Reduce(s, UpdateAgent{ID: 1, Name: "Lin A.", Active: true})
	s = Reduce(s, UpdateAgent{ID: 1, Name: "Lin B.", Active: false})

	require.Len(t, s.Agents, 2)
	assert.Equal(t, models.Agent{ID: 1, Name: "Lin B.", Active: false}, s.Agents[0])
	assert.Equal(t, "Sam", s.Agents[1].Name)
}

func TestReduce_ReplaceMissIsNoop(t *testing.T) {
	s := AppState{Claims: []models.Claim{{ID: 1, Status: models.ClaimOpen}}}
	got := Reduce(s, UpdateClaim{ID: 99, Status: models.ClaimClosed})
	assert.Equal(t, s, got)
}

func TestReduce_DeleteIsIdempotent(t *testing.T) {
	s := AppState{Payments: []models.Payment{{ID: 1}, {ID: 2}, {ID: 3}}}
	once := Reduce(s, DeletePayment{ID: 2})
	twice := Reduce(once, DeletePayment{ID: 2})
	assert.Equal(t, []models.Payment{{ID: 1}, {ID: 3}}, twice.Payments)
	assert.Len(t, s.Payments, 3, "input state must not be modified")
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := AppState{Customers: []models.Customer{{ID: 1, Name: "Ada", Status: models.PolicySuspended}}}
	_ = Reduce(s, UpdateCustomer{ID: 1, Name: "Ada L.", Status: models.PolicyActive})
	assert.Equal(t, "Ada", s.Customers[0].Name)
	assert.Equal(t, models.PolicySuspended, s.Customers[0].Status)
}

func TestReduce_UnknownActionIsNoop(t *testing.T) {
	s := AppState{Admins: []models.Admin{{ID: 1, Name: "Root"}}}
	got := Reduce(s, Unknown{Kind: "OPEN_MODAL", Payload: []byte(`{"x":1}`)})
	assert.Equal(t, s, got)
}

func TestReduce_ApprovePaymentRequest(t *testing.T) {
	s := AppState{
		Customers: []models.Customer{{ID: 1, Name: "Ada", Status: models.PolicySuspended}},
		Requests: []models.Request{{
			ID: 10, CustomerID: 1, Kind: models.RequestMakePayment,
			Status: models.RequestPending, Amount: 250,
		}},
	}

	got := Reduce(s, ApproveRequest{RequestID: 10, ApprovedAt: t0, ApprovedBy: 5})

	require.Len(t, got.Customers, 1)
	c := got.Customers[0]
	assert.Equal(t, models.PolicyActive, c.Status)
	require.NotNil(t, c.LastPaymentDate)
	assert.Equal(t, t0, *c.LastPaymentDate)
	assert.Equal(t, 250.0, c.LastPaymentAmount)

	r := got.Requests[0]
	assert.Equal(t, models.RequestApproved, r.Status)
	assert.Equal(t, int64(5), r.ResolvedBy)
	require.NotNil(t, r.ResolvedAt)

	again := Reduce(got, ApproveRequest{RequestID: 10, ApprovedAt: t0.Add(time.Hour), ApprovedBy: 6})
	assert.Equal(t, got, again, "approving twice must not restamp")
}

func TestReduce_ApprovePaymentMissingCustomerRejects(t *testing.T) {
	s := AppState{Requests: []models.Request{{ID: 1, CustomerID: 77, Kind: models.RequestMakePayment, Status: models.RequestPending}}}
	got := Reduce(s, ApproveRequest{RequestID: 1, ApprovedAt: t0})
	assert.Equal(t, models.RequestRejected, got.Requests[0].Status)
	assert.NotEmpty(t, got.Requests[0].Note)
}

func TestReduce_ApproveNewPolicyCreatesCustomer(t *testing.T) {
	s := AppState{
		Customers: []models.Customer{
			{ID: 3, PolicyNumber: "POL-003", Status: models.PolicyActive},
			{ID: 8, PolicyNumber: "POL-008", Status: models.PolicyActive},
		},
		Requests: []models.Request{{
			ID: 1, Kind: models.RequestNewPolicy, Status: models.RequestPending,
			Draft: &models.PolicyDraft{Name: "Grace", PolicyNumber: "POL-100", PolicyType: "auto", Premium: 80},
		}},
	}

	got := Reduce(s, ApproveRequest{RequestID: 1, ApprovedAt: t0, Origin: models.OriginLocal})

	require.Len(t, got.Customers, 3)
	created := got.Customers[2]
	assert.Equal(t, int64(9), created.ID, "new id is max+1")
	assert.Equal(t, "POL-100", created.PolicyNumber)
	assert.Equal(t, models.PolicyActive, created.Status)
	assert.Equal(t, models.OriginLocal, created.Origin)
	assert.Equal(t, t0, created.CreatedAt)

	r := got.Requests[0]
	assert.Equal(t, models.RequestApproved, r.Status)
	assert.Equal(t, int64(9), r.ResultCustomerID)
}

func TestReduce_ApproveNewPolicyDuplicateNumberRejects(t *testing.T) {
	s := AppState{
		Customers: []models.Customer{{ID: 1, PolicyNumber: "POL-001", Status: models.PolicyActive}},
		Requests: []models.Request{{
			ID: 4, Kind: models.RequestNewPolicy, Status: models.RequestPending,
			Draft: &models.PolicyDraft{Name: "Dup", PolicyNumber: "pol-001"},
		}},
	}

	got := Reduce(s, ApproveRequest{RequestID: 4, ApprovedAt: t0})

	assert.Len(t, got.Customers, 1, "no policy may be created")
	r := got.Requests[0]
	assert.Equal(t, models.RequestRejected, r.Status)
	assert.NotEmpty(t, r.Note)
	assert.Zero(t, r.ResultCustomerID)
}

func TestReduce_ApproveNewPolicyWithoutDraftRejects(t *testing.T) {
	s := AppState{Requests: []models.Request{{ID: 1, Kind: models.RequestNewPolicy, Status: models.RequestPending}}}
	got := Reduce(s, ApproveRequest{RequestID: 1, ApprovedAt: t0})
	assert.Equal(t, models.RequestRejected, got.Requests[0].Status)
	assert.Empty(t, got.Customers)
}

func TestReduce_ApproveNewPolicyIntoEmptyCollection(t *testing.T) {
	s := AppState{Requests: []models.Request{{
		ID: 1, Kind: models.RequestNewPolicy, Status: models.RequestPending,
		Draft: &models.PolicyDraft{Name: "First", PolicyNumber: "POL-1"},
	}}}
	got := Reduce(s, ApproveRequest{RequestID: 1, ApprovedAt: t0})
	require.Len(t, got.Customers, 1)
	assert.Equal(t, int64(1), got.Customers[0].ID)
}

func TestReduce_RejectRequest(t *testing.T) {
	s := AppState{Requests: []models.Request{{ID: 2, Kind: models.RequestUpdateInfo, Status: models.RequestPending}}}
	got := Reduce(s, RejectRequest{RequestID: 2, Note: "missing documents", RejectedAt: t0, RejectedBy: 1})
	r := got.Requests[0]
	assert.Equal(t, models.RequestRejected, r.Status)
	assert.Equal(t, "missing documents", r.Note)

	// An already-resolved request cannot be approved afterwards.
	after := Reduce(got, ApproveRequest{RequestID: 2, ApprovedAt: t0})
	assert.Equal(t, got, after)
}

func TestReduce_MarkMessagesReadExactMatch(t *testing.T) {
	s := AppState{Messages: []models.Message{
		{ID: 1, SenderID: 7, ReceiverID: 2, Status: models.MessageUnread},
		{ID: 2, SenderID: 7, ReceiverID: 3, Status: models.MessageUnread},
		{ID: 3, SenderID: 2, ReceiverID: 7, Status: models.MessageUnread},
		{ID: 4, SenderID: 7, ReceiverID: 2, Status: models.MessageUnread},
		{ID: 5, SenderID: 17, ReceiverID: 2, Status: models.MessageUnread},
	}}

	got := Reduce(s, MarkMessagesRead{CounterpartyID: 7, ViewerID: 2})

	want := []models.MessageStatus{
		models.MessageRead, models.MessageUnread, models.MessageUnread,
		models.MessageRead, models.MessageUnread,
	}
	for i, m := range got.Messages {
		assert.Equal(t, want[i], m.Status, "message %d", m.ID)
	}
	assert.Equal(t, models.MessageUnread, s.Messages[0].Status, "input state must not be modified")
}

func TestReduce_MarkMessagesReadNoMatchKeepsSlice(t *testing.T) {
	s := AppState{Messages: []models.Message{{ID: 1, SenderID: 1, ReceiverID: 2, Status: models.MessageRead}}}
	got := Reduce(s, MarkMessagesRead{CounterpartyID: 1, ViewerID: 2})
	assert.Same(t, &s.Messages[0], &got.Messages[0])
}

func TestReduce_BulkAddFiltersExistingAndBatchDuplicates(t *testing.T) {
	s := AppState{Customers: []models.Customer{{ID: 1, Name: "Ada"}, {ID: 2, Name: "Grace"}}}
	got := Reduce(s, BulkAddCustomers{Customers: []models.Customer{
		{ID: 2, Name: "Grace again"},
		{ID: 3, Name: "Linus"},
		{ID: 3, Name: "Linus dup"},
		{ID: 4, Name: "Ken"},
	}})

	require.Len(t, got.Customers, 4)
	names := []string{}
	for _, c := range got.Customers {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Ada", "Grace", "Linus", "Ken"}, names)
}

func TestReduce_SetStateReplacesAndDedupes(t *testing.T) {
	s := AppState{Customers: []models.Customer{{ID: 1, Name: "stale"}}}
	got := Reduce(s, SetState{
		Customers: []models.Customer{{ID: 5, Name: "a"}, {ID: 5, Name: "b"}},
		Agents:    []models.Agent{{ID: 1}},
	})
	require.Len(t, got.Customers, 1)
	assert.Equal(t, "a", got.Customers[0].Name)
	assert.Len(t, got.Agents, 1)
	assert.Empty(t, got.Requests)
}

func TestReduce_OrderIndependentDuplicateSuppression(t *testing.T) {
	a1 := AddCustomer{ID: 11, Name: "same"}
	a2 := AddCustomer{ID: 11, Name: "same"}
	left := Reduce(Reduce(AppState{}, a1), a2)
	right := Reduce(Reduce(AppState{}, a2), a1)
	assert.Equal(t, left, right)
	assert.Len(t, left.Customers, 1)
}
