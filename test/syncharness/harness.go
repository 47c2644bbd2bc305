// Package syncharness runs several instances against one remote store and
// one broadcast hub so tests can drive them and check that they converge.
package syncharness

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/marcus/agencysync/internal/broadcast"
	"github.com/marcus/agencysync/internal/gateway"
	"github.com/marcus/agencysync/internal/models"
	"github.com/marcus/agencysync/internal/netstatus"
	"github.com/marcus/agencysync/internal/orchestrator"
	"github.com/marcus/agencysync/internal/queue"
	"github.com/marcus/agencysync/internal/state"
)

const channelName = "agency-sync"

// ignoredFields are excluded from convergence checks. origin records how a
// record reached an instance, so it differs between instances by design.
var ignoredFields = []string{"origin"}

// convergeTimeout bounds how long AssertConverged waits for broadcasts,
// remote writes and realtime changes in flight to settle.
const convergeTimeout = 3 * time.Second

// SimulatedInstance is one instance with its own queue file and monitor.
type SimulatedInstance struct {
	ID        string
	Orch      *orchestrator.Orchestrator
	Queue     *queue.Queue
	Monitor   *netstatus.Monitor
	QueuePath string

	channel *broadcast.HubChannel
	running bool
}

// Harness owns the shared remote store and broadcast hub.
type Harness struct {
	t         *testing.T
	dir       string
	Remote    *gateway.Memory
	Hub       *broadcast.Hub
	Instances map[string]*SimulatedInstance
	order     []string
}

// NewHarness starts numInstances instances named instance-A, instance-B, ...
func NewHarness(t *testing.T, numInstances int) *Harness {
	t.Helper()

	h := &Harness{
		t:         t,
		dir:       t.TempDir(),
		Remote:    gateway.NewMemory(),
		Hub:       broadcast.NewHub(),
		Instances: make(map[string]*SimulatedInstance),
	}
	t.Cleanup(func() {
		for _, id := range h.order {
			if inst := h.Instances[id]; inst.running {
				inst.close()
			}
		}
	})
	for i := 0; i < numInstances; i++ {
		h.Start(fmt.Sprintf("instance-%c", 'A'+i))
	}
	return h
}

// Start launches the named instance, or relaunches it after Stop with the
// same queue file.
func (h *Harness) Start(id string) *SimulatedInstance {
	h.t.Helper()

	inst, seen := h.Instances[id]
	if seen && inst.running {
		h.t.Fatalf("start %s: already running", id)
	}
	if !seen {
		inst = &SimulatedInstance{ID: id, QueuePath: filepath.Join(h.dir, id, "queue.db")}
		h.Instances[id] = inst
		h.order = append(h.order, id)
	}

	q, err := queue.Open(inst.QueuePath, queue.Options{})
	if err != nil {
		h.t.Fatalf("open queue %s: %v", id, err)
	}
	inst.Queue = q
	inst.channel = h.Hub.Channel(channelName)
	inst.Monitor = netstatus.New(nil, time.Second)
	inst.Orch = orchestrator.New(
		orchestrator.Deps{Gateway: h.Remote, Queue: q, Channel: inst.channel, Monitor: inst.Monitor},
		orchestrator.Options{PersistTimeout: time.Second, SourceID: id},
	)
	if err := inst.Orch.Start(context.Background()); err != nil {
		h.t.Fatalf("start %s: %v", id, err)
	}
	inst.running = true
	return inst
}

// Stop shuts the named instance down. Its queue file stays for Start.
func (h *Harness) Stop(id string) {
	h.t.Helper()
	h.instance(id).close()
}

func (inst *SimulatedInstance) close() {
	inst.Orch.Close()
	inst.channel.Close()
	inst.Queue.Close()
	inst.running = false
}

func (h *Harness) instance(id string) *SimulatedInstance {
	h.t.Helper()
	inst, ok := h.Instances[id]
	if !ok || !inst.running {
		h.t.Fatalf("instance %s is not running", id)
	}
	return inst
}

// Dispatch applies a on the named instance.
func (h *Harness) Dispatch(id string, a state.Action) error {
	return h.instance(id).Orch.Dispatch(context.Background(), a)
}

// GoOffline forces the named instance offline. The remote store stays up
// for everyone else.
func (h *Harness) GoOffline(id string) {
	h.t.Helper()
	h.instance(id).Orch.SetOnline(false)
}

// GoOnline hands the named instance back to automatic detection, which for
// a harness instance means online. The reconnect triggers a replay.
func (h *Harness) GoOnline(id string) {
	h.t.Helper()
	inst := h.instance(id)
	inst.Orch.SetOnline(true)
	inst.Orch.ReleaseOnline()
}

// QueueLen returns how many actions the named instance has waiting.
func (h *Harness) QueueLen(id string) int {
	h.t.Helper()
	n, err := h.instance(id).Queue.Len(context.Background())
	if err != nil {
		h.t.Fatalf("queue len %s: %v", id, err)
	}
	return n
}

// RemoteCount returns how many records the remote store holds in c.
func (h *Harness) RemoteCount(c models.Collection) int {
	h.t.Helper()
	records, err := h.Remote.LoadCollection(context.Background(), c)
	if err != nil {
		h.t.Fatalf("load remote %s: %v", c, err)
	}
	return len(records)
}

// RemoteDoc decodes the record with id in collection c of the remote store
// into v, reporting whether it exists.
func (h *Harness) RemoteDoc(c models.Collection, id int64, v any) bool {
	h.t.Helper()
	records, err := h.Remote.LoadCollection(context.Background(), c)
	if err != nil {
		h.t.Fatalf("load remote %s: %v", c, err)
	}
	for _, r := range records {
		if r.ID != id {
			continue
		}
		if err := json.Unmarshal(r.Data, v); err != nil {
			h.t.Fatalf("decode remote %s/%d: %v", c, id, err)
		}
		return true
	}
	return false
}

// Snapshot returns the named instance's state.
func (h *Harness) Snapshot(id string) state.AppState {
	h.t.Helper()
	return h.instance(id).Orch.Snapshot()
}

// WaitFor polls cond until it holds or the timeout passes.
func (h *Harness) WaitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(convergeTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// AssertConverged waits until every running instance and the remote store
// hold the same records, and fails with a diff if they never do.
func (h *Harness) AssertConverged() {
	h.t.Helper()

	var last string
	deadline := time.Now().Add(convergeTimeout)
	for {
		diff, err := h.divergence()
		if err != nil {
			h.t.Fatalf("converge: %v", err)
		}
		if diff == "" {
			return
		}
		last = diff
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.t.Fatalf("instances did not converge:\n%s", last)
}

// divergence compares every running instance against the remote store and
// describes every collection that differs.
func (h *Harness) divergence() (string, error) {
	remote, err := h.dumpRemote()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, id := range h.order {
		inst := h.Instances[id]
		if !inst.running {
			continue
		}
		local, err := dumpState(inst.Orch.Snapshot())
		if err != nil {
			return "", fmt.Errorf("%s: %w", id, err)
		}
		for _, c := range models.Collections {
			if local[c] != remote[c] {
				fmt.Fprintf(&b, "--- %s %s\n%s+++ remote %s\n%s", id, c, local[c], c, remote[c])
			}
		}
	}
	return b.String(), nil
}

// Diff returns a readable comparison of two instances, empty when they hold
// the same records.
func (h *Harness) Diff(a, b string) string {
	h.t.Helper()
	da, err := dumpState(h.Snapshot(a))
	if err != nil {
		h.t.Fatalf("dump %s: %v", a, err)
	}
	db, err := dumpState(h.Snapshot(b))
	if err != nil {
		h.t.Fatalf("dump %s: %v", b, err)
	}
	var out strings.Builder
	for _, c := range models.Collections {
		if da[c] != db[c] {
			fmt.Fprintf(&out, "--- %s %s\n%s+++ %s %s\n%s", a, c, da[c], b, c, db[c])
		}
	}
	return out.String()
}

func (h *Harness) dumpRemote() (map[models.Collection]string, error) {
	out := make(map[models.Collection]string, len(models.Collections))
	for _, c := range models.Collections {
		records, err := h.Remote.LoadCollection(context.Background(), c)
		if err != nil {
			return nil, fmt.Errorf("load remote %s: %w", c, err)
		}
		docs := make([]json.RawMessage, 0, len(records))
		for _, r := range records {
			docs = append(docs, r.Data)
		}
		if out[c], err = dumpDocs(docs); err != nil {
			return nil, fmt.Errorf("remote %s: %w", c, err)
		}
	}
	return out, nil
}

func dumpState(s state.AppState) (map[models.Collection]string, error) {
	out := make(map[models.Collection]string, len(models.Collections))
	for _, c := range models.Collections {
		v, _ := s.Collection(c)
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var docs []json.RawMessage
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, err
		}
		if out[c], err = dumpDocs(docs); err != nil {
			return nil, fmt.Errorf("%s: %w", c, err)
		}
	}
	return out, nil
}

// dumpDocs renders documents one per line, sorted by id, with ignored
// fields removed. Re-encoding a map sorts its keys, so equal records render
// identically.
func dumpDocs(docs []json.RawMessage) (string, error) {
	type row struct {
		id   int64
		line string
	}
	rows := make([]row, 0, len(docs))
	for _, d := range docs {
		var m map[string]any
		if err := json.Unmarshal(d, &m); err != nil {
			return "", err
		}
		for _, f := range ignoredFields {
			delete(m, f)
		}
		id, _ := m["id"].(float64)
		line, err := json.Marshal(m)
		if err != nil {
			return "", err
		}
		rows = append(rows, row{int64(id), string(line)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(r.line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
