package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/formdesk/flowengine/internal/application/dispatcher"
	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/domain/event"
	"github.com/formdesk/flowengine/internal/domain/form"
	"github.com/formdesk/flowengine/internal/domain/template"
)

type testLogger struct{}

func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}

// memTemplateRepo is an in-memory TemplateRepository
type memTemplateRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*template.Template
}

func newMemTemplateRepo() *memTemplateRepo {
	return &memTemplateRepo{nextID: 1, items: make(map[int64]*template.Template)}
}

func (r *memTemplateRepo) Create(_ context.Context, tpl *template.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tpl.ID = r.nextID
	r.nextID++
	clone := *tpl
	r.items[tpl.ID] = &clone
	return nil
}

func (r *memTemplateRepo) GetByID(_ context.Context, id int64) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tpl, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("template %d not found", id)
	}
	clone := *tpl
	return &clone, nil
}

func (r *memTemplateRepo) ListByTenant(_ context.Context, tenantID string, limit, offset int) ([]*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*template.Template
	for _, tpl := range r.items {
		if tpl.TenantID == tenantID {
			clone := *tpl
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memTemplateRepo) Update(_ context.Context, tpl *template.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[tpl.ID]; !ok {
		return fmt.Errorf("template %d not found", tpl.ID)
	}
	clone := *tpl
	r.items[tpl.ID] = &clone
	return nil
}

func (r *memTemplateRepo) MarkPublished(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tpl, ok := r.items[id]
	if !ok {
		return fmt.Errorf("template %d not found", id)
	}
	tpl.Published = true
	return nil
}

// memInstanceRepo is an in-memory InstanceRepository
type memInstanceRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*form.Instance
}

func newMemInstanceRepo() *memInstanceRepo {
	return &memInstanceRepo{nextID: 1, items: make(map[int64]*form.Instance)}
}

func (r *memInstanceRepo) Create(_ context.Context, inst *form.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst.ID = r.nextID
	r.nextID++
	clone := *inst
	r.items[inst.ID] = &clone
	return nil
}

func (r *memInstanceRepo) GetByID(_ context.Context, id int64) (*form.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("instance %d not found", id)
	}
	clone := *inst
	return &clone, nil
}

func (r *memInstanceRepo) GetForUpdate(ctx context.Context, id int64) (*form.Instance, error) {
	return r.GetByID(ctx, id)
}

func (r *memInstanceRepo) Update(_ context.Context, inst *form.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[inst.ID]; !ok {
		return fmt.Errorf("instance %d not found", inst.ID)
	}
	clone := *inst
	r.items[inst.ID] = &clone
	return nil
}

func (r *memInstanceRepo) ListByTemplate(_ context.Context, templateID int64, limit, offset int) ([]*form.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*form.Instance
	for _, inst := range r.items {
		if inst.TemplateID == templateID {
			clone := *inst
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memInstanceRepo) ListOpen(_ context.Context, tenantID string, limit int) ([]*form.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*form.Instance
	for _, inst := range r.items {
		if inst.TenantID == tenantID && !inst.Status.IsTerminal() {
			clone := *inst
			out = append(out, &clone)
		}
	}
	return out, nil
}

// memHistoryRepo is an in-memory append-only HistoryRepository
type memHistoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries []*form.HistoryEntry
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{nextID: 1}
}

func (r *memHistoryRepo) Append(_ context.Context, entry *form.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = r.nextID
	r.nextID++
	clone := *entry
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *memHistoryRepo) ListByInstance(_ context.Context, instanceID int64) ([]*form.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*form.HistoryEntry
	for _, e := range r.entries {
		if e.InstanceID == instanceID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memHistoryRepo) CountByInstance(_ context.Context, instanceID int64) (int, error) {
	entries, _ := r.ListByInstance(context.Background(), instanceID)
	return len(entries), nil
}

// nopTxManager runs the function without a real transaction
type nopTxManager struct{}

func (nopTxManager) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// recordingBus captures dispatched events instead of routing them
type recordingBus struct {
	mu     sync.Mutex
	events []*event.Event
}

func (b *recordingBus) Subscribe(event.Type, dispatcher.Handler)                {}
func (b *recordingBus) SubscribeNamed(event.Type, string, dispatcher.Handler)  {}
func (b *recordingBus) Unsubscribe(event.Type, string)                         {}
func (b *recordingBus) ListHandlers(event.Type) []dispatcher.HandlerInfo       { return nil }
func (b *recordingBus) Close() error                                           { return nil }

func (b *recordingBus) Dispatch(_ context.Context, evt *event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return nil
}

func (b *recordingBus) DispatchAsync(ctx context.Context, evt *event.Event) {
	b.Dispatch(ctx, evt)
}

func (b *recordingBus) Types() []event.Type {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]event.Type, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

// directoryStub resolves roles to fixed users
type directoryStub struct {
	byRole map[string][]port.User
	byID   map[string]port.User
}

func (d *directoryStub) UsersWithRole(_ context.Context, _, role string) ([]port.User, error) {
	return d.byRole[role], nil
}

func (d *directoryStub) GetUser(_ context.Context, _, userID string) (*port.User, error) {
	u, ok := d.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	return &u, nil
}

// notifierStub records sent messages and can fail specific recipients
type notifierStub struct {
	mu   sync.Mutex
	sent []port.Message
	fail map[string]bool
}

func (n *notifierStub) Send(_ context.Context, msg port.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[msg.Recipient] {
		return fmt.Errorf("delivery to %s failed", msg.Recipient)
	}
	n.sent = append(n.sent, msg)
	return nil
}

// webhookStub records outbound calls
type webhookStub struct {
	mu    sync.Mutex
	calls []string
}

func (w *webhookStub) Call(_ context.Context, url string, _ port.WebhookEnvelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, url)
	return nil
}
