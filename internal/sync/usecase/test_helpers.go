package usecase

import (
	"context"
	"fmt"
	"time"

	"calsync/internal/model"
	"calsync/internal/provider"
)

// Mock logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, arg ...any)                    {}
func (m *mockLogger) Debugf(ctx context.Context, template string, arg ...any)  {}
func (m *mockLogger) Info(ctx context.Context, arg ...any)                     {}
func (m *mockLogger) Infof(ctx context.Context, template string, arg ...any)   {}
func (m *mockLogger) Warn(ctx context.Context, arg ...any)                     {}
func (m *mockLogger) Warnf(ctx context.Context, template string, arg ...any)   {}
func (m *mockLogger) Error(ctx context.Context, arg ...any)                    {}
func (m *mockLogger) Errorf(ctx context.Context, template string, arg ...any)  {}
func (m *mockLogger) Fatal(ctx context.Context, arg ...any)                    {}
func (m *mockLogger) Fatalf(ctx context.Context, template string, arg ...any)  {}
func (m *mockLogger) DPanic(ctx context.Context, arg ...any)                   {}
func (m *mockLogger) DPanicf(ctx context.Context, template string, arg ...any) {}
func (m *mockLogger) Panic(ctx context.Context, arg ...any)                    {}
func (m *mockLogger) Panicf(ctx context.Context, template string, arg ...any)  {}

// fakeClient is an in-memory provider.Client. Events live in a slice;
// the per-call function fields allow failure injection.
type fakeClient struct {
	collectionID string
	events       []*model.Event
	nextID       int

	listErr   error
	createErr error
	saveErr   error
	deleteErr error

	// onSave runs before each successful save, e.g. to cancel the pass
	// context mid-flight.
	onSave func(ev *model.Event)

	saved   []string
	deleted []string
	created []string
}

var _ provider.Client = (*fakeClient)(nil)

func newFakeClient(collectionID string, events ...*model.Event) *fakeClient {
	return &fakeClient{collectionID: collectionID, events: events}
}

func (f *fakeClient) CollectionID() string { return f.collectionID }

func (f *fakeClient) ListEvents(ctx context.Context, win provider.TimeWindow) ([]*model.Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func (f *fakeClient) CreateEvent(ctx context.Context, ev *model.Event) (*model.Event, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	ev.ID = fmt.Sprintf("%s-new-%d", f.collectionID, f.nextID)
	ev.CollectionID = f.collectionID
	f.events = append(f.events, ev)
	f.created = append(f.created, ev.ID)
	return ev, nil
}

func (f *fakeClient) SaveEvent(ctx context.Context, ev *model.Event) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.onSave != nil {
		f.onSave(ev)
	}
	f.saved = append(f.saved, ev.ID)
	return nil
}

func (f *fakeClient) DeleteEvent(ctx context.Context, ev *model.Event) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, ev.ID)
	for i := range f.events {
		if f.events[i].ID == ev.ID {
			f.events = append(f.events[:i], f.events[i+1:]...)
			break
		}
	}
	return nil
}

// fakePrompter answers with fixed decisions and records what it saw.
type fakePrompter struct {
	confirmDelete bool
	continueOnErr bool

	deleteAsks []string
	errorAsks  []error
}

func (p *fakePrompter) ConfirmDelete(ctx context.Context, ev *model.Event) bool {
	p.deleteAsks = append(p.deleteAsks, ev.ID)
	return p.confirmDelete
}

func (p *fakePrompter) ContinueAfterError(ctx context.Context, err error) bool {
	p.errorAsks = append(p.errorAsks, err)
	return p.continueOnErr
}

// testEvent builds a minimal readable event.
func testEvent(id, subject string, start time.Time, dur time.Duration) *model.Event {
	return &model.Event{
		ID:           id,
		CollectionID: "right-cal",
		Subject:      subject,
		Start:        start,
		End:          start.Add(dur),
		Visibility:   model.VisibilityPublic,
		Transparency: model.TransparencyBusy,
	}
}
