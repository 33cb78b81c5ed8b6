package service

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"todo-api/internal/database"
	"todo-api/internal/database/dbtest"
	"todo-api/internal/models"
	"todo-api/internal/validation"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.TodoEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt models.TodoEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

type memIdempotency struct {
	mu        sync.Mutex
	ids       map[string]int64
	lookupErr error
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{ids: map[string]int64{}}
}

func (m *memIdempotency) Lookup(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return 0, false, m.lookupErr
	}
	id, ok := m.ids[key]
	return id, ok, nil
}

func (m *memIdempotency) Remember(_ context.Context, key string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[key] = id
	return nil
}

func str(s string) *string { return &s }
func boolean(b bool) *bool  { return &b }

func newTestService(t *testing.T, opts ...Option) (*Service, *database.Gateway) {
	t.Helper()
	gw := dbtest.Open(t)
	return New(gw, opts...), gw
}

func mustCreate(t *testing.T, s *Service, title string) *models.Todo {
	t.Helper()
	todo, err := s.Create(context.Background(), CreateInput{Title: str(title)})
	if err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return todo
}

func idOf(todo *models.Todo) string {
	return strconv.FormatInt(todo.ID, 10)
}

func TestCreateRoundTrip(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	created := mustCreate(t, s, "Buy milk")
	got, err := s.Get(ctx, idOf(created))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Buy milk" || got.Completed {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Errorf("created_at %v != updated_at %v", got.CreatedAt, got.UpdatedAt)
	}
	if !reflect.DeepEqual(got, created) {
		t.Errorf("Get = %+v, Create returned %+v", got, created)
	}
}

func TestCreateTrimsTitle(t *testing.T) {
	s, _ := newTestService(t)

	todo := mustCreate(t, s, "  Pay   bills  ")
	if todo.Title != "Pay   bills" {
		t.Errorf("title = %q, want %q", todo.Title, "Pay   bills")
	}
}

func TestCreateCompletedFlag(t *testing.T) {
	s, _ := newTestService(t)

	todo, err := s.Create(context.Background(), CreateInput{Title: str("done already"), Completed: boolean(true)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !todo.Completed {
		t.Error("expected completed = true")
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		title *string
		want  string
	}{
		{"absent", nil, validation.MsgTitleRequired},
		{"empty", str(""), validation.MsgTitleRequired},
		{"whitespace", str(" \t "), validation.MsgTitleRequired},
		{"too long", str(strings.Repeat("x", 256)), validation.MsgTitleTooLong},
		{"too long after trim", str("  " + strings.Repeat("x", 256) + "  "), validation.MsgTitleTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			s, _ := newTestService(t, WithPublisher(pub))
			ctx := context.Background()

			_, err := s.Create(ctx, CreateInput{Title: tt.title})
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("err = %v, want ErrValidationFailed", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || !reflect.DeepEqual(ve.Violations, []string{tt.want}) {
				t.Errorf("violations = %v, want [%s]", ve, tt.want)
			}

			todos, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(todos) != 0 {
				t.Errorf("store mutated: %v", todos)
			}
			if len(pub.actions()) != 0 {
				t.Errorf("events published for failed create: %v", pub.actions())
			}
		})
	}
}

func TestGetErrors(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	for _, raw := range []string{"abc", "", "1.5", "1e3", "99999999999999999999", " 1"} {
		if _, err := s.Get(ctx, raw); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Get(%q) err = %v, want ErrInvalidArgument", raw, err)
		}
	}
	for _, raw := range []string{"999", "0", "-3"} {
		if _, err := s.Get(ctx, raw); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q) err = %v, want ErrNotFound", raw, err)
		}
	}
}

func TestNonPositiveIDsAreNotFound(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustCreate(t, s, "untouched")

	for _, raw := range []string{"0", "-1"} {
		if _, err := s.Update(ctx, raw, UpdateInput{Completed: boolean(true)}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Update(%q) err = %v, want ErrNotFound", raw, err)
		}
		if _, err := s.Delete(ctx, raw); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete(%q) err = %v, want ErrNotFound", raw, err)
		}
	}
}

func TestListDoesNotJoinReadStartedBeforeWrite(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	// Park a read under the current key, as if it were still waiting on the store.
	started := make(chan struct{})
	release := make(chan struct{})
	go s.listGroup.Do(s.listKey(), func() (any, error) {
		close(started)
		<-release
		return []models.Todo{}, nil
	})
	<-started
	defer close(release)

	created := mustCreate(t, s, "fresh")
	done := make(chan []models.Todo, 1)
	go func() {
		todos, err := s.List(ctx)
		if err != nil {
			t.Error(err)
		}
		done <- todos
	}()
	select {
	case todos := <-done:
		if len(todos) != 1 || todos[0].ID != created.ID {
			t.Errorf("List after write = %+v", todos)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("List joined a read that started before the write")
	}
}

func TestListEmptyAndOrdered(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	todos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if todos == nil || len(todos) != 0 {
		t.Fatalf("List on empty store = %#v, want empty non-nil", todos)
	}

	first := mustCreate(t, s, "first")
	time.Sleep(2 * time.Millisecond)
	second := mustCreate(t, s, "second")

	todos, err = s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(todos) != 2 || todos[0].ID != second.ID || todos[1].ID != first.ID {
		t.Errorf("List = %+v, want newest first", todos)
	}
}

func TestListConcurrentCallers(t *testing.T) {
	s, _ := newTestService(t)
	mustCreate(t, s, "shared")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			todos, err := s.List(context.Background())
			if err == nil && len(todos) != 1 {
				err = errors.New("unexpected list length " + strconv.Itoa(len(todos)))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}

func TestUpdatePartial(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newTestService(t, WithPublisher(pub))
	ctx := context.Background()
	todo := mustCreate(t, s, "write report")
	time.Sleep(5 * time.Millisecond)

	updated, err := s.Update(ctx, idOf(todo), UpdateInput{Completed: boolean(true)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "write report" || !updated.Completed {
		t.Errorf("completed-only update: %+v", updated)
	}
	if !updated.CreatedAt.Equal(todo.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", todo.CreatedAt, updated.CreatedAt)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Errorf("updated_at %v not after created_at %v", updated.UpdatedAt, updated.CreatedAt)
	}

	renamed, err := s.Update(ctx, idOf(todo), UpdateInput{Title: str("  final report ")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if renamed.Title != "final report" || !renamed.Completed {
		t.Errorf("title-only update: %+v", renamed)
	}

	if got := pub.actions(); !reflect.DeepEqual(got, []string{models.ActionCreated, models.ActionUpdated, models.ActionUpdated}) {
		t.Errorf("events = %v", got)
	}
}

func TestUpdateErrors(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	todo := mustCreate(t, s, "keep me")

	t.Run("invalid id", func(t *testing.T) {
		if _, err := s.Update(ctx, "x", UpdateInput{Completed: boolean(true)}); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("err = %v, want ErrInvalidArgument", err)
		}
	})
	t.Run("not found", func(t *testing.T) {
		if _, err := s.Update(ctx, "999", UpdateInput{Completed: boolean(true)}); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
	t.Run("not found wins over missing fields", func(t *testing.T) {
		if _, err := s.Update(ctx, "999", UpdateInput{}); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
	t.Run("no fields", func(t *testing.T) {
		_, err := s.Update(ctx, idOf(todo), UpdateInput{})
		if !errors.Is(err, ErrNoFieldsToUpdate) {
			t.Errorf("err = %v, want ErrNoFieldsToUpdate", err)
		}
		if errors.Is(err, ErrValidationFailed) {
			t.Error("ErrNoFieldsToUpdate must be distinct from validation failure")
		}
	})
	for _, title := range []string{"", "   ", strings.Repeat("y", 300)} {
		t.Run("invalid title "+strconv.Itoa(len(title)), func(t *testing.T) {
			_, err := s.Update(ctx, idOf(todo), UpdateInput{Title: str(title), Completed: boolean(true)})
			if !errors.Is(err, ErrValidationFailed) {
				t.Errorf("err = %v, want ErrValidationFailed", err)
			}
		})
	}

	got, err := s.Get(ctx, idOf(todo))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, todo) {
		t.Errorf("row changed by failed updates: %+v -> %+v", todo, got)
	}
}

func TestDelete(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newTestService(t, WithPublisher(pub))
	ctx := context.Background()
	todo := mustCreate(t, s, "throw away")

	deleted, err := s.Delete(ctx, idOf(todo))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !reflect.DeepEqual(deleted, todo) {
		t.Errorf("Delete returned %+v, want snapshot %+v", deleted, todo)
	}
	if _, err := s.Get(ctx, idOf(todo)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Delete(ctx, idOf(todo)); !errors.Is(err, ErrNotFound) {
			t.Errorf("repeat Delete err = %v, want ErrNotFound", err)
		}
	}
	if _, err := s.Delete(ctx, "nope"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Delete(nope) err = %v, want ErrInvalidArgument", err)
	}
	if got := pub.actions(); !reflect.DeepEqual(got, []string{models.ActionCreated, models.ActionDeleted}) {
		t.Errorf("events = %v", got)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	s, _ := newTestService(t, WithPublisher(pub))

	if _, err := s.Create(context.Background(), CreateInput{Title: str("still saved")}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	todos, _ := s.List(context.Background())
	if len(todos) != 1 {
		t.Errorf("len = %d, want 1", len(todos))
	}
}

func TestEventCarriesTimestamp(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newTestService(t, WithPublisher(pub))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	s.now = func() time.Time { return fixed }

	todo := mustCreate(t, s, "stamp")
	if len(pub.events) != 1 {
		t.Fatalf("events = %d", len(pub.events))
	}
	evt := pub.events[0]
	if evt.ID != todo.ID || evt.Todo.ID != todo.ID || !evt.OccurredAt.Equal(fixed) || evt.OccurredAt.Location() != time.UTC {
		t.Errorf("event = %+v", evt)
	}
}

func TestIdempotentCreate(t *testing.T) {
	idem := newMemIdempotency()
	s, _ := newTestService(t, WithIdempotency(idem))
	ctx := context.Background()

	first, err := s.Create(ctx, CreateInput{Title: str("once"), IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	again, err := s.Create(ctx, CreateInput{Title: str("once"), IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("replayed Create: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("replay created id %d, want %d", again.ID, first.ID)
	}
	other, err := s.Create(ctx, CreateInput{Title: str("once"), IdempotencyKey: "k2"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if other.ID == first.ID {
		t.Error("different key should create a new todo")
	}

	if _, err := s.Delete(ctx, idOf(first)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	fresh, err := s.Create(ctx, CreateInput{Title: str("once"), IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("Create after delete: %v", err)
	}
	if fresh.ID == first.ID {
		t.Error("key pointing at a deleted todo should create a new one")
	}
	if id, _, _ := idem.Lookup(ctx, "k1"); id != fresh.ID {
		t.Errorf("key now maps to %d, want %d", id, fresh.ID)
	}
}

func TestIdempotencyLookupFailureFallsBackToCreate(t *testing.T) {
	idem := newMemIdempotency()
	idem.lookupErr = errors.New("redis down")
	s, _ := newTestService(t, WithIdempotency(idem))

	todo, err := s.Create(context.Background(), CreateInput{Title: str("anyway"), IdempotencyKey: "k"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if todo.Title != "anyway" {
		t.Errorf("title = %q", todo.Title)
	}
}

func TestStoreFailureIsStoreError(t *testing.T) {
	s, gw := newTestService(t)
	todo := mustCreate(t, s, "before outage")
	if err := gw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	ctx := context.Background()

	checks := map[string]func() error{
		"list":   func() error { _, err := s.List(ctx); return err },
		"get":    func() error { _, err := s.Get(ctx, idOf(todo)); return err },
		"create": func() error { _, err := s.Create(ctx, CreateInput{Title: str("x")}); return err },
		"update": func() error { _, err := s.Update(ctx, idOf(todo), UpdateInput{Completed: boolean(true)}); return err },
		"delete": func() error { _, err := s.Delete(ctx, idOf(todo)); return err },
	}
	for name, call := range checks {
		var se *database.StoreError
		if err := call(); !errors.As(err, &se) {
			t.Errorf("%s: err = %v, want *database.StoreError", name, err)
		}
	}
}

func TestErrorKindsAreDistinct(t *testing.T) {
	kinds := []error{ErrInvalidArgument, ErrValidationFailed, ErrNoFieldsToUpdate, ErrNotFound}
	samples := []error{
		InvalidArgument("id", "Invalid todo ID"),
		&ValidationError{Violations: []string{"x"}},
		ErrNoFieldsToUpdate,
		ErrNotFound,
	}
	for i, sample := range samples {
		for j, kind := range kinds {
			if got := errors.Is(sample, kind); got != (i == j) {
				t.Errorf("errors.Is(%v, %v) = %v", sample, kind, got)
			}
		}
	}
}
