// Package service implements the todo resource operations: list, get,
// create, update and delete, with a fixed error taxonomy.
//
// Every operation runs on a single pooled connection and re-reads the store;
// nothing is retained between calls. Update and Delete check existence before
// the effecting statement and also treat zero affected rows as ErrNotFound,
// so a todo deleted between the two statements still yields ErrNotFound.
package service

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"todo-api/internal/database"
	"todo-api/internal/models"
	"todo-api/internal/queue"
	"todo-api/internal/repository"
	"todo-api/internal/validation"
	"todo-api/pkg/logger"
)

// IdempotencyStore maps client idempotency keys to the id of the todo they created.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (int64, bool, error)
	Remember(ctx context.Context, key string, id int64) error
}

// CreateInput is the payload of Create. A nil Completed means false.
type CreateInput struct {
	Title          *string
	Completed      *bool
	IdempotencyKey string
}

// UpdateInput is the payload of Update. Nil fields are left unchanged.
type UpdateInput struct {
	Title     *string
	Completed *bool
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sends change events for successful mutations to p.
func WithPublisher(p queue.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithIdempotency enables Idempotency-Key handling on Create.
func WithIdempotency(store IdempotencyStore) Option {
	return func(s *Service) { s.idempotency = store }
}

// Service is the todo resource service.
type Service struct {
	gw          *database.Gateway
	publisher   queue.Publisher
	idempotency IdempotencyStore
	listGroup   singleflight.Group
	writes      atomic.Uint64
	now         func() time.Time
}

// New builds a Service over gw.
func New(gw *database.Gateway, opts ...Option) *Service {
	s := &Service{
		gw:        gw,
		publisher: queue.NopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns all todos, newest first. Concurrent calls share one store read,
// but a read in flight before this service's last committed write is never
// joined, so a caller always sees its own writes.
func (s *Service) List(ctx context.Context) ([]models.Todo, error) {
	v, err, _ := s.listGroup.Do(s.listKey(), func() (any, error) {
		// The read is shared, so one caller going away must not fail the others.
		shared := context.WithoutCancel(ctx)
		var todos []models.Todo
		err := s.gw.WithConn(shared, "list todos", func(q database.Querier) error {
			var err error
			todos, err = repository.List(shared, q)
			return err
		})
		return todos, err
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]models.Todo)), nil
}

func (s *Service) listKey() string {
	return "list:" + strconv.FormatUint(s.writes.Load(), 10)
}

// Get returns the todo with the given id.
func (s *Service) Get(ctx context.Context, rawID string) (*models.Todo, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	var todo *models.Todo
	err = s.gw.WithConn(ctx, "get todo", func(q database.Querier) error {
		t, err := repository.FindByID(ctx, q, id)
		if err != nil {
			return notFound(err)
		}
		todo = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return todo, nil
}

// Create validates and inserts a todo, then returns it as persisted.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Todo, error) {
	if in.IdempotencyKey != "" && s.idempotency != nil {
		todo, err := s.replay(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if todo != nil {
			return todo, nil
		}
	}

	if violations := validation.Title(in.Title); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	title := validation.NormalizeTitle(*in.Title)
	completed := in.Completed != nil && *in.Completed

	var created *models.Todo
	err := s.gw.WithConn(ctx, "create todo", func(q database.Querier) error {
		id, err := repository.Insert(ctx, q, title, completed)
		if err != nil {
			return err
		}
		t, err := repository.FindByID(ctx, q, id)
		if err != nil {
			return notFound(err)
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.Remember(ctx, in.IdempotencyKey, created.ID); err != nil {
			logger.Warn(ctx, "Idempotency key not recorded", "error", err, "id", created.ID)
		}
	}
	s.committed(ctx, models.ActionCreated, created)
	return created, nil
}

// replay returns the todo previously created for key, or nil when there is
// none (never seen, expired, or since deleted).
func (s *Service) replay(ctx context.Context, key string) (*models.Todo, error) {
	id, ok, err := s.idempotency.Lookup(ctx, key)
	if err != nil {
		logger.Warn(ctx, "Idempotency lookup failed; creating without replay", "error", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	var todo *models.Todo
	err = s.gw.WithConn(ctx, "replay todo", func(q database.Querier) error {
		t, err := repository.FindByID(ctx, q, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		todo = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	if todo != nil {
		logger.Info(ctx, "Replayed idempotent create", "id", todo.ID)
	}
	return todo, nil
}

// Update changes the supplied fields of an existing todo and returns it as persisted.
func (s *Service) Update(ctx context.Context, rawID string, in UpdateInput) (*models.Todo, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}

	var updated *models.Todo
	err = s.gw.WithConn(ctx, "update todo", func(q database.Querier) error {
		if _, err := repository.FindByID(ctx, q, id); err != nil {
			return notFound(err)
		}
		if in.Title == nil && in.Completed == nil {
			return ErrNoFieldsToUpdate
		}
		changes := repository.Changes{Completed: in.Completed}
		if in.Title != nil {
			if violations := validation.Title(in.Title); len(violations) > 0 {
				return &ValidationError{Violations: violations}
			}
			title := validation.NormalizeTitle(*in.Title)
			changes.Title = &title
		}

		n, err := repository.Update(ctx, q, id, changes)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		t, err := repository.FindByID(ctx, q, id)
		if err != nil {
			return notFound(err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, models.ActionUpdated, updated)
	return updated, nil
}

// Delete removes a todo and returns the row as it was before deletion.
func (s *Service) Delete(ctx context.Context, rawID string) (*models.Todo, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}

	var snapshot *models.Todo
	err = s.gw.WithConn(ctx, "delete todo", func(q database.Querier) error {
		t, err := repository.FindByID(ctx, q, id)
		if err != nil {
			return notFound(err)
		}
		n, err := repository.Delete(ctx, q, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		snapshot = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, models.ActionDeleted, snapshot)
	return snapshot, nil
}

// committed records a successful write and announces it on the change feed.
func (s *Service) committed(ctx context.Context, action string, todo *models.Todo) {
	s.writes.Add(1)
	evt := models.TodoEvent{
		Action:     action,
		ID:         todo.ID,
		Todo:       todo,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		logger.Warn(ctx, "Todo event not published", "error", err, "action", action, "id", todo.ID)
	}
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
