package core

import (
	"fmt"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

type Kind string

const (
	KindConfig    Kind = "config"
	KindLogging   Kind = "logging"
	KindPubSub    Kind = "pubsub"
	KindAnalytics Kind = "analytics"
	KindAuth      Kind = "auth"
)

// Constructor builds a service implementation for a slot.
type Constructor[T any] func(opts ServiceOptions) (T, error)

// Validator is an optional self-check run before a service is installed.
type Validator interface {
	Validate() error
}

// Slot holds at most one active implementation of T. Configure replaces the
// active implementation only when the candidate passes validation.
type Slot[T any] struct {
	mu       sync.RWMutex
	kind     Kind
	contract Contract
	service  T
	set      bool
}

func NewSlot[T any](kind Kind, contract Contract) *Slot[T] {
	return &Slot[T]{kind: kind, contract: contract}
}

func (s *Slot[T]) Kind() Kind {
	if s == nil {
		return ""
	}
	return s.kind
}

func (s *Slot[T]) Configure(ctor Constructor[T], opts ServiceOptions) (T, error) {
	var zero T
	if s == nil {
		return zero, fmt.Errorf("core: slot is nil")
	}
	if ctor == nil {
		return zero, BadInputError(fmt.Sprintf("core: %s constructor is required", s.kind))
	}
	candidate, err := ctor(opts)
	if err != nil {
		return zero, goerrors.Wrap(err, goerrors.CategoryValidation,
			fmt.Sprintf("core: construct %s service", s.kind)).
			WithTextCode(ShellErrorContractViolation)
	}
	if err := s.validate(candidate); err != nil {
		return zero, err
	}
	s.install(candidate)
	return candidate, nil
}

// ConfigureDynamic installs an implementation only known as any, e.g. one picked
// by name from a Catalog. The contract check is the only guard on this path.
func (s *Slot[T]) ConfigureDynamic(candidate any) (T, error) {
	var zero T
	if s == nil {
		return zero, fmt.Errorf("core: slot is nil")
	}
	if err := CheckContract(s.contract, candidate, string(s.kind)); err != nil {
		return zero, err
	}
	typed, ok := candidate.(T)
	if !ok {
		return zero, ContractViolationError(string(s.kind), []string{fmt.Sprintf("%T does not implement %s", candidate, s.kind)})
	}
	if err := s.validate(typed); err != nil {
		return zero, err
	}
	s.install(typed)
	return typed, nil
}

func (s *Slot[T]) validate(candidate T) error {
	if err := CheckContract(s.contract, candidate, string(s.kind)); err != nil {
		return err
	}
	if validator, ok := any(candidate).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation,
				fmt.Sprintf("core: %s service failed validation", s.kind)).
				WithTextCode(ShellErrorContractViolation)
		}
	}
	return nil
}

func (s *Slot[T]) install(candidate T) {
	s.mu.Lock()
	s.service = candidate
	s.set = true
	s.mu.Unlock()
}

func (s *Slot[T]) Get() (T, error) {
	service, ok := s.Lookup()
	if !ok {
		return service, NotConfiguredError(s.Kind())
	}
	return service, nil
}

func (s *Slot[T]) Lookup() (T, bool) {
	var zero T
	if s == nil {
		return zero, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return zero, false
	}
	return s.service, true
}

func (s *Slot[T]) Configured() bool {
	_, ok := s.Lookup()
	return ok
}

func (s *Slot[T]) Reset() {
	if s == nil {
		return
	}
	var zero T
	s.mu.Lock()
	s.service = zero
	s.set = false
	s.mu.Unlock()
}
