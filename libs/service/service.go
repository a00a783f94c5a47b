// Package service provides the start/stop lifecycle shared by the node's
// long running components.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/coinnode/coinnode/libs/log"
)

var (
	// ErrAlreadyStarted is returned by Start on a running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned by Start or Stop once the service has
	// been stopped.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned by Stop on a service that never started.
	ErrNotStarted = errors.New("not started")
)

// Service is a component that runs between Start and Stop.
type Service interface {
	// Start runs the service until Stop is called or ctx is done.
	Start(context.Context) error
	// Stop stops the service. A stopped service cannot be restarted.
	Stop() error
	IsRunning() bool
	String() string
	// Wait blocks until the service has stopped.
	Wait()
}

// Implementation is the component wrapped by a BaseService.
type Implementation interface {
	Service

	OnStart(context.Context) error
	// OnStop runs once, after Stop or when the start context ends.
	OnStop()
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// BaseService implements Service on top of the OnStart and OnStop hooks of
// the type that embeds it:
//
//	type Book struct {
//		service.BaseService
//	}
//
//	b := &Book{}
//	b.BaseService = *service.NewBaseService(logger, "Book", b)
//
// A failed OnStart leaves the service idle so Start may be retried.
type BaseService struct {
	logger log.Logger
	name   string
	impl   Implementation

	mtx   sync.Mutex
	state state
	quit  chan struct{}
}

// NewBaseService returns a BaseService for impl. A nil logger discards output.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BaseService{
		logger: logger,
		name:   name,
		impl:   impl,
		quit:   make(chan struct{}),
	}
}

// Start calls OnStart and stops the service once ctx is done.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	switch bs.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		bs.logger.Error("not starting service; already stopped", "service", bs.name, "impl", bs.impl.String())
		return ErrAlreadyStopped
	}

	bs.logger.Info("starting service", "service", bs.name, "impl", bs.impl.String())
	if err := bs.impl.OnStart(ctx); err != nil {
		return err
	}
	bs.state = stateRunning

	go func() {
		select {
		case <-bs.quit:
		case <-ctx.Done():
			// loses the race against an explicit Stop harmlessly
			_ = bs.Stop()
		}
	}()
	return nil
}

// Stop calls OnStop and then releases everyone blocked in Wait.
func (bs *BaseService) Stop() error {
	bs.mtx.Lock()
	switch bs.state {
	case stateIdle:
		bs.mtx.Unlock()
		bs.logger.Error("not stopping service; not started yet", "service", bs.name, "impl", bs.impl.String())
		return ErrNotStarted
	case stateStopped:
		bs.mtx.Unlock()
		return ErrAlreadyStopped
	}
	bs.state = stateStopped
	bs.mtx.Unlock()

	bs.logger.Info("stopping service", "service", bs.name, "impl", bs.impl.String())
	bs.impl.OnStop()
	close(bs.quit)
	return nil
}

// IsRunning reports whether the service has started and not yet stopped.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return bs.state == stateRunning
}

// Wait blocks until OnStop has returned.
func (bs *BaseService) Wait() { <-bs.quit }

// Quit is closed once OnStop has returned.
func (bs *BaseService) Quit() <-chan struct{} { return bs.quit }

func (bs *BaseService) String() string { return bs.name }
