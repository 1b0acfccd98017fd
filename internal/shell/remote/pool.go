package remote

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Factory creates an executor for a host.
type Factory func(host string) (Executor, error)

// NewFactory returns a factory that serves LocalHost with a LocalExecutor
// and every other host over SSH.
func NewFactory(config SSHConfig) Factory {
	return func(host string) (Executor, error) {
		if host == LocalHost {
			return NewLocalExecutor(), nil
		}
		return NewSSHExecutor(host, config)
	}
}

// Pool caches one executor per host.
// It provides lazy initialization and connection reuse.
type Pool struct {
	factory   Factory
	executors map[string]Executor
	mu        sync.Mutex
}

// NewPool creates a new pool.
func NewPool(factory Factory) *Pool {
	return &Pool{
		factory:   factory,
		executors: make(map[string]Executor),
	}
}

// Get returns the executor for host, creating it on first use.
func (p *Pool) Get(host string) (Executor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.executors[host]; ok {
		return e, nil
	}

	e, err := p.factory(host)
	if err != nil {
		return nil, fmt.Errorf("create executor for %s: %w", host, err)
	}
	p.executors[host] = e
	return e, nil
}

// Close closes every executor and empties the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs error
	for host, e := range p.executors {
		if err := e.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", host, err))
		}
		delete(p.executors, host)
	}
	return errs
}
