// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package client

import (
	"sync"

	"github.com/erikg84/supabase-sdk/errors"
)

// Registry holds one default Client for the outermost layer of an
// application. Library code should take a *Client instead.
type Registry struct {
	mu     sync.RWMutex
	client *Client
}

// Init stores c. It fails with ErrAlreadyConfigured when a client is held.
func (r *Registry) Init(c *Client) error {
	if c == nil {
		return errors.NewConfigurationError("cannot register a nil client", errors.CodeNotConfigured, nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return errors.ErrAlreadyConfigured
	}
	r.client = c
	return nil
}

// Default returns the held client or ErrNotConfigured.
func (r *Registry) Default() (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, errors.ErrNotConfigured
	}
	return r.client, nil
}

// MustDefault is Default for callers that cannot continue without a client.
func (r *Registry) MustDefault() *Client {
	c, err := r.Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Reset forgets the held client and returns it, or nil. The caller decides
// whether to Close it.
func (r *Registry) Reset() *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.client
	r.client = nil
	return c
}

var defaultRegistry Registry

// Init registers the process-wide default client.
func Init(c *Client) error { return defaultRegistry.Init(c) }

// Default returns the process-wide default client.
func Default() (*Client, error) { return defaultRegistry.Default() }

func MustDefault() *Client { return defaultRegistry.MustDefault() }

func Reset() *Client { return defaultRegistry.Reset() }
