package switchctl

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SwitchType selects the vendor protocol family
type SwitchType string

const SwitchTypeGS30xEP SwitchType = "gs30xep"

// Factory builds a session client for one switch
type Factory func(creds Credentials, opt Options) Client

// Registry caches one session client per (switch type, IP). It is
// the exclusive owner of every client it hands out; callers fetch
// through GetOrCreate on every use instead of holding references.
type Registry struct {
	mu        sync.Mutex
	opt       Options
	clients   map[string]Client
	factories map[SwitchType]Factory
}

func NewRegistry(opt Options) *Registry {
	return &Registry{
		opt:     opt,
		clients: make(map[string]Client),
		factories: map[SwitchType]Factory{
			SwitchTypeGS30xEP: NewGS30xClient,
		},
	}
}

// Register adds or replaces a factory for a switch type.
func (r *Registry) Register(t SwitchType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
}

// GetOrCreate returns the cached client for (switchType, ip),
// pushing updated credentials into it, or constructs one.
func (r *Registry) GetOrCreate(switchType SwitchType, creds Credentials) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(switchType) + "/" + creds.Ipaddr
	if client, ok := r.clients[key]; ok {
		client.UpdateCredentials(creds)
		return client, nil
	}
	factory, ok := r.factories[switchType]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedSwitchType, "type %q", switchType)
	}
	client := factory(creds, r.opt)
	r.clients[key] = client
	zap.L().Info("switch client created",
		zap.String("type", string(switchType)),
		zap.String("ipaddr", creds.Ipaddr))
	return client, nil
}

// ClearAll logs every cached client out concurrently. Individual
// failures are logged, never propagated; used when monitoring stops.
func (r *Registry) ClearAll(ctx context.Context) {
	r.mu.Lock()
	clients := make(map[string]Client, len(r.clients))
	for key, client := range r.clients {
		clients[key] = client
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for key, client := range clients {
		wg.Add(1)
		go func(key string, client Client) {
			defer wg.Done()
			if err := client.ClearSession(ctx); err != nil {
				zap.L().Warn("clear session failed", zap.String("switch", key), zap.Error(err))
			}
		}(key, client)
	}
	wg.Wait()
}

// Close clears all sessions and stops every client's queue worker.
func (r *Registry) Close(ctx context.Context) {
	r.ClearAll(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, client := range r.clients {
		client.Close()
	}
	r.clients = make(map[string]Client)
}
