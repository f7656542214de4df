package discovery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-client/internal/config"
)

// Discovery maps a service name to a host:port.
type Discovery interface {
	Lookup(ctx context.Context, service string) (string, error)
}

type staticDiscovery struct {
	m map[string]string
}

func NewStatic(m map[string]string) Discovery { return &staticDiscovery{m: m} }

func (s *staticDiscovery) Lookup(_ context.Context, service string) (string, error) {
	if v, ok := s.m[service]; ok {
		return v, nil
	}
	return "", fmt.Errorf("service not found: %s", service)
}

type consulDiscovery struct {
	client *consulapi.Client
	cache  map[string]string
	mu     sync.RWMutex
	log    *zap.SugaredLogger
}

func NewConsul(addr string, log *zap.SugaredLogger) (Discovery, error) {
	cc := consulapi.DefaultConfig()
	cc.Address = addr
	client, err := consulapi.NewClient(cc)
	if err != nil {
		return nil, err
	}
	return &consulDiscovery{client: client, cache: map[string]string{}, log: log}, nil
}

func (c *consulDiscovery) Lookup(ctx context.Context, service string) (string, error) {
	c.mu.RLock()
	addr, ok := c.cache[service]
	c.mu.RUnlock()
	if ok {
		return addr, nil
	}

	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	entries, _, err := c.client.Health().Service(service, "", true, q)
	if err != nil {
		return "", fmt.Errorf("consul lookup %s: %w", service, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no healthy instances for %s", service)
	}
	e := entries[0]
	host := e.Service.Address
	if host == "" && e.Node != nil {
		host = e.Node.Address
	}
	addr = net.JoinHostPort(host, strconv.Itoa(e.Service.Port))

	c.mu.Lock()
	c.cache[service] = addr
	c.mu.Unlock()
	c.log.Infow("resolved service", "service", service, "addr", addr)
	return addr, nil
}

// Endpoints are the two upstreams the client talks to.
type Endpoints struct {
	APIBaseURL string
	WSURL      string
}

// Resolve returns the configured URLs, or, when a Consul address is set,
// the same URLs with their host replaced by a healthy instance. Scheme and
// path come from config so the gateway layout stays configurable.
func Resolve(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (Endpoints, error) {
	ep := Endpoints{APIBaseURL: cfg.API.BaseURL, WSURL: cfg.WS.URL}
	if cfg.Discovery.ConsulAddr == "" {
		return ep, nil
	}
	d, err := NewConsul(cfg.Discovery.ConsulAddr, log)
	if err != nil {
		return Endpoints{}, err
	}
	return resolveWith(ctx, d, cfg, ep)
}

func resolveWith(ctx context.Context, d Discovery, cfg *config.Config, ep Endpoints) (Endpoints, error) {
	apiHost, err := d.Lookup(ctx, cfg.Discovery.APIService)
	if err != nil {
		return Endpoints{}, err
	}
	wsHost, err := d.Lookup(ctx, cfg.Discovery.WSService)
	if err != nil {
		return Endpoints{}, err
	}
	if ep.APIBaseURL, err = withHost(ep.APIBaseURL, "http", "/api/v1", apiHost); err != nil {
		return Endpoints{}, err
	}
	if ep.WSURL, err = withHost(ep.WSURL, "ws", "/ws", wsHost); err != nil {
		return Endpoints{}, err
	}
	return ep, nil
}

func withHost(raw, scheme, path, host string) (string, error) {
	u := &url.URL{Scheme: scheme, Path: path}
	if raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse %q: %w", raw, err)
		}
		u = parsed
	}
	u.Host = host
	return u.String(), nil
}
