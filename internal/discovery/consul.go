// Package discovery registers the HTTP server with a Consul agent.
package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"

	"github.com/mind-engage/examdesk/internal/logger"
)

type Registration struct {
	ID      string
	Name    string
	Address string
	Port    int
	Tags    []string
	// HealthPath is polled by the agent, e.g. /healthz.
	HealthPath string
}

// Agent is the part of the Consul agent API used here.
type Agent interface {
	ServiceRegister(reg *api.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

type Registry struct {
	agent Agent
	log   *logger.Logger
}

func NewRegistry(addr string, log *logger.Logger) (*Registry, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}
	return &Registry{agent: client.Agent(), log: log}, nil
}

func NewRegistryWithAgent(agent Agent, log *logger.Logger) *Registry {
	return &Registry{agent: agent, log: log}
}

// PortFromAddr extracts the port of a listen address such as ":8080".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(p)
}

func (r *Registry) Register(reg Registration) error {
	svc := &api.AgentServiceRegistration{
		ID:      reg.ID,
		Name:    reg.Name,
		Port:    reg.Port,
		Address: reg.Address,
		Tags:    append([]string{"http"}, reg.Tags...),
		Meta:    map[string]string{"protocol": "http"},
	}
	if reg.HealthPath != "" {
		svc.Check = &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s%s", net.JoinHostPort(reg.Address, strconv.Itoa(reg.Port)), reg.HealthPath),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		}
	}
	if err := r.agent.ServiceRegister(svc); err != nil {
		return fmt.Errorf("failed to register service with Consul: %w", err)
	}
	r.log.Infof("registered %s as %s with Consul", reg.Name, reg.ID)
	return nil
}

func (r *Registry) Deregister(id string) error {
	if err := r.agent.ServiceDeregister(id); err != nil {
		r.log.Warnf("consul deregister %s: %v", id, err)
		return err
	}
	return nil
}
