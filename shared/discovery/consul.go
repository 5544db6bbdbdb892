package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"
)

const (
	checkInterval        = 10 * time.Second
	checkTimeout         = 2 * time.Second
	deregisterAfterFails = time.Minute
)

// Registration describes the service instance announced to Consul.
type Registration struct {
	Name string

	// Address is the host other services use to reach this instance.
	Address string
	Port    int

	// HealthPath is polled over HTTP by the Consul agent.
	HealthPath string
}

func (r Registration) ID() string {
	return fmt.Sprintf("%s-%s-%d", r.Name, r.Address, r.Port)
}

type ConsulRegistrar struct {
	client *consulapi.Client
	logger *zerolog.Logger
}

func NewConsulRegistrar(addr string, logger *zerolog.Logger) (*ConsulRegistrar, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulRegistrar{client: client, logger: logger}, nil
}

// Register announces reg with an HTTP health check. Consul drops the
// instance on its own if the check stays critical.
func (c *ConsulRegistrar) Register(reg Registration) error {
	checkURL := "http://" + net.JoinHostPort(reg.Address, strconv.Itoa(reg.Port)) + reg.HealthPath

	err := c.client.Agent().ServiceRegister(&consulapi.AgentServiceRegistration{
		ID:      reg.ID(),
		Name:    reg.Name,
		Address: reg.Address,
		Port:    reg.Port,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           checkURL,
			Interval:                       checkInterval.String(),
			Timeout:                        checkTimeout.String(),
			DeregisterCriticalServiceAfter: deregisterAfterFails.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	c.logger.Info().Str("service_id", reg.ID()).Str("check", checkURL).Msg("registered with consul")
	return nil
}

func (c *ConsulRegistrar) Deregister(reg Registration) error {
	if err := c.client.Agent().ServiceDeregister(reg.ID()); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	c.logger.Info().Str("service_id", reg.ID()).Msg("deregistered from consul")
	return nil
}

// RegistrationFromAddr builds a Registration for a server listening on
// listenAddr. advertise overrides the host part, which is usually empty in
// listen addresses such as ":4000".
func RegistrationFromAddr(name, listenAddr, advertise, healthPath string) (Registration, error) {
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return Registration{}, fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Registration{}, fmt.Errorf("invalid port in %q: %w", listenAddr, err)
	}

	if advertise != "" {
		host = advertise
	}
	if host == "" {
		host = "127.0.0.1"
	}

	return Registration{Name: name, Address: host, Port: port, HealthPath: healthPath}, nil
}
