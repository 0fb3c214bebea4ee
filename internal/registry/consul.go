package registry

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/consul/api"
)

// ConsulRegistry handles service registration with Consul. serviceName
// identifies the service kind in Consul's catalog (e.g. "vauchi-relay");
// serviceID identifies this specific instance, letting more than one
// relay instance register under the same name for client-side
// discovery (internal/network.ConsulRelayResolver queries by name).
type ConsulRegistry struct {
	client      *api.Client
	serviceName string
	serviceID   string
	serverPort  int
	tags        []string
}

// NewConsulRegistry creates a new Consul registry for one instance
// (serviceID) of a named service.
func NewConsulRegistry(addr, serviceName, serviceID, serverPort string, tags ...string) (*ConsulRegistry, error) {
	config := api.DefaultConfig()
	config.Address = addr

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(serverPort)
	if err != nil {
		log.Printf("Warning: Failed to parse server port, using default 8080: %v", err)
		port = 8080
	}

	return &ConsulRegistry{
		client:      client,
		serviceName: serviceName,
		serviceID:   serviceID,
		serverPort:  port,
		tags:        tags,
	}, nil
}

// Register registers this server with Consul.
func (c *ConsulRegistry) Register() error {
	hostname, err := os.Hostname()
	if err != nil {
		log.Printf("Warning: Failed to get hostname, using localhost: %v", err)
		hostname = "localhost"
	}

	registration := &api.AgentServiceRegistration{
		ID:      c.serviceID,
		Name:    c.serviceName,
		Port:    c.serverPort,
		Address: hostname,
		Tags:    c.tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", hostname, c.serverPort),
			Interval:                       "10s",
			Timeout:                        "3s",
			DeregisterCriticalServiceAfter: "30s",
		},
		Meta: map[string]string{
			"server_id": c.serviceID,
		},
	}

	if err := c.client.Agent().ServiceRegister(registration); err != nil {
		return err
	}

	log.Printf("Registered %q with Consul as %s", c.serviceName, c.serviceID)
	return nil
}

// Deregister removes this server from Consul.
func (c *ConsulRegistry) Deregister() error {
	if err := c.client.Agent().ServiceDeregister(c.serviceID); err != nil {
		return err
	}

	log.Printf("Deregistered from Consul: %s", c.serviceID)
	return nil
}

// GetHealthyServers returns the instance IDs of every healthy
// instance of this registry's service.
func (c *ConsulRegistry) GetHealthyServers() ([]string, error) {
	services, _, err := c.client.Health().Service(c.serviceName, "", true, nil)
	if err != nil {
		return nil, err
	}

	servers := make([]string, 0, len(services))
	for _, service := range services {
		servers = append(servers, service.Service.ID)
	}
	return servers, nil
}

// WatchServices watches for changes in the set of healthy instances.
func (c *ConsulRegistry) WatchServices(callback func([]string)) {
	var lastIndex uint64

	for {
		services, meta, err := c.client.Health().Service(c.serviceName, "", true, &api.QueryOptions{
			WaitIndex: lastIndex,
			WaitTime:  5 * time.Minute,
		})
		if err != nil {
			log.Printf("Error watching Consul services: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		if meta.LastIndex != lastIndex {
			lastIndex = meta.LastIndex

			servers := make([]string, 0, len(services))
			for _, service := range services {
				servers = append(servers, service.Service.ID)
			}
			callback(servers)
		}
	}
}
