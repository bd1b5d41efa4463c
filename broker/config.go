package broker

import (
	"errors"
	"fmt"
	"net"

	"github.com/miladsoleymani/chanflow/config"
)

// Attribute names read from "<root>.<source|sink>.<channel>.<attribute>".
const (
	AttrType     = "type"
	AttrTopic    = "topic"
	AttrHost     = "host"
	AttrPort     = "port"
	AttrUsername = "username"
	AttrPassword = "password"
	AttrGroup    = "group"
)

// ConnectorConfig holds the broker-agnostic settings of one connector.
// Broker plugins extract the fields they need.
type ConnectorConfig struct {
	// Channel and Role identify the endpoint the connector serves.
	Channel string
	Role    config.Role

	// Type selects the plugin, e.g. "mqtt" or "kafka".
	Type string

	Host  string
	Port  string
	Topic string

	// Username and Password are optional; an empty Username means an
	// anonymous connection.
	Username string
	Password string

	// Group is the consumer group or durable name, if the broker has one.
	Group string

	// Extra holds every other attribute declared for the endpoint.
	Extra map[string]any
}

// Address returns host:port.
func (c ConnectorConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// ResolveConnector reads the connector settings of channel for role.
//
// type, host, port and topic are required. Credentials are optional, but a
// username without a password is rejected. Every missing key is reported.
func ResolveConnector(res config.Resolver, role config.Role, channel string) (ConnectorConfig, error) {
	cfg := ConnectorConfig{Channel: channel, Role: role, Extra: make(map[string]any)}

	var errs []error
	required := func(attr string, dst *string) {
		v, ok := res.String(role, channel, attr)
		if !ok || v == "" {
			errs = append(errs, fmt.Errorf("%w: %q", config.ErrMissingKey, res.Key(role, channel, attr)))
			return
		}
		*dst = v
	}
	required(AttrType, &cfg.Type)
	required(AttrHost, &cfg.Host)
	required(AttrPort, &cfg.Port)
	required(AttrTopic, &cfg.Topic)

	cfg.Group, _ = res.String(role, channel, AttrGroup)
	if user, ok := res.String(role, channel, AttrUsername); ok {
		cfg.Username = user
		required(AttrPassword, &cfg.Password)
	}

	for attr, v := range res.Attributes(role, channel) {
		switch attr {
		case AttrType, AttrHost, AttrPort, AttrTopic, AttrUsername, AttrPassword, AttrGroup:
		default:
			cfg.Extra[attr] = v
		}
	}

	if err := errors.Join(errs...); err != nil {
		return ConnectorConfig{}, fmt.Errorf("chanflow: %s connector for channel %q: %w", role, channel, err)
	}
	return cfg, nil
}
