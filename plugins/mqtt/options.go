package mqtt

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/miladsoleymani/chanflow/broker"
)

// Option configures the MQTT broker.
type Option func(*options)

type options struct {
	clientID       string
	qos            byte
	retained       bool
	cleanSession   bool
	keepAlive      time.Duration
	connectTimeout time.Duration
	disconnectWait uint
}

func defaults() options {
	return options{
		clientID:       "chanflow-" + uuid.NewString(),
		qos:            1,
		cleanSession:   true,
		keepAlive:      30 * time.Second,
		connectTimeout: 10 * time.Second,
		disconnectWait: 250,
	}
}

// WithClientID sets the MQTT client identifier. Defaults to a random one.
func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}

// WithQoS sets the quality of service used to subscribe and publish.
func WithQoS(qos byte) Option {
	return func(o *options) { o.qos = qos }
}

// WithRetained marks published messages as retained.
func WithRetained(retained bool) Option {
	return func(o *options) { o.retained = retained }
}

// WithCleanSession controls whether the server discards the session state
// on disconnect. A persistent session keeps unacknowledged messages.
func WithCleanSession(clean bool) Option {
	return func(o *options) { o.cleanSession = clean }
}

// WithKeepAlive sets the keep-alive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) { o.keepAlive = d }
}

// WithConnectTimeout bounds the initial connection attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

type extra struct {
	ClientID       string        `mapstructure:"client-id"`
	QoS            *int          `mapstructure:"qos"`
	Retained       bool          `mapstructure:"retained"`
	CleanSession   *bool         `mapstructure:"clean-session"`
	KeepAlive      time.Duration `mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
}

func optsFromConfig(cfg broker.ConnectorConfig) ([]Option, error) {
	var ex extra
	if err := cfg.DecodeExtra(&ex); err != nil {
		return nil, err
	}
	var opts []Option
	if ex.ClientID != "" {
		opts = append(opts, WithClientID(ex.ClientID))
	}
	if ex.QoS != nil {
		if *ex.QoS < 0 || *ex.QoS > 2 {
			return nil, fmt.Errorf("chanflow/mqtt: qos must be 0, 1 or 2, got %d", *ex.QoS)
		}
		opts = append(opts, WithQoS(byte(*ex.QoS)))
	}
	if ex.Retained {
		opts = append(opts, WithRetained(true))
	}
	if ex.CleanSession != nil {
		opts = append(opts, WithCleanSession(*ex.CleanSession))
	}
	if ex.KeepAlive > 0 {
		opts = append(opts, WithKeepAlive(ex.KeepAlive))
	}
	if ex.ConnectTimeout > 0 {
		opts = append(opts, WithConnectTimeout(ex.ConnectTimeout))
	}
	return opts, nil
}
