// Package sockcfg declares the YAML configuration surface for sockets.
//
// Every socket variant has its own config struct carrying exactly the
// options that variant supports, so a file that sets, say, groups on a
// radio section fails strict decoding instead of being silently ignored.
package sockcfg

import (
	"errors"
	"fmt"
	"time"

	"github.com/strand-protocol/strandsock/pkg/auth"
	"github.com/strand-protocol/strandsock/pkg/endpoint"
	"github.com/strand-protocol/strandsock/pkg/msg"
)

// ErrInvalidConfig reports a configuration that decoded but does not
// describe a usable socket.
var ErrInvalidConfig = errors.New("invalid socket config")

// Common holds the options every socket variant shares.
type Common struct {
	Connect           []string   `yaml:"connect,omitempty"`
	Bind              []string   `yaml:"bind,omitempty"`
	Backlog           int        `yaml:"backlog,omitempty"`
	ConnectTimeout    Duration   `yaml:"connect_timeout,omitempty"`
	HeartbeatInterval Duration   `yaml:"heartbeat_interval,omitempty"`
	HeartbeatTimeout  Duration   `yaml:"heartbeat_timeout,omitempty"`
	HeartbeatTTL      Duration   `yaml:"heartbeat_ttl,omitempty"`
	Mechanism         *Mechanism `yaml:"mechanism,omitempty"`
}

// SendOptions are the outgoing-side options, present only on variants
// that can send.
type SendOptions struct {
	SendHighWaterMark int       `yaml:"send_high_water_mark,omitempty"`
	SendTimeout       *Duration `yaml:"send_timeout,omitempty"`
}

// RecvOptions are the incoming-side options, present only on variants
// that can receive.
type RecvOptions struct {
	RecvHighWaterMark int       `yaml:"recv_high_water_mark,omitempty"`
	RecvTimeout       *Duration `yaml:"recv_timeout,omitempty"`
}

// Mechanism selects and parameterizes the security mechanism. Keys are
// Z85 text.
type Mechanism struct {
	Type      string `yaml:"type"`
	PublicKey string `yaml:"public_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	ServerKey string `yaml:"server_key,omitempty"`
}

// ClientConfig configures a client socket.
type ClientConfig struct {
	Common      `yaml:",inline"`
	SendOptions `yaml:",inline"`
	RecvOptions `yaml:",inline"`
}

// ServerConfig configures a server socket.
type ServerConfig struct {
	Common      `yaml:",inline"`
	SendOptions `yaml:",inline"`
	RecvOptions `yaml:",inline"`
}

// RadioConfig configures a radio socket. Radios only send.
type RadioConfig struct {
	Common      `yaml:",inline"`
	SendOptions `yaml:",inline"`
	NoDrop      bool `yaml:"no_drop,omitempty"`
}

// DishConfig configures a dish socket. Dishes only receive, filtered by
// the groups they join.
type DishConfig struct {
	Common      `yaml:",inline"`
	RecvOptions `yaml:",inline"`
	Groups      []string `yaml:"groups,omitempty"`
}

// ScatterConfig configures a scatter socket. Scatters only send.
type ScatterConfig struct {
	Common      `yaml:",inline"`
	SendOptions `yaml:",inline"`
}

// GatherConfig configures a gather socket. Gathers only receive.
type GatherConfig struct {
	Common      `yaml:",inline"`
	RecvOptions `yaml:",inline"`
}

// Resolved is a fully validated configuration with endpoints parsed,
// keys decoded and groups checked. Timeout pointers distinguish "not
// set" (block forever) from an explicit zero (never block).
type Resolved struct {
	Connect           []endpoint.Endpoint
	Bind              []endpoint.Endpoint
	Backlog           int
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	HeartbeatTTL      time.Duration
	RecvHWM           int
	SendHWM           int
	RecvTimeout       *time.Duration
	SendTimeout       *time.Duration
	Groups            []msg.Group
	NoDrop            bool
	Mechanism         auth.Mechanism
}

func (c *Common) resolve() (*Resolved, error) {
	r := &Resolved{
		Backlog:           c.Backlog,
		ConnectTimeout:    c.ConnectTimeout.Std(),
		HeartbeatInterval: c.HeartbeatInterval.Std(),
		HeartbeatTimeout:  c.HeartbeatTimeout.Std(),
		HeartbeatTTL:      c.HeartbeatTTL.Std(),
	}

	var err error
	if r.Connect, err = endpoint.ParseAll(c.Connect); err != nil {
		return nil, err
	}
	if r.Bind, err = endpoint.ParseAll(c.Bind); err != nil {
		return nil, err
	}
	for _, ep := range r.Connect {
		if ep.IsWildcard() {
			return nil, fmt.Errorf("connect %s: wildcard ports are bind-only: %w", ep, endpoint.ErrInvalidAddress)
		}
	}

	if c.Backlog < 0 {
		return nil, fmt.Errorf("backlog %d is negative: %w", c.Backlog, ErrInvalidConfig)
	}
	if c.Backlog > 0 && len(r.Bind) == 0 {
		return nil, fmt.Errorf("backlog set without a bind endpoint: %w", ErrInvalidConfig)
	}
	for name, d := range map[string]time.Duration{
		"connect_timeout":    r.ConnectTimeout,
		"heartbeat_interval": r.HeartbeatInterval,
		"heartbeat_timeout":  r.HeartbeatTimeout,
		"heartbeat_ttl":      r.HeartbeatTTL,
	} {
		if d < 0 {
			return nil, fmt.Errorf("%s %s is negative: %w", name, d, ErrInvalidConfig)
		}
	}
	if r.HeartbeatTimeout > 0 && r.HeartbeatInterval == 0 {
		return nil, fmt.Errorf("heartbeat_timeout set without heartbeat_interval: %w", ErrInvalidConfig)
	}

	if r.Mechanism, err = c.Mechanism.resolve(len(r.Connect) > 0); err != nil {
		return nil, err
	}
	return r, nil
}

func (s SendOptions) apply(r *Resolved) error {
	if s.SendHighWaterMark < 0 {
		return fmt.Errorf("send_high_water_mark %d is negative: %w", s.SendHighWaterMark, ErrInvalidConfig)
	}
	r.SendHWM = s.SendHighWaterMark
	if s.SendTimeout != nil {
		d := s.SendTimeout.Std()
		if d < 0 {
			return fmt.Errorf("send_timeout %s is negative: %w", d, ErrInvalidConfig)
		}
		r.SendTimeout = &d
	}
	return nil
}

func (o RecvOptions) apply(r *Resolved) error {
	if o.RecvHighWaterMark < 0 {
		return fmt.Errorf("recv_high_water_mark %d is negative: %w", o.RecvHighWaterMark, ErrInvalidConfig)
	}
	r.RecvHWM = o.RecvHighWaterMark
	if o.RecvTimeout != nil {
		d := o.RecvTimeout.Std()
		if d < 0 {
			return fmt.Errorf("recv_timeout %s is negative: %w", d, ErrInvalidConfig)
		}
		r.RecvTimeout = &d
	}
	return nil
}

// resolve turns the declarative mechanism into a ready auth.Mechanism.
// connecting reports whether the socket has connect endpoints, which is
// when a secure socket must pin the server key.
func (m *Mechanism) resolve(connecting bool) (auth.Mechanism, error) {
	if m == nil {
		return auth.Plain(), nil
	}
	switch m.Type {
	case "", "plain":
		if m.PublicKey != "" || m.SecretKey != "" || m.ServerKey != "" {
			return auth.Mechanism{}, fmt.Errorf("plain mechanism does not take keys: %w", ErrInvalidConfig)
		}
		return auth.Plain(), nil
	case "secure":
		if m.SecretKey == "" {
			return auth.Mechanism{}, fmt.Errorf("secure mechanism requires secret_key: %w", ErrInvalidConfig)
		}
		secret, err := auth.ParseKey(m.SecretKey)
		if err != nil {
			return auth.Mechanism{}, fmt.Errorf("secret_key: %w", err)
		}
		var public auth.Key
		if m.PublicKey != "" {
			if public, err = auth.ParseKey(m.PublicKey); err != nil {
				return auth.Mechanism{}, fmt.Errorf("public_key: %w", err)
			}
		} else if public, err = auth.PublicFromSecret(secret); err != nil {
			return auth.Mechanism{}, fmt.Errorf("deriving public key: %w", err)
		}
		if m.ServerKey != "" {
			server, err := auth.ParseKey(m.ServerKey)
			if err != nil {
				return auth.Mechanism{}, fmt.Errorf("server_key: %w", err)
			}
			return auth.SecureWithServer(public, secret, server), nil
		}
		if connecting {
			return auth.Mechanism{}, fmt.Errorf("secure mechanism with connect endpoints requires server_key: %w", ErrInvalidConfig)
		}
		return auth.Secure(public, secret), nil
	default:
		return auth.Mechanism{}, fmt.Errorf("unknown mechanism type %q: %w", m.Type, ErrInvalidConfig)
	}
}

// Resolve validates the client config.
func (c *ClientConfig) Resolve() (*Resolved, error) {
	r, err := c.Common.resolve()
	if err != nil {
		return nil, err
	}
	if err := c.SendOptions.apply(r); err != nil {
		return nil, err
	}
	if err := c.RecvOptions.apply(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve validates the server config.
func (c *ServerConfig) Resolve() (*Resolved, error) {
	r, err := c.Common.resolve()
	if err != nil {
		return nil, err
	}
	if err := c.SendOptions.apply(r); err != nil {
		return nil, err
	}
	if err := c.RecvOptions.apply(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve validates the radio config.
func (c *RadioConfig) Resolve() (*Resolved, error) {
	r, err := c.Common.resolve()
	if err != nil {
		return nil, err
	}
	if err := c.SendOptions.apply(r); err != nil {
		return nil, err
	}
	r.NoDrop = c.NoDrop
	return r, nil
}

// Resolve validates the dish config.
func (c *DishConfig) Resolve() (*Resolved, error) {
	r, err := c.Common.resolve()
	if err != nil {
		return nil, err
	}
	if err := c.RecvOptions.apply(r); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(c.Groups))
	for _, name := range c.Groups {
		g, err := msg.NewGroup(name)
		if err != nil {
			return nil, fmt.Errorf("groups: %w: %v", ErrInvalidConfig, err)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("groups: duplicate %q: %w", name, ErrInvalidConfig)
		}
		seen[name] = struct{}{}
		r.Groups = append(r.Groups, g)
	}
	return r, nil
}

// Resolve validates the scatter config.
func (c *ScatterConfig) Resolve() (*Resolved, error) {
	r, err := c.Common.resolve()
	if err != nil {
		return nil, err
	}
	if err := c.SendOptions.apply(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve validates the gather config.
func (c *GatherConfig) Resolve() (*Resolved, error) {
	r, err := c.Common.resolve()
	if err != nil {
		return nil, err
	}
	if err := c.RecvOptions.apply(r); err != nil {
		return nil, err
	}
	return r, nil
}
