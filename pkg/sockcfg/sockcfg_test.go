package sockcfg

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strand-protocol/strandsock/pkg/auth"
	"github.com/strand-protocol/strandsock/pkg/endpoint"
)

func TestParseFullFile(t *testing.T) {
	f, err := Parse([]byte(`
client:
  connect:
    - tcp://127.0.0.1:7070
  connect_timeout: 2s
  heartbeat_interval: 500ms
  heartbeat_timeout: 300ms
  recv_timeout: 100ms
  send_timeout: 0s
radio:
  bind:
    - tcp://0.0.0.0:*
  backlog: 32
  no_drop: true
dish:
  connect:
    - inproc://feed
  groups:
    - updates
    - alerts
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	r, err := f.Client.Resolve()
	if err != nil {
		t.Fatalf("client Resolve: %v", err)
	}
	if len(r.Connect) != 1 || r.Connect[0].String() != "tcp://127.0.0.1:7070" {
		t.Errorf("client connect = %v", r.Connect)
	}
	if r.ConnectTimeout != 2*time.Second {
		t.Errorf("connect_timeout = %s", r.ConnectTimeout)
	}
	if r.RecvTimeout == nil || *r.RecvTimeout != 100*time.Millisecond {
		t.Errorf("recv_timeout = %v", r.RecvTimeout)
	}
	// An explicit zero timeout is "never block", distinct from unset.
	if r.SendTimeout == nil || *r.SendTimeout != 0 {
		t.Errorf("send_timeout = %v", r.SendTimeout)
	}

	rr, err := f.Radio.Resolve()
	if err != nil {
		t.Fatalf("radio Resolve: %v", err)
	}
	if !rr.NoDrop || rr.Backlog != 32 {
		t.Errorf("radio = %+v", rr)
	}
	if len(rr.Bind) != 1 || !rr.Bind[0].IsWildcard() {
		t.Errorf("radio bind = %v", rr.Bind)
	}

	dr, err := f.Dish.Resolve()
	if err != nil {
		t.Fatalf("dish Resolve: %v", err)
	}
	if len(dr.Groups) != 2 || dr.Groups[0].String() != "updates" {
		t.Errorf("dish groups = %v", dr.Groups)
	}
}

func TestParseRejectsForeignOptions(t *testing.T) {
	cases := map[string]string{
		"groups on radio":   "radio:\n  groups: [updates]\n",
		"no_drop on dish":   "dish:\n  no_drop: true\n",
		"recv on scatter":   "scatter:\n  recv_timeout: 1s\n",
		"send on gather":    "gather:\n  send_high_water_mark: 10\n",
		"unknown section":   "pair:\n  bind: [tcp://0.0.0.0:9000]\n",
		"misspelled option": "client:\n  conect: [tcp://127.0.0.1:1]\n",
	}
	for name, text := range cases {
		if _, err := Parse([]byte(text)); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: Parse = %v, want ErrInvalidConfig", name, err)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	t.Run("connect to wildcard", func(t *testing.T) {
		c := &ClientConfig{Common: Common{Connect: []string{"tcp://10.0.0.1:*"}}}
		if _, err := c.Resolve(); !errors.Is(err, endpoint.ErrInvalidAddress) {
			t.Errorf("Resolve = %v, want ErrInvalidAddress", err)
		}
	})
	t.Run("backlog without bind", func(t *testing.T) {
		c := &ServerConfig{Common: Common{Backlog: 10}}
		if _, err := c.Resolve(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Resolve = %v, want ErrInvalidConfig", err)
		}
	})
	t.Run("heartbeat timeout without interval", func(t *testing.T) {
		c := &ClientConfig{Common: Common{HeartbeatTimeout: Duration(time.Second)}}
		if _, err := c.Resolve(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Resolve = %v, want ErrInvalidConfig", err)
		}
	})
	t.Run("negative hwm", func(t *testing.T) {
		c := &GatherConfig{RecvOptions: RecvOptions{RecvHighWaterMark: -1}}
		if _, err := c.Resolve(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Resolve = %v, want ErrInvalidConfig", err)
		}
	})
	t.Run("duplicate group", func(t *testing.T) {
		c := &DishConfig{Groups: []string{"a", "a"}}
		if _, err := c.Resolve(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Resolve = %v, want ErrInvalidConfig", err)
		}
	})
	t.Run("overlong group", func(t *testing.T) {
		c := &DishConfig{Groups: []string{strings.Repeat("g", 16)}}
		if _, err := c.Resolve(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Resolve = %v, want ErrInvalidConfig", err)
		}
	})
	t.Run("bad endpoint", func(t *testing.T) {
		c := &ClientConfig{Common: Common{Bind: []string{"nope"}}}
		if _, err := c.Resolve(); !errors.Is(err, endpoint.ErrInvalidAddress) {
			t.Errorf("Resolve = %v, want ErrInvalidAddress", err)
		}
	})
}

func TestMechanismResolve(t *testing.T) {
	serverPublic, serverSecret, err := auth.NewCurveKeypair()
	if err != nil {
		t.Fatalf("NewCurveKeypair: %v", err)
	}
	_, clientSecret, err := auth.NewCurveKeypair()
	if err != nil {
		t.Fatalf("NewCurveKeypair: %v", err)
	}

	t.Run("nil is plain", func(t *testing.T) {
		c := &ClientConfig{}
		r, err := c.Resolve()
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if r.Mechanism.IsSecure() {
			t.Error("default mechanism is not plain")
		}
	})

	t.Run("secure derives public key", func(t *testing.T) {
		c := &ClientConfig{Common: Common{
			Connect: []string{"tcp://127.0.0.1:7070"},
			Mechanism: &Mechanism{
				Type:      "secure",
				SecretKey: clientSecret.String(),
				ServerKey: serverPublic.String(),
			},
		}}
		r, err := c.Resolve()
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !r.Mechanism.IsSecure() {
			t.Fatal("mechanism is not secure")
		}
		public, _ := r.Mechanism.Keys()
		want, err := auth.PublicFromSecret(clientSecret)
		if err != nil {
			t.Fatalf("PublicFromSecret: %v", err)
		}
		if public != want {
			t.Error("derived public key mismatch")
		}
	})

	t.Run("secure bind needs no server key", func(t *testing.T) {
		c := &ServerConfig{Common: Common{
			Bind: []string{"tcp://0.0.0.0:*"},
			Mechanism: &Mechanism{
				Type:      "secure",
				PublicKey: serverPublic.String(),
				SecretKey: serverSecret.String(),
			},
		}}
		if _, err := c.Resolve(); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	})

	t.Run("secure connect requires server key", func(t *testing.T) {
		c := &ClientConfig{Common: Common{
			Connect: []string{"tcp://127.0.0.1:7070"},
			Mechanism: &Mechanism{
				Type:      "secure",
				SecretKey: clientSecret.String(),
			},
		}}
		if _, err := c.Resolve(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Resolve = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("secure without secret key", func(t *testing.T) {
		c := &ServerConfig{Common: Common{
			Mechanism: &Mechanism{Type: "secure"},
		}}
		if _, err := c.Resolve(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Resolve = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("plain with keys", func(t *testing.T) {
		c := &ClientConfig{Common: Common{
			Mechanism: &Mechanism{Type: "plain", SecretKey: clientSecret.String()},
		}}
		if _, err := c.Resolve(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Resolve = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("malformed key", func(t *testing.T) {
		c := &ServerConfig{Common: Common{
			Mechanism: &Mechanism{Type: "secure", SecretKey: "too-short"},
		}}
		if _, err := c.Resolve(); !errors.Is(err, auth.ErrInvalidKey) {
			t.Errorf("Resolve = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		c := &ServerConfig{Common: Common{
			Mechanism: &Mechanism{Type: "gssapi"},
		}}
		if _, err := c.Resolve(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Resolve = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestParseSecureMechanismFromYAML(t *testing.T) {
	serverPublic, _, err := auth.NewCurveKeypair()
	if err != nil {
		t.Fatalf("NewCurveKeypair: %v", err)
	}
	_, clientSecret, err := auth.NewCurveKeypair()
	if err != nil {
		t.Fatalf("NewCurveKeypair: %v", err)
	}

	// Keys are quoted: the Z85 alphabet contains YAML-significant
	// characters, but never a double quote or backslash.
	text := fmt.Sprintf(`
client:
  connect: [tcp://127.0.0.1:7070]
  mechanism:
    type: secure
    secret_key: %q
    server_key: %q
`, clientSecret.String(), serverPublic.String())
	f, err := Parse([]byte(text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r, err := f.Client.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	server, ok := r.Mechanism.ServerKey()
	if !ok || server != serverPublic {
		t.Errorf("server key = (%v, %v)", server, ok)
	}
}

func unmarshalStrict(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

func TestDurationYAML(t *testing.T) {
	var c struct {
		D Duration `yaml:"d"`
	}
	if _, err := Parse(nil); err != nil {
		t.Fatalf("Parse(empty): %v", err)
	}
	if err := unmarshalStrict([]byte("d: 1500ms"), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.D.Std() != 1500*time.Millisecond {
		t.Errorf("d = %s", c.D.Std())
	}
	if err := unmarshalStrict([]byte("d: wat"), &c); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unmarshal bad duration = %v, want ErrInvalidConfig", err)
	}
}
