package endpoint

import (
	"errors"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"tcp://127.0.0.1:7070",
		"tcp://0.0.0.0:*",
		"tcp://[::1]:8080",
		"tcp://localhost:9000",
		"inproc://control",
		"ipc:///tmp/feed.sock",
	}
	for _, text := range cases {
		ep, err := Parse(text)
		if err != nil {
			t.Fatalf("Parse(%q): %v", text, err)
		}
		if got := ep.String(); got != text {
			t.Errorf("String() = %q, want %q", got, text)
		}
		again, err := Parse(ep.String())
		if err != nil {
			t.Fatalf("re-Parse(%q): %v", ep.String(), err)
		}
		if again != ep {
			t.Errorf("round trip of %q not stable: %v != %v", text, again, ep)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"",
		"127.0.0.1:7070",       // no scheme
		"udp://127.0.0.1:7070", // unsupported transport
		"tcp://127.0.0.1",      // no port
		"tcp://:7070",          // no host
		"tcp://127.0.0.1:",     // empty port
		"tcp://127.0.0.1:abc",  // non-numeric port
		"tcp://127.0.0.1:99999",
		"tcp://127.0.0.1:**",
		"tcp://[::1:8080", // unterminated IPv6 literal
		"inproc://",
		"ipc://",
	}
	for _, text := range cases {
		if _, err := Parse(text); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("Parse(%q) = %v, want ErrInvalidAddress", text, err)
		}
	}
}

func TestParseTooLongInproc(t *testing.T) {
	name := make([]byte, InprocMaxSize+1)
	for i := range name {
		name[i] = 'a'
	}
	if _, err := Parse("inproc://" + string(name)); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("oversized inproc name accepted: %v", err)
	}
	if _, err := Parse("inproc://" + string(name[1:])); err != nil {
		t.Fatalf("max-size inproc name rejected: %v", err)
	}
}

func TestWildcardResolution(t *testing.T) {
	ep := MustParse("tcp://0.0.0.0:*")
	if !ep.IsWildcard() {
		t.Fatal("expected wildcard endpoint")
	}
	resolved := ep.Resolved(40123)
	if resolved.IsWildcard() {
		t.Error("resolved endpoint still wildcard")
	}
	if resolved.Port() != 40123 {
		t.Errorf("Port() = %d, want 40123", resolved.Port())
	}
	if got := resolved.String(); got != "tcp://0.0.0.0:40123" {
		t.Errorf("String() = %q", got)
	}
	// The original is unchanged.
	if !ep.IsWildcard() {
		t.Error("Resolved mutated its receiver")
	}
}

func TestNetworkAddr(t *testing.T) {
	cases := []struct {
		text    string
		network string
		addr    string
	}{
		{"tcp://127.0.0.1:7070", "tcp", "127.0.0.1:7070"},
		{"tcp://*:7070", "tcp", ":7070"},
		{"tcp://*:*", "tcp", ":0"},
		{"ipc:///tmp/x.sock", "unix", "/tmp/x.sock"},
		{"inproc://x", "", ""},
	}
	for _, c := range cases {
		network, addr := MustParse(c.text).NetworkAddr()
		if network != c.network || addr != c.addr {
			t.Errorf("NetworkAddr(%q) = (%q, %q), want (%q, %q)",
				c.text, network, addr, c.network, c.addr)
		}
	}
}
