package types

import (
	"testing"
)

func TestParseMultiaddr(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"ip4 tcp", "/ip4/1.2.3.4/tcp/4001", false},
		{"ip6 quic", "/ip6/::1/udp/4001/quic-v1", false},
		{"dns4", "/dns4/example.com/tcp/443", false},
		{"empty", "", true},
		{"host port", "1.2.3.4:4001", true},
		{"unknown protocol", "/foo/1.2.3.4/tcp/80", true},
		{"missing transport", "/ip4/1.2.3.4", true},
		{"no port component", "/ip4", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMultiaddr(tc.input)
			if (err != nil) != tc.wantErr {
				t.Errorf("ParseMultiaddr(%q) = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
		})
	}
}

func TestMultiaddr_Accessors(t *testing.T) {
	ma := MustParseMultiaddr("/ip4/192.168.1.1/tcp/4001")

	if got := ma.IP().String(); got != "192.168.1.1" {
		t.Errorf("IP() = %q", got)
	}
	if got := ma.Port(); got != 4001 {
		t.Errorf("Port() = %d", got)
	}
	if got := ma.Transport(); got != "tcp" {
		t.Errorf("Transport() = %q", got)
	}
}

func TestMultiaddr_IsLoopback(t *testing.T) {
	if !MustParseMultiaddr("/ip4/127.0.0.1/tcp/80").IsLoopback() {
		t.Error("127.0.0.1 should be loopback")
	}
	if MustParseMultiaddr("/ip4/8.8.8.8/tcp/80").IsLoopback() {
		t.Error("8.8.8.8 should not be loopback")
	}
}

func TestParseMultiaddrStrict(t *testing.T) {
	// 保序去重
	mas, err := ParseMultiaddrStrict([]string{
		"/ip4/1.2.3.4/tcp/80",
		"/ip4/5.6.7.8/tcp/80",
		"/ip4/1.2.3.4/tcp/80",
	})
	if err != nil {
		t.Fatalf("ParseMultiaddrStrict: %v", err)
	}
	if len(mas) != 2 {
		t.Fatalf("expected 2 deduplicated addrs, got %d", len(mas))
	}
	if mas[0].String() != "/ip4/1.2.3.4/tcp/80" || mas[1].String() != "/ip4/5.6.7.8/tcp/80" {
		t.Errorf("order not preserved: %v", mas)
	}

	// 任一非法地址导致整体失败
	_, err = ParseMultiaddrStrict([]string{"/ip4/1.2.3.4/tcp/80", "bogus"})
	if err == nil {
		t.Fatal("expected error for invalid address")
	}
}
