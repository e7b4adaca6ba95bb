package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/brutella/dnssd"
	"github.com/stretchr/testify/assert"
)

func TestServiceURL(t *testing.T) {
	tests := map[string]struct {
		svc  Service
		want string
	}{
		"ipv4 preferred": {
			svc:  Service{Host: "relay.local", IPs: []net.IP{net.ParseIP("fe80::1"), net.ParseIP("192.168.1.5")}, Port: 8080, Path: "/ws"},
			want: "ws://192.168.1.5:8080/ws",
		},
		"ipv6 only falls back to host": {
			svc:  Service{Host: "relay.local", IPs: []net.IP{net.ParseIP("fe80::1")}, Port: 8080, Path: "/api/socket"},
			want: "ws://relay.local:8080/api/socket",
		},
		"ipv6 without host": {
			svc:  Service{IPs: []net.IP{net.ParseIP("fe80::1")}, Port: 9000},
			want: "ws://[fe80::1]:9000/ws",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.svc.URL())
		})
	}
}

func TestFromEntry(t *testing.T) {
	svc := fromEntry(dnssd.BrowseEntry{
		Name: "nexus",
		Host: "box.local",
		IPs:  []net.IP{net.ParseIP("10.0.0.2")},
		Port: 8080,
		Text: map[string]string{TextPath: "/ws"},
	})
	assert.Equal(t, "ws://10.0.0.2:8080/ws", svc.URL())
	assert.Equal(t, "nexus", svc.Name)
}

func TestAnnounceStopsOnCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping mDNS test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Announce(ctx, "nexus-test", 8080, "/ws") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Skipf("mDNS unavailable here: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("announce did not stop")
	}
}
