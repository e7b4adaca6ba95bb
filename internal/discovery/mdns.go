// Package discovery advertises and finds relays on the local network over
// mDNS / DNS-SD.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/brutella/dnssd"
)

const (
	ServiceType = "_nexus._tcp"
	Domain      = "local"

	// TextPath is the TXT key holding the websocket path.
	TextPath = "path"
)

// Service is a relay found on the network.
type Service struct {
	Name string
	Host string
	IPs  []net.IP
	Port int
	Path string
}

// URL returns the websocket endpoint for the service, preferring IPv4.
func (s Service) URL() string {
	host := s.Host
	for _, ip := range s.IPs {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	if host == "" && len(s.IPs) > 0 {
		host = s.IPs[0].String()
	}
	path := s.Path
	if path == "" {
		path = "/ws"
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(s.Port)) + path
}

// Announce advertises the relay until ctx is done.
func Announce(ctx context.Context, name string, port int, path string) error {
	cfg := dnssd.Config{
		Name:   name,
		Type:   ServiceType,
		Domain: Domain,
		// mdns will multicast to every interface address
		IPs:  nil,
		Text: map[string]string{TextPath: path},
		Port: port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}

	if _, err = rp.Add(service); err != nil {
		return fmt.Errorf("failed to add mDNS service: %w", err)
	}

	slog.Info("announcing relay over mDNS", "name", name, "type", ServiceType, "port", port)
	if err = rp.Respond(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to respond to mDNS queries: %w", err)
	}
	return nil
}

// Discover browses for relays and returns the first one that resolves to an
// address. It gives up when ctx is done.
func Discover(ctx context.Context) (Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan Service, 1)
	addFn := func(e dnssd.BrowseEntry) {
		if len(e.IPs) == 0 {
			return
		}
		select {
		case found <- fromEntry(e):
		default:
		}
		cancel()
	}
	rmvFn := func(dnssd.BrowseEntry) {}

	err := dnssd.LookupType(ctx, ServiceType+"."+Domain+".", addFn, rmvFn)

	select {
	case svc := <-found:
		return svc, nil
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return Service{}, fmt.Errorf("mDNS lookup failed: %w", err)
	}
	return Service{}, fmt.Errorf("no relay found on the local network: %w", ctx.Err())
}

func fromEntry(e dnssd.BrowseEntry) Service {
	return Service{
		Name: e.Name,
		Host: e.Host,
		IPs:  e.IPs,
		Port: e.Port,
		Path: e.Text[TextPath],
	}
}
