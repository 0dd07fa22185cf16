// ABOUTME: mDNS discovery of speech synthesis backends on the local network
// ABOUTME: Resolves the first advertised backend to a base URL
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/mdns"
)

const (
	serviceType   = "_voicedeck-tts._tcp"
	serviceDomain = "local"
	queryTimeout  = 3 * time.Second
)

// Backend describes a discovered synthesis backend
type Backend struct {
	Name string
	Host string
	Port int
}

// URL returns the backend's HTTP base URL
func (b Backend) URL() string {
	return fmt.Sprintf("http://%s:%d", b.Host, b.Port)
}

// FindBackend browses for an advertised synthesis backend until ctx
// expires, returning the first one found.
func FindBackend(ctx context.Context, logger *log.Logger) (Backend, error) {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("discovery")

	for {
		select {
		case <-ctx.Done():
			return Backend{}, fmt.Errorf("discovery: no backend found: %w", ctx.Err())
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		found := make(chan Backend, 1)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				b := Backend{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}
				logger.Info("backend discovered", "name", b.Name, "url", b.URL())
				select {
				case found <- b:
				default:
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: serviceType,
			Domain:  serviceDomain,
			Timeout: queryTimeout,
			Entries: entries,
		}
		mdns.Query(params)
		close(entries)

		select {
		case b := <-found:
			return b, nil
		default:
			logger.Debug("no backend yet, retrying")
		}
	}
}
