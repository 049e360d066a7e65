package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/AzielCF/az-mediacache/mediacache/domain"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

// DataURLFetcher serves references that already are inline payloads.
type DataURLFetcher struct{}

func (DataURLFetcher) Fetch(ctx context.Context, remoteRef string) (string, error) {
	if _, _, err := DecodeDataURL(remoteRef); err != nil {
		return "", &pkgError.RemoteUnavailable{Ref: "data:", Err: err}
	}
	return remoteRef, nil
}

// Mux dispatches to a fetcher by reference scheme.
type Mux struct {
	fetchers map[string]domain.Fetcher
}

func NewMux() *Mux {
	return &Mux{fetchers: map[string]domain.Fetcher{"data": DataURLFetcher{}}}
}

// Handle registers f for each scheme, replacing earlier registrations.
func (m *Mux) Handle(f domain.Fetcher, schemes ...string) *Mux {
	for _, s := range schemes {
		m.fetchers[strings.ToLower(s)] = f
	}
	return m
}

func (m *Mux) Fetch(ctx context.Context, remoteRef string) (string, error) {
	scheme := ""
	if strings.HasPrefix(remoteRef, "data:") {
		scheme = "data"
	} else if u, err := url.Parse(remoteRef); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}

	f, ok := m.fetchers[scheme]
	if !ok {
		return "", &pkgError.RemoteUnavailable{Ref: remoteRef, Err: fmt.Errorf("no fetcher for scheme %q", scheme)}
	}
	return f.Fetch(ctx, remoteRef)
}
