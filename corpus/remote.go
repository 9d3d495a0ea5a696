package corpus

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// RemoteSource enumerates documents from an HTTP listing: a plain-text
// resource with one document URL per line (blank lines and # comments
// are ignored). Documents are fetched individually on Load.
type RemoteSource struct {
	// ListingURL points at the newline-delimited list of document URLs.
	ListingURL string
	// Client overrides the default HTTP client.
	Client *http.Client
}

func (s *RemoteSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// Enumerate fetches and parses the listing. The result is sorted by URL so
// the order does not depend on how the listing happens to be served.
func (s *RemoteSource) Enumerate(ctx context.Context) ([]Ref, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ListingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch listing %s: %v", ErrSourceUnavailable, s.ListingURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: listing %s returned status %d", ErrSourceUnavailable, s.ListingURL, resp.StatusCode)
	}

	var refs []Ref
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || u.Scheme == "" {
			continue
		}
		refs = append(refs, Ref{ID: idFromPath(u.Path), Origin: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read listing: %v", ErrSourceUnavailable, err)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Origin < refs[j].Origin })
	return refs, nil
}

// Load fetches one document over HTTP.
func (s *RemoteSource) Load(ctx context.Context, ref Ref) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.Origin, nil)
	if err != nil {
		return Document{}, err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetch %s: %w", ref.Origin, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("fetch %s: status %d", ref.Origin, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", ref.Origin, err)
	}
	return Document{ID: ref.ID, Data: data, Origin: ref.Origin, Size: int64(len(data))}, nil
}
