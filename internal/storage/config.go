package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// Config carries everything a backend needs to open a bucket.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	SFTP      struct {
		KeyPath    string
		KnownHosts string
	}
}

// ParseEndpoint validates an endpoint URL. A scheme and a host (or path for file://) are required.
func ParseEndpoint(endpoint string) (*url.URL, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("invalid endpoint: empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing scheme", endpoint)
	}
	if u.Scheme != "file" && u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	return u, nil
}
