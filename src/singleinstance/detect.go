package singleinstance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const pingTimeout = 300 * time.Millisecond

// Detect scans the range and returns the base URL of the first resident that
// answers the health check.
func Detect(ctx context.Context, client *http.Client, r Range) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	r = r.Normalize()
	for port := r.Start; port <= r.End; port++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if base, ok := ping(ctx, client, port); ok {
			return base, nil
		}
	}
	return "", ErrNotFound
}

func ping(ctx context.Context, client *http.Client, port int) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	base := fmt.Sprintf("http://%s:%d", residentHost, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+HealthPath, nil)
	if err != nil {
		return "", false
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	var h Health
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&h) != nil {
		return "", false
	}
	return base, h.OK()
}
