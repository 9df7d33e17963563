package supervisor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// healthPollInterval is the delay between status probes.
const healthPollInterval = 200 * time.Millisecond

// WaitHealthy polls GET url until it answers with a 2xx status, the timeout
// passes or ctx is cancelled. It returns the last probe error on timeout.
func WaitHealthy(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	var last error
	for {
		if last = probeOnce(ctx, client, url); last == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not healthy after %s: %w", url, timeout, last)
		case <-ticker.C:
		}
	}
}

func probeOnce(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}
