package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dyluth/hark/internal/admin"
	"github.com/dyluth/hark/internal/config"
)

var adminAddr string

func init() {
	rootCmd.PersistentFlags().StringVar(&adminAddr, "admin", "", "Admin API base URL (default derived from admin.addr)")
}

// adminClient talks to a running pipeline's admin API.
type adminClient struct {
	base string
	http *http.Client
}

func newAdminClient(cfg *config.HarkConfig) *adminClient {
	return &adminClient{
		base: adminBaseURL(adminAddr, cfg.Admin.Addr),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// adminBaseURL prefers the explicit flag; a bare ":port" listen address maps to localhost.
func adminBaseURL(flag, listen string) string {
	addr := flag
	if addr == "" {
		addr = listen
	}
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimSuffix(addr, "/")
}

// do sends body as JSON and decodes a JSON reply into out when out is non-nil.
func (c *adminClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("admin API unreachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr admin.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
