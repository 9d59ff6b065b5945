package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a shared HTTP client with a 15-second timeout so a slow
// provider never hangs a feed goroutine.
var Client = &http.Client{Timeout: 15 * time.Second}

// maxBody bounds a decoded JSON response.
const maxBody = 1 << 20

// GetJSON issues a GET using the shared Client and decodes a 2xx JSON body
// into v. The prefix is included in error messages (e.g. "weather").
func GetJSON(ctx context.Context, url, prefix string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	defer resp.Body.Close()
	if err := CheckStatus(resp, prefix); err != nil {
		return err
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(v); err != nil {
		return fmt.Errorf("%s: decoding response: %w", prefix, err)
	}
	return nil
}

// CheckStatus returns an error if the response status code is not 2xx.
// The prefix is included in the error message for context (e.g. "weather").
func CheckStatus(resp *http.Response, prefix string) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %d: %s", prefix, resp.StatusCode, ReadSnippet(resp.Body))
	}
	return nil
}

// ReadSnippet reads up to 200 bytes from r for inclusion in error messages.
func ReadSnippet(r io.Reader) string {
	buf := make([]byte, 200)
	n, _ := io.ReadFull(r, buf)
	if n == 0 {
		return "(empty body)"
	}
	s := string(buf[:n])
	if n == 200 {
		s += "..."
	}
	return s
}
