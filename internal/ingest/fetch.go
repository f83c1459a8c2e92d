package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/docker/go-units"
)

var (
	ErrNoContent   = errors.New("attachment has no content")
	ErrUnsupported = errors.New("unsupported attachment url")
	ErrTooLarge    = errors.New("attachment too large")
)

// fetch returns an attachment's text from inline content, a data: URL or an
// HTTP(S) URL. Invalid UTF-8 is replaced rather than rejected.
func (i *Ingester) fetch(ctx context.Context, c candidate) (string, error) {
	if c.content != "" {
		return c.content, nil
	}

	switch {
	case c.url == "" || strings.HasPrefix(c.url, "blob:"):
		return "", ErrNoContent
	case strings.HasPrefix(c.url, "data:"):
		return decodeDataURL(c.url)
	case strings.HasPrefix(c.url, "http://"), strings.HasPrefix(c.url, "https://"):
		data, err := i.get(ctx, c.url)
		if err != nil {
			return "", err
		}
		return strings.ToValidUTF8(string(data), "�"), nil
	default:
		return "", ErrUnsupported
	}
}

func decodeDataURL(u string) (string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(u, "data:"), ",")
	if !ok || payload == "" {
		return "", ErrNoContent
	}
	if strings.Contains(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", fmt.Errorf("decoding data url: %w", err)
		}
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", fmt.Errorf("decoding data url: %w", err)
	}
	return strings.ToValidUTF8(text, "�"), nil
}

func (i *Ingester) get(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, i.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching attachment: status %d", resp.StatusCode)
	}
	if resp.ContentLength > i.maxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, units.HumanSize(float64(resp.ContentLength)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	if int64(len(data)) > i.maxBytes {
		return nil, fmt.Errorf("%w: over %s", ErrTooLarge, units.HumanSize(float64(i.maxBytes)))
	}
	return data, nil
}
