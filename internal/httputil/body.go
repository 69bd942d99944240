// Package httputil provides helpers for working with HTTP payloads safely.
package httputil

import (
	"errors"
	"io"

	"github.com/goccy/go-json"
)

const (
	// DefaultMaxRequestBodyBytes caps inbound request bodies to 1MB.
	DefaultMaxRequestBodyBytes int64 = 1 * 1024 * 1024
)

var ErrBodyTooLarge = errors.New("request body too large")

// ReadLimitedBody reads up to maxBytes from reader and returns
// ErrBodyTooLarge when exceeded.
func ReadLimitedBody(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(reader)
	}

	limited := io.LimitReader(reader, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return body, err
	}
	if int64(len(body)) > maxBytes {
		body = body[:int(maxBytes)]
		return body, ErrBodyTooLarge
	}
	return body, nil
}

// DecodeJSONBody reads a size-capped body and decodes it into out,
// rejecting unknown top-level syntax errors uniformly.
func DecodeJSONBody(reader io.Reader, maxBytes int64, out any) error {
	body, err := ReadLimitedBody(reader, maxBytes)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("request body is required")
	}
	return json.Unmarshal(body, out)
}
