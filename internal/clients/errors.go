// Package clients holds the HTTP clients for the gateway's external
// collaborators: the User Service (profiles and interaction history) and the
// Agent Service (reply generation).
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNotFound reports an absent remote resource. It is an answer, not a failure.
var ErrNotFound = errors.New("not found")

// maxErrorDetail bounds how much of an error body ends up in logs.
const maxErrorDetail = 512

// RemoteServiceError is a network or HTTP failure talking to a collaborator.
type RemoteServiceError struct {
	Service string // "user-service", "agent-service"
	Op      string
	Status  int // 0 for transport failures
	Detail  string
	Err     error
}

func (e *RemoteServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Service, e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: %s", e.Service, e.Op, e.Detail)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// doJSON sends body (when non-nil) as JSON and returns the status and the
// raw response body. Only transport and encoding failures are errors here;
// status handling is left to the caller.
func doJSON(ctx context.Context, hc *http.Client, method, url string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func remoteErr(service, op string, status int, body []byte, err error) *RemoteServiceError {
	detail := strings.TrimSpace(string(body))
	if err != nil {
		detail = err.Error()
	}
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail]
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &RemoteServiceError{Service: service, Op: op, Status: status, Detail: detail, Err: err}
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }
