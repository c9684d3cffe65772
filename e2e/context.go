package e2e

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext holds the state of one scenario against a running server.
type TestContext struct {
	BaseURL        string
	AuthorityToken string
	SessionID      string

	client     *http.Client
	lastStatus int
	lastBody   []byte
}

func NewTestContext(baseURL, token string) *TestContext {
	return &TestContext{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		AuthorityToken: token,
		client:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset gives every scenario its own session so scenarios never share
// strike or attendance state.
func (tc *TestContext) Reset() {
	var b [6]byte
	_, _ = rand.Read(b[:])
	tc.SessionID = "e2e-" + hex.EncodeToString(b[:])
	tc.lastStatus = 0
	tc.lastBody = nil
}

func (tc *TestContext) Session() string {
	return tc.SessionID
}

// Request sends a JSON request. Paths are relative to /v1.
func (tc *TestContext) Request(ctx context.Context, method, path string, body any, authority bool) error {
	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			if err != nil {
				return err
			}
			raw = string(b)
		}
		reader = bytes.NewBufferString(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, tc.BaseURL+"/v1"+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authority {
		req.Header.Set("Authorization", "Bearer "+tc.AuthorityToken)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField reads a top-level or dotted field from the last JSON body.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var v any
	if err := json.Unmarshal(tc.lastBody, &v); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	for _, part := range strings.Split(field, ".") {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		if v, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q not present in %s", field, tc.lastBody)
		}
	}
	return v, nil
}
