package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 15 * time.Second

// errConnectionGone marks a connection the provider no longer knows about
var errConnectionGone = errors.New("connection not found")

// Remote error types reported by the auth API
const (
	errTypePhoneInvalid     = "PHONE_NUMBER_INVALID"
	errTypePhoneBanned      = "PHONE_NUMBER_BANNED"
	errTypeFloodWait        = "FLOOD_WAIT"
	errTypeCodeInvalid      = "PHONE_CODE_INVALID"
	errTypeCodeEmpty        = "PHONE_CODE_EMPTY"
	errTypePasswordNeeded   = "SESSION_PASSWORD_NEEDED"
	errTypePasswordInvalid  = "PASSWORD_HASH_INVALID"
	errTypeConnectionClosed = "CONNECTION_NOT_FOUND"
)

// HTTPGateway talks to the provider's JSON auth API.
type HTTPGateway struct {
	BaseURL    string
	APIID      int
	APIHash    string
	HTTPClient *http.Client
}

// NewHTTPGateway returns a gateway for the given base URL and API identity/credential pair.
func NewHTTPGateway(baseURL string, apiID int, apiHash string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPGateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIID:      apiID,
		APIHash:    apiHash,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type openRequest struct {
	APIID   int    `json:"api_id"`
	APIHash string `json:"api_hash"`
}

type openResponse struct {
	ConnectionID string `json:"connection_id"`
}

// Open creates a remote connection. Transport failures are reported as KindConnection.
func (g *HTTPGateway) Open(ctx context.Context) (Conn, error) {
	var resp openResponse
	err := g.do(ctx, http.MethodPost, "/v1/connections", openRequest{APIID: g.APIID, APIHash: g.APIHash}, &resp)
	if err != nil {
		if KindOf(err) == KindRemote {
			return nil, &Error{Kind: KindConnection, Message: "open connection: " + err.Error(), Err: err}
		}
		return nil, err
	}
	if resp.ConnectionID == "" {
		return nil, &Error{Kind: KindConnection, Message: "provider returned no connection id"}
	}
	return &httpConn{gw: g, id: resp.ConnectionID}, nil
}

type httpConn struct {
	gw *HTTPGateway
	id string

	// phoneCodeHash ties SignIn to the code sent by RequestCode
	phoneCodeHash string

	closeOnce sync.Once
	closeErr  error
}

type sendCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type sendCodeResponse struct {
	PhoneCodeHash string `json:"phone_code_hash"`
}

func (c *httpConn) path(action string) string {
	return "/v1/connections/" + url.PathEscape(c.id) + action
}

func (c *httpConn) RequestCode(ctx context.Context, phone string) error {
	var resp sendCodeResponse
	if err := c.gw.do(ctx, http.MethodPost, c.path("/send_code"), sendCodeRequest{PhoneNumber: phone}, &resp); err != nil {
		return err
	}
	c.phoneCodeHash = resp.PhoneCodeHash
	return nil
}

type signInRequest struct {
	PhoneNumber   string `json:"phone_number"`
	Code          string `json:"code"`
	PhoneCodeHash string `json:"phone_code_hash,omitempty"`
	Password      string `json:"password,omitempty"`
}

func (c *httpConn) SignIn(ctx context.Context, phone, code, password string) error {
	req := signInRequest{
		PhoneNumber:   phone,
		Code:          code,
		PhoneCodeHash: c.phoneCodeHash,
		Password:      password,
	}
	return c.gw.do(ctx, http.MethodPost, c.path("/sign_in"), req, nil)
}

type exportResponse struct {
	Session string `json:"session"`
}

func (c *httpConn) ExportSession(ctx context.Context) (string, error) {
	var resp exportResponse
	if err := c.gw.do(ctx, http.MethodPost, c.path("/export"), struct{}{}, &resp); err != nil {
		return "", err
	}
	if resp.Session == "" {
		return "", &Error{Kind: KindRemote, Message: "provider returned an empty session"}
	}
	return resp.Session, nil
}

// Close deletes the remote connection once; later calls return the first result.
func (c *httpConn) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		err := c.gw.do(ctx, http.MethodDelete, c.path(""), nil, nil)
		if errors.Is(err, errConnectionGone) {
			err = nil
		}
		c.closeErr = err
	})
	return c.closeErr
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// Non-2xx answers are converted to *Error using the remote error type.
func (g *HTTPGateway) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return &Error{Kind: KindRemote, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Kind: KindRemote, Message: "read provider response: " + err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Kind: KindRemote, Message: "decode provider response: " + err.Error(), Err: err}
		}
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || eb.Error.Type == "" {
		return &Error{Kind: KindRemote, Message: fmt.Sprintf("provider request failed status=%d body=%s", status, strings.TrimSpace(string(raw)))}
	}

	msg := eb.Error.Message
	if msg == "" {
		msg = eb.Error.Type
	}

	errType := eb.Error.Type
	switch {
	case errType == errTypePhoneInvalid || errType == errTypePhoneBanned:
		return &Error{Kind: KindInvalidPhone, Message: msg}
	case strings.HasPrefix(errType, errTypeFloodWait):
		return &Error{Kind: KindRateLimited, Message: msg}
	case errType == errTypeCodeInvalid || errType == errTypeCodeEmpty:
		return &Error{Kind: KindInvalidCode, Message: msg}
	case errType == errTypePasswordNeeded:
		return &Error{Kind: KindPasswordRequired, Message: msg}
	case errType == errTypePasswordInvalid:
		return &Error{Kind: KindInvalidPassword, Message: msg}
	case errType == errTypeConnectionClosed:
		return &Error{Kind: KindRemote, Message: msg, Err: errConnectionGone}
	default:
		return &Error{Kind: KindRemote, Message: msg}
	}
}
