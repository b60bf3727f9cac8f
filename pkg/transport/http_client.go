package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// Page is one page of the conversation history, newest-first as served.
type Page struct {
	Messages  []chat.Message
	NextToken string
}

// Client is the request/response side of the conversation API.
// Implementations never retry; callers own the retry policy.
type Client interface {
	FetchPage(ctx context.Context, convID string, pageSize int, nextToken string) (*Page, error)
	FetchSince(ctx context.Context, convID string, sinceMessageID string) ([]chat.Message, error)
	SendMessage(ctx context.Context, convID, user, body string) error
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

var _ Client = &HTTPClient{}

type HTTPClientOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithRequestTimeout bounds every single request. Zero disables the bound.
func WithRequestTimeout(d time.Duration) HTTPClientOption {
	return func(h *HTTPClient) {
		h.timeout = d
	}
}

// NewHTTPClient targets baseURL, e.g. http://localhost:9001/api/v1.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("http client: empty base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "http client: parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("http client: unsupported scheme %q", u.Scheme)
	}
	c := &HTTPClient{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) FetchPage(ctx context.Context, convID string, pageSize int, nextToken string) (*Page, error) {
	const op = "fetch page"
	q := url.Values{}
	q.Set("conversation_id", convID)
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	if nextToken != "" {
		q.Set("next_token", nextToken)
	}
	body, err := c.get(ctx, op, "/messages", q)
	if err != nil {
		return nil, err
	}
	msgs, token, err := decodeMessages(op, convID, body)
	if err != nil {
		return nil, err
	}
	return &Page{Messages: msgs, NextToken: token}, nil
}

func (c *HTTPClient) FetchSince(ctx context.Context, convID string, sinceMessageID string) ([]chat.Message, error) {
	const op = "fetch since"
	q := url.Values{}
	q.Set("conversation_id", convID)
	q.Set("message_id", sinceMessageID)
	body, err := c.get(ctx, op, "/messages/refresh", q)
	if err != nil {
		return nil, err
	}
	msgs, _, err := decodeMessages(op, convID, body)
	return msgs, err
}

func (c *HTTPClient) SendMessage(ctx context.Context, convID, user, body string) error {
	const op = "send message"
	payload, err := json.Marshal(&sendRequest{
		ConversationID: convID,
		Body:           body,
		User:           user,
	})
	if err != nil {
		return errors.Wrap(err, "send message: encode request")
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return &chat.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &chat.TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &chat.TransportError{Op: op, Status: resp.StatusCode}
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	u := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &chat.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &chat.TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &chat.TransportError{Op: op, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &chat.TransportError{Op: op, Err: err}
	}
	return body, nil
}

func (c *HTTPClient) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}
