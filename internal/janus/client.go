package janus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

//go:generate mockgen -source=client.go -destination=mock_gateway.go -package=janus

// Gateway is the request/response side of the media server. A connection is
// the server's "session"; handles are plugin attachments on a connection.
type Gateway interface {
	CreateConnection(ctx context.Context) (string, error)
	DestroyConnection(ctx context.Context, connectionID string) error
	Attach(ctx context.Context, connectionID string, plugin Plugin) (string, error)
	Detach(ctx context.Context, connectionID, handleID string) error
	Message(ctx context.Context, connectionID, handleID string, body any, jsep *JSEP) (*PluginResponse, error)
	Info(ctx context.Context) (*ServerInfo, error)
}

type Client struct {
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	apiSecret string
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithAPISecret(secret string) Option {
	return func(c *Client) { c.apiSecret = secret }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ Gateway = (*Client)(nil)

func (c *Client) CreateConnection(ctx context.Context) (string, error) {
	resp, err := c.post(ctx, c.baseURL, request{Janus: reqCreate})
	if err != nil {
		return "", err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return "", fmt.Errorf("janus: create returned no id")
	}
	return resp.Data.ID.String(), nil
}

func (c *Client) DestroyConnection(ctx context.Context, connectionID string) error {
	_, err := c.post(ctx, c.baseURL+"/"+connectionID, request{Janus: reqDestroy})
	return err
}

func (c *Client) Attach(ctx context.Context, connectionID string, plugin Plugin) (string, error) {
	resp, err := c.post(ctx, c.baseURL+"/"+connectionID, request{Janus: reqAttach, Plugin: plugin})
	if err != nil {
		return "", err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return "", fmt.Errorf("janus: attach returned no id")
	}
	return resp.Data.ID.String(), nil
}

func (c *Client) Detach(ctx context.Context, connectionID, handleID string) error {
	_, err := c.post(ctx, c.baseURL+"/"+connectionID+"/"+handleID, request{Janus: reqDetach})
	return err
}

// Message sends a plugin request. Synchronous requests return the plugin
// data; asynchronous ones return an acknowledged response.
func (c *Client) Message(ctx context.Context, connectionID, handleID string, body any, jsep *JSEP) (*PluginResponse, error) {
	resp, err := c.post(ctx, c.baseURL+"/"+connectionID+"/"+handleID, request{Janus: reqMessage, Body: body, JSEP: jsep})
	if err != nil {
		return nil, err
	}
	if resp.Janus == respAck {
		return &PluginResponse{Ack: true}, nil
	}
	if resp.PluginData == nil {
		return nil, fmt.Errorf("janus: message response without plugin data")
	}
	if perr := pluginError(resp.PluginData.Data); perr != nil {
		return nil, perr
	}
	return &PluginResponse{Plugin: resp.PluginData.Plugin, Data: resp.PluginData.Data}, nil
}

func (c *Client) Info(ctx context.Context) (*ServerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/info", nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("janus info: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("janus info: unexpected status %d", res.StatusCode)
	}
	var info ServerInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("janus info: %w", err)
	}
	if info.Janus != respServerInfo {
		return nil, fmt.Errorf("janus info: unexpected response %q", info.Janus)
	}
	return &info, nil
}

func (c *Client) post(ctx context.Context, url string, r request) (*response, error) {
	r.Transaction = uuid.NewString()
	r.APISecret = c.apiSecret

	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("janus %s: encode: %w", r.Janus, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("janus %s: %w", r.Janus, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("janus %s: read: %w", r.Janus, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("janus %s: unexpected status %d", r.Janus, res.StatusCode)
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("janus %s: decode: %w", r.Janus, err)
	}
	log.Debug().Str("module", "janus").Str("request", r.Janus).Str("transaction", r.Transaction).Str("response", out.Janus).Msg("round trip")

	if out.Transaction != "" && out.Transaction != r.Transaction {
		return nil, fmt.Errorf("janus %s: transaction mismatch", r.Janus)
	}
	switch out.Janus {
	case respSuccess, respAck:
		return &out, nil
	case respError:
		if out.Error != nil {
			return nil, out.Error
		}
		return nil, fmt.Errorf("janus %s: error without details", r.Janus)
	default:
		return nil, fmt.Errorf("janus %s: unexpected response %q", r.Janus, out.Janus)
	}
}
