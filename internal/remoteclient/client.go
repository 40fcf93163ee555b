// Package remoteclient implements syncengine.RemoteClient over net/http and
// encoding/json: the default adapter for a sync server.
//
// Requests hit {baseURL}/tables/{table} with a verb-per-method mapping:
//
//	POST   /tables/{table}          tableInsert
//	PUT    /tables/{table}/{id}     tableUpdate
//	DELETE /tables/{table}/{id}     tableDelete
//	GET    /tables/{table}?...      tableRead
//
// HTTP status codes classify into the typed errors from
// internal/syncengine/errors.go: 401/403 become Auth, 409/412 become
// Conflict (carrying the server's item and version), other 4xx become
// Validation, and 5xx or a transport-level failure (dial, timeout, EOF)
// become Transport.
package remoteclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brettsam/offlinesync/internal/syncengine"
)

// Client is a net/http-backed syncengine.RemoteClient.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// protocolVersion, if set, is returned by ProtocolVersion and lets
	// SyncContext's protocol skew gate run before any request in this
	// Client ever goes out.
	protocolVersion string
}

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. "https://sync.example.com/api". No
	// trailing slash required.
	BaseURL string

	// HTTPClient is used for every request. Defaults to a client with a
	// 30 second timeout when nil.
	HTTPClient *http.Client

	// ProtocolVersion is the wire version this server build speaks,
	// reported via ProtocolVersion(). Leave empty to skip the skew check
	// entirely (SyncContext only checks adapters that implement the
	// VersionedRemoteClient interface with a non-empty result).
	ProtocolVersion string
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:      httpClient,
		protocolVersion: cfg.ProtocolVersion,
	}
}

// ProtocolVersion implements syncengine.VersionedRemoteClient.
func (c *Client) ProtocolVersion() string { return c.protocolVersion }

// envelope is the request/response body shape for insert/update, grounded
// in the Op/serverSeq wire envelope style used by the sync server reference
// in the retrieved examples: a thin wrapper around the item itself plus
// room for server-assigned metadata on the way back.
type envelope struct {
	Item Item `json:"item"`
}

// Item is the wire representation of a syncengine.Item: a plain JSON object.
type Item = syncengine.Item

// errorBody is the shape of a non-2xx JSON response body. Servers that
// don't return this shape still get classified correctly by status code
// alone; Message is used only for the wrapped error text.
type errorBody struct {
	Message    string          `json:"message"`
	ServerItem json.RawMessage `json:"serverItem,omitempty"`
	Version    string          `json:"version,omitempty"`
}

func (c *Client) TableInsert(ctx context.Context, tableName string, item syncengine.Item, features syncengine.RemoteFeatures) (syncengine.Item, error) {
	return c.sendItem(ctx, http.MethodPost, c.tableURL(tableName, ""), item, features)
}

func (c *Client) TableUpdate(ctx context.Context, tableName string, item syncengine.Item, features syncengine.RemoteFeatures) (syncengine.Item, error) {
	return c.sendItem(ctx, http.MethodPut, c.tableURL(tableName, item.ID()), item, features)
}

func (c *Client) TableDelete(ctx context.Context, tableName string, item syncengine.Item, features syncengine.RemoteFeatures) error {
	_, err := c.sendItem(ctx, http.MethodDelete, c.tableURL(tableName, item.ID()), item, features)
	return err
}

func (c *Client) TableRead(ctx context.Context, query syncengine.Query, features syncengine.RemoteFeatures) (syncengine.QueryResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.readURL(query), nil)
	if err != nil {
		return syncengine.QueryResult{}, &syncengine.TransportError{Kind: syncengine.RemoteErrorTransport, Err: err}
	}
	applyFeatures(req, features)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syncengine.QueryResult{}, &syncengine.TransportError{Kind: syncengine.RemoteErrorTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return syncengine.QueryResult{}, classifyStatus(tableNameFrom(query), "", resp)
	}

	var out struct {
		Items      []Item `json:"items"`
		TotalCount int    `json:"totalCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return syncengine.QueryResult{}, &syncengine.TransportError{Kind: syncengine.RemoteErrorTransport, Err: fmt.Errorf("decode tableRead response: %w", err)}
	}
	return syncengine.QueryResult{Items: out.Items, TotalCount: out.TotalCount}, nil
}

func (c *Client) sendItem(ctx context.Context, method, target string, item syncengine.Item, features syncengine.RemoteFeatures) (syncengine.Item, error) {
	var body io.Reader
	if method != http.MethodDelete || len(item) > 0 {
		buf, err := json.Marshal(envelope{Item: item})
		if err != nil {
			return nil, &syncengine.TransportError{Kind: syncengine.RemoteErrorTransport, Err: fmt.Errorf("marshal request body: %w", err)}
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &syncengine.TransportError{Kind: syncengine.RemoteErrorTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	applyFeatures(req, features)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &syncengine.TransportError{Kind: syncengine.RemoteErrorTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, classifyStatus(tableFromURL(target), item.ID(), resp)
	}
	if method == http.MethodDelete {
		return nil, nil
	}

	var out envelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &syncengine.TransportError{Kind: syncengine.RemoteErrorTransport, Err: fmt.Errorf("decode response body: %w", err)}
	}
	return out.Item, nil
}

// classifyStatus maps a non-2xx HTTP response to the typed error kinds
// of the sync wire contract.
func classifyStatus(tableName, itemID string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body errorBody
	_ = json.Unmarshal(raw, &body)
	msg := body.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = resp.Status
	}
	baseErr := fmt.Errorf("%s", msg)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &syncengine.TransportError{Kind: syncengine.RemoteErrorAuth, Err: baseErr}
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
		var serverItem Item
		if len(body.ServerItem) > 0 {
			_ = json.Unmarshal(body.ServerItem, &serverItem)
		}
		return &syncengine.ConflictError{
			TableName:  tableName,
			ItemID:     itemID,
			ServerItem: serverItem,
			Version:    body.Version,
			Err:        baseErr,
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &syncengine.TransportError{Kind: syncengine.RemoteErrorValidation, Err: baseErr}
	default:
		return &syncengine.TransportError{Kind: syncengine.RemoteErrorTransport, Err: baseErr}
	}
}

func (c *Client) tableURL(tableName, itemID string) string {
	u := fmt.Sprintf("%s/tables/%s", c.baseURL, url.PathEscape(tableName))
	if itemID != "" {
		u += "/" + url.PathEscape(itemID)
	}
	return u
}

func (c *Client) readURL(query syncengine.Query) string {
	u := fmt.Sprintf("%s/tables/%s", c.baseURL, url.PathEscape(query.TableName))
	values := url.Values{}
	for k, v := range query.Parameters {
		values.Set(k, v)
	}
	if !query.UpdatedAtLowerBound.IsZero() {
		values.Set("__updatedAtLowerBound", syncengine.FormatSyncTime(query.UpdatedAtLowerBound))
	}
	if query.FetchOffset > 0 {
		values.Set("__offset", strconv.Itoa(query.FetchOffset))
	}
	if query.FetchLimit > 0 {
		values.Set("__limit", strconv.Itoa(query.FetchLimit))
	}
	if query.IncludeTotalCount {
		values.Set("__includeTotalCount", "true")
	}
	if len(query.SelectFields) > 0 {
		values.Set("__selectFields", strings.Join(query.SelectFields, ","))
	}
	for i, clause := range query.Order {
		dir := "asc"
		if clause.Direction == syncengine.OrderDescending {
			dir = "desc"
		}
		values.Add(fmt.Sprintf("__order[%d]", i), clause.Field+":"+dir)
	}
	if enc := values.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func applyFeatures(req *http.Request, features syncengine.RemoteFeatures) {
	for k, v := range features {
		req.Header.Set("X-Sync-Feature-"+k, v)
	}
}

func tableFromURL(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "tables" && i+1 < len(parts) {
			name, _ := url.PathUnescape(parts[i+1])
			return name
		}
	}
	return ""
}

func tableNameFrom(query syncengine.Query) string { return query.TableName }

var _ syncengine.RemoteClient = (*Client)(nil)
var _ syncengine.VersionedRemoteClient = (*Client)(nil)
