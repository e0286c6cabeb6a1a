// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package catalog

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
	"time"
)

// DefaultTimeout is the request timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

// RestConfig configures a [RestClient].
type RestConfig struct {
	// URI is the base URL of the catalog service.
	URI string

	// Prefix is an optional path prefix of the catalog API.
	Prefix string

	// Token is an optional bearer token.
	Token string

	// Timeout is the timeout of a single request.
	Timeout time.Duration

	// HTTPClient is an optional HTTP client. The client is copied, and
	// the copy gets the configured Timeout.
	HTTPClient *http.Client
}

// RestClient is a [Client] for the REST catalog API.
type RestClient struct {
	conf       RestConfig
	baseURL    string
	httpClient *http.Client
}

var _ Client = &RestClient{}

// NewRestClient creates a new [RestClient] from the given config.
func NewRestClient(conf RestConfig) (*RestClient, error) {
	if conf.URI == "" {
		return nil, errors.New("catalog uri is required")
	}

	baseURL := strings.TrimSuffix(conf.URI, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	httpClient := &http.Client{}
	if conf.HTTPClient != nil {
		c := *conf.HTTPClient
		httpClient = &c
	}

	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient.Timeout = timeout

	client := &RestClient{
		conf:       conf,
		baseURL:    baseURL,
		httpClient: httpClient,
	}

	return client, nil
}

type tableResponse struct {
	Name       string            `json:"name"`
	Location   string            `json:"location"`
	Properties map[string]string `json:"properties"`
}

type partitionsResponse struct {
	Partitions []struct {
		Name       string `json:"name"`
		Location   string `json:"location"`
		CreateTime int64  `json:"create_time"`
	} `json:"partitions"`
}

// TableExists implements the [Client] interface.
func (c *RestClient) TableExists(ctx context.Context, database, table string) (bool, error) {
	_, err := c.GetTableProperties(ctx, database, table)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrTableNotFound):
		return false, nil
	default:
		return false, err
	}
}

// GetTableProperties implements the [Client] interface.
func (c *RestClient) GetTableProperties(ctx context.Context, database, table string) (map[string]string, error) {
	var resp tableResponse
	if err := c.do(ctx, http.MethodGet, c.tablePath(database, table), &resp); err != nil {
		return nil, err
	}

	if resp.Properties == nil {
		resp.Properties = make(map[string]string)
	}

	return resp.Properties, nil
}

// DropTable implements the [Client] interface.
func (c *RestClient) DropTable(ctx context.Context, database, table string) error {
	return c.do(ctx, http.MethodDelete, c.tablePath(database, table)+"?purge=false", nil)
}

// DropPartition implements the [Client] interface.
func (c *RestClient) DropPartition(ctx context.Context, database, table, partition string) error {
	path := c.tablePath(database, table) + "/partitions/" + url.PathEscape(partition) + "?purge=false"
	err := c.do(ctx, http.MethodDelete, path, nil)
	if errors.Is(err, ErrPartitionNotFound) || errors.Is(err, ErrTableNotFound) {
		return nil
	}

	return err
}

// ListPartitions implements the [Client] interface.
func (c *RestClient) ListPartitions(ctx context.Context, database, table string) ([]Partition, error) {
	var resp partitionsResponse
	if err := c.do(ctx, http.MethodGet, c.tablePath(database, table)+"/partitions", &resp); err != nil {
		return nil, err
	}

	items := make([]Partition, 0, len(resp.Partitions))
	for _, p := range resp.Partitions {
		item := Partition{
			Name: p.Name,
			Path: p.Location,
		}
		if p.CreateTime > 0 {
			ts := time.Unix(p.CreateTime, 0).UTC()
			item.CreatedAt = &ts
		}
		items = append(items, item)
	}

	return items, nil
}

// Close implements the [Client] interface.
func (c *RestClient) Close() error {
	c.httpClient.CloseIdleConnections()

	return nil
}

func (c *RestClient) tablePath(database, table string) string {
	base := "/v1"
	if c.conf.Prefix != "" {
		base += "/" + strings.Trim(c.conf.Prefix, "/")
	}

	return base + "/databases/" + url.PathEscape(database) + "/tables/" + url.PathEscape(table)
}

func (c *RestClient) do(ctx context.Context, method, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("cannot create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.conf.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.conf.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close() // nolint: errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("cannot read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return errorFromResponse(resp.StatusCode, body)
	}

	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("cannot decode response: %w", err)
		}
	}

	return nil
}

func errorFromResponse(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &errResp)

	msg := errResp.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch statusCode {
	case http.StatusNotFound:
		kind := strings.ToLower(errResp.Error.Type + " " + msg)
		if strings.Contains(kind, "partition") {
			return fmt.Errorf("%w: %s", ErrPartitionNotFound, msg)
		}

		return fmt.Errorf("%w: %s", ErrTableNotFound, msg)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	default:
		return fmt.Errorf("catalog error (status %d): %s", statusCode, msg)
	}
}
