package candidate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// TransportType defines the transport type for connections to the
// delivery service.
type TransportType string

const (
	TransportSSE            TransportType = "sse"
	TransportStreamableHTTP TransportType = "streamable-http"
)

// TransportFor infers the transport from an endpoint URL. Endpoints
// ending in /sse use the SSE transport, everything else speaks
// streamable HTTP.
func TransportFor(endpoint string) TransportType {
	if strings.HasSuffix(endpoint, "/sse") {
		return TransportSSE
	}
	return TransportStreamableHTTP
}

// Client is a thin MCP client over the delivery service's tools.
type Client struct {
	endpoint  string
	transport TransportType
	client    client.MCPClient
	timeout   time.Duration
}

// NewClient creates a client for the given endpoint. The transport is
// inferred from the URL.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:  endpoint,
		transport: TransportFor(endpoint),
		timeout:   30 * time.Second,
	}
}

// Endpoint returns the endpoint URL the client was created with.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Connect starts the transport and performs the protocol handshake.
func (c *Client) Connect(ctx context.Context) error {
	var mcpClient client.MCPClient
	switch c.transport {
	case TransportSSE:
		sseClient, err := client.NewSSEMCPClient(c.endpoint)
		if err != nil {
			return fmt.Errorf("failed to create SSE client: %w", err)
		}
		if err := sseClient.Start(ctx); err != nil {
			return fmt.Errorf("failed to start SSE client: %w", err)
		}
		mcpClient = sseClient

	case TransportStreamableHTTP:
		httpClient, err := client.NewStreamableHttpClient(c.endpoint)
		if err != nil {
			return fmt.Errorf("failed to create streamable-http client: %w", err)
		}
		if err := httpClient.Start(ctx); err != nil {
			return fmt.Errorf("failed to start streamable-http client: %w", err)
		}
		mcpClient = httpClient

	default:
		return fmt.Errorf("unsupported transport type: %s", c.transport)
	}

	c.client = mcpClient
	if err := c.initialize(ctx); err != nil {
		c.client.Close()
		c.client = nil
		return fmt.Errorf("initialization failed: %w", err)
	}
	return nil
}

// initialize performs the MCP protocol handshake.
func (c *Client) initialize(ctx context.Context) error {
	req := mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "proctor-candidate",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.client.Initialize(timeoutCtx, req)
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return nil
}

// Call executes one delivery tool and decodes the JSON payload of the
// reply. Tool errors come back as plain errors carrying the service's
// message.
func (c *Client) Call(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}

	req := mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      name,
			Arguments: args,
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.CallTool(timeoutCtx, req)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}
	return decodeResult(result)
}

// decodeResult unwraps the text payload of a tool result. Error
// results become errors, JSON payloads are decoded, anything else is
// returned as the raw string.
func decodeResult(result *mcp.CallToolResult) (interface{}, error) {
	var texts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, textContent.Text)
		}
	}

	if result.IsError {
		if len(texts) == 0 {
			return nil, fmt.Errorf("tool call returned an error without a message")
		}
		return nil, fmt.Errorf("%s", strings.Join(texts, "\n"))
	}

	if len(texts) == 0 {
		return nil, nil
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(texts[0]), &decoded); err != nil {
		// Not JSON, hand the text back as is.
		return texts[0], nil
	}
	return decoded, nil
}
