// Command mcp-server exposes a running remedy service as MCP tools so
// agent frameworks can repair code through the Model Context Protocol.
// Provides "repair_code" (buffered repair run) and "service_health".
//
// Configuration:
//
//	MCP_PORT       - Listen port (default: 8081)
//	REMEDY_URL     - Base URL of the remedy server (default: http://localhost:8080)
//	REMEDY_API_KEY - Bearer token sent with every request (optional)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/remedy/pkg/api"
)

func main() {
	port := os.Getenv("MCP_PORT")
	if port == "" {
		port = "8081"
	}
	remedyURL := os.Getenv("REMEDY_URL")
	if remedyURL == "" {
		remedyURL = "http://localhost:8080"
	}
	remedyURL = strings.TrimRight(remedyURL, "/")
	apiKey := os.Getenv("REMEDY_API_KEY")

	// Repair runs execute code and consult the oracle repeatedly, so the
	// client budget is far above a normal request timeout.
	client := &http.Client{Timeout: 5 * time.Minute}

	server := mcp.NewServer(
		&mcp.Implementation{Name: "remedy-mcp", Version: "v1.0.0"},
		nil,
	)

	// Add "repair_code" tool.
	type RepairInput struct {
		Code       string `json:"code" jsonschema_description:"Python source code to execute and repair"`
		MaxRetries int    `json:"max_retries,omitempty" jsonschema_description:"Maximum repair attempts, 1 to 10 (default 3)"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "repair_code",
		Description: "Executes Python code in a sandbox and iteratively repairs it until it runs cleanly or the attempt budget is spent",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input RepairInput) (*mcp.CallToolResult, struct{}, error) {
		body, err := json.Marshal(api.RepairRequest{
			Code:       input.Code,
			MaxRetries: input.MaxRetries,
		})
		if err != nil {
			return nil, struct{}{}, fmt.Errorf("marshal repair request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, remedyURL+"/v1/repairs", bytes.NewReader(body))
		if err != nil {
			return nil, struct{}{}, fmt.Errorf("create repair request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, struct{}{}, fmt.Errorf("remedy server at %s: %w", remedyURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: fmt.Sprintf("remedy server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))},
				},
			}, struct{}{}, nil
		}

		var repair api.Repair
		if err := json.NewDecoder(resp.Body).Decode(&repair); err != nil {
			return nil, struct{}{}, fmt.Errorf("parse repair result: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: formatRepair(&repair)},
			},
		}, struct{}{}, nil
	})

	// Add "service_health" tool.
	mcp.AddTool(server, &mcp.Tool{
		Name:        "service_health",
		Description: "Reports the readiness of the remedy service and its sandbox, oracle and storage dependencies",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, remedyURL+"/readyz", nil)
		if err != nil {
			return nil, struct{}{}, fmt.Errorf("create health request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, struct{}{}, fmt.Errorf("remedy server at %s: %w", remedyURL, err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &mcp.CallToolResult{
			IsError: resp.StatusCode != http.StatusOK,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))},
			},
		}, struct{}{}, nil
	})

	// Serve via streamable HTTP on /mcp.
	handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)

	httpMux := http.NewServeMux()
	httpMux.Handle("/mcp", handler)
	httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	log.Printf("MCP server starting on :%s, forwarding to %s", port, remedyURL)
	if err := http.ListenAndServe(":"+port, httpMux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// formatRepair renders a finished repair as readable tool output.
func formatRepair(r *api.Repair) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repair %s finished with status %q after %d attempt(s).\n", r.ID, r.Status, len(r.History))
	if r.Error != nil {
		fmt.Fprintf(&b, "Error: %s\n", r.Error.Message)
	}
	if last := len(r.History) - 1; last >= 0 && r.History[last].Explanation != "" {
		fmt.Fprintf(&b, "Last fix: %s\n", r.History[last].Explanation)
	}
	b.WriteString("\nFinal code:\n\n")
	b.WriteString(r.FinalCode)
	if !strings.HasSuffix(r.FinalCode, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}
