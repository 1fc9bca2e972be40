// Acceptance test for a running OpenNutrition MCP server in HTTP mode.
//
// Start the server first:
//
//	AUTH_TOKEN=super-secret-token ./opennutrition-mcp-server
//
// then run this program. It exercises the health endpoint, Bearer auth on
// /mcp, and each of the four MCP tools end to end.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultServerURL = "http://localhost:8080"
	defaultAuthToken = "super-secret-token"
)

var (
	serverURL = envOr("ACCEPTANCE_SERVER_URL", defaultServerURL)
	authToken = envOr("ACCEPTANCE_AUTH_TOKEN", defaultAuthToken)
	client    = &http.Client{Timeout: 30 * time.Second}
	requestID = 0
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// rpcRequest is a JSON-RPC 2.0 request envelope
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// toolResult is the subset of a tools/call result this test inspects
type toolResult struct {
	IsError           bool `json:"isError"`
	StructuredContent struct {
		Found bool                     `json:"found"`
		Count int                      `json:"count"`
		Foods []map[string]interface{} `json:"foods"`
		Food  map[string]interface{}   `json:"food"`
	} `json:"structuredContent"`
}

func main() {
	fmt.Println("🧪 Running acceptance tests for OpenNutrition MCP Server")
	fmt.Printf("Server: %s\n\n", serverURL)

	checkHealth()
	checkAuth()

	foodID := checkSearch()
	checkGetFoods()
	checkGetByID(foodID)
	checkValidation()

	fmt.Println("\n✅ All acceptance tests passed")
}

func fail(format string, args ...interface{}) {
	fmt.Printf("❌ "+format+"\n", args...)
	os.Exit(1)
}

func checkHealth() {
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		fail("Health check failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fail("Health check returned status %d, expected 200", resp.StatusCode)
	}
	fmt.Println("✅ /health is healthy without authentication")
}

func checkAuth() {
	body, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})

	// No token
	resp, err := postMCP(body, "")
	if err != nil {
		fail("Unauthenticated request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		fail("Unauthenticated request returned %d, expected 401", resp.StatusCode)
	}

	// Wrong token
	resp, err = postMCP(body, "definitely-wrong-token")
	if err != nil {
		fail("Wrong-token request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		fail("Wrong-token request returned %d, expected 401", resp.StatusCode)
	}

	// Correct token
	resp, err = postMCP(body, authToken)
	if err != nil {
		fail("Authenticated request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		fail("Authenticated request was rejected with 401")
	}

	fmt.Println("✅ /mcp enforces Bearer authentication")
}

func checkSearch() string {
	result := callTool("search-food-by-name", map[string]interface{}{
		"query":     "apple",
		"page":      1,
		"page_size": 5,
	})

	if result.IsError {
		fail("search-food-by-name returned a tool error")
	}
	if !result.StructuredContent.Found || result.StructuredContent.Count == 0 {
		fail("search-food-by-name found no foods for 'apple'")
	}
	if len(result.StructuredContent.Foods) > 5 {
		fail("search-food-by-name ignored page_size, got %d foods", len(result.StructuredContent.Foods))
	}

	id, _ := result.StructuredContent.Foods[0]["id"].(string)
	if !strings.HasPrefix(id, "fd_") {
		fail("search result id %q does not start with fd_", id)
	}

	fmt.Printf("✅ search-food-by-name returned %d foods\n", result.StructuredContent.Count)
	return id
}

func checkGetFoods() {
	result := callTool("get-foods", map[string]interface{}{
		"page":      1,
		"page_size": 3,
	})

	if result.IsError {
		fail("get-foods returned a tool error")
	}
	if result.StructuredContent.Count != len(result.StructuredContent.Foods) {
		fail("get-foods count %d does not match foods length %d",
			result.StructuredContent.Count, len(result.StructuredContent.Foods))
	}

	fmt.Printf("✅ get-foods returned a page of %d foods\n", result.StructuredContent.Count)
}

func checkGetByID(foodID string) {
	result := callTool("get-food-by-id", map[string]interface{}{
		"id": foodID,
	})

	if result.IsError {
		fail("get-food-by-id returned a tool error for %s", foodID)
	}
	if !result.StructuredContent.Found || result.StructuredContent.Food == nil {
		fail("get-food-by-id did not find %s", foodID)
	}

	// Unknown but well-formed id is found=false, not an error
	result = callTool("get-food-by-id", map[string]interface{}{
		"id": "fd_acceptance_test_absent",
	})
	if result.IsError {
		fail("get-food-by-id treated an absent id as an error")
	}
	if result.StructuredContent.Found {
		fail("get-food-by-id claims to have found a nonexistent id")
	}

	fmt.Printf("✅ get-food-by-id round-tripped %s\n", foodID)
}

func checkValidation() {
	// Bad id prefix
	result := callTool("get-food-by-id", map[string]interface{}{
		"id": "12345",
	})
	if !result.IsError {
		fail("get-food-by-id accepted an id without the fd_ prefix")
	}

	// Bad barcode length
	result = callTool("get-food-by-ean13", map[string]interface{}{
		"ean_13": "123",
	})
	if !result.IsError {
		fail("get-food-by-ean13 accepted a 3-character barcode")
	}

	fmt.Println("✅ invalid ids and barcodes are rejected")
}

func callTool(name string, arguments map[string]interface{}) toolResult {
	requestID++
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      requestID,
		Method:  "tools/call",
		Params: map[string]interface{}{
			"name":      name,
			"arguments": arguments,
		},
	})
	if err != nil {
		fail("Failed to marshal %s request: %v", name, err)
	}

	resp, err := postMCP(body, authToken)
	if err != nil {
		fail("%s request failed: %v", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fail("Failed to read %s response: %v", name, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(extractJSON(raw), &rpcResp); err != nil {
		fail("Failed to decode %s response: %v\nbody: %s", name, err, raw)
	}
	if rpcResp.Error != nil {
		fail("%s returned JSON-RPC error %d: %s", name, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	var result toolResult
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		fail("Failed to decode %s tool result: %v", name, err)
	}
	return result
}

// extractJSON unwraps an SSE-framed response body if the server answered with
// an event stream instead of plain JSON.
func extractJSON(raw []byte) []byte {
	body := string(raw)
	if !strings.HasPrefix(strings.TrimSpace(body), "event:") && !strings.HasPrefix(strings.TrimSpace(body), "data:") {
		return raw
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data:") {
			return []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return raw
}

func postMCP(body []byte, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, serverURL+"/mcp", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}
