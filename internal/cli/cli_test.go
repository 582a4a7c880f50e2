package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/config"
	bridgemcp "github.com/bobmcallan/openapi-mcp-bridge/internal/mcp"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/registry"
)

const petstoreManifest = `{
  "tools": [
    {
      "name": "getPetById",
      "description": "Find pet by ID",
      "inputSchema": {"type": "object", "properties": {"petId": {"type": "integer"}}, "required": ["petId"]},
      "_original_method": "GET",
      "_original_path": "/pet/{petId}",
      "_original_parameters": [{"name": "petId", "in": "path", "required": true}]
    },
    {
      "name": "addPet",
      "description": "Add a new pet",
      "inputSchema": {"type": "object", "properties": {"requestBody": {"type": "object"}}},
      "_original_method": "POST",
      "_original_path": "/pet",
      "_original_request_body": {"required": true, "content_type": "application/json"}
    }
  ]
}`

// newTestRoot creates a fresh command tree so tests do not share flag state.
func newTestRoot() *cobra.Command {
	return NewRootCmd()
}

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, stdin string, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeTestFile creates a temporary file with the given content and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv blanks the variables that feed configuration.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BRIDGE_SERVER_NAME", "BRIDGE_SERVER_VERSION", "BRIDGE_TRANSPORT",
		"BRIDGE_SERVER_HOST", "BRIDGE_SERVER_PORT", "BRIDGE_TOOLS_MANIFEST",
		"BRIDGE_METRICS_ENABLED", "BRIDGE_OTLP_ENDPOINT",
		config.EnvTargetBaseURL, config.EnvTargetAuthHeader,
	} {
		t.Setenv(key, "")
	}
	t.Setenv("BRIDGE_LOG_LEVEL", "error")
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	return exitErr.Code
}

func TestVersionCmd(t *testing.T) {
	stdout, _, err := executeCommand(newTestRoot(), "", "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "openapi-mcp-bridge version "+common.GetVersion()) {
		t.Errorf("expected version line, got %q", stdout)
	}
}

func TestToolsCmd_ListsInLoadOrder(t *testing.T) {
	clearEnv(t)
	manifest := writeTestFile(t, "tools.json", petstoreManifest)

	stdout, _, err := executeCommand(newTestRoot(), "", "tools", "--manifest", manifest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := strings.Index(stdout, "getPetById")
	second := strings.Index(stdout, "addPet")
	if first < 0 || second < 0 || first > second {
		t.Errorf("expected getPetById before addPet, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "/pet/{petId}") {
		t.Errorf("expected path in listing, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "2 tool(s)") {
		t.Errorf("expected tool count, got:\n%s", stdout)
	}
}

func TestToolsCmd_JSON(t *testing.T) {
	clearEnv(t)
	manifest := writeTestFile(t, "tools.json", petstoreManifest)

	stdout, _, err := executeCommand(newTestRoot(), "", "tools", "-m", manifest, "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var listing []toolListing
	if err := json.Unmarshal([]byte(stdout), &listing); err != nil {
		t.Fatalf("failed to unmarshal listing: %v", err)
	}
	if len(listing) != 2 || listing[1].Method != "POST" {
		t.Errorf("unexpected listing: %+v", listing)
	}
}

func TestToolsCmd_InvalidManifest(t *testing.T) {
	clearEnv(t)
	manifest := writeTestFile(t, "tools.json", `[{"name": "bad", "method": "TRACE", "path": "/x"}]`)

	_, _, err := executeCommand(newTestRoot(), "", "tools", "-m", manifest)
	if err == nil {
		t.Fatal("expected error for invalid manifest")
	}
	if code := exitCode(t, err); code != exitConfig {
		t.Errorf("expected exit code %d, got %d", exitConfig, code)
	}
}

func TestServeCmd_MissingBaseURL(t *testing.T) {
	clearEnv(t)
	manifest := writeTestFile(t, "tools.json", petstoreManifest)

	_, stderr, err := executeCommand(newTestRoot(), "", "serve", "-m", manifest)
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if code := exitCode(t, err); code != exitConfig {
		t.Errorf("expected exit code %d, got %d", exitConfig, code)
	}
	if !strings.Contains(stderr, config.EnvTargetBaseURL) {
		t.Errorf("expected stderr to name %s, got %q", config.EnvTargetBaseURL, stderr)
	}
}

func TestServeCmd_PlaceholderBaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvTargetBaseURL, config.PlaceholderBaseURL)
	manifest := writeTestFile(t, "tools.json", petstoreManifest)

	_, _, err := executeCommand(newTestRoot(), "", "serve", "-m", manifest)
	if err == nil {
		t.Fatal("expected configuration error for placeholder URL")
	}
	if code := exitCode(t, err); code != exitConfig {
		t.Errorf("expected exit code %d, got %d", exitConfig, code)
	}
}

func TestServeCmd_InvalidTransport(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvTargetBaseURL, "http://api.test")

	_, stderr, err := executeCommand(newTestRoot(), "", "serve", "--transport", "websocket")
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if !strings.Contains(stderr, "server.transport") {
		t.Errorf("expected transport issue on stderr, got %q", stderr)
	}
}

func TestServeCmd_MissingManifestFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvTargetBaseURL, "http://api.test")

	_, _, err := executeCommand(newTestRoot(), "", "serve", "-m", filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing manifest")
	}
	if code := exitCode(t, err); code != exitConfig {
		t.Errorf("expected exit code %d, got %d", exitConfig, code)
	}
}

func TestServeCmd_StdioRoundTrip(t *testing.T) {
	clearEnv(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pet/5" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":5,"name":"Milo"}`))
	}))
	defer upstream.Close()

	t.Setenv(config.EnvTargetBaseURL, upstream.URL)
	manifest := writeTestFile(t, "tools.json", petstoreManifest)

	stdin := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"cli-test","version":"1.0.0"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"getPetById","arguments":{"petId":5}}}`,
	}, "\n") + "\n"

	stdout, _, err := executeCommand(newTestRoot(), stdin, "serve", "-m", manifest, "--transport", "stdio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 replies, got %d:\n%s", len(lines), stdout)
	}

	byID := make(map[float64]map[string]any)
	for _, line := range lines {
		var msg map[string]any
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("failed to unmarshal reply %q: %v", line, err)
		}
		id, _ := msg["id"].(float64)
		byID[id] = msg
	}

	initResult, _ := byID[1]["result"].(map[string]any)
	serverInfo, _ := initResult["serverInfo"].(map[string]any)
	if serverInfo["name"] != "openapi-mcp-server" {
		t.Errorf("expected server name openapi-mcp-server, got %v", serverInfo["name"])
	}

	listResult, _ := byID[2]["result"].(map[string]any)
	tools, _ := listResult["tools"].([]any)
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if name := tools[0].(map[string]any)["name"]; name != "getPetById" {
		t.Errorf("expected getPetById first, got %v", name)
	}

	callResult, _ := byID[3]["result"].(map[string]any)
	content, _ := callResult["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("expected one content block, got %v", callResult)
	}
	text, _ := content[0].(map[string]any)["text"].(string)
	if !strings.Contains(text, `"name": "Milo"`) {
		t.Errorf("expected formatted upstream body, got %q", text)
	}
}

func TestTestServerCmd_InvalidToolArgs(t *testing.T) {
	_, _, err := executeCommand(newTestRoot(), "", "test-server", "--transport", "sse", "--tool-name", "x", "--tool-args", "[1,2]")
	if err == nil {
		t.Fatal("expected error for non-object tool args")
	}
	if code := exitCode(t, err); code != exitUsage {
		t.Errorf("expected exit code %d, got %d", exitUsage, code)
	}
}

func TestTestServerCmd_StdioRequiresCommand(t *testing.T) {
	_, _, err := executeCommand(newTestRoot(), "", "test-server", "--list")
	if err == nil {
		t.Fatal("expected error without --server-cmd")
	}
	if code := exitCode(t, err); code != exitUsage {
		t.Errorf("expected exit code %d, got %d", exitUsage, code)
	}
}

func TestTestServerCmd_SSEListAndCall(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":1,"name":"Rex"}`))
	}))
	defer upstream.Close()

	reg, err := registry.New([]registry.ToolDefinition{{
		Name:       "getPetById",
		Method:     "GET",
		Path:       "/pet/{petId}",
		Parameters: []registry.ParameterSpec{{Name: "petId", In: registry.InPath, Required: true}},
	}})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	logger := common.NewSilentLogger()
	d := bridgemcp.NewDispatcher(reg, config.TargetConfig{BaseURL: upstream.URL}, logger)
	ts := server.NewTestServer(bridgemcp.NewServer("test-bridge", "1.0.0", reg, d, logger).MCPServer())
	defer ts.Close()

	stdout, _, err := executeCommand(newTestRoot(), "", "test-server",
		"--transport", "sse",
		"--sse-url", ts.URL,
		"--list",
		"--tool-name", "getPetById",
		"--tool-args", `{"petId": 1}`,
		"--log-level", "error",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dec := json.NewDecoder(strings.NewReader(stdout))
	var responses []map[string]any
	for dec.More() {
		var resp map[string]any
		if err := dec.Decode(&resp); err != nil {
			t.Fatalf("failed to decode output: %v", err)
		}
		responses = append(responses, resp)
	}
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d:\n%s", len(responses), stdout)
	}
	if responses[0]["id"] != float64(1) || responses[1]["id"] != float64(2) {
		t.Errorf("expected ids 1 and 2, got %v and %v", responses[0]["id"], responses[1]["id"])
	}
	if !strings.Contains(stdout, "Rex") {
		t.Errorf("expected upstream body in call output, got:\n%s", stdout)
	}
}
