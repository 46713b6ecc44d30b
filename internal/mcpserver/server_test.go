package mcpserver_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"prism/internal/concern"
	"prism/internal/fusion"
	"prism/internal/mcpserver"
	"prism/internal/provider"
	"prism/internal/region"
	"prism/internal/reliability"
)

func newTestServer(t *testing.T, gatePath string) *mcpserver.Server {
	t.Helper()
	rule := provider.NewStub("cv", concern.RawConcern{
		Type:       "acne",
		Regions:    []region.Region{{Kind: region.KindBbox, Box: &region.Bbox{X0: 0.1, Y0: 0.1, X1: 0.3, Y1: 0.3}}},
		Severity:   2,
		Confidence: 0.9,
	})
	engine := fusion.NewEngine(rule, nil, nil, fusion.DefaultConfig())
	return mcpserver.NewServer(engine, reliability.NewGate(gatePath), "test")
}

func connectInMemory(t *testing.T, ctx context.Context, srv *mcpserver.Server) *sdkmcp.ClientSession {
	t.Helper()
	t1, t2 := sdkmcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer.Connect(ctx, t1, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	t.Cleanup(func() { serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any) map[string]any {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if res.IsError {
		for _, c := range res.Content {
			if tc, ok := c.(*sdkmcp.TextContent); ok {
				t.Fatalf("CallTool(%s) returned error: %s", name, tc.Text)
			}
		}
		t.Fatalf("CallTool(%s) returned error", name)
	}
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			result := make(map[string]any)
			if err := json.Unmarshal([]byte(tc.Text), &result); err != nil {
				t.Fatalf("unmarshal tool result: %v (text: %s)", err, tc.Text)
			}
			return result
		}
	}
	t.Fatal("no text content in tool result")
	return nil
}

func TestServer_ToolDiscovery(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, ""))

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	want := map[string]bool{
		"fuse_image":         false,
		"verifier_vote_gate": false,
	}
	for _, tool := range tools.Tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("tool %q not found in ListTools", name)
		}
	}
}

func TestServer_FuseImage(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, ""))

	result := callTool(t, ctx, session, "fuse_image", map[string]any{
		"inference_id": "inf-1",
		"image_ref":    "img://1",
	})
	if ok, _ := result["ok"].(bool); !ok {
		t.Fatalf("fuse_image not ok: %v", result)
	}
	canonical, ok := result["canonical"].(map[string]any)
	if !ok {
		t.Fatalf("missing canonical payload: %v", result)
	}
	concerns, _ := canonical["concerns"].([]any)
	if len(concerns) != 1 {
		t.Fatalf("concerns = %d, want 1", len(concerns))
	}
	first, _ := concerns[0].(map[string]any)
	if first["type"] != "acne" {
		t.Errorf("concern type = %v", first["type"])
	}
}

func TestServer_FuseImage_MissingImageRef(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, ""))

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "fuse_image",
		Arguments: map[string]any{"inference_id": "inf-1"},
	})
	if err != nil {
		t.Fatalf("expected tool error, got transport error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError=true for missing image_ref")
	}
}

func TestServer_VoteGate_MissingTable(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, filepath.Join(t.TempDir(), "absent.json")))

	result := callTool(t, ctx, session, "verifier_vote_gate", map[string]any{
		"issue_type":    "acne",
		"quality_grade": "pass",
		"lighting":      "daylight",
		"tone_bucket":   "t1",
	})
	if use, _ := result["use_verifier"].(bool); use {
		t.Fatal("missing table must never trust the verifier")
	}
	reasons, _ := result["reasons"].([]any)
	if len(reasons) != 1 || reasons[0] != reliability.ReasonTableMissing {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestServer_VoteGate_EligibleBucket(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reliability.json")
	table := &reliability.Table{
		SchemaVersion: reliability.SchemaVersion,
		Buckets: []reliability.Bucket{{
			Key: reliability.BucketKey{
				IssueType:    "acne",
				QualityGrade: "pass",
				Lighting:     "daylight",
				ToneBucket:   "t1",
			},
			EligibleForVote: true,
		}},
	}
	if err := reliability.SaveTable(table, path); err != nil {
		t.Fatal(err)
	}
	session := connectInMemory(t, ctx, newTestServer(t, path))

	result := callTool(t, ctx, session, "verifier_vote_gate", map[string]any{
		"issue_type":    "acne",
		"quality_grade": "pass",
		"lighting":      "daylight",
		"tone_bucket":   "t1",
	})
	if use, _ := result["use_verifier"].(bool); !use {
		t.Fatalf("eligible bucket must trust the verifier: %v", result)
	}
}
