// Package mcpserver exposes fusion and vote-gating over the Model Context
// Protocol, so agent tooling can run detections and query verifier trust
// without linking the engine directly.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"prism/internal/concern"
	"prism/internal/fusion"
	"prism/internal/logging"
	"prism/internal/reliability"
)

// Server wraps the MCP SDK server around a fusion engine and a vote gate.
type Server struct {
	MCPServer *sdkmcp.Server

	engine *fusion.Engine
	gate   *reliability.Gate
}

// NewServer builds the MCP server and registers its tools.
func NewServer(engine *fusion.Engine, gate *reliability.Gate, version string) *Server {
	s := &Server{engine: engine, gate: gate}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "prism", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP over the given transport until ctx is canceled.
func (s *Server) Run(ctx context.Context, transport sdkmcp.Transport) error {
	return s.MCPServer.Run(ctx, transport)
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "fuse_image",
		Description: "Run multi-provider skin-concern detection on an image and return the fused canonical result.",
	}, s.handleFuseImage)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "verifier_vote_gate",
		Description: "Check whether the shadow verifier's opinion is reliable enough to count in a vote for a given bucket.",
	}, s.handleVoteGate)
}

// --- Tool input/output types ---

type fuseImageInput struct {
	InferenceID  string `json:"inference_id,omitempty" jsonschema:"inference id, generated when omitted"`
	AssetID      string `json:"asset_id,omitempty" jsonschema:"stable asset id for gold-label joins"`
	ImageRef     string `json:"image_ref" jsonschema:"opaque image handle the provider adapters resolve"`
	QualityGrade string `json:"quality_grade,omitempty" jsonschema:"photo quality grade (pass, degraded, reject)"`
	Lighting     string `json:"lighting,omitempty" jsonschema:"lighting bucket (daylight, indoor, dim)"`
	ToneBucket   string `json:"tone_bucket,omitempty" jsonschema:"coarse skin-tone bucket"`
}

type fuseImageOutput struct {
	OK            bool                     `json:"ok"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	Canonical     *concern.CanonicalResult `json:"canonical"`
}

type voteGateInput struct {
	IssueType    string `json:"issue_type" jsonschema:"canonical concern type"`
	QualityGrade string `json:"quality_grade" jsonschema:"photo quality grade"`
	Lighting     string `json:"lighting" jsonschema:"lighting bucket"`
	ToneBucket   string `json:"tone_bucket" jsonschema:"coarse skin-tone bucket"`
}

type voteGateOutput struct {
	UseVerifier bool     `json:"use_verifier"`
	Reasons     []string `json:"reasons,omitempty"`
}

// --- Handlers ---

func (s *Server) handleFuseImage(ctx context.Context, _ *sdkmcp.CallToolRequest, input fuseImageInput) (*sdkmcp.CallToolResult, fuseImageOutput, error) {
	if input.ImageRef == "" {
		return nil, fuseImageOutput{}, fmt.Errorf("image_ref is required")
	}
	if input.InferenceID == "" {
		input.InferenceID = uuid.NewString()
	}
	if input.QualityGrade == "" {
		input.QualityGrade = concern.GradePass
	}

	in := concern.Context{
		InferenceID:  input.InferenceID,
		AssetID:      input.AssetID,
		ImageRef:     input.ImageRef,
		QualityGrade: input.QualityGrade,
		Lighting:     input.Lighting,
		ToneBucket:   input.ToneBucket,
		PhotoUsed:    true,
	}
	res := s.engine.Fuse(ctx, in)
	logging.New("mcp").Info("fuse_image served",
		"inference_id", input.InferenceID,
		"ok", res.OK,
		"concerns", len(res.Canonical.Concerns))
	return nil, fuseImageOutput{
		OK:            res.OK,
		FailureReason: res.FailureReason,
		Canonical:     res.Canonical,
	}, nil
}

func (s *Server) handleVoteGate(_ context.Context, _ *sdkmcp.CallToolRequest, input voteGateInput) (*sdkmcp.CallToolResult, voteGateOutput, error) {
	if input.IssueType == "" {
		return nil, voteGateOutput{}, fmt.Errorf("issue_type is required")
	}
	d := s.gate.ShouldUseVerifierInVote(reliability.BucketKey{
		IssueType:    input.IssueType,
		QualityGrade: input.QualityGrade,
		Lighting:     input.Lighting,
		ToneBucket:   input.ToneBucket,
	})
	return nil, voteGateOutput{UseVerifier: d.UseVerifier, Reasons: d.Reasons}, nil
}
