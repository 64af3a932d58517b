// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes read-only grading inspection tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pixgrade/internal/grading"
	"github.com/starford/pixgrade/internal/resolve"
	"github.com/starford/pixgrade/internal/storage"
)

const rulesURI = "pixgrade://grading-rules"

// Server wraps the MCP server with grading tools.
type Server struct {
	mcp            *server.MCPServer
	grader         *grading.Grader
	resolver       *resolve.Resolver
	submissionsDir string
}

// New creates a new MCP server with all inspection tools registered.
func New(grader *grading.Grader, resolver *resolve.Resolver, submissionsDir, version string) *Server {
	s := &Server{grader: grader, resolver: resolver, submissionsDir: submissionsDir}

	s.mcp = server.NewMCPServer(
		"pixgrade",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_students",
		mcp.WithDescription("List the student submission folders, one per line."),
	), s.listStudents)

	s.mcp.AddTool(mcp.NewTool("list_references",
		mcp.WithDescription("List the reference images with their homework, problem and shape."),
	), s.listReferences)

	s.mcp.AddTool(mcp.NewTool("resolve_file",
		mcp.WithDescription("Find a reference image's counterpart in a student's folder, "+
			"honoring ignored folders and alias names."),
		mcp.WithString("student", mcp.Required(), mcp.Description("Student folder name")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Canonical file name, e.g. hw_1_1_a.png")),
	), s.resolveFile)

	s.mcp.AddTool(mcp.NewTool("inspect_submission",
		mcp.WithDescription("Compare every reference image against a student's submission and "+
			"report per-image outcomes and the scoring verdict. Does not modify any score sheet."),
		mcp.WithString("student", mcp.Required(), mcp.Description("Student folder name")),
		mcp.WithNumber("tolerance", mcp.Description("Pass threshold for max abs error; defaults to the configured value")),
	), s.inspectSubmission)

	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Grading Rules",
			mcp.WithResourceDescription("How submissions are located, compared and scored."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// studentRoot validates a student name against the submissions listing.
func (s *Server) studentRoot(student string) (string, error) {
	students, err := storage.ListStudents(s.submissionsDir)
	if err != nil {
		return "", err
	}
	if !slices.Contains(students, student) {
		return "", fmt.Errorf("unknown student: %s", student)
	}
	return filepath.Join(s.submissionsDir, student), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listStudents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	students, err := storage.ListStudents(s.submissionsDir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(students) == 0 {
		return mcp.NewToolResultText("no students found"), nil
	}
	return mcp.NewToolResultText(strings.Join(students, "\n")), nil
}

type referenceInfo struct {
	Name     string `json:"name"`
	Homework int    `json:"homework"`
	Problem  int    `json:"problem"`
	Tag      string `json:"tag"`
	Shape    string `json:"shape"`
}

func (s *Server) listReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	refs := s.grader.References()
	infos := make([]referenceInfo, 0, len(refs))
	for _, ref := range refs {
		infos = append(infos, referenceInfo{
			Name:     ref.Name,
			Homework: ref.Homework,
			Problem:  ref.Problem,
			Tag:      ref.Tag,
			Shape:    ref.Raster.Shape().String(),
		})
	}
	return jsonResult(infos)
}

type resolveInfo struct {
	Status     string   `json:"status"`
	Matched    string   `json:"matched,omitempty"`
	Path       string   `json:"path,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

func (s *Server) resolveFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	student, err := req.RequireString("student")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if name != filepath.Base(name) {
		return mcp.NewToolResultError(fmt.Sprintf("name must be a file name, got %q", name)), nil
	}
	root, err := s.studentRoot(student)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := s.resolver.Resolve(root, name)
	return jsonResult(resolveInfo{
		Status:     res.Status.String(),
		Matched:    res.Matched,
		Path:       res.Path,
		Candidates: res.Paths,
	})
}

func (s *Server) inspectSubmission(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	student, err := req.RequireString("student")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tolerance := req.GetFloat("tolerance", s.grader.Tolerance())
	if tolerance <= 0 {
		return mcp.NewToolResultError("tolerance must be positive"), nil
	}
	root, err := s.studentRoot(student)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	outcomes, err := s.grader.Evaluate(ctx, student, root)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(grading.Report{
		Student:  student,
		Outcomes: outcomes,
		Verdict:  grading.Score(s.grader.References(), outcomes, tolerance),
	})
}

func (s *Server) readRulesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     GradingRules,
		},
	}, nil
}
