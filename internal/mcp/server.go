// Package mcp exposes the retrieval engine to MCP clients over stdio.
// Four tools are registered: hybrid_search, semantic_search,
// build_index, and index_status.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DayuGuo/DEVONthink-agent/internal/config"
	"github.com/DayuGuo/DEVONthink-agent/internal/index"
	"github.com/DayuGuo/DEVONthink-agent/internal/search"
	"github.com/DayuGuo/DEVONthink-agent/internal/store"
	"github.com/DayuGuo/DEVONthink-agent/pkg/version"
)

// Server wires the search engine and index manager into an MCP server.
type Server struct {
	mcp     *mcp.Server
	engine  *search.Engine
	manager *index.Manager
	store   *store.Store
	cfg     *config.Config
	logger  *slog.Logger
}

// HybridSearchInput is the input schema for the hybrid_search tool.
type HybridSearchInput struct {
	Query      string `json:"query" jsonschema:"the search query"`
	Collection string `json:"collection,omitempty" jsonschema:"restrict the keyword path to one database/collection"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	NoSemantic bool   `json:"no_semantic,omitempty" jsonschema:"skip the vector similarity path"`
	NoRelated  bool   `json:"no_related,omitempty" jsonschema:"skip the related-documents path"`
}

// SemanticSearchInput is the input schema for the semantic_search tool.
type SemanticSearchInput struct {
	Query string `json:"query" jsonschema:"the search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchResultOutput is one result in a search tool response.
type SearchResultOutput struct {
	DocumentID string   `json:"document_id" jsonschema:"stable document identifier"`
	Name       string   `json:"name" jsonschema:"document display name"`
	Collection string   `json:"collection,omitempty" jsonschema:"containing database/collection"`
	Score      float64  `json:"score" jsonschema:"fused relevance score"`
	Paths      []string `json:"paths" jsonschema:"retrieval paths that matched this document"`
	Snippet    string   `json:"snippet,omitempty" jsonschema:"best-matching chunk text, semantic matches only"`
}

// SearchOutput is the output schema for both search tools.
type SearchOutput struct {
	Results        []SearchResultOutput `json:"results" jsonschema:"ranked results"`
	SearchPaths    []string             `json:"search_paths" jsonschema:"retrieval paths that executed successfully"`
	IndexAvailable bool                 `json:"index_available" jsonschema:"whether the local vector index is loaded"`
}

// BuildIndexInput is the input schema for the build_index tool.
type BuildIndexInput struct {
	Collection string `json:"collection,omitempty" jsonschema:"index only this database/collection"`
	Force      bool   `json:"force,omitempty" jsonschema:"re-embed every document regardless of timestamps"`
}

// BuildIndexOutput is the output schema for the build_index tool.
type BuildIndexOutput struct {
	TotalDocuments   int    `json:"total_documents" jsonschema:"documents seen in the crawl"`
	IndexedDocuments int    `json:"indexed_documents" jsonschema:"documents embedded and stored"`
	SkippedDocuments int    `json:"skipped_documents" jsonschema:"documents already up to date or too short"`
	TotalChunks      int    `json:"total_chunks" jsonschema:"chunks written this run"`
	Errors           int    `json:"errors" jsonschema:"documents that failed"`
	DurationMs       int64  `json:"duration_ms" jsonschema:"elapsed time in milliseconds"`
	Message          string `json:"message,omitempty"`
}

// IndexStatusInput is the (empty) input schema for index_status.
type IndexStatusInput struct{}

// IndexStatusOutput is the output schema for index_status.
type IndexStatusOutput struct {
	Available  bool   `json:"available" jsonschema:"whether a usable index exists"`
	Documents  int    `json:"documents" jsonschema:"indexed document count"`
	Chunks     int    `json:"chunks" jsonschema:"stored chunk count"`
	Provider   string `json:"provider,omitempty" jsonschema:"embedding provider the index was built with"`
	Model      string `json:"model,omitempty" jsonschema:"embedding model the index was built with"`
	Dimensions int    `json:"dimensions,omitempty" jsonschema:"embedding dimensions"`
	UpdatedAt  string `json:"updated_at,omitempty" jsonschema:"last save time, RFC 3339"`
}

// NewServer creates the MCP server and registers its tools.
func NewServer(engine *search.Engine, manager *index.Manager, st *store.Store, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if manager == nil {
		return nil, errors.New("index manager is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:  engine,
		manager: manager,
		store:   st,
		cfg:     cfg,
		logger:  logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "dtagent",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "hybrid_search",
		Description: "Search the knowledge base combining keyword search, semantic similarity over the local vector index, and related-document links. Documents found by multiple paths rank highest. Use this for most retrieval tasks.",
	}, s.handleHybridSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "semantic_search",
		Description: "Search by meaning only, using the local vector index. Useful when keyword search misses paraphrased or conceptually related content. Requires a built index.",
	}, s.handleSemanticSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "build_index",
		Description: "Build or update the local vector index. Incremental by default: only documents modified since the last build are re-embedded. May take minutes on large databases.",
	}, s.handleBuildIndex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report whether the local vector index exists, its size, and which embedding model built it. Use before semantic searches to verify the index is ready.",
	}, s.handleIndexStatus)

	s.logger.Info("MCP tools registered", slog.Int("count", 4))
}

func (s *Server) handleHybridSearch(ctx context.Context, req *mcp.CallToolRequest, input HybridSearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, errors.New("query parameter is required")
	}

	resp, err := s.engine.HybridSearch(ctx, input.Query, search.Options{
		Collection:     input.Collection,
		TopK:           input.Limit,
		EnableSemantic: !input.NoSemantic && s.cfg.Search.EnableSemantic,
		EnableRelated:  !input.NoRelated && s.cfg.Search.EnableRelated,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, toSearchOutput(resp), nil
}

func (s *Server) handleSemanticSearch(ctx context.Context, req *mcp.CallToolRequest, input SemanticSearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, errors.New("query parameter is required")
	}

	resp, err := s.engine.SemanticSearch(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, toSearchOutput(resp), nil
}

func (s *Server) handleBuildIndex(ctx context.Context, req *mcp.CallToolRequest, input BuildIndexInput) (
	*mcp.CallToolResult,
	BuildIndexOutput,
	error,
) {
	stats, err := s.manager.Build(ctx, index.BuildOptions{
		Collection: input.Collection,
		Force:      input.Force,
	})
	if err != nil {
		return nil, BuildIndexOutput{}, err
	}

	out := BuildIndexOutput{
		TotalDocuments:   stats.TotalDocuments,
		IndexedDocuments: stats.IndexedDocuments,
		SkippedDocuments: stats.SkippedDocuments,
		TotalChunks:      stats.TotalChunks,
		Errors:           stats.Errors,
		DurationMs:       stats.Duration.Milliseconds(),
	}
	if stats.Errors > 0 {
		out.Message = fmt.Sprintf("%d documents failed; see the log for details", stats.Errors)
	}
	return nil, out, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, req *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	meta := s.store.Metadata()
	out := IndexStatusOutput{
		Available:  s.store.ChunkCount() > 0,
		Documents:  s.store.DocumentCount(),
		Chunks:     s.store.ChunkCount(),
		Provider:   meta.Provider,
		Model:      meta.Model,
		Dimensions: meta.Dimensions,
	}
	if !meta.UpdatedAt.IsZero() {
		out.UpdatedAt = meta.UpdatedAt.Format(time.RFC3339)
	}
	return nil, out, nil
}

func toSearchOutput(resp *search.Response) SearchOutput {
	out := SearchOutput{
		Results:        make([]SearchResultOutput, 0, len(resp.Results)),
		SearchPaths:    make([]string, 0, len(resp.SearchPaths)),
		IndexAvailable: resp.IndexAvailable,
	}
	for _, p := range resp.SearchPaths {
		out.SearchPaths = append(out.SearchPaths, string(p))
	}
	for _, r := range resp.Results {
		paths := make([]string, 0, len(r.Paths))
		for _, p := range r.Paths {
			paths = append(paths, string(p))
		}
		out.Results = append(out.Results, SearchResultOutput{
			DocumentID: r.DocumentID,
			Name:       r.Name,
			Collection: r.Collection,
			Score:      r.Score,
			Paths:      paths,
			Snippet:    r.Snippet,
		})
	}
	return out
}

// Serve runs the server on the given transport until ctx is cancelled.
// Only stdio is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", "transport", transport)

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", "error", err)
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
