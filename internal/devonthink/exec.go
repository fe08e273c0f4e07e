package devonthink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// ExecRepository implements Repository by invoking an external helper
// executable once per call. The helper owns all knowledge-base
// scripting; dtagent only parses its JSON output. Protocol: the helper
// takes a subcommand plus flags and prints a single JSON document on
// stdout. For an unscoped list the helper is expected to crawl the
// knowledge base collection-by-collection and merge the results, so no
// single scripting request grows with the whole database.
//
//	<cmd> list [--collection NAME]
//	<cmd> read --id ID --max-chars N
//	<cmd> search --query Q [--collection NAME] --limit N
//	<cmd> related --id ID --limit N
type ExecRepository struct {
	command string
	args    []string
	timeout time.Duration
}

var _ Repository = (*ExecRepository)(nil)

// NewExecRepository creates a repository backed by the given helper
// command. timeout bounds each invocation; zero means no bound beyond
// the caller's context.
func NewExecRepository(command string, args []string, timeout time.Duration) *ExecRepository {
	return &ExecRepository{command: command, args: args, timeout: timeout}
}

// ListDocuments implements Repository.
func (r *ExecRepository) ListDocuments(ctx context.Context, collection string) ([]DocumentInfo, error) {
	args := []string{"list"}
	if collection != "" {
		args = append(args, "--collection", collection)
	}

	var docs []DocumentInfo
	if err := r.run(ctx, args, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// ReadContent implements Repository.
func (r *ExecRepository) ReadContent(ctx context.Context, id string, maxChars int) (DocumentContent, error) {
	var content DocumentContent
	err := r.run(ctx, []string{"read", "--id", id, "--max-chars", strconv.Itoa(maxChars)}, &content)
	return content, err
}

// Search implements Repository.
func (r *ExecRepository) Search(ctx context.Context, query, collection string, limit int) ([]SearchHit, error) {
	args := []string{"search", "--query", query, "--limit", strconv.Itoa(limit)}
	if collection != "" {
		args = append(args, "--collection", collection)
	}

	var hits []SearchHit
	if err := r.run(ctx, args, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// RelatedDocuments implements Repository.
func (r *ExecRepository) RelatedDocuments(ctx context.Context, id string, limit int) ([]SearchHit, error) {
	var hits []SearchHit
	err := r.run(ctx, []string{"related", "--id", id, "--limit", strconv.Itoa(limit)}, &hits)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (r *ExecRepository) run(ctx context.Context, args []string, out any) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	full := append(append([]string{}, r.args...), args...)
	cmd := exec.CommandContext(ctx, r.command, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return fmt.Errorf("bridge %s failed: %s: %w", args[0], msg, err)
		}
		return fmt.Errorf("bridge %s failed: %w", args[0], err)
	}

	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return fmt.Errorf("bridge %s returned invalid JSON: %w", args[0], err)
	}
	return nil
}
