// Package gitstore persists the derived dataset to a Git-based content
// store (GitHub contents + git-data API). Reads return the current
// content and version token of one file; writes replace a batch of
// files atomically in a single revision against the branch head.
package gitstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Sentinel errors. Both conflict and unavailability are fatal to a run:
// the computed state is discarded and the next run recomputes from the
// last successfully persisted checkpoint.
var (
	// ErrNotFound is returned when the requested file does not exist on
	// the branch yet (first run against an empty dataset).
	ErrNotFound = errors.New("file not found in content store")

	// ErrConflict is returned when the branch head moved between read
	// and commit.
	ErrConflict = errors.New("content store branch moved")

	// ErrUnavailable is returned on transport failure or an unexpected
	// API response.
	ErrUnavailable = errors.New("content store unavailable")
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.github.com"

// DefaultTimeout bounds a single API request.
const DefaultTimeout = 30 * time.Second

// blobMode is the tree entry mode for a regular file.
const blobMode = "100644"

// File is one stored file: its content and the version token (content
// hash) required to replace it in a single-file update.
type File struct {
	Path    string
	SHA     string
	Content []byte
}

// Client talks to the content-store API for one repository branch.
type Client struct {
	baseURL        string
	repo           string // "owner/name"
	branch         string
	token          string
	client         *http.Client
	committerName  string
	committerEmail string
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API root (used by tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithCommitter sets the committer identity recorded on revisions.
func WithCommitter(name, email string) Option {
	return func(c *Client) {
		c.committerName = name
		c.committerEmail = email
	}
}

// NewClient creates a content-store client for repo ("owner/name") and
// branch, authenticating with token.
func NewClient(repo, branch, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		repo:           repo,
		branch:         branch,
		token:          token,
		client:         &http.Client{Timeout: DefaultTimeout},
		committerName:  "nft-tracker bot",
		committerEmail: "bot@nft-tracker.invalid",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// contentsResponse is the contents-API read response. Small files carry
// base64 content inline; large ones require a follow-up download.
type contentsResponse struct {
	SHA         string `json:"sha"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
}

// GetFile reads one file from the branch. It returns ErrNotFound when
// the file does not exist and ErrUnavailable on any transport or API
// failure.
func (c *Client) GetFile(ctx context.Context, path string) (*File, error) {
	url := fmt.Sprintf("%s/repos/%s/contents/%s?ref=%s", c.baseURL, c.repo, path, c.branch)

	var resp contentsResponse
	status, err := c.doJSON(ctx, http.MethodGet, url, nil, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: read %s: status %d", ErrUnavailable, path, status)
	}

	if resp.Content != "" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
		}
		return &File{Path: path, SHA: resp.SHA, Content: decoded}, nil
	}

	// Content too large to inline: fetch the raw download URL.
	if resp.DownloadURL == "" {
		return nil, fmt.Errorf("%w: read %s: no content and no download url", ErrUnavailable, path)
	}
	raw, err := c.download(ctx, resp.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %v", ErrUnavailable, path, err)
	}
	return &File{Path: path, SHA: resp.SHA, Content: raw}, nil
}

// CommitFiles replaces the given files in one revision on the branch.
// The commit operates against the branch head read at the start of the
// call: if the head moves before the ref update lands, the store
// rejects the update and ErrConflict is returned.
func (c *Client) CommitFiles(ctx context.Context, files map[string][]byte, message string) error {
	if len(files) == 0 {
		return nil
	}

	headSHA, err := c.branchHead(ctx)
	if err != nil {
		return err
	}
	baseTree, err := c.commitTree(ctx, headSHA)
	if err != nil {
		return err
	}
	treeSHA, err := c.createTree(ctx, baseTree, files)
	if err != nil {
		return err
	}
	commitSHA, err := c.createCommit(ctx, message, treeSHA, headSHA)
	if err != nil {
		return err
	}
	return c.updateRef(ctx, commitSHA)
}

func (c *Client) branchHead(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/git/ref/heads/%s", c.baseURL, c.repo, c.branch)

	var resp struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	status, err := c.doJSON(ctx, http.MethodGet, url, nil, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || resp.Object.SHA == "" {
		return "", fmt.Errorf("%w: read branch head: status %d", ErrUnavailable, status)
	}
	return resp.Object.SHA, nil
}

func (c *Client) commitTree(ctx context.Context, commitSHA string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/git/commits/%s", c.baseURL, c.repo, commitSHA)

	var resp struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	status, err := c.doJSON(ctx, http.MethodGet, url, nil, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || resp.Tree.SHA == "" {
		return "", fmt.Errorf("%w: read head commit: status %d", ErrUnavailable, status)
	}
	return resp.Tree.SHA, nil
}

type treeEntry struct {
	Path    string `json:"path"`
	Mode    string `json:"mode"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (c *Client) createTree(ctx context.Context, baseTree string, files map[string][]byte) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/git/trees", c.baseURL, c.repo)

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	entries := make([]treeEntry, 0, len(files))
	for _, path := range paths {
		entries = append(entries, treeEntry{
			Path:    path,
			Mode:    blobMode,
			Type:    "blob",
			Content: string(files[path]),
		})
	}

	body := map[string]interface{}{
		"base_tree": baseTree,
		"tree":      entries,
	}
	var resp struct {
		SHA string `json:"sha"`
	}
	status, err := c.doJSON(ctx, http.MethodPost, url, body, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated || resp.SHA == "" {
		return "", fmt.Errorf("%w: create tree: status %d", ErrUnavailable, status)
	}
	return resp.SHA, nil
}

func (c *Client) createCommit(ctx context.Context, message, treeSHA, parentSHA string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/git/commits", c.baseURL, c.repo)

	body := map[string]interface{}{
		"message": message,
		"tree":    treeSHA,
		"parents": []string{parentSHA},
		"committer": map[string]string{
			"name":  c.committerName,
			"email": c.committerEmail,
		},
	}
	var resp struct {
		SHA string `json:"sha"`
	}
	status, err := c.doJSON(ctx, http.MethodPost, url, body, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated || resp.SHA == "" {
		return "", fmt.Errorf("%w: create commit: status %d", ErrUnavailable, status)
	}
	return resp.SHA, nil
}

func (c *Client) updateRef(ctx context.Context, commitSHA string) error {
	url := fmt.Sprintf("%s/repos/%s/git/refs/heads/%s", c.baseURL, c.repo, c.branch)

	body := map[string]interface{}{
		"sha":   commitSHA,
		"force": false,
	}
	status, err := c.doJSON(ctx, http.MethodPatch, url, body, nil)
	if err != nil {
		return err
	}
	// A non-fast-forward update means someone else advanced the branch
	// after we read its head.
	if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
		return fmt.Errorf("%w: ref update rejected with status %d", ErrConflict, status)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: update ref: status %d", ErrUnavailable, status)
	}
	return nil
}

// doJSON issues one API request and decodes the JSON response into out
// when it is non-nil. Transport failures map to ErrUnavailable; the
// HTTP status is returned for the caller to interpret.
func (c *Client) doJSON(ctx context.Context, method, url string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: unmarshal response: %v", ErrUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}

// download fetches a raw file body from the given URL.
func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
