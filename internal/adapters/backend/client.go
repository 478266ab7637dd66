package backend

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/foundry/artifactview/internal/core/models"
	"github.com/foundry/artifactview/internal/core/services"
	"github.com/foundry/artifactview/internal/util/metrics"
)

// maxBodySize bounds any single backend response read into memory.
const maxBodySize = 64 << 20

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// Client implements services.Backend over the build backend's REST API.
// It issues exactly one request per operation and never retries.
type Client struct {
	base    *url.URL
	http    *http.Client
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

var _ services.Backend = (*Client)(nil)

// NewClient creates a Client for the backend at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", opts.BaseURL)
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}, nil
}

func (c *Client) Project(ctx context.Context, project string) (*models.Project, error) {
	var meta projectMeta
	err := c.getXML(ctx, "project_meta", &meta, nil, "source", project, "_meta")
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := &models.Project{Name: meta.Name}
	for _, r := range meta.Repositories {
		p.Repositories = append(p.Repositories, models.Repository{Name: r.Name, Archs: r.Archs})
	}
	return p, nil
}

func (c *Client) Package(ctx context.Context, project, pkg string) (*models.Package, error) {
	var meta packageMeta
	err := c.getXML(ctx, "package_meta", &meta, nil, "source", project, pkg, "_meta")
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.Package{
		Project:              project,
		Name:                 pkg,
		SourceAccessDisabled: meta.SourceAccess.disabled(),
	}, nil
}

func (c *Client) ListRevisions(ctx context.Context, project, pkg string) (int, error) {
	var list revisionList
	if err := c.getXML(ctx, "history", &list, nil, "source", project, pkg, "_history"); err != nil {
		return 0, err
	}
	newest := 0
	for _, r := range list.Revisions {
		if n, err := strconv.Atoi(r.Rev); err == nil && n > newest {
			newest = n
		}
	}
	return newest, nil
}

func (c *Client) FetchDiff(ctx context.Context, q models.DiffQuery) ([]models.DiffFile, error) {
	query := url.Values{"cmd": {"diff"}, "view": {"xml"}}
	setIf(query, "rev", q.Rev)
	setIf(query, "orev", q.OldRev)
	setIf(query, "oproject", q.OldProject)
	setIf(query, "opackage", q.OldPackage)

	body, err := c.do(ctx, "diff", http.MethodPost, query, "source", q.Project, q.Package)
	if err != nil {
		return nil, err
	}
	var diff sourceDiff
	if err := xml.Unmarshal(body, &diff); err != nil {
		return nil, fmt.Errorf("%w: decoding diff: %v", services.ErrBackendUnavailable, err)
	}
	files := make([]models.DiffFile, 0, len(diff.Files))
	for _, f := range diff.Files {
		files = append(files, f.toModel())
	}
	return files, nil
}

func (c *Client) MultibuildFlavors(ctx context.Context, project, pkg string) ([]string, error) {
	var mb multibuildFile
	err := c.getXML(ctx, "multibuild", &mb, nil, "source", project, pkg, "_multibuild")
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return append(mb.Flavors, mb.Packages...), nil
}

func (c *Client) LogEntryInfo(ctx context.Context, t models.BuildTarget) (*models.LogEntryInfo, error) {
	var dir logDirectory
	err := c.getXML(ctx, "log_entry", &dir, url.Values{"view": {"entry"}}, "build", t.Project, t.Repository, t.Arch, t.Package, "_log")
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range dir.Entries {
		if e.Name != "_log" {
			continue
		}
		info := &models.LogEntryInfo{Size: e.Size}
		if e.MTime > 0 {
			info.MTime = time.Unix(e.MTime, 0).UTC()
		}
		return info, nil
	}
	return nil, nil
}

func (c *Client) FetchLogChunk(ctx context.Context, t models.BuildTarget, offset, length int64) ([]byte, error) {
	query := url.Values{
		"nostream": {"1"},
		"start":    {strconv.FormatInt(offset, 10)},
		"end":      {strconv.FormatInt(offset+length, 10)},
	}
	body, err := c.do(ctx, "log_chunk", http.MethodGet, query, "build", t.Project, t.Repository, t.Arch, t.Package, "_log")
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > length {
		body = body[:length]
	}
	return body, nil
}

func (c *Client) JobStatus(ctx context.Context, t models.BuildTarget) (*models.RawJobStatus, error) {
	var js jobStatus
	err := c.getXML(ctx, "jobstatus", &js, nil, "build", t.Project, t.Repository, t.Arch, t.Package, "_jobstatus")
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if js.WorkerID == "" && js.StartTime == "" && js.Code == "" {
		return nil, nil
	}
	return &models.RawJobStatus{WorkerID: js.WorkerID, StartTime: js.StartTime, Code: js.Code}, nil
}

func (c *Client) BuildStatus(ctx context.Context, t models.BuildTarget) (string, error) {
	query := url.Values{
		"view":       {"status"},
		"package":    {t.Package},
		"repository": {t.Repository},
		"arch":       {t.Arch},
	}
	var list resultList
	if err := c.getXML(ctx, "result", &list, query, "build", t.Project, "_result"); err != nil {
		return "", err
	}
	return list.statusOf(t), nil
}

func (c *Client) DependentsOf(ctx context.Context, t models.BuildTarget) ([]string, error) {
	query := url.Values{"package": {t.Package}, "view": {"revpkgnames"}}
	var info buildDepInfo
	if err := c.getXML(ctx, "builddepinfo", &info, query, "build", t.Project, t.Repository, t.Arch, "_builddepinfo"); err != nil {
		return nil, err
	}
	for _, p := range info.Packages {
		if p.Name == t.Package {
			return p.PkgDeps, nil
		}
	}
	return []string{}, nil
}

func (c *Client) getXML(ctx context.Context, op string, v any, query url.Values, elems ...string) error {
	body, err := c.do(ctx, op, http.MethodGet, query, elems...)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", services.ErrBackendUnavailable, op, err)
	}
	return nil
}

// do performs one request and maps the response status onto the service errors.
func (c *Client) do(ctx context.Context, op, method string, query url.Values, elems ...string) ([]byte, error) {
	escaped := make([]string, len(elems))
	for i, e := range elems {
		escaped[i] = url.PathEscape(e)
	}
	u := c.base.JoinPath(escaped...)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", op, err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveBackend(op, "error", time.Since(start))
		return nil, fmt.Errorf("%w: %s: %w", services.ErrBackendUnavailable, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.metrics.ObserveBackend(op, "error", time.Since(start))
		return nil, fmt.Errorf("%w: reading %s response: %w", services.ErrBackendUnavailable, op, err)
	}

	outcome, err := classify(resp.StatusCode, op, u.Path)
	c.metrics.ObserveBackend(op, outcome, time.Since(start))
	if err != nil {
		c.logger.Debug().
			Str("op", op).
			Str("path", u.Path).
			Int("status", resp.StatusCode).
			Msg("backend request failed")
		return nil, err
	}
	return body, nil
}

func classify(status int, op, path string) (string, error) {
	switch {
	case status >= 200 && status < 300:
		return "ok", nil
	case status == http.StatusNotFound:
		return "not_found", fmt.Errorf("%w: %s", services.ErrNotFound, path)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "denied", fmt.Errorf("%w: %s", services.ErrAccessDenied, path)
	default:
		return "error", fmt.Errorf("%w: %s returned %d", services.ErrBackendUnavailable, op, status)
	}
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
