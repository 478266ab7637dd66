package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foundry/artifactview/internal/core/models"
	"github.com/foundry/artifactview/internal/core/views"
)

// errRedirected is returned when the server answered a view with a redirect.
type errRedirected struct {
	Status   int
	Message  string
	Location string
}

func (e *errRedirected) Error() string {
	return fmt.Sprintf("%s (see %s)", e.Message, e.Location)
}

// apiClient talks to the artifactview HTTP API.
type apiClient struct {
	server string
	token  string
	http   *http.Client
}

func newAPIClient(server, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		server: strings.TrimRight(server, "/"),
		token:  token,
		http: &http.Client{
			Timeout: timeout,
			// Redirects carry the failure message; they are reported, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func packagePath(project, pkg string) string {
	return fmt.Sprintf("/api/v1/projects/%s/packages/%s", url.PathEscape(project), url.PathEscape(pkg))
}

func buildPath(project, pkg, repo, arch string) string {
	return fmt.Sprintf("%s/builds/%s/%s/log", packagePath(project, pkg), url.PathEscape(repo), url.PathEscape(arch))
}

func (c *apiClient) Revisions(ctx context.Context, project, pkg string, query url.Values) (*views.RevisionsPage, error) {
	var page views.RevisionsPage
	if err := c.get(ctx, packagePath(project, pkg)+"/revisions", query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *apiClient) Rdiff(ctx context.Context, project, pkg string, query url.Values) (*views.RdiffPage, error) {
	var page views.RdiffPage
	if err := c.get(ctx, packagePath(project, pkg)+"/rdiff", query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *apiClient) LiveLog(ctx context.Context, project, pkg, repo, arch string) (*views.LivePage, error) {
	var page views.LivePage
	if err := c.get(ctx, buildPath(project, pkg, repo, arch), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *apiClient) PollLog(ctx context.Context, project, pkg, repo, arch string, offset int64) (*views.PollPage, error) {
	var page views.PollPage
	query := url.Values{"offset": {fmt.Sprint(offset)}}
	if err := c.get(ctx, buildPath(project, pkg, repo, arch)+"/poll", query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *apiClient) get(ctx context.Context, path string, query url.Values, v any) error {
	u := c.server + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusSeeOther:
		var body models.RedirectResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &errRedirected{Status: resp.StatusCode, Message: body.Message, Location: resp.Header.Get("Location")}
	case resp.StatusCode != http.StatusOK:
		return errors.New(formatHTTPError(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// followLog prints the live log and then polls until the build finishes.
// The offset returned by each poll is carried into the next one.
func followLog(ctx context.Context, c *apiClient, project, pkg, repo, arch string, interval time.Duration, out, errOut io.Writer) error {
	live, err := c.LiveLog(ctx, project, pkg, repo, arch)
	if err != nil {
		return err
	}
	fmt.Fprint(out, live.Log)
	offset := live.Offset

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		page, err := c.PollLog(ctx, project, pkg, repo, arch, offset)
		if err != nil {
			return err
		}
		if page.Errors != "" {
			fmt.Fprintf(errOut, "warning: %s\n", page.Errors)
		}
		fmt.Fprint(out, page.LogChunk)
		offset = page.Offset
		if page.Finished {
			return nil
		}
		if page.LogChunk != "" {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func formatHTTPError(resp *http.Response) string {
	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		return fmt.Sprintf("error (%d): %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return fmt.Sprintf("error (%d): %s", resp.StatusCode, payload.Message)
	}
	return fmt.Sprintf("error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
