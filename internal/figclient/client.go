// Package figclient talks to the figure rendering server.
//
// Every endpoint is a plain request/response round trip. There are no
// retries; callers decide what a failure means for them.
package figclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"figdesk/internal/model"

	"github.com/sirupsen/logrus"
)

const DefaultTimeout = 30 * time.Second

type Client struct {
	base *url.URL
	http *http.Client
	log  logrus.FieldLogger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns a client for the server rooted at baseURL (scheme://host[:port][/prefix]).
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("figclient: empty server url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("figclient: parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("figclient: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	c := &Client{
		base: u,
		http: &http.Client{Timeout: DefaultTimeout},
		log:  logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func idQuery(id model.FigureID) url.Values {
	return url.Values{"id": []string{id.String()}}
}

// List fetches the full figure list in server order.
func (c *Client) List(ctx context.Context) ([]model.Figure, error) {
	b, err := c.get(ctx, "/fd_ls", nil)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	// An empty list may come back as an empty object or body.
	if len(b) == 0 || bytes.Equal(b, []byte("{}")) || bytes.Equal(b, []byte("null")) {
		return []model.Figure{}, nil
	}
	var figs []model.Figure
	if err := json.Unmarshal(b, &figs); err != nil {
		return nil, fmt.Errorf("list figures: %w", err)
	}
	if figs == nil {
		figs = []model.Figure{}
	}
	return figs, nil
}

// StrData returns the figure's underlying data as display text.
func (c *Client) StrData(ctx context.Context, id model.FigureID) (string, error) {
	b, err := c.get(ctx, "/fd_str_data", idQuery(id))
	if err != nil {
		return "", err
	}
	return textBody(b), nil
}

// PrepareDataDownload asks the server to write the figure's data to /tmp/<name>.csv.
func (c *Client) PrepareDataDownload(ctx context.Context, id model.FigureID) error {
	_, err := c.get(ctx, "/fd_download_data", idQuery(id))
	return err
}

// PreparePDFDownload asks the server to write the figure to /tmp/<name>.pdf.
func (c *Client) PreparePDFDownload(ctx context.Context, id model.FigureID) error {
	_, err := c.get(ctx, "/fd_download_pdf", idQuery(id))
	return err
}

func (c *Client) ChangeName(ctx context.Context, id model.FigureID, name string) error {
	q := idQuery(id)
	q.Set("new_name", name)
	_, err := c.get(ctx, "/fd_change_name", q)
	return err
}

func (c *Client) Remove(ctx context.Context, id model.FigureID) error {
	_, err := c.get(ctx, "/fd_rm", idQuery(id))
	return err
}

type updateFigureBody struct {
	ID     model.FigureID `json:"id"`
	GGCode string         `json:"gg_code"`
}

// UpdateCode re-renders the figure from code. A rejected render is a 400 whose
// body is the renderer's error text.
func (c *Client) UpdateCode(ctx context.Context, id model.FigureID, code string) error {
	b, err := json.Marshal(updateFigureBody{ID: id, GGCode: code})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, c.endpoint("/fd_update_fig", nil), bytes.NewReader(b), "application/json")
	return err
}

func (c *Client) SetCanvas(ctx context.Context, id model.FigureID, cv model.Canvas) error {
	q := idQuery(id)
	q.Set("height", strconv.FormatFloat(cv.Height, 'f', -1, 64))
	q.Set("width", strconv.FormatFloat(cv.Width, 'f', -1, 64))
	q.Set("units", string(cv.Units))
	q.Set("dpi", strconv.Itoa(cv.DPI))
	_, err := c.get(ctx, "/fd_canvas", q)
	return err
}

// ImageURL is the rendered image for f. The updated date rides along as the
// query so a re-rendered figure never hits a cached image.
func (c *Client) ImageURL(f model.Figure) string {
	u := *c.base
	u.Path = c.base.Path + "/figure/" + f.FileName
	u.RawQuery = url.QueryEscape(f.UpdatedDate)
	return u.String()
}

// AssetURL is a file the server prepared under /tmp (ext without the dot).
func (c *Client) AssetURL(name, ext string) string {
	u := *c.base
	u.Path = c.base.Path + "/tmp/" + name + "." + strings.TrimPrefix(ext, ".")
	return u.String()
}

// FetchAsset streams the asset at rawURL into w.
func (c *Client) FetchAsset(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return 0, &StatusError{Method: http.MethodGet, URL: rawURL, Code: resp.StatusCode, Body: string(body)}
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.endpoint(path, q), nil, "")
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{"method": method, "url": rawURL}).WithError(err).Warn("request failed")
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, req.URL.Path, err)
	}
	c.log.WithFields(logrus.Fields{
		"method": method,
		"path":   req.URL.Path,
		"status": resp.StatusCode,
		"dur":    time.Since(start).String(),
	}).Debug("request done")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, URL: req.URL.Path, Code: resp.StatusCode, Body: string(b)}
	}
	return b, nil
}

// textBody unwraps a JSON string (or array of lines) and otherwise returns the raw text.
func textBody(b []byte) string {
	t := bytes.TrimSpace(b)
	if len(t) > 0 && t[0] == '"' {
		var s string
		if err := json.Unmarshal(t, &s); err == nil {
			return s
		}
	}
	if len(t) > 0 && t[0] == '[' {
		var lines []string
		if err := json.Unmarshal(t, &lines); err == nil {
			return strings.Join(lines, "\n")
		}
	}
	return string(b)
}
