// Package carddav is a small CardDAV client: address book discovery,
// bulk vCard fetch and etag-guarded writes under HTTP Basic auth.
package carddav

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"contact-sync/internal/circuitbreaker"
	"contact-sync/internal/common/errors"
	commonhttp "contact-sync/internal/common/http"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/common/utils"
	"contact-sync/internal/vcard"
)

const (
	maxResponseSize = 32 << 20
	multigetChunk   = 100
	methodPropfind  = "PROPFIND"
	methodReport    = "REPORT"
)

// AddressBook is a CardDAV collection.
type AddressBook struct {
	URL         string `json:"url"`
	DisplayName string `json:"display_name,omitempty"`
}

// VCardObject is one remote vCard resource. Href is an absolute URL.
type VCardObject struct {
	Href string
	ETag string
	Data string
}

// Client is the remote address book as the sync engine sees it. Failures
// are AppErrors: authentication for 401/403, not_found for 404,
// precondition for 412, connection or timeout for transient problems.
type Client interface {
	FetchAddressBooks(ctx context.Context) ([]AddressBook, error)
	FetchVCards(ctx context.Context, book AddressBook) ([]VCardObject, error)
	FindVCardByUID(ctx context.Context, book AddressBook, uid string) (*VCardObject, error)
	// CreateVCard stores a new resource and fails with a precondition
	// error if filename is taken.
	CreateVCard(ctx context.Context, book AddressBook, filename, data string) (*VCardObject, error)
	// UpdateVCard overwrites href if its etag still matches and returns the new etag.
	UpdateVCard(ctx context.Context, href, etag, data string) (string, error)
	// DeleteVCard removes href. An empty etag deletes unconditionally.
	DeleteVCard(ctx context.Context, href, etag string) error
}

// Options tune an HTTPClient. Zero values pick defaults.
type Options struct {
	Timeout  time.Duration
	Policy   URLPolicy
	Retry    utils.RetryConfig
	Breakers *circuitbreaker.Manager
	Logger   logging.Logger
	// HTTPClient replaces the guarded client built from Timeout and Policy.
	HTTPClient *http.Client
}

// HTTPClient talks WebDAV to one server with one set of credentials.
type HTTPClient struct {
	base     *url.URL
	username string
	password string
	http     *http.Client
	retry    utils.RetryConfig
	breaker  *circuitbreaker.Breaker
	logger   logging.Logger
}

// NewHTTPClient validates serverURL against opts.Policy and returns a client for it.
func NewHTTPClient(ctx context.Context, serverURL, username, password string, opts Options) (*HTTPClient, error) {
	base, err := ValidateServerURL(ctx, serverURL, opts.Policy)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = utils.DefaultRetryConfig()
	}
	retry.RetryableErrors = func(err error) bool {
		return errors.IsTransient(err) && !circuitbreaker.IsOpenError(err)
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		clientOpts := []commonhttp.ClientOption{
			commonhttp.WithTimeout(timeout),
			commonhttp.WithMaxIdleConnsPerHost(4),
		}
		if !opts.Policy.AllowPrivateHosts {
			clientOpts = append(clientOpts, commonhttp.WithDialGuard(CheckAddress))
		}
		client = commonhttp.NewHTTPClient(clientOpts...)
	}

	c := &HTTPClient{
		base:     base,
		username: username,
		password: password,
		http:     client,
		retry:    retry,
		logger:   logger.WithFields(logging.String("carddav_host", base.Host)),
	}
	if opts.Breakers != nil {
		c.breaker = opts.Breakers.Get(base.Host)
	}
	return c, nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends one request with retries and the host's breaker. Statuses
// outside expect become typed errors.
func (c *HTTPClient) do(ctx context.Context, method, target string, headers map[string]string, body string, expect ...int) (*response, error) {
	var resp *response
	attempt := func() error {
		r, err := c.roundTrip(ctx, method, target, headers, body)
		if err != nil {
			return err
		}
		for _, s := range expect {
			if r.status == s {
				resp = r
				return nil
			}
		}
		return statusError(method, target, r.status)
	}

	err := utils.RetryWithBackoff(ctx, c.retry, func() error {
		if c.breaker == nil {
			return attempt()
		}
		return c.breaker.Execute(ctx, attempt)
	})
	if err != nil {
		c.logger.Debug("CardDAV request failed",
			logging.String("method", method),
			logging.String("url", target),
			logging.Err(err),
		)
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, target string, headers map[string]string, body string) (*response, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.ValidationError("invalid CardDAV request").WithCause(err)
	}
	req.SetBasicAuth(c.username, c.password)
	if body != "" {
		req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, method, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, errors.ConnectionError("failed to read CardDAV response", err)
	}
	return &response{status: res.StatusCode, header: res.Header, body: data}, nil
}

func transportError(ctx context.Context, method string, err error) error {
	if appErr, ok := errors.As(err); ok {
		return appErr
	}
	if ctx.Err() == context.Canceled {
		return fmt.Errorf("CardDAV %s cancelled: %w", method, ctx.Err())
	}
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.TimeoutError("CardDAV " + method).WithCause(err)
	}
	return errors.ConnectionError("CardDAV request failed", err)
}

func statusError(method, target string, status int) error {
	var appErr *errors.AppError
	switch {
	case status == http.StatusUnauthorized:
		appErr = errors.AuthError("CardDAV server rejected the credentials")
	case status == http.StatusForbidden:
		appErr = errors.AuthError("CardDAV server denied access")
	case status == http.StatusNotFound || status == http.StatusGone:
		appErr = errors.NotFoundError("CardDAV resource")
	case status == http.StatusPreconditionFailed:
		appErr = errors.PreconditionError("remote resource changed since the known etag")
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		appErr = errors.ConnectionError(fmt.Sprintf("CardDAV server returned %d", status), nil)
	default:
		appErr = errors.ValidationError(fmt.Sprintf("unexpected CardDAV response status %d", status))
	}
	return appErr.
		WithCode(fmt.Sprintf("http_%d", status)).
		WithContext("method", method).
		WithContext("url", target)
}

// resolve turns a server-relative href into an absolute URL on the
// configured host.
func (c *HTTPClient) resolve(href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", errors.ValidationError("invalid href from CardDAV server").WithCause(err)
	}
	abs := c.base.ResolveReference(ref)
	if abs.Scheme != c.base.Scheme || !strings.EqualFold(abs.Host, c.base.Host) {
		return "", errors.ValidationError("href points outside the CardDAV server").
			WithContext("href", href)
	}
	return abs.String(), nil
}

func samePath(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/")
}

func (c *HTTPClient) propfind(ctx context.Context, target, depth, body string) (*multistatus, error) {
	resp, err := c.do(ctx, methodPropfind, target, map[string]string{"Depth": depth}, body, http.StatusMultiStatus)
	if err != nil {
		return nil, err
	}
	return c.parse(resp)
}

func (c *HTTPClient) report(ctx context.Context, target, body string) (*multistatus, error) {
	resp, err := c.do(ctx, methodReport, target, map[string]string{"Depth": "1"}, body, http.StatusMultiStatus)
	if err != nil {
		return nil, err
	}
	return c.parse(resp)
}

func (c *HTTPClient) parse(resp *response) (*multistatus, error) {
	ms, err := parseMultistatus(resp.body)
	if err != nil {
		return nil, errors.ValidationError("malformed multistatus response").WithCause(err)
	}
	return ms, nil
}

// FetchAddressBooks discovers the user's address books. A server URL that
// is itself an address book is returned as is; otherwise discovery follows
// current-user-principal, then addressbook-home-set, then lists the home.
func (c *HTTPClient) FetchAddressBooks(ctx context.Context) ([]AddressBook, error) {
	root := c.base.String()
	ms, err := c.propfind(ctx, root, "0", propfindDiscovery)
	if err != nil {
		return nil, err
	}

	var principal, home string
	for _, r := range ms.Responses {
		p := r.props()
		if p.isAddressBook() {
			return []AddressBook{{URL: root, DisplayName: p.DisplayName}}, nil
		}
		if p.AddressBookHomeSet != nil && p.AddressBookHomeSet.Href != "" {
			home = p.AddressBookHomeSet.Href
		}
		if p.CurrentUserPrincipal != nil && p.CurrentUserPrincipal.Href != "" {
			principal = p.CurrentUserPrincipal.Href
		}
	}

	if home == "" && principal != "" {
		principalURL, err := c.resolve(principal)
		if err != nil {
			return nil, err
		}
		ms, err := c.propfind(ctx, principalURL, "0", propfindDiscovery)
		if err != nil {
			return nil, err
		}
		for _, r := range ms.Responses {
			if p := r.props(); p.AddressBookHomeSet != nil && p.AddressBookHomeSet.Href != "" {
				home = p.AddressBookHomeSet.Href
			}
		}
	}

	homeURL := root
	if home != "" {
		if homeURL, err = c.resolve(home); err != nil {
			return nil, err
		}
	}

	ms, err = c.propfind(ctx, homeURL, "1", propfindCollections)
	if err != nil {
		return nil, err
	}
	var books []AddressBook
	for _, r := range ms.Responses {
		p := r.props()
		if !p.isAddressBook() {
			continue
		}
		bookURL, err := c.resolve(r.Href)
		if err != nil {
			c.logger.Warn("Skipping address book with foreign href", logging.String("href", r.Href))
			continue
		}
		books = append(books, AddressBook{URL: bookURL, DisplayName: p.DisplayName})
	}
	if len(books) == 0 {
		return nil, errors.NotFoundError("address book").WithContext("home", homeURL)
	}
	return books, nil
}

// FetchVCards lists every vCard in book. Entries the query returns without
// address-data are fetched with addressbook-multiget.
func (c *HTTPClient) FetchVCards(ctx context.Context, book AddressBook) ([]VCardObject, error) {
	target, err := c.resolve(book.URL)
	if err != nil {
		return nil, err
	}
	ms, err := c.report(ctx, target, reportAll)
	if err != nil {
		return nil, err
	}
	return c.collect(ctx, target, ms)
}

func (c *HTTPClient) collect(ctx context.Context, bookURL string, ms *multistatus) ([]VCardObject, error) {
	var (
		cards   []VCardObject
		missing []string
	)
	for _, r := range ms.Responses {
		if r.Status != "" && !statusOK(r.Status) {
			continue
		}
		href, err := c.resolve(r.Href)
		if err != nil {
			c.logger.Warn("Skipping vCard with foreign href", logging.String("href", r.Href))
			continue
		}
		if samePath(href, bookURL) {
			continue
		}
		p := r.props()
		if p.ResourceType != nil && p.ResourceType.Collection != nil {
			continue
		}
		if p.AddressData == nil || strings.TrimSpace(p.AddressData.Data) == "" {
			missing = append(missing, r.Href)
			continue
		}
		cards = append(cards, VCardObject{Href: href, ETag: p.GetETag, Data: p.AddressData.Data})
	}

	for start := 0; start < len(missing); start += multigetChunk {
		end := start + multigetChunk
		if end > len(missing) {
			end = len(missing)
		}
		got, err := c.multiget(ctx, bookURL, missing[start:end])
		if err != nil {
			return nil, err
		}
		cards = append(cards, got...)
	}
	return cards, nil
}

func (c *HTTPClient) multiget(ctx context.Context, bookURL string, hrefs []string) ([]VCardObject, error) {
	ms, err := c.report(ctx, bookURL, reportMultiget(hrefs))
	if err != nil {
		return nil, err
	}
	var cards []VCardObject
	for _, r := range ms.Responses {
		p := r.props()
		if p.AddressData == nil || strings.TrimSpace(p.AddressData.Data) == "" {
			continue
		}
		href, err := c.resolve(r.Href)
		if err != nil {
			continue
		}
		cards = append(cards, VCardObject{Href: href, ETag: p.GetETag, Data: p.AddressData.Data})
	}
	return cards, nil
}

// FindVCardByUID locates the resource whose UID property is uid. Results
// are re-checked locally since some servers ignore the filter.
func (c *HTTPClient) FindVCardByUID(ctx context.Context, book AddressBook, uid string) (*VCardObject, error) {
	target, err := c.resolve(book.URL)
	if err != nil {
		return nil, err
	}
	ms, err := c.report(ctx, target, reportByUID(uid))
	if err != nil {
		return nil, err
	}
	cards, err := c.collect(ctx, target, ms)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		card, err := vcard.Decode(cards[i].Data)
		if err != nil {
			continue
		}
		if card.Person.UID == uid {
			return &cards[i], nil
		}
	}
	return nil, errors.NotFoundError("vCard").WithContext("uid", uid)
}

func (c *HTTPClient) CreateVCard(ctx context.Context, book AddressBook, filename, data string) (*VCardObject, error) {
	bookURL, err := c.resolve(book.URL)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(bookURL, "/") {
		bookURL += "/"
	}
	href, err := c.resolve(bookURL + url.PathEscape(path.Base(filename)))
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPut, href, map[string]string{
		"Content-Type":  "text/vcard; charset=utf-8",
		"If-None-Match": "*",
	}, data, http.StatusCreated, http.StatusNoContent, http.StatusOK)
	if err != nil {
		return nil, err
	}

	if loc := resp.header.Get("Location"); loc != "" {
		if moved, err := c.resolve(loc); err == nil {
			href = moved
		}
	}
	return &VCardObject{Href: href, ETag: c.etagAfterWrite(ctx, href, resp), Data: data}, nil
}

func (c *HTTPClient) UpdateVCard(ctx context.Context, href, etag, data string) (string, error) {
	target, err := c.resolve(href)
	if err != nil {
		return "", err
	}
	headers := map[string]string{"Content-Type": "text/vcard; charset=utf-8"}
	if etag != "" {
		headers["If-Match"] = etag
	}
	resp, err := c.do(ctx, http.MethodPut, target, headers, data,
		http.StatusOK, http.StatusCreated, http.StatusNoContent)
	if err != nil {
		return "", err
	}
	return c.etagAfterWrite(ctx, target, resp), nil
}

func (c *HTTPClient) DeleteVCard(ctx context.Context, href, etag string) error {
	target, err := c.resolve(href)
	if err != nil {
		return err
	}
	match := etag
	if match == "" {
		match = "*"
	}
	_, err = c.do(ctx, http.MethodDelete, target, map[string]string{"If-Match": match}, "",
		http.StatusOK, http.StatusNoContent, http.StatusAccepted)
	return err
}

// etagAfterWrite prefers the ETag response header and falls back to a
// PROPFIND. An empty result makes the next sync re-read the card.
func (c *HTTPClient) etagAfterWrite(ctx context.Context, href string, resp *response) string {
	if etag := resp.header.Get("ETag"); etag != "" {
		return etag
	}
	ms, err := c.propfind(ctx, href, "0", propfindETag)
	if err != nil {
		c.logger.Warn("Could not read etag after write", logging.String("url", href), logging.Err(err))
		return ""
	}
	for _, r := range ms.Responses {
		if etag := r.props().GetETag; etag != "" {
			return etag
		}
	}
	return ""
}

var _ Client = (*HTTPClient)(nil)
