// Package carddavtest runs an in-memory CardDAV server for tests.
package carddavtest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
)

const (
	Username = "alice"
	Password = "s3cret"

	PrincipalPath = "/principals/alice/"
	HomePath      = "/addressbooks/alice/"
	BookPath      = "/addressbooks/alice/contacts/"
)

type card struct {
	data string
	etag string
}

// Server is a single-user, single-address-book CardDAV server.
type Server struct {
	*httptest.Server

	// OmitAddressData makes addressbook-query answer with etags only.
	OmitAddressData bool
	// OmitETagHeader drops the ETag header from PUT responses.
	OmitETagHeader bool

	mu       sync.Mutex
	cards    map[string]*card
	seq      int
	failures []int
	requests []string
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{cards: make(map[string]*card)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// BookURL is the absolute URL of the address book.
func (s *Server) BookURL() string {
	return s.URL + BookPath
}

// Put stores data under name, as another client would, and returns the
// absolute href and new etag.
func (s *Server) Put(name, data string) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	etag := s.store(BookPath+name, data)
	return s.URL + BookPath + name, etag
}

// Get returns the stored card at an absolute href.
func (s *Server) Get(href string) (data, etag string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[strings.TrimPrefix(href, s.URL)]
	if !ok {
		return "", "", false
	}
	return c.data, c.etag, true
}

// Remove deletes a card behind the client's back.
func (s *Server) Remove(href string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cards, strings.TrimPrefix(href, s.URL))
}

// Hrefs lists every stored card in order.
func (s *Server) Hrefs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.cards))
	for p := range s.cards {
		out = append(out, s.URL+p)
	}
	sort.Strings(out)
	return out
}

// FailNext answers the next n requests with status.
func (s *Server) FailNext(status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures = append(s.failures, status)
	}
}

// Requests returns "METHOD path" for every request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts received requests with the given method.
func (s *Server) CountRequests(method string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, method+" ") {
			n++
		}
	}
	return n
}

func (s *Server) store(p, data string) string {
	s.seq++
	etag := fmt.Sprintf(`"%d"`, s.seq)
	s.cards[p] = &card{data: data, etag: etag}
	return etag
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)

	if user, pass, ok := r.BasicAuth(); !ok || user != Username || pass != Password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if len(s.failures) > 0 {
		status := s.failures[0]
		s.failures = s.failures[1:]
		w.WriteHeader(status)
		return
	}

	switch r.Method {
	case "PROPFIND":
		s.propfind(w, r)
	case "REPORT":
		s.report(w, r, string(body))
	case http.MethodPut:
		s.put(w, r, string(body))
	case http.MethodDelete:
		s.delete(w, r)
	case http.MethodGet:
		c, ok := s.cards[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", c.etag)
		io.WriteString(w, c.data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) propfind(w http.ResponseWriter, r *http.Request) {
	var b bytes.Buffer
	switch r.URL.Path {
	case "/":
		b.WriteString(`<D:response><D:href>/</D:href><D:propstat><D:prop>` +
			`<D:resourcetype><D:collection/></D:resourcetype>` +
			`<D:current-user-principal><D:href>` + PrincipalPath + `</D:href></D:current-user-principal>` +
			`</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>` +
			`<D:propstat><D:prop><C:addressbook-home-set/></D:prop><D:status>HTTP/1.1 404 Not Found</D:status></D:propstat>` +
			`</D:response>`)
	case PrincipalPath:
		b.WriteString(`<D:response><D:href>` + PrincipalPath + `</D:href><D:propstat><D:prop>` +
			`<C:addressbook-home-set><D:href>` + HomePath + `</D:href></C:addressbook-home-set>` +
			`</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>`)
	case HomePath:
		b.WriteString(`<D:response><D:href>` + HomePath + `</D:href><D:propstat><D:prop>` +
			`<D:resourcetype><D:collection/></D:resourcetype>` +
			`</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>`)
		if r.Header.Get("Depth") == "1" {
			b.WriteString(bookResponse())
		}
	case BookPath:
		b.WriteString(bookResponse())
	default:
		c, ok := s.cards[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		b.WriteString(`<D:response><D:href>` + r.URL.Path + `</D:href><D:propstat><D:prop>` +
			`<D:getetag>` + escape(c.etag) + `</D:getetag>` +
			`</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>`)
	}
	writeMultistatus(w, b.String())
}

func bookResponse() string {
	return `<D:response><D:href>` + BookPath + `</D:href><D:propstat><D:prop>` +
		`<D:resourcetype><D:collection/><C:addressbook/></D:resourcetype>` +
		`<D:displayname>Contacts</D:displayname>` +
		`</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>`
}

var (
	hrefPattern = regexp.MustCompile(`<D:href>([^<]*)</D:href>`)
	uidPattern  = regexp.MustCompile(`<C:text-match[^>]*>([^<]*)</C:text-match>`)
)

func (s *Server) report(w http.ResponseWriter, r *http.Request, body string) {
	if r.URL.Path != BookPath {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var paths []string
	withData := !s.OmitAddressData
	switch {
	case strings.Contains(body, "addressbook-multiget"):
		for _, m := range hrefPattern.FindAllStringSubmatch(body, -1) {
			paths = append(paths, strings.TrimPrefix(html.UnescapeString(m[1]), s.URL))
		}
		withData = true
	case strings.Contains(body, `prop-filter name="UID"`):
		uid := ""
		if m := uidPattern.FindStringSubmatch(body); m != nil {
			uid = html.UnescapeString(m[1])
		}
		for p, c := range s.cards {
			if strings.Contains(c.data, "\r\nUID:"+uid+"\r\n") {
				paths = append(paths, p)
			}
		}
	default:
		for p := range s.cards {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var b bytes.Buffer
	b.WriteString(bookResponse())
	for _, p := range paths {
		c, ok := s.cards[p]
		if !ok {
			b.WriteString(`<D:response><D:href>` + escape(p) + `</D:href><D:status>HTTP/1.1 404 Not Found</D:status></D:response>`)
			continue
		}
		b.WriteString(`<D:response><D:href>` + escape(p) + `</D:href><D:propstat><D:prop>`)
		b.WriteString(`<D:getetag>` + escape(c.etag) + `</D:getetag>`)
		if withData {
			b.WriteString(`<C:address-data>` + escape(c.data) + `</C:address-data>`)
		}
		b.WriteString(`</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>`)
	}
	writeMultistatus(w, b.String())
}

func (s *Server) put(w http.ResponseWriter, r *http.Request, body string) {
	if !strings.HasPrefix(r.URL.Path, BookPath) || r.URL.Path == BookPath {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	existing, exists := s.cards[r.URL.Path]
	if r.Header.Get("If-None-Match") == "*" && exists {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	if match := r.Header.Get("If-Match"); match != "" && match != "*" {
		if !exists || existing.etag != match {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
	}
	etag := s.store(r.URL.Path, body)
	if !s.OmitETagHeader {
		w.Header().Set("ETag", etag)
	}
	if exists {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	c, ok := s.cards[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if match := r.Header.Get("If-Match"); match != "" && match != "*" && match != c.etag {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	delete(s.cards, r.URL.Path)
	w.WriteHeader(http.StatusNoContent)
}

func writeMultistatus(w http.ResponseWriter, responses string) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>`+
		`<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">`+
		responses+`</D:multistatus>`)
}

func escape(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
