package carddav

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-sync/internal/carddav/carddavtest"
	"contact-sync/internal/circuitbreaker"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/common/utils"
	"contact-sync/internal/crypto"
	"contact-sync/internal/models"
)

var testPolicy = URLPolicy{AllowInsecure: true, AllowPrivateHosts: true}

func fastRetry(attempts int) utils.RetryConfig {
	return utils.RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, BackoffFactor: 1}
}

func newClient(t *testing.T, srv *carddavtest.Server, serverURL string) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(context.Background(), serverURL, carddavtest.Username, carddavtest.Password, Options{
		Policy: testPolicy,
		Retry:  fastRetry(3),
		Logger: logging.NewNopLogger(),
	})
	require.NoError(t, err)
	return c
}

func cardText(uid, fn string) string {
	return "BEGIN:VCARD\r\nVERSION:3.0\r\nUID:" + uid + "\r\nN:" + fn + ";;;;\r\nFN:" + fn + "\r\nEND:VCARD\r\n"
}

func TestFetchAddressBooks_Discovery(t *testing.T) {
	srv := carddavtest.NewServer(t)
	c := newClient(t, srv, srv.URL)

	books, err := c.FetchAddressBooks(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, srv.BookURL(), books[0].URL)
	assert.Equal(t, "Contacts", books[0].DisplayName)
}

func TestFetchAddressBooks_ServerURLIsBook(t *testing.T) {
	srv := carddavtest.NewServer(t)
	c := newClient(t, srv, srv.BookURL())

	books, err := c.FetchAddressBooks(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, srv.BookURL(), books[0].URL)
	assert.Equal(t, 1, srv.CountRequests("PROPFIND"))
}

func TestFetchVCards(t *testing.T) {
	srv := carddavtest.NewServer(t)
	hrefA, etagA := srv.Put("a.vcf", cardText("uid-a", "Ada"))
	srv.Put("b.vcf", cardText("uid-b", "Bob"))
	c := newClient(t, srv, srv.URL)

	cards, err := c.FetchVCards(context.Background(), AddressBook{URL: srv.BookURL()})
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, hrefA, cards[0].Href)
	assert.Equal(t, etagA, cards[0].ETag)
	assert.Equal(t, cardText("uid-a", "Ada"), cards[0].Data)
}

func TestFetchVCards_MultigetFallback(t *testing.T) {
	srv := carddavtest.NewServer(t)
	srv.OmitAddressData = true
	srv.Put("a.vcf", cardText("uid-a", "Ada"))
	c := newClient(t, srv, srv.URL)

	cards, err := c.FetchVCards(context.Background(), AddressBook{URL: srv.BookURL()})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Contains(t, cards[0].Data, "UID:uid-a")
	assert.Equal(t, 2, srv.CountRequests("REPORT"))
}

func TestFindVCardByUID(t *testing.T) {
	srv := carddavtest.NewServer(t)
	srv.Put("a.vcf", cardText("uid-a", "Ada"))
	hrefB, _ := srv.Put("b.vcf", cardText("uid-b", "Bob"))
	c := newClient(t, srv, srv.URL)
	book := AddressBook{URL: srv.BookURL()}

	obj, err := c.FindVCardByUID(context.Background(), book, "uid-b")
	require.NoError(t, err)
	assert.Equal(t, hrefB, obj.Href)

	_, err = c.FindVCardByUID(context.Background(), book, "missing")
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestCreateUpdateDelete(t *testing.T) {
	srv := carddavtest.NewServer(t)
	c := newClient(t, srv, srv.URL)
	ctx := context.Background()
	book := AddressBook{URL: srv.BookURL()}

	obj, err := c.CreateVCard(ctx, book, "new.vcf", cardText("uid-n", "Nia"))
	require.NoError(t, err)
	assert.Equal(t, srv.BookURL()+"new.vcf", obj.Href)
	_, etag, ok := srv.Get(obj.Href)
	require.True(t, ok)
	assert.Equal(t, etag, obj.ETag)

	_, err = c.CreateVCard(ctx, book, "new.vcf", cardText("uid-n", "Nia"))
	assert.True(t, errors.IsType(err, errors.ErrTypePrecondition), "create must not overwrite")

	_, err = c.UpdateVCard(ctx, obj.Href, `"stale"`, cardText("uid-n", "Nia B"))
	assert.True(t, errors.IsType(err, errors.ErrTypePrecondition))

	newETag, err := c.UpdateVCard(ctx, obj.Href, obj.ETag, cardText("uid-n", "Nia B"))
	require.NoError(t, err)
	assert.NotEqual(t, obj.ETag, newETag)

	err = c.DeleteVCard(ctx, obj.Href, obj.ETag)
	assert.True(t, errors.IsType(err, errors.ErrTypePrecondition))

	require.NoError(t, c.DeleteVCard(ctx, obj.Href, ""))
	_, _, ok = srv.Get(obj.Href)
	assert.False(t, ok)

	err = c.DeleteVCard(ctx, obj.Href, "")
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestCreateVCard_ETagFromPropfind(t *testing.T) {
	srv := carddavtest.NewServer(t)
	srv.OmitETagHeader = true
	c := newClient(t, srv, srv.URL)

	obj, err := c.CreateVCard(context.Background(), AddressBook{URL: srv.BookURL()}, "x.vcf", cardText("x", "X"))
	require.NoError(t, err)
	_, etag, _ := srv.Get(obj.Href)
	assert.Equal(t, etag, obj.ETag)
}

func TestRetry(t *testing.T) {
	t.Run("transient failures are retried", func(t *testing.T) {
		srv := carddavtest.NewServer(t)
		srv.Put("a.vcf", cardText("uid-a", "Ada"))
		c := newClient(t, srv, srv.URL)
		srv.FailNext(http.StatusServiceUnavailable, 2)

		cards, err := c.FetchVCards(context.Background(), AddressBook{URL: srv.BookURL()})
		require.NoError(t, err)
		assert.Len(t, cards, 1)
		assert.Equal(t, 3, srv.CountRequests("REPORT"))
	})

	t.Run("exhausted retries keep their type", func(t *testing.T) {
		srv := carddavtest.NewServer(t)
		c := newClient(t, srv, srv.URL)
		srv.FailNext(http.StatusBadGateway, 5)

		_, err := c.FetchVCards(context.Background(), AddressBook{URL: srv.BookURL()})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeConnection))
		assert.Equal(t, 3, srv.CountRequests("REPORT"))
	})

	t.Run("semantic failures are not retried", func(t *testing.T) {
		srv := carddavtest.NewServer(t)
		c, err := NewHTTPClient(context.Background(), srv.URL, "alice", "wrong", Options{
			Policy: testPolicy, Retry: fastRetry(3), Logger: logging.NewNopLogger(),
		})
		require.NoError(t, err)

		_, err = c.FetchAddressBooks(context.Background())
		assert.True(t, errors.IsType(err, errors.ErrTypeAuth))
		assert.Equal(t, 1, srv.CountRequests("PROPFIND"))
	})
}

func TestCircuitBreakerOpens(t *testing.T) {
	srv := carddavtest.NewServer(t)
	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		MaxFailures: 2, Timeout: time.Minute, MaxConcurrentRequests: 1,
	}, logging.NewNopLogger())
	c, err := NewHTTPClient(context.Background(), srv.URL, carddavtest.Username, carddavtest.Password, Options{
		Policy: testPolicy, Retry: fastRetry(1), Breakers: breakers, Logger: logging.NewNopLogger(),
	})
	require.NoError(t, err)
	srv.FailNext(http.StatusInternalServerError, 10)

	book := AddressBook{URL: srv.BookURL()}
	for i := 0; i < 2; i++ {
		_, err = c.FetchVCards(context.Background(), book)
		require.Error(t, err)
		assert.False(t, circuitbreaker.IsOpenError(err))
	}

	_, err = c.FetchVCards(context.Background(), book)
	assert.True(t, circuitbreaker.IsOpenError(err))
	assert.Equal(t, 2, srv.CountRequests("REPORT"))
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status int
		want   errors.ErrorType
	}{
		{http.StatusUnauthorized, errors.ErrTypeAuth},
		{http.StatusForbidden, errors.ErrTypeAuth},
		{http.StatusNotFound, errors.ErrTypeNotFound},
		{http.StatusPreconditionFailed, errors.ErrTypePrecondition},
		{http.StatusTooManyRequests, errors.ErrTypeConnection},
		{http.StatusServiceUnavailable, errors.ErrTypeConnection},
		{http.StatusBadRequest, errors.ErrTypeValidation},
	}
	for _, tt := range tests {
		err := statusError("GET", "https://dav.example.com/x", tt.status)
		assert.Equal(t, tt.want, errors.GetType(err), "status %d", tt.status)
	}
}

func TestResolveRejectsForeignHosts(t *testing.T) {
	srv := carddavtest.NewServer(t)
	c := newClient(t, srv, srv.URL)

	_, err := c.resolve("https://evil.example.com/card.vcf")
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	got, err := c.resolve("/addressbooks/alice/contacts/a.vcf")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/addressbooks/alice/contacts/a.vcf", got)
}

type staticResolver map[string][]net.IPAddr

func (r staticResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	return r[host], nil
}

func TestValidateServerURL(t *testing.T) {
	resolver := staticResolver{
		"dav.example.com":   {{IP: net.ParseIP("93.184.216.34")}},
		"intranet.example":  {{IP: net.ParseIP("10.1.2.3")}},
		"rebind.example.com": {{IP: net.ParseIP("93.184.216.34")}, {IP: net.ParseIP("127.0.0.1")}},
	}
	strict := URLPolicy{Resolver: resolver}

	tests := []struct {
		name    string
		raw     string
		policy  URLPolicy
		wantErr string
	}{
		{"public https", "https://dav.example.com/dav/", strict, ""},
		{"plain http", "http://dav.example.com/", strict, "must use https"},
		{"http allowed", "http://dav.example.com/", URLPolicy{Resolver: resolver, AllowInsecure: true}, ""},
		{"ftp", "ftp://dav.example.com/", strict, "unsupported URL scheme"},
		{"credentials", "https://bob:pw@dav.example.com/", strict, "must not embed credentials"},
		{"no host", "https:///dav", strict, "has no host"},
		{"localhost", "https://localhost/dav", strict, "local address"},
		{"loopback literal", "https://127.0.0.1/", strict, "private or local"},
		{"metadata endpoint", "https://169.254.169.254/latest", strict, "private or local"},
		{"ipv6 loopback", "https://[::1]/", strict, "private or local"},
		{"private resolution", "https://intranet.example/", strict, "private or local"},
		{"any private answer", "https://rebind.example.com/", strict, "private or local"},
		{"private allowed", "https://10.0.0.5/", URLPolicy{AllowPrivateHosts: true}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateServerURL(context.Background(), tt.raw, tt.policy)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDeleteRemote(t *testing.T) {
	ctx := context.Background()

	t.Run("stale etag falls back to wildcard", func(t *testing.T) {
		srv := carddavtest.NewServer(t)
		href, _ := srv.Put("a.vcf", cardText("uid-a", "Ada"))
		c := newClient(t, srv, srv.URL)

		require.NoError(t, DeleteRemote(ctx, c, nil, href, `"old"`, "uid-a"))
		assert.Empty(t, srv.Hrefs())
	})

	t.Run("moved resource is found by uid", func(t *testing.T) {
		srv := carddavtest.NewServer(t)
		srv.Put("renamed.vcf", cardText("uid-a", "Ada"))
		keep, _ := srv.Put("other.vcf", cardText("uid-b", "Bob"))
		c := newClient(t, srv, srv.URL)

		err := DeleteRemote(ctx, c, nil, srv.BookURL()+"a.vcf", `"1"`, "uid-a")
		require.NoError(t, err)
		assert.Equal(t, []string{keep}, srv.Hrefs())
	})

	t.Run("refused wildcard is retried by uid", func(t *testing.T) {
		srv := carddavtest.NewServer(t)
		href, _ := srv.Put("a.vcf", cardText("uid-a", "Ada"))
		c := newClient(t, srv, srv.URL)
		srv.FailNext(http.StatusPreconditionFailed, 2)

		require.NoError(t, DeleteRemote(ctx, c, []AddressBook{{URL: srv.BookURL()}}, href, `"old"`, "uid-a"))
		assert.Empty(t, srv.Hrefs())
		assert.Equal(t, 3, srv.CountRequests(http.MethodDelete))
	})

	t.Run("already gone", func(t *testing.T) {
		srv := carddavtest.NewServer(t)
		c := newClient(t, srv, srv.URL)

		err := DeleteRemote(ctx, c, []AddressBook{{URL: srv.BookURL()}}, srv.BookURL()+"a.vcf", "", "uid-a")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})
}

func TestConnector(t *testing.T) {
	srv := carddavtest.NewServer(t)
	secrets, err := crypto.NewSecretStore("a-very-long-test-encryption-key-0123456789")
	require.NoError(t, err)
	encrypted, err := secrets.Encrypt(carddavtest.Password)
	require.NoError(t, err)

	connector := NewConnector(secrets, ConnectorConfig{Policy: testPolicy, Logger: logging.NewNopLogger()})
	conn := &models.CardDavConnection{ID: "c1", ServerURL: srv.URL, Username: carddavtest.Username, EncryptedPassword: encrypted}

	client, err := connector.Connect(context.Background(), conn)
	require.NoError(t, err)
	books, err := client.FetchAddressBooks(context.Background())
	require.NoError(t, err)
	assert.Len(t, books, 1)

	conn.EncryptedPassword = "garbage"
	_, err = connector.Connect(context.Background(), conn)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	assert.False(t, strings.Contains(err.Error(), carddavtest.Password))
}

func TestNewHTTPClient_RejectsLoopbackByDefault(t *testing.T) {
	srv := carddavtest.NewServer(t)
	_, err := NewHTTPClient(context.Background(), srv.URL, "u", "p", Options{Policy: URLPolicy{AllowInsecure: true}})
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}
