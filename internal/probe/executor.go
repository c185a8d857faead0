package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 1 << 20
	userAgent           = "SentryPulse-Monitor/1.0"
)

// Executor runs http(s), ping and dns probes.
type Executor struct {
	Client *http.Client
	// TLSConfig is used for certificate inspection. Nil means system roots.
	TLSConfig    *tls.Config
	Resolver     *net.Resolver
	MaxBodyBytes int64
	Now          func() time.Time
}

func NewExecutor() *Executor {
	return &Executor{
		// Per-probe deadlines come from the monitor timeout via ctx.
		Client:       &http.Client{},
		Resolver:     net.DefaultResolver,
		MaxBodyBytes: defaultMaxBodyBytes,
		Now:          time.Now,
	}
}

func (e *Executor) Probe(ctx context.Context, m domain.Monitor) Result {
	timeout := m.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch m.Kind {
	case domain.KindDNS:
		return e.probeDNS(ctx, m)
	case domain.KindPing:
		return e.probePing(ctx, m)
	default:
		return e.probeHTTP(ctx, m)
	}
}

func (e *Executor) probeHTTP(ctx context.Context, m domain.Monitor) Result {
	res := Result{CheckedAt: e.now()}

	var body io.Reader
	if m.Body != "" && domain.MethodAllowsBody(m.Method) {
		body = strings.NewReader(m.Body)
	}
	method := m.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, m.URL, body)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	for k, v := range m.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	start := time.Now()
	resp, err := e.client().Do(req)
	if err != nil {
		res.ResponseTimeMS = millis(time.Since(start))
		res.Error = err.Error()
		if resp != nil {
			res.StatusCode = resp.StatusCode
			resp.Body.Close()
		}
		return res
	}
	defer resp.Body.Close()

	text, readErr := e.readBody(resp.Body, m.Keyword != "")
	res.ResponseTimeMS = millis(time.Since(start))
	if readErr != nil {
		res.StatusCode = resp.StatusCode
		res.Error = "read body: " + readErr.Error()
		return res
	}

	res.Reachable = true
	res.StatusCode = resp.StatusCode
	res.Success = true

	fail := func(msg string) {
		if res.Success {
			res.Error = msg
		}
		res.Success = false
	}

	if want := m.ExpectedStatus(); resp.StatusCode != want {
		fail(fmt.Sprintf("expected status %d, got %d", want, resp.StatusCode))
	}

	if m.Keyword != "" {
		res.KeywordChecked = true
		res.KeywordFound = strings.Contains(text, m.Keyword)
		if !res.KeywordFound {
			fail(fmt.Sprintf("keyword %q not found in response", m.Keyword))
		}
	}

	if m.CheckSSL && req.URL.Scheme == "https" {
		res.SSLChecked = true
		notBefore, notAfter, err := e.inspectCertificate(ctx, req.URL)
		if err != nil {
			fail("ssl: " + err.Error())
		} else {
			now := e.now()
			res.SSLExpiresAt = notAfter
			res.SSLValid = !now.Before(notBefore) && now.Before(notAfter)
			if !res.SSLValid {
				fail(fmt.Sprintf("ssl certificate not valid at %s (expires %s)",
					now.UTC().Format(time.RFC3339), notAfter.UTC().Format(time.RFC3339)))
			}
		}
	}

	return res
}

// readBody drains the response. When keep is set the (bounded) body is
// returned as text for keyword matching.
func (e *Executor) readBody(r io.Reader, keep bool) (string, error) {
	limit := e.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	lr := io.LimitReader(r, limit)
	if !keep {
		_, err := io.Copy(io.Discard, lr)
		return "", err
	}
	b, err := io.ReadAll(lr)
	return string(b), err
}

// inspectCertificate opens a separate TLS connection and returns the leaf
// certificate validity window. Chain verification is skipped here because the
// HTTP request already verified the chain; this only reads the dates.
func (e *Executor) inspectCertificate(ctx context.Context, u *url.URL) (time.Time, time.Time, error) {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}
	cfg := &tls.Config{}
	if e.TLSConfig != nil {
		cfg = e.TLSConfig.Clone()
	}
	cfg.ServerName = host
	cfg.InsecureSkipVerify = true

	d := &tls.Dialer{NetDialer: &net.Dialer{}, Config: cfg}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return time.Time{}, time.Time{}, errors.New("not a tls connection")
	}
	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return time.Time{}, time.Time{}, errors.New("no peer certificate")
	}
	return certs[0].NotBefore, certs[0].NotAfter, nil
}

func (e *Executor) probeDNS(ctx context.Context, m domain.Monitor) Result {
	res := Result{CheckedAt: e.now()}
	start := time.Now()
	s := CheckDNS(ctx, e.Resolver, extractHost(m.URL))
	res.ResponseTimeMS = millis(time.Since(start))
	if s.Class == ClassResolves {
		res.Reachable = true
		res.Success = true
		return res
	}
	res.Error = "dns: " + s.Class
	if s.ResolverError != "" {
		res.Error += " (" + s.ResolverError + ")"
	}
	return res
}

// probePing checks TCP reachability; ICMP needs raw sockets.
func (e *Executor) probePing(ctx context.Context, m domain.Monitor) Result {
	res := Result{CheckedAt: e.now()}
	addr, err := dialAddr(m.URL)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	res.ResponseTimeMS = millis(time.Since(start))
	if err != nil {
		res.Error = err.Error()
		return res
	}
	conn.Close()
	res.Reachable = true
	res.Success = true
	return res
}

func (e *Executor) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// extractHost pulls the hostname from a URL string; bare hosts pass through.
func extractHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

func dialAddr(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		if _, _, err := net.SplitHostPort(raw); err == nil {
			return raw, nil
		}
		return net.JoinHostPort(raw, "80"), nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("cannot derive host from %q", raw)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
