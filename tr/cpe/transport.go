package cpe

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

const (
	maxRedirects = 5
	maxBodySize  = 4 << 20
)

// Response is the ACS answer to one POST.
type Response struct {
	Status int
	Body   []byte
	// URL is the effective URL after redirects.
	URL string
}

// Transport carries envelopes to the ACS.
type Transport interface {
	// Post sends body to url. done is called later on the main loop.
	Post(url string, body []byte, done func(*Response, error))
	// Reset drops per-session state such as cookies.
	Reset()
}

// HTTPTransport posts with net/http. Each session gets a fresh cookie jar.
type HTTPTransport struct {
	rt      http.RoundTripper
	timeout time.Duration
	post    func(func())
	client  *http.Client

	username string
	password string
}

// NewHTTPTransport creates a transport; post runs completions on the main loop.
func NewHTTPTransport(timeout time.Duration, post func(func())) *HTTPTransport {
	t := &HTTPTransport{
		rt:      http.DefaultTransport,
		timeout: timeout,
		post:    post,
	}
	t.Reset()
	return t
}

func (t *HTTPTransport) String() string {
	return "http-transport"
}

// SetCredentials sets the HTTP basic credentials sent to the ACS.
func (t *HTTPTransport) SetCredentials(username, password string) {
	t.username, t.password = username, password
}

func (t *HTTPTransport) Reset() {
	jar, _ := cookiejar.New(nil)
	t.client = &http.Client{
		Transport: t.rt,
		Timeout:   t.timeout,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

func (t *HTTPTransport) Post(url string, body []byte, done func(*Response, error)) {
	// read on the loop goroutine; the request runs outside it
	client, user, pass := t.client, t.username, t.password
	go func() {
		resp, err := do(client, url, body, user, pass)
		t.post(func() { done(resp, err) })
	}()
}

func do(client *http.Client, url string, body []byte, user, pass string) (*Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
		req.Header.Set("SOAPAction", "")
	}
	if user != "" {
		req.SetBasicAuth(user, pass)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	return &Response{
		Status: resp.StatusCode,
		Body:   data,
		URL:    resp.Request.URL.String(),
	}, nil
}
