package cpe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/catawampus/cwmpd/tr/metrics"
	auth "github.com/abbot/go-http-auth"
)

// PingServer answers connection requests from the ACS with HTTP digest
// authentication.
type PingServer struct {
	port    uint16
	path    string
	post    func(func())
	onPing  func()
	metrics *metrics.Metrics

	mutex    sync.RWMutex
	username string
	password string

	handler http.Handler
}

// NewPingServer creates the connection request listener. onPing is posted
// to the main loop with post.
func NewPingServer(port uint16, path, realm string, post func(func()), onPing func(), m *metrics.Metrics) *PingServer {
	p := &PingServer{
		port:    port,
		path:    path,
		post:    post,
		onPing:  onPing,
		metrics: m,
	}

	authenticator := auth.NewDigestAuthenticator(realm, p.secret)
	authenticator.PlainTextSecrets = true
	mux := http.NewServeMux()
	mux.HandleFunc(path, authenticator.Wrap(p.handle))
	p.handler = mux
	return p
}

func (p *PingServer) String() string {
	return "ping-server"
}

// SetCredentials changes the accepted username and password. It may be
// called from any goroutine.
func (p *PingServer) SetCredentials(username, password string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.username, p.password = username, password
}

func (p *PingServer) secret(user, realm string) string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	if user != "" && user == p.username {
		return p.password
	}
	return ""
}

func (p *PingServer) handle(w http.ResponseWriter, r *auth.AuthenticatedRequest) {
	log.Info(p, "Connection request received", "user", r.Username, "remote", r.RemoteAddr)
	p.metrics.Ping("received")
	p.post(p.onPing)
	w.WriteHeader(http.StatusNoContent)
}

func (p *PingServer) Handler() http.Handler {
	return p.handler
}

// URL is the ConnectionRequestURL for a local address.
func (p *PingServer) URL(ip string) string {
	if ip == "" {
		return ""
	}
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(ip, strconv.Itoa(int(p.port))), p.path)
}

// Serve listens until ctx is done.
func (p *PingServer) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:    net.JoinHostPort("", strconv.Itoa(int(p.port))),
		Handler: p.handler,
	}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	log.Info(p, "Listening for connection requests", "port", p.port, "path", p.path)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
