package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Proxy is one set of relay credentials. Proxies are compared by pointer:
// two records with identical fields are still distinct proxies.
type Proxy struct {
	ID       int
	Host     string
	Port     int
	Username string
	Password string
	Scheme   string // "http" when empty
}

// URL returns the proxy address including credentials, suitable for
// http.Transport.Proxy.
func (p *Proxy) URL() *url.URL {
	scheme := p.Scheme
	if scheme == "" {
		scheme = "http"
	}
	u := &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// Addr returns host:port.
func (p *Proxy) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// String never includes the password so proxies can be logged freely.
func (p *Proxy) String() string {
	if p.Username == "" {
		return p.Addr()
	}
	return p.Username + "@" + p.Addr()
}

// Parse reads a proxy from "host:port" or "host:port:user:password".
// A scheme prefix ("socks5://") is accepted and kept.
func Parse(line string) (*Proxy, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty proxy line")
	}

	p := &Proxy{}
	if i := strings.Index(line, "://"); i >= 0 {
		p.Scheme = strings.ToLower(line[:i])
		line = line[i+3:]
	}

	parts := strings.Split(line, ":")
	if len(parts) != 2 && len(parts) < 4 {
		return nil, fmt.Errorf("invalid proxy format %q: want host:port or host:port:user:password", line)
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid proxy port %q", parts[1])
	}
	p.Host = parts[0]
	p.Port = port

	if len(parts) >= 4 {
		p.Username = parts[2]
		// Passwords may contain ':'.
		p.Password = strings.Join(parts[3:], ":")
	}

	if p.Host == "" {
		return nil, fmt.Errorf("invalid proxy format %q: empty host", line)
	}
	return p, nil
}
