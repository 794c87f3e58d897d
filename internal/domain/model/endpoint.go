package model

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

// Protocol enumerates the transports the Connection Manager can dial.
type Protocol int32

const (
	ProtocolQUIC Protocol = iota
	ProtocolTCP
	ProtocolWebSocket
)

func (p Protocol) String() string {
	switch p {
	case ProtocolQUIC:
		return "quic"
	case ProtocolTCP:
		return "tcp"
	case ProtocolWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// defaultPort is used whenever a server URL omits an explicit port.
const defaultPort = 8080

// Endpoint is one candidate the Connection Manager may dial, in the order
// configured. Identity is the tuple described in spec §3.
type Endpoint struct {
	Protocol Protocol
	Host     string
	Port     int
	Path     string
	UseTLS   bool
}

func (e Endpoint) String() string {
	scheme := e.Protocol.String()
	if e.Protocol == ProtocolWebSocket {
		if e.UseTLS {
			scheme = "wss"
		} else {
			scheme = "ws"
		}
	}
	s := fmt.Sprintf("%s://%s:%d", scheme, e.Host, e.Port)
	if e.Path != "" {
		s += "/" + strings.TrimPrefix(e.Path, "/")
	}
	return s
}

// ParseEndpoint parses a URL of the form {scheme}://{host}[:{port}][/{path}]
// recognizing quic://, tcp://, wss://, ws:// schemes. A missing port
// defaults to 8080 (spec §8 round-trip property).
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, ierr.NewInvalidParameter("endpoint", err.Error())
	}
	if u.Host == "" {
		return Endpoint{}, ierr.NewInvalidParameter("endpoint", "missing host in "+raw)
	}

	var proto Protocol
	useTLS := false
	switch strings.ToLower(u.Scheme) {
	case "quic":
		proto = ProtocolQUIC
		useTLS = true
	case "tcp":
		proto = ProtocolTCP
	case "wss":
		proto = ProtocolWebSocket
		useTLS = true
	case "ws":
		proto = ProtocolWebSocket
	default:
		return Endpoint{}, ierr.NewInvalidParameter("endpoint", "unsupported scheme "+u.Scheme)
	}

	host := u.Hostname()
	portStr := u.Port()
	port := defaultPort
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return Endpoint{}, ierr.NewInvalidParameter("endpoint", "invalid port "+portStr)
		}
		port = p
	}

	return Endpoint{
		Protocol: proto,
		Host:     host,
		Port:     port,
		Path:     strings.Trim(u.Path, "/"),
		UseTLS:   useTLS,
	}, nil
}
