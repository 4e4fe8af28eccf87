package proto

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// validMethods contains the set of HTTP methods that are considered valid
var validMethods = map[string]bool{
	"DELETE":      true,
	"GET":         true,
	"HEAD":        true,
	"POST":        true,
	"PUT":         true,
	"CONNECT":     true,
	"OPTIONS":     true,
	"TRACE":       true,
	"COPY":        true,
	"LOCK":        true,
	"MKCOL":       true,
	"MOVE":        true,
	"PROPFIND":    true,
	"PROPPATCH":   true,
	"SEARCH":      true,
	"UNLOCK":      true,
	"BIND":        true,
	"REBIND":      true,
	"UNBIND":      true,
	"ACL":         true,
	"REPORT":      true,
	"MKACTIVITY":  true,
	"CHECKOUT":    true,
	"MERGE":       true,
	"M-SEARCH":    true,
	"NOTIFY":      true,
	"SUBSCRIBE":   true,
	"UNSUBSCRIBE": true,
	"PATCH":       true,
	"PURGE":       true,
	"MKCALENDAR":  true,
	"LINK":        true,
	"UNLINK":      true,
}

// HTTPRequest wraps the standard http.Request with the pieces the proxy
// needs to route it: target domain, port, and the canned tunnel
// responses.
type HTTPRequest struct {
	*http.Request
}

func NewHTTPRequest(req *http.Request) *HTTPRequest {
	return &HTTPRequest{Request: req}
}

// ReadHTTPRequest reads and parses one request from the reader.
func ReadHTTPRequest(rdr *bufio.Reader) (*HTTPRequest, error) {
	req, err := http.ReadRequest(rdr)
	if err != nil {
		return nil, err
	}
	return NewHTTPRequest(req), nil
}

// TargetHost returns the destination host, preferring the request URI
// over the Host header. For CONNECT requests the URI authority form is
// the target.
func (r *HTTPRequest) TargetHost() string {
	if r.URL != nil && r.URL.Host != "" {
		return r.URL.Host
	}
	return r.Host
}

// ExtractDomain returns the destination host without port information.
func (r *HTTPRequest) ExtractDomain() string {
	target := r.TargetHost()
	host, _, err := net.SplitHostPort(target)
	if err != nil {
		return target
	}
	return host
}

// ExtractPort returns the destination port, defaulting to 443 for
// CONNECT and 80 otherwise.
func (r *HTTPRequest) ExtractPort() (int, error) {
	_, port, err := net.SplitHostPort(r.TargetHost())
	if err != nil {
		if r.Method == http.MethodConnect {
			return 443, nil
		}
		return 80, nil
	}

	return strconv.Atoi(port)
}

// IsValidMethod returns true if the request method is a valid HTTP method
func (r *HTTPRequest) IsValidMethod() bool {
	return validMethods[strings.ToUpper(r.Method)]
}

// IsConnectMethod returns true if the request method is CONNECT
func (r *HTTPRequest) IsConnectMethod() bool {
	return r.Method == http.MethodConnect
}

func (r *HTTPRequest) BadGatewayResponse() []byte {
	return []byte(r.Proto + " 502 Bad Gateway\r\n\r\n")
}

func (r *HTTPRequest) ConnEstablishedResponse() []byte {
	return []byte(r.Proto + " 200 Connection Established\r\n\r\n")
}
