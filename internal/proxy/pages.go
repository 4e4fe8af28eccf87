package proxy

import (
	"fmt"
	"net"
)

const blockedPage = `<html>
<head><title>Access Blocked</title></head>
<body>
<h1>403 Forbidden</h1>
<p>Access to this resource has been blocked by the proxy.</p>
<p>%s</p>
</body>
</html>`

const errorPage = `<html>
<head><title>Proxy Error</title></head>
<body>
<h1>500 Proxy Error</h1>
<p>%s</p>
</body>
</html>`

// writeBlocked sends the policy denial page with the denial reason and
// leaves the connection to be closed by the caller.
func writeBlocked(conn net.Conn, proto string, reason string) {
	writePage(conn, proto, "403 Forbidden", fmt.Sprintf(blockedPage, reason))
}

// writeProxyError sends the proxy failure page with a short reason.
func writeProxyError(conn net.Conn, proto string, reason string) {
	writePage(conn, proto, "500 Internal Server Error", fmt.Sprintf(errorPage, reason))
}

func writePage(conn net.Conn, proto, status, body string) {
	if proto == "" {
		proto = "HTTP/1.1"
	}

	_, _ = fmt.Fprintf(conn,
		"%s %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		proto, status, len(body), body)
}
