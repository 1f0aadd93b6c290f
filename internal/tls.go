package internal

import (
	"context"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
)

// NewBrowserTransport returns a pooled HTTP transport whose ClientHello
// matches a current Chrome build instead of crypto/tls's default, which is
// fingerprinted and blocked by the upstream edge. ALPN is pinned to
// http/1.1 so the negotiated protocol matches what net/http then speaks on
// the wire.
func NewBrowserTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		DialContext:         dialer.DialContext,
		DialTLSContext:      dialBrowserTLS(dialer),
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

func dialBrowserTLS(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		rawConn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		spec, err := utls.UTLSIdToSpec(utls.HelloChrome_120)
		if err != nil {
			rawConn.Close()
			return nil, err
		}
		for _, ext := range spec.Extensions {
			if alpn, ok := ext.(*utls.ALPNExtension); ok {
				alpn.AlpnProtocols = []string{"http/1.1"}
			}
		}

		conn := utls.UClient(rawConn, &utls.Config{ServerName: host}, utls.HelloCustom)
		if err := conn.ApplyPreset(&spec); err != nil {
			rawConn.Close()
			return nil, err
		}
		if err := conn.HandshakeContext(ctx); err != nil {
			rawConn.Close()
			return nil, err
		}
		return conn, nil
	}
}
