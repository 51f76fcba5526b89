package domain

import "time"

const (
	DefaultCDPHost                    = "localhost"
	DefaultCDPPort                    = 9222
	DefaultExtensionWSPort            = 8765
	DefaultExtensionCallTimeout       = 30 * time.Second
	DefaultHTTPAddr                   = "127.0.0.1:3100"
	DefaultHTTPPath                   = "/mcp"
	DefaultTransport                  = "streamable-http"
	DefaultBrowserChannel             = "chrome-beta"
	DefaultObservabilityListenAddress = "127.0.0.1:9464"
	DefaultClientServerURL            = "http://localhost:3100/mcp"

	MinBrowserMajorVersion = 146
	ServerName             = "ai-inspector"
)

const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)
