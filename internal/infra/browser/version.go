package browser

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"webmcp-inspector/internal/domain"
)

var versionDigits = regexp.MustCompile(`^\d+(\.\d+){0,2}`)

var minimumVersion = fmt.Sprintf("v%d.0.0", domain.MinBrowserMajorVersion)

// productVersion extracts "146.0.7680" from products such as
// "Chrome/146.0.7680.31" or "HeadlessChrome/146.0.7680.31".
func productVersion(product string) string {
	version := product
	if idx := strings.LastIndex(product, "/"); idx >= 0 {
		version = product[idx+1:]
	}
	return versionDigits.FindString(strings.TrimSpace(version))
}

// checkVersion fails unless product is at least the minimum supported major
// version. Unparseable versions are rejected.
func checkVersion(product string) error {
	version := productVersion(product)
	canonical := semver.Canonical("v" + version)
	if version != "" && canonical != "" && semver.Compare(canonical, minimumVersion) >= 0 {
		return nil
	}
	shown := version
	if shown == "" {
		shown = product
	}
	msg := fmt.Sprintf("Chrome version %s is not supported. WebMCP requires Chrome %d+. "+
		"Please update Chrome or install Chrome Beta/Canary.\n"+
		"  Download: https://www.google.com/chrome/beta/", shown, domain.MinBrowserMajorVersion)
	return domain.E(domain.CodeFailedPrecond, "", msg, domain.ErrUnsupportedBrowserVersion)
}
