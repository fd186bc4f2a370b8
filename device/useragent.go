// Package device parses user agents into the device details stored on sessions.
package device

import (
	"strings"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/mssola/useragent"
)

var _ goRiskAuth.DeviceParser = UserAgentParser{}

// maxUserAgentLen bounds the input handed to the parser.
const maxUserAgentLen = 512

// UserAgentParser is a stateless DeviceParser.
type UserAgentParser struct{}

// Parse returns nil for an empty user agent or one nothing could be read from.
func (UserAgentParser) Parse(userAgent string) *goRiskAuth.DeviceInfo {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return nil
	}
	if len(userAgent) > maxUserAgentLen {
		userAgent = userAgent[:maxUserAgentLen]
	}

	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	info := &goRiskAuth.DeviceInfo{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Platform:       ua.Platform(),
		Mobile:         ua.Mobile(),
		Bot:            ua.Bot(),
	}
	if info.Browser == "" && info.OS == "" && info.Platform == "" && !info.Bot {
		return nil
	}
	return info
}
