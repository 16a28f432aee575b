// Package device classifies user-agent strings into device records.
package device

import (
	"regexp"

	"github.com/mssola/useragent"

	"qrtrack/models"
)

const (
	TypeTablet  = "tablet"
	TypeMobile  = "mobile"
	TypeDesktop = "desktop"

	unknown = "Unknown"
)

var (
	tabletPattern  = regexp.MustCompile(`(?i)ipad|tablet`)
	mobilePattern  = regexp.MustCompile(`(?i)mobile|android|iphone|ipod`)
	androidPattern = regexp.MustCompile(`(?i)android`)
	iosPattern     = regexp.MustCompile(`(?i)iphone|ipad|ipod`)
)

// Parse classifies ua. It never fails: unparseable fields come back as "Unknown".
//
// Form factor is decided in priority order tablet, mobile, desktop. The Android and
// iOS flags describe the platform and are independent of the form factor.
func Parse(ua string) models.DeviceInfo {
	info := models.DeviceInfo{
		IsAndroid: androidPattern.MatchString(ua),
		IsIOS:     iosPattern.MatchString(ua),
	}

	switch {
	case tabletPattern.MatchString(ua):
		info.IsTablet = true
		info.DeviceType = TypeTablet
	case mobilePattern.MatchString(ua):
		info.IsMobile = true
		info.DeviceType = TypeMobile
	default:
		info.IsDesktop = true
		info.DeviceType = TypeDesktop
	}

	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	osInfo := parsed.OSInfo()

	osName, osVersion := osInfo.Name, osInfo.Version
	if osName == "" {
		switch {
		case info.IsIOS:
			osName = "iOS"
		case info.IsAndroid:
			osName = "Android"
		}
	}

	info.Browser, info.BrowserVersion = named(name, version)
	info.OS, info.OSVersion = named(osName, osVersion)
	info.Device = orUnknown(parsed.Model())

	return info
}

// named keeps a version only next to a known name.
func named(name, version string) (string, string) {
	if name == "" {
		return unknown, unknown
	}
	return name, orUnknown(version)
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
