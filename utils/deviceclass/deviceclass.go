// Package deviceclass sniffs a coarse device class from User-Agent strings.
package deviceclass

import (
	"strings"

	"tunebridge/models"
)

var mobileMarkers = []string{
	"android",
	"iphone",
	"ipad",
	"ipod",
	"mobile",
	"opera mini",
}

// FromUserAgent classifies a User-Agent as mobile or desktop. Unknown or
// empty agents count as desktop.
func FromUserAgent(userAgent string) models.DeviceClass {
	ua := strings.ToLower(userAgent)
	for _, marker := range mobileMarkers {
		if strings.Contains(ua, marker) {
			return models.DeviceMobile
		}
	}
	return models.DeviceDesktop
}
