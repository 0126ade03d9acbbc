// Package profile picks audio buffer and voice budgets per device class.
package profile

import (
	"strings"

	"github.com/dkeye/VoiceRouter/internal/domain"
)

var profiles = map[domain.DeviceClass]domain.PlatformProfile{
	domain.DeviceDesktop: {SampleRateHz: 48000, BufferSizeFrames: 512, MaxRealVoices: 32, MaxVirtualVoices: 512},
	domain.DeviceXRTier3: {SampleRateHz: 48000, BufferSizeFrames: 256, MaxRealVoices: 24, MaxVirtualVoices: 48},
	domain.DeviceXRTier2: {SampleRateHz: 48000, BufferSizeFrames: 512, MaxRealVoices: 24, MaxVirtualVoices: 48},
	domain.DeviceXRTier1: {SampleRateHz: 48000, BufferSizeFrames: 512, MaxRealVoices: 24, MaxVirtualVoices: 48},
	domain.DeviceMobile:  {SampleRateHz: 44100, BufferSizeFrames: 1024, MaxRealVoices: 24, MaxVirtualVoices: 48},
}

// Select returns the profile for class; unknown classes get the desktop one.
func Select(class domain.DeviceClass) domain.PlatformProfile {
	p, ok := profiles[class]
	if !ok {
		class = domain.DeviceDesktop
		p = profiles[class]
	}
	p.Class = class
	return p
}

// standalone headsets without a dedicated tier
var headsetMarkers = []string{"quest", "oculus", "pico", "vive focus", "vision pro", "lynx"}

var mobileMarkers = []string{"android", "iphone", "ipad", "ios", "pixel", "galaxy", "sm-"}

// DetectClass maps a reported device model string onto a device class.
func DetectClass(model string) domain.DeviceClass {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case m == "":
		return domain.DeviceDesktop
	case strings.Contains(m, "quest 3"), strings.Contains(m, "quest pro"):
		return domain.DeviceXRTier3
	case strings.Contains(m, "quest 2"):
		return domain.DeviceXRTier1
	case containsAny(m, headsetMarkers):
		return domain.DeviceXRTier2
	case containsAny(m, mobileMarkers):
		return domain.DeviceMobile
	}
	return domain.DeviceDesktop
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Valid reports whether p can drive an audio cycle.
func Valid(p domain.PlatformProfile) bool {
	return p.SampleRateHz > 0 && p.BufferSizeFrames > 0 && p.MaxRealVoices > 0 && p.MaxVirtualVoices >= 0
}
