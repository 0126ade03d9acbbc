package domain

import "fmt"

type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceXRTier1 DeviceClass = "xr-tier1"
	DeviceXRTier2 DeviceClass = "xr-tier2"
	DeviceXRTier3 DeviceClass = "xr-tier3"
	DeviceMobile  DeviceClass = "mobile"
)

func ParseDeviceClass(s string) (DeviceClass, error) {
	switch c := DeviceClass(s); c {
	case DeviceDesktop, DeviceXRTier1, DeviceXRTier2, DeviceXRTier3, DeviceMobile:
		return c, nil
	}
	return "", fmt.Errorf("unknown device class %q", s)
}

// PlatformProfile holds the audio backend parameters for one device class.
type PlatformProfile struct {
	Class            DeviceClass `json:"class"`
	SampleRateHz     int         `json:"sample_rate_hz"`
	BufferSizeFrames int         `json:"buffer_size_frames"`
	MaxRealVoices    int         `json:"max_real_voices"`
	MaxVirtualVoices int         `json:"max_virtual_voices"`
}
