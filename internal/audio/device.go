package audio

import "time"

// Device represents an audio device
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowLatency        time.Duration // Default low input latency, or output latency for output-only devices.
	HighLatency       time.Duration
}

// Direction describes which way audio flows through the device.
func (d Device) Direction() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return "Unavailable"
	}
}

// HostDevices returns all available audio devices. Initialize must have been called.
func HostDevices() ([]Device, error) {
	paDeviceInfos, err := paDevices()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, len(paDeviceInfos))
	for i, info := range paDeviceInfos {
		low, high := info.DefaultLowInputLatency, info.DefaultHighInputLatency
		if info.MaxInputChannels == 0 {
			low, high = info.DefaultLowOutputLatency, info.DefaultHighOutputLatency
		}
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			LowLatency:        low,
			HighLatency:       high,
		}
	}

	return devices, nil
}
