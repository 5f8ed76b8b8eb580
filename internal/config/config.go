package config

// Core configuration constants that define the boundaries and defaults
// for the language identification pipeline.
const (
	// Audio defaults. The model was trained on 8 kHz mono speech.
	DefaultSampleRate     = 8000 // Hz
	DefaultSegmentSeconds = 0.5  // Length of one captured chunk
	DefaultWindowSeconds  = 10   // Length of the rolling window
	DefaultInputDevice    = MinDeviceID
	DefaultOutputDevice   = MinDeviceID
	DefaultLowLatency     = false

	// Model defaults.
	DefaultModelPath    = "models/lid-spectral.yaml"
	DefaultModelSeconds = 10 // Model input length
	DefaultModelDevice  = "cpu"
	DefaultFFTWindow    = "Hann"

	// Inference defaults.
	DefaultPolicy        = "coalesce"
	DefaultGateThreshold = 0.0 // Gate always open

	// Recording defaults.
	DefaultOutputDir = "./recordings"
	DefaultBitDepth  = 16

	// Transport defaults.
	DefaultWebSocketAddress = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultMetricsAddress   = ":9100"

	DefaultLogLevel = "info"

	// Hardware and processing limits
	MinDeviceID   = -1     // -1 represents system default device
	MinSampleRate = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate = 192000 // Maximum supported sample rate (Hz)
)

// DefaultLabels is the class label set of the shipped model, in model output order.
var DefaultLabels = []string{"Chinese", "English", "Spanish"}
