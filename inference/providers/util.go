package providers

import (
	"os"
	"runtime"
)

// SharedLibraryEnv overrides the ONNX Runtime shared library location.
const SharedLibraryEnv = "ORT_LIBRARY_PATH"

// GetSharedLibPath returns the path to the ONNX Runtime shared library for the current platform.
//
// Arguments:
//   - override: An explicit path from configuration. Takes precedence when non-empty.
//
// Returns:
//   - string: The path to the shared library, or "" on an unsupported platform.
func GetSharedLibPath(override string) string {
	if override != "" {
		return override
	}
	if env := os.Getenv(SharedLibraryEnv); env != "" {
		return env
	}

	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
	return ""
}
