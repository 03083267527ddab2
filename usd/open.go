package usd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// Recognized USD file extensions. Only the usda text serialization can be
// parsed; crate (.usdc) and zip archive (.usdz) payloads are rejected with
// a distinct unsupported_format error.
var usdExtensions = map[string]bool{
	".usd":  true,
	".usda": true,
	".usdc": true,
	".usdz": true,
}

var (
	usdaHeader = []byte("#usda")
	crateMagic = []byte("PXR-USDC")
	zipMagic   = []byte("PK\x03\x04")
)

// Open loads and parses a USD file into a read-only Stage. Failures are
// classified: not_found when the path does not exist, unsupported_format
// when the file is not a parseable usda text layer, parse_error when the
// layer is malformed. A malformed file is never coerced to an empty stage.
func Open(path string) (*Stage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, Errorf(KindInvalidArgument, "file path cannot be empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Errorf(KindNotFound, "file does not exist: %s", path)
		}
		return nil, Errorf(KindInternal, "failed to stat file %s: %v", path, err)
	}
	if info.IsDir() {
		return nil, Errorf(KindNotFound, "path is not a file: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !usdExtensions[ext] {
		return nil, Errorf(KindUnsupportedFormat, "file does not have a USD extension (.usd, .usda, .usdc, .usdz): %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Errorf(KindInternal, "failed to read file %s: %v", path, err)
	}

	switch {
	case ext == ".usdz" || bytes.HasPrefix(data, zipMagic):
		return nil, Errorf(KindUnsupportedFormat, "usdz archives are not supported: %s", path)
	case ext == ".usdc" || bytes.HasPrefix(data, crateMagic):
		return nil, Errorf(KindUnsupportedFormat, "binary usd crate files are not supported: %s", path)
	case !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), usdaHeader):
		return nil, Errorf(KindUnsupportedFormat, "missing #usda header, not a usda text layer: %s", path)
	}

	identifier, err := filepath.Abs(path)
	if err != nil {
		identifier = path
	}

	stage := &Stage{
		identifier: identifier,
		format:     "usda",
	}

	p, parseErr := newParser(string(data))
	if parseErr == nil {
		parseErr = p.parseLayer(stage)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return stage, nil
}
