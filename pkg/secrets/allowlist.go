package secrets

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Allowlist holds path and content patterns excluded from detection, so
// fixtures and documented placeholder keys do not block staging.
type Allowlist struct {
	// Paths are file path regex patterns to ignore.
	Paths []string

	// Regexes are content regex patterns to ignore.
	Regexes []string
}

// LoadAllowlist loads and merges any number of allowlist files with union
// semantics. Missing files are skipped silently; a file that exists but
// fails to parse or carries an invalid pattern is an error.
//
// The expected shape is the Gitleaks allowlist TOML:
//
//	[allowlist]
//	paths = ['testdata/.*']
//	regexes = ['EXAMPLE_API_KEY']
func LoadAllowlist(paths ...string) (*Allowlist, error) {
	merged := &Allowlist{
		Paths:   []string{},
		Regexes: []string{},
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		part, err := loadTOML(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		merged.Paths = append(merged.Paths, part.Paths...)
		merged.Regexes = append(merged.Regexes, part.Regexes...)
	}

	return merged, nil
}

// loadTOML reads one allowlist file and fail-fast validates every pattern
// so later compilation cannot surprise the staging path.
func loadTOML(path string) (*Allowlist, error) {
	var config struct {
		Allowlist struct {
			Paths   []string
			Regexes []string
		}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range config.Allowlist.Paths {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: path pattern %q in %s: %v",
				ErrInvalidRegex, pattern, path, err)
		}
	}
	for _, pattern := range config.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: content pattern %q in %s: %v",
				ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{
		Paths:   config.Allowlist.Paths,
		Regexes: config.Allowlist.Regexes,
	}, nil
}
