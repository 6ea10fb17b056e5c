package spec

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk form for requesting several certificates in one run.
//
//	poll:
//	  max_attempts: 5
//	  base_delay: 1s
//	requests:
//	  - principal: HTTP/www.example.com
//	    seclib: nss
//	    dbname: alias
//	    nickname: Server-Cert
type Manifest struct {
	Poll     PollSettings `yaml:"poll"`
	Requests []Params     `yaml:"requests"`
}

// PollSettings override the orchestrator defaults when non-zero.
type PollSettings struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	Parallelism    int           `yaml:"parallelism"`
}

// LoadManifest reads and decodes a manifest. Requests are not validated here; see Specs.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.Requests) == 0 {
		return nil, fmt.Errorf("%w: manifest contains no requests", ErrInvalidSpec)
	}
	return &m, nil
}

// Specs validates every request. All invalid entries are reported together, and a principal
// listed twice for the same database is rejected since both entries would share one semaphore.
func (m *Manifest) Specs() ([]CertificateRequestSpec, error) {
	specs := make([]CertificateRequestSpec, 0, len(m.Requests))
	seen := make(map[string]int, len(m.Requests))
	var errs []error
	for i, p := range m.Requests {
		s, err := New(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("request %d: %w", i, err))
			continue
		}
		if prev, dup := seen[s.SemaphorePath()]; dup {
			errs = append(errs, fmt.Errorf("request %d: %w: principal %s duplicates request %d", i, ErrInvalidSpec, s.Principal(), prev))
			continue
		}
		seen[s.SemaphorePath()] = i
		specs = append(specs, s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return specs, nil
}
