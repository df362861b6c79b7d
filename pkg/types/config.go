// Copyright Bio312 course staff, 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds the outbound request policy shared by every remote lookup.
// The batch driver builds one immutable copy at startup and every component
// goes through the same client.
type HTTPConfig struct {
	// ConnectTimeout bounds TCP connection establishment.
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`

	// Timeout bounds the total time for a single request, body included.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Retries is the number of automatic retries on transient failures
	// (connection errors, 5xx, 429) before the request is given up.
	Retries int `json:"retries" yaml:"retries"`

	// UserAgent is the User-Agent header sent with every request
	// (e.g. "structfetch/0.1 (student@university.edu)").
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// RequestsPerSecond paces outbound requests. Zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// FetchConfig holds settings for a structure-fetching run.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// OutDir is the directory structure files are downloaded into.
	// Manifest sidecars go to OutDir/manifest and the run ledger to
	// OutDir/ledger.
	OutDir string `json:"out_dir" yaml:"out_dir"`

	// SWMMax caps how many SWISS-MODEL models are downloaded per record
	// (default 1).
	SWMMax int `json:"swm_max" yaml:"swm_max"`
}
