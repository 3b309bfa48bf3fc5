package resilience

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Preset is a named bundle of resilience settings tuned for one class of
// call site. Presets are plain data; they carry no hard logic of their own.
type Preset struct {
	CircuitBreaker *CircuitConfig
	Retry          *RetryConfig
	Timeout        time.Duration
	RateLimit      *RateLimitConfig
}

// DefaultPresets returns the built-in bundles for common payment platform
// call sites.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		// External card network / gateway calls: patient retries with heavy
		// jitter, slow circuit recovery.
		"payment-call": {
			CircuitBreaker: &CircuitConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				ResetTimeout:     30 * time.Second,
			},
			Retry: &RetryConfig{
				MaxRetries:        3,
				InitialDelay:      500 * time.Millisecond,
				BackoffMultiplier: 2.0,
				MaxDelay:          10 * time.Second,
				JitterFactor:      0.2,
				RetryableErrors:   []string{"timeout", "connection reset", "unavailable", "502", "503"},
			},
			Timeout: 15 * time.Second,
		},

		// Outbound webhook deliveries: many cheap retries spread over a long
		// horizon, generous timeout per attempt.
		"webhook-delivery": {
			CircuitBreaker: &CircuitConfig{
				FailureThreshold: 10,
				SuccessThreshold: 1,
				ResetTimeout:     time.Minute,
			},
			Retry: &RetryConfig{
				MaxRetries:        5,
				InitialDelay:      time.Second,
				BackoffMultiplier: 3.0,
				MaxDelay:          5 * time.Minute,
				JitterFactor:      0.3,
			},
			Timeout: 30 * time.Second,
		},

		// Local database queries: fail fast, recover fast.
		"database-query": {
			CircuitBreaker: &CircuitConfig{
				FailureThreshold: 3,
				SuccessThreshold: 1,
				ResetTimeout:     5 * time.Second,
			},
			Retry: &RetryConfig{
				MaxRetries:        2,
				InitialDelay:      50 * time.Millisecond,
				BackoffMultiplier: 2.0,
				MaxDelay:          time.Second,
				RetryableErrors:   []string{"deadlock", "connection refused", "timeout"},
			},
			Timeout: 5 * time.Second,
		},

		// Authentication attempts: strict window to blunt credential
		// stuffing, no retries.
		"auth-attempt": {
			RateLimit: &RateLimitConfig{
				MaxRequests: 5,
				Window:      time.Minute,
				KeyPrefix:   "auth",
			},
			Timeout: 10 * time.Second,
		},
	}
}

// ErrPresetNotFound is returned by LookupPreset for an unknown name.
var ErrPresetNotFound = fmt.Errorf("resilience: preset not found")

// LookupPreset returns a preset by name from the built-in bundles.
func LookupPreset(name string) (Preset, error) {
	if p, ok := DefaultPresets()[name]; ok {
		return p, nil
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrPresetNotFound, name)
}

// Executor builds an executor for the dependency from the preset. Additional
// options are applied after the preset's own.
func (p Preset) Executor(dependency string, opts ...ExecutorOption) (*Executor, error) {
	var presetOpts []ExecutorOption

	if p.CircuitBreaker != nil {
		cb, err := NewCircuitBreaker(*p.CircuitBreaker)
		if err != nil {
			return nil, err
		}
		presetOpts = append(presetOpts, WithCircuitBreaker(cb))
	}
	if p.Retry != nil {
		r, err := NewRetry(*p.Retry)
		if err != nil {
			return nil, err
		}
		presetOpts = append(presetOpts, WithRetry(r))
	}
	if p.Timeout > 0 {
		presetOpts = append(presetOpts, WithTimeout(NewTimeout(TimeoutConfig{Timeout: p.Timeout})))
	}
	if p.RateLimit != nil {
		l, err := NewLimiter(*p.RateLimit, nil)
		if err != nil {
			return nil, err
		}
		presetOpts = append(presetOpts, WithRateLimit(l, dependency))
	}

	return NewExecutor(dependency, append(presetOpts, opts...)...), nil
}

// YAML file schema. Durations are plain milliseconds so preset files stay
// language-neutral.
type presetsFile struct {
	Presets map[string]presetSpec `yaml:"presets"`
}

type presetSpec struct {
	CircuitBreaker *circuitSpec   `yaml:"circuit_breaker"`
	Retry          *retrySpec     `yaml:"retry"`
	TimeoutMs      int64          `yaml:"timeout_ms"`
	RateLimit      *rateLimitSpec `yaml:"rate_limit"`
}

type circuitSpec struct {
	FailureThreshold int   `yaml:"failure_threshold"`
	SuccessThreshold int   `yaml:"success_threshold"`
	ResetTimeoutMs   int64 `yaml:"reset_timeout_ms"`
}

type retrySpec struct {
	MaxRetries        int      `yaml:"max_retries"`
	InitialDelayMs    int64    `yaml:"initial_delay_ms"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	MaxDelayMs        int64    `yaml:"max_delay_ms"`
	JitterFactor      float64  `yaml:"jitter_factor"`
	RetryableErrors   []string `yaml:"retryable_errors"`
}

type rateLimitSpec struct {
	MaxRequests int    `yaml:"max_requests"`
	WindowMs    int64  `yaml:"window_ms"`
	KeyPrefix   string `yaml:"key_prefix"`
}

// LoadPresets reads preset bundles from YAML. Each loaded config is validated
// before the map is returned.
func LoadPresets(r io.Reader) (map[string]Preset, error) {
	var file presetsFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("resilience: decode presets: %w", err)
	}

	presets := make(map[string]Preset, len(file.Presets))
	for name, spec := range file.Presets {
		p, err := spec.toPreset()
		if err != nil {
			return nil, fmt.Errorf("resilience: preset %q: %w", name, err)
		}
		presets[name] = p
	}
	return presets, nil
}

// LoadPresetsFile reads preset bundles from a YAML file on disk.
func LoadPresetsFile(path string) (map[string]Preset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("resilience: open presets: %w", err)
	}
	defer f.Close()
	return LoadPresets(f)
}

func (s presetSpec) toPreset() (Preset, error) {
	var p Preset

	if s.CircuitBreaker != nil {
		cfg := CircuitConfig{
			FailureThreshold: s.CircuitBreaker.FailureThreshold,
			SuccessThreshold: s.CircuitBreaker.SuccessThreshold,
			ResetTimeout:     time.Duration(s.CircuitBreaker.ResetTimeoutMs) * time.Millisecond,
		}
		if err := cfg.Validate(); err != nil {
			return Preset{}, err
		}
		p.CircuitBreaker = &cfg
	}

	if s.Retry != nil {
		cfg := RetryConfig{
			MaxRetries:        s.Retry.MaxRetries,
			InitialDelay:      time.Duration(s.Retry.InitialDelayMs) * time.Millisecond,
			BackoffMultiplier: s.Retry.BackoffMultiplier,
			MaxDelay:          time.Duration(s.Retry.MaxDelayMs) * time.Millisecond,
			JitterFactor:      s.Retry.JitterFactor,
			RetryableErrors:   s.Retry.RetryableErrors,
		}
		if err := cfg.Validate(); err != nil {
			return Preset{}, err
		}
		p.Retry = &cfg
	}

	p.Timeout = time.Duration(s.TimeoutMs) * time.Millisecond

	if s.RateLimit != nil {
		cfg := RateLimitConfig{
			MaxRequests: s.RateLimit.MaxRequests,
			Window:      time.Duration(s.RateLimit.WindowMs) * time.Millisecond,
			KeyPrefix:   s.RateLimit.KeyPrefix,
		}
		if err := cfg.Validate(); err != nil {
			return Preset{}, err
		}
		p.RateLimit = &cfg
	}

	return p, nil
}
