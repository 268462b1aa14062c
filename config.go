// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package thread

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds the process tunables C16 describes: the default stack
// size new threads get when Attr.StackSize is left zero, the capacity
// of the TLS key table, and the internal spinlock's backoff staging.
type Config struct {
	DefaultStackSize int64 `toml:"default_stack_size"`
	MaxTLSKeys       int   `toml:"max_tls_keys"`
	SpinActiveIters  int   `toml:"spin_active_iters"`
	SpinPassiveIters int   `toml:"spin_passive_iters"`
}

// DefaultConfig snapshots the tunables currently in force.
func DefaultConfig() Config {
	return Config{
		DefaultStackSize: int64(defaultStackSize),
		MaxTLSKeys:       MaxKeys,
		SpinActiveIters:  spinActiveIters,
		SpinPassiveIters: spinPassiveIters,
	}
}

// LoadConfig reads tunables from a TOML file (path may be empty to
// skip that step), applies THREADBITES_*-prefixed environment
// overrides on top, installs the result as the active configuration,
// and returns it. Call this before the first Create or KeyCreate:
// MaxTLSKeys sizes the TLS key table at bootstrap, and DefaultStackSize
// only affects threads created afterward.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnvOverrides(&cfg)
	cfg.apply()
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("THREADBITES_DEFAULT_STACK_SIZE"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.DefaultStackSize = n
		}
	}
	if v, ok := os.LookupEnv("THREADBITES_MAX_TLS_KEYS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTLSKeys = n
		}
	}
	if v, ok := os.LookupEnv("THREADBITES_SPIN_ACTIVE_ITERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SpinActiveIters = n
		}
	}
	if v, ok := os.LookupEnv("THREADBITES_SPIN_PASSIVE_ITERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SpinPassiveIters = n
		}
	}
}

func (cfg Config) apply() {
	if cfg.DefaultStackSize > 0 {
		defaultStackSize = uintptr(cfg.DefaultStackSize)
	}
	if cfg.MaxTLSKeys > 0 {
		MaxKeys = cfg.MaxTLSKeys
	}
	if cfg.SpinActiveIters > 0 {
		spinActiveIters = cfg.SpinActiveIters
	}
	if cfg.SpinPassiveIters > 0 {
		spinPassiveIters = cfg.SpinPassiveIters
	}
}
