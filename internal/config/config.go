package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sqlflow-dev/sqlflow/internal/runtime"
	"github.com/sqlflow-dev/sqlflow/internal/vars"
)

// Profile is the parsed form of a profile YAML document. Variables feed
// the variable store; the runtime section tunes the executor.
type Profile struct {
	Variables map[string]string
	Runtime   RuntimeSettings
}

// RuntimeSettings are the executor knobs a profile may override.
type RuntimeSettings struct {
	Workers         int
	FailFast        *bool
	StepTimeout     time.Duration
	StateDir        string
	ContinueOnError bool
}

// LoadProfile reads a profile file. A missing path yields an empty
// profile rather than an error so running without profiles stays the
// default.
func LoadProfile(path string) (*Profile, error) {
	profile := &Profile{Variables: map[string]string{}}
	if path == "" {
		return profile, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("profile %q does not exist", path)
		}
		return nil, fmt.Errorf("reading profile %q: %w", path, err)
	}

	for name, value := range v.GetStringMapString("variables") {
		profile.Variables[name] = value
	}

	profile.Runtime.Workers = v.GetInt("runtime.workers")
	profile.Runtime.StepTimeout = v.GetDuration("runtime.step_timeout")
	profile.Runtime.StateDir = v.GetString("runtime.state_dir")
	profile.Runtime.ContinueOnError = v.GetBool("runtime.continue_on_error")
	if v.IsSet("runtime.fail_fast") {
		failFast := v.GetBool("runtime.fail_fast")
		profile.Runtime.FailFast = &failFast
	}
	return profile, nil
}

// ParseCLIVars parses the --vars flag value. Both a JSON object and a
// comma-separated key=value list are accepted.
func ParseCLIVars(raw string) (map[string]string, error) {
	out := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}

	if strings.HasPrefix(raw, "{") {
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON in --vars: %w", err)
		}
		for name, value := range doc {
			out[name] = fmt.Sprintf("%v", value)
		}
		return out, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		eq := strings.IndexByte(pair, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("invalid --vars entry %q: expected name=value", pair)
		}
		out[strings.TrimSpace(pair[:eq])] = strings.TrimSpace(pair[eq+1:])
	}
	return out, nil
}

// BuildStore assembles the variable store from every source except SET
// statements, which the planner folds in later. A .env file next to
// the working directory is loaded into the environment tier first, so
// real environment variables still win within the tier.
func BuildStore(profile *Profile, cliVars map[string]string) *vars.Store {
	store := vars.NewStore()

	if env, err := godotenv.Read(); err == nil {
		for name, value := range env {
			store.Set(vars.TierEnv, name, vars.Parse(value))
		}
	}
	for _, entry := range os.Environ() {
		if eq := strings.IndexByte(entry, '='); eq > 0 {
			store.Set(vars.TierEnv, entry[:eq], vars.Parse(entry[eq+1:]))
		}
	}

	if profile != nil {
		for name, value := range profile.Variables {
			store.Set(vars.TierProfile, name, vars.Parse(value))
		}
	}
	for name, value := range cliVars {
		store.Set(vars.TierCLI, name, vars.Parse(value))
	}
	return store
}

// ApplyRuntime overlays profile runtime settings onto options, leaving
// unset fields alone.
func ApplyRuntime(opts *runtime.Options, settings RuntimeSettings) {
	if settings.Workers > 0 {
		opts.Workers = settings.Workers
	}
	if settings.StepTimeout > 0 {
		opts.StepTimeout = settings.StepTimeout
	}
	if settings.StateDir != "" {
		opts.StateDir = settings.StateDir
	}
	if settings.FailFast != nil {
		opts.FailFast = *settings.FailFast
	}
	if settings.ContinueOnError {
		opts.FailFast = false
	}
}
