package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Mode names the command surface being started. Each mode needs a different
// subset of credentials.
type Mode string

const (
	// ModeServe runs the intake API (and the in-process queue when local).
	ModeServe Mode = "serve"
	// ModeWorker runs a Temporal worker.
	ModeWorker Mode = "worker"
	// ModeProcess runs the pipeline synchronously for one item.
	ModeProcess Mode = "process"
	// ModeRoute plans a pickup route.
	ModeRoute Mode = "route"
	// ModeReadOnly only touches the store.
	ModeReadOnly Mode = "readonly"
)

// Validate checks that the keys required by mode are set. It reports every
// missing key at once so operators can fix the config in a single pass.
func (c *Config) Validate(mode Mode) error {
	var missing []string
	need := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}

	need("store.driver", c.Store.Driver)
	if c.Store.Driver == "postgres" {
		need("store.database_url", c.Store.DatabaseURL)
	}

	runsPipeline := mode == ModeProcess || mode == ModeWorker ||
		(mode == ModeServe && c.Queue.Driver == "local")
	if runsPipeline {
		need("anthropic.key", c.Anthropic.Key)
		need("metals.key", c.Metals.Key)
	}

	if mode == ModeWorker || (mode == ModeServe && c.Queue.Driver == "temporal") {
		need("temporal.host_port", c.Temporal.HostPort)
		need("temporal.task_queue", c.Temporal.TaskQueue)
	}

	if mode == ModeRoute {
		need("mapbox.token", c.Mapbox.Token)
	}

	switch c.Store.Driver {
	case "", "postgres", "sqlite":
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	switch c.Queue.Driver {
	case "local", "temporal":
	default:
		return eris.Errorf("config: unknown queue.driver %q", c.Queue.Driver)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required keys for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
}
