package registry

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/storyproof/story-acceptor/types"
)

// Registry manages the driver catalog loaded from the drivers manifest.
type Registry struct {
	config  Config
	drivers []types.Driver
	refName string
	mu      sync.RWMutex
}

// Config contains registry configuration.
type Config struct {
	Log              log.Logger
	DriverConfigFile string
	// Include restricts the catalog to the named drivers. Empty means
	// all known drivers. Requesting an unknown name is a config error.
	Include []string
}

// driverManifest is the on-disk shape of drivers.yaml.
type driverManifest struct {
	// ReferenceRuntime names the runtime driver used to execute the
	// product of compiler drivers in composed pipelines.
	ReferenceRuntime string         `yaml:"reference_runtime,omitempty"`
	Drivers          []driverConfig `yaml:"drivers"`
}

type driverConfig struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Command []string `yaml:"command"`
	Version string   `yaml:"version,omitempty"`
}

// NewRegistry loads the drivers manifest and resolves each driver.
// A driver whose executable cannot be located stays in the catalog with
// Resolved=false; only a malformed manifest aborts.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.DriverConfigFile == "" {
		return nil, fmt.Errorf("driver config file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}

	r := &Registry{config: cfg}
	if err := r.loadDrivers(cfg.DriverConfigFile); err != nil {
		return nil, fmt.Errorf("failed to load driver manifest: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "len(drivers)", len(r.drivers))
	return r, nil
}

func (r *Registry) loadDrivers(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	manifest, err := loadManifest(path)
	if err != nil {
		return err
	}

	drivers, err := buildCatalog(manifest)
	if err != nil {
		return err
	}

	if len(r.config.Include) > 0 {
		drivers, err = filterCatalog(drivers, r.config.Include)
		if err != nil {
			return err
		}
	}

	for i := range drivers {
		r.resolve(&drivers[i])
	}

	if manifest.ReferenceRuntime != "" {
		found := false
		for _, d := range drivers {
			if d.Name == manifest.ReferenceRuntime && d.Kind == types.DriverRuntime {
				found = true
				break
			}
		}
		if !found {
			// The reference runtime may have been filtered out; compiler
			// pairs then run compile-only.
			r.config.Log.Warn("Reference runtime not in catalog, compiler drivers run compile-only",
				"reference", manifest.ReferenceRuntime)
			manifest.ReferenceRuntime = ""
		}
	}

	r.drivers = drivers
	r.refName = manifest.ReferenceRuntime
	return nil
}

// resolve verifies the driver's executable is present and executable.
func (r *Registry) resolve(d *types.Driver) {
	if len(d.Command) == 0 {
		d.ResolveErr = "empty command"
		return
	}

	bin := d.Command[0]
	if strings.ContainsRune(bin, os.PathSeparator) {
		info, err := os.Stat(bin)
		if err != nil {
			d.ResolveErr = fmt.Sprintf("driver binary %s: %v", bin, err)
			return
		}
		if info.IsDir() || info.Mode()&0111 == 0 {
			d.ResolveErr = fmt.Sprintf("driver binary %s is not executable", bin)
			return
		}
	} else if _, err := exec.LookPath(bin); err != nil {
		d.ResolveErr = fmt.Sprintf("driver binary %s: %v", bin, err)
		return
	}

	d.Resolved = true
}

// GetDrivers returns the ordered driver catalog. Ordering is by name and
// is the canonical driver index used throughout the summary.
func (r *Registry) GetDrivers() []types.Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.drivers
}

// ReferenceRuntime returns the runtime driver that composed compiler
// pipelines feed their bytecode to, or nil when none is configured.
func (r *Registry) ReferenceRuntime() *types.Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.refName == "" {
		return nil
	}
	for i := range r.drivers {
		if r.drivers[i].Name == r.refName {
			return &r.drivers[i]
		}
	}
	return nil
}

// GetConfig returns the registry configuration.
func (r *Registry) GetConfig() Config {
	return r.config
}

func loadManifest(path string) (*driverManifest, error) {
	log.Debug("Reading driver manifest", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}

	var manifest driverManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest file: %w", err)
	}

	return &manifest, nil
}

func buildCatalog(manifest *driverManifest) ([]types.Driver, error) {
	if len(manifest.Drivers) == 0 {
		return nil, fmt.Errorf("manifest declares no drivers")
	}

	seen := make(map[string]bool, len(manifest.Drivers))
	drivers := make([]types.Driver, 0, len(manifest.Drivers))
	for _, cfg := range manifest.Drivers {
		if cfg.Name == "" {
			return nil, fmt.Errorf("driver with empty name in manifest")
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("duplicate driver name %q in manifest", cfg.Name)
		}
		seen[cfg.Name] = true

		kind := types.DriverKind(cfg.Kind)
		if kind != types.DriverCompiler && kind != types.DriverRuntime {
			return nil, fmt.Errorf("driver %q has unknown kind %q", cfg.Name, cfg.Kind)
		}

		drivers = append(drivers, types.Driver{
			Name:    cfg.Name,
			Kind:    kind,
			Command: cfg.Command,
			Version: cfg.Version,
		})
	}

	sort.Slice(drivers, func(i, j int) bool { return drivers[i].Name < drivers[j].Name })
	return drivers, nil
}

func filterCatalog(drivers []types.Driver, include []string) ([]types.Driver, error) {
	byName := make(map[string]types.Driver, len(drivers))
	for _, d := range drivers {
		byName[d.Name] = d
	}

	filtered := make([]types.Driver, 0, len(include))
	for _, name := range include {
		d, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("requested driver %q is not declared in the manifest", name)
		}
		filtered = append(filtered, d)
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })
	return filtered, nil
}
