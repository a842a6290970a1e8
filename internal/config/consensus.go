package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/banshee-data/consensus.report/internal/annotation"
	"github.com/banshee-data/consensus.report/internal/cluster"
	"github.com/banshee-data/consensus.report/internal/consensus"
	"github.com/banshee-data/consensus.report/internal/reduce"
)

// DefaultConfigPath is the path to the canonical consensus defaults file.
const DefaultConfigPath = "config/consensus.defaults.json"

// EnvPrefix prefixes environment variables that override file values,
// e.g. CONSENSUS_MIN_THRESHOLD=3.
const EnvPrefix = "CONSENSUS_"

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// ConsensusConfig is the root configuration for an evaluation run. Fields
// left unset fall back to the defaults returned by the Get* methods, so
// partial configs are safe.
type ConsensusConfig struct {
	MinThreshold    *int     `json:"min_threshold,omitempty"`
	ReachedFraction *float64 `json:"reached_fraction,omitempty"`
	Workers         *int     `json:"workers,omitempty"`

	// TaskKinds lists kind names such as "choice" or "rect-mark". Empty
	// means every kind.
	TaskKinds []string `json:"task_kinds,omitempty"`

	// Clustering holds DBSCAN parameters keyed by mark kind name.
	Clustering map[string]ClusteringConfig `json:"clustering,omitempty"`
}

// ClusteringConfig overrides the DBSCAN parameters for one mark kind.
type ClusteringConfig struct {
	Eps        *float64 `json:"eps,omitempty"`
	MinSamples *int     `json:"min_samples,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConsensusConfig returns a ConsensusConfig with all fields unset.
func EmptyConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{}
}

// DefaultConsensusConfig returns a config with every field set to its default.
func DefaultConsensusConfig() *ConsensusConfig {
	clustering := make(map[string]ClusteringConfig)
	for _, k := range annotation.AllKinds() {
		if k.Spatial() {
			clustering[k.String()] = ClusteringConfig{
				Eps:        ptrFloat64(cluster.DefaultEps),
				MinSamples: ptrInt(cluster.DefaultMinSamples),
			}
		}
	}
	kinds := make([]string, 0, len(annotation.AllKinds()))
	for _, k := range annotation.AllKinds() {
		kinds = append(kinds, k.String())
	}
	return &ConsensusConfig{
		MinThreshold:    ptrInt(consensus.DefaultMinThreshold),
		ReachedFraction: ptrFloat64(reduce.DefaultReachedFraction),
		Workers:         ptrInt(0),
		TaskKinds:       kinds,
		Clustering:      clustering,
	}
}

// LoadConsensusConfig loads a ConsensusConfig from a JSON or YAML file and
// then applies CONSENSUS_* environment overrides. An empty path loads the
// environment alone.
func LoadConsensusConfig(path string) (*ConsensusConfig, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		// YAML is a superset of JSON, so one parser serves both.
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := EmptyConsensusConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envKey maps CONSENSUS_TASK_KINDS=choice,count to task_kinds=[choice count].
// Clustering parameters are nested and only come from files.
func envKey(key, value string) (string, interface{}) {
	name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if name == "task_kinds" {
		var kinds []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				kinds = append(kinds, s)
			}
		}
		return name, kinds
	}
	return name, value
}

func readConfigFile(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and its parents up to the repository
// root. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ConsensusConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConsensusConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ConsensusConfig) Validate() error {
	if c.MinThreshold != nil && *c.MinThreshold < 0 {
		return fmt.Errorf("min_threshold must be non-negative, got %d", *c.MinThreshold)
	}

	if c.ReachedFraction != nil {
		f := *c.ReachedFraction
		if math.IsNaN(f) || f <= 0 || f > 1 {
			return fmt.Errorf("reached_fraction must be in (0, 1], got %v", f)
		}
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	if _, err := c.GetTaskKinds(); err != nil {
		return err
	}

	for name := range c.Clustering {
		kind, err := annotation.ParseTaskKind(name)
		if err != nil {
			return fmt.Errorf("clustering: %w", err)
		}
		if !kind.Spatial() {
			return fmt.Errorf("clustering: %s is not a mark kind", name)
		}
		if err := c.GetClusterParams(kind).Validate(); err != nil {
			return fmt.Errorf("clustering %s: %w", name, err)
		}
	}

	return nil
}

// GetMinThreshold returns the min_threshold value or the default.
func (c *ConsensusConfig) GetMinThreshold() int {
	if c.MinThreshold == nil {
		return consensus.DefaultMinThreshold
	}
	return *c.MinThreshold
}

// GetReachedFraction returns the reached_fraction value or the default.
func (c *ConsensusConfig) GetReachedFraction() float64 {
	if c.ReachedFraction == nil {
		return reduce.DefaultReachedFraction
	}
	return *c.ReachedFraction
}

// GetWorkers returns the workers value or 0, meaning one per CPU.
func (c *ConsensusConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetTaskKinds parses task_kinds. An empty list yields every kind.
func (c *ConsensusConfig) GetTaskKinds() ([]annotation.TaskKind, error) {
	if len(c.TaskKinds) == 0 {
		return annotation.AllKinds(), nil
	}
	kinds := make([]annotation.TaskKind, 0, len(c.TaskKinds))
	for _, name := range c.TaskKinds {
		k, err := annotation.ParseTaskKind(name)
		if err != nil {
			return nil, fmt.Errorf("task_kinds: %w", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// GetClusterParams returns the DBSCAN parameters for kind, filling unset
// fields from the defaults.
func (c *ConsensusConfig) GetClusterParams(kind annotation.TaskKind) cluster.Params {
	p := cluster.DefaultParams()
	cc, ok := c.Clustering[kind.String()]
	if !ok {
		return p
	}
	if cc.Eps != nil {
		p.Eps = *cc.Eps
	}
	if cc.MinSamples != nil {
		p.MinSamples = *cc.MinSamples
	}
	return p
}

// Options converts the config into evaluator options. Metrics are left for
// the caller to attach.
func (c *ConsensusConfig) Options() (consensus.Options, error) {
	kinds, err := c.GetTaskKinds()
	if err != nil {
		return consensus.Options{}, err
	}

	params := reduce.Params{
		ReachedFraction: c.GetReachedFraction(),
		Clustering:      make(map[annotation.TaskKind]cluster.Params),
	}
	for _, k := range annotation.AllKinds() {
		if k.Spatial() {
			params.Clustering[k] = c.GetClusterParams(k)
		}
	}

	return consensus.Options{
		Kinds:        kinds,
		MinThreshold: c.GetMinThreshold(),
		Reduce:       params,
		Workers:      c.GetWorkers(),
	}, nil
}
