// Package config loads the experiment configuration from a TOML file.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

type ExperimentConfig struct {
	Topology   TopologyConfig   `toml:"topology"`
	Scenarios  ScenarioConfig   `toml:"scenarios"`
	Tunnels    TunnelConfig     `toml:"tunnels"`
	Simulation SimulationConfig `toml:"simulation"`
	Strategies StrategyConfig   `toml:"strategies"`
	Output     OutputConfig     `toml:"output"`
	Log        LogConfig        `toml:"log"`
}

type TopologyConfig struct {
	Name          string  `toml:"name" validate:"required"`
	Distributions string  `toml:"distributions" validate:"required"`
	Demands       string  `toml:"demands" validate:"required"`
	Unity         float64 `toml:"unity" validate:"gt=0"`
}

type ScenarioConfig struct {
	ProbThreshold float64 `toml:"prob_threshold" validate:"gte=0,lt=1"`
	MaxScenarios  int     `toml:"max_scenarios" validate:"gte=0"`
	CoverageFloor float64 `toml:"coverage_floor" validate:"gte=0,lte=1"`
}

type TunnelConfig struct {
	Method string `toml:"method" validate:"oneof=k_shortest edge_disjoint"`
	K      int    `toml:"k" validate:"gte=1"`
}

type SimulationConfig struct {
	Rounds         int       `toml:"rounds" validate:"gte=1"`
	ReplanInterval int       `toml:"replan_interval" validate:"gte=1"`
	Seed           uint64    `toml:"seed"`
	Scales         []float64 `toml:"scales" validate:"required,min=1,unique,dive,gt=0"`
	// Workers sizes the per-scale pool; 0 means one per logical CPU.
	Workers int `toml:"workers" validate:"gte=0"`
}

type StrategyConfig struct {
	// Names lists the strategies to compare; empty runs the default set.
	Names       []string `toml:"names" validate:"omitempty,dive,required"`
	HedgeWeight float64  `toml:"hedge_weight" validate:"gte=0"`
	// EdgeWeights overrides HedgeWeight per directed edge, keyed "from:to".
	EdgeWeights map[string]float64 `toml:"edge_weights" validate:"omitempty,dive,gte=0"`
}

type OutputConfig struct {
	Store string `toml:"store" validate:"oneof=file sqlite mysql"`
	// Path is a directory for file, a database file for sqlite and a DSN
	// for mysql.
	Path        string `toml:"path" validate:"required"`
	MetricsFile string `toml:"metrics_file"`
}

type LogConfig struct {
	Dir   string `toml:"dir" validate:"required"`
	File  string `toml:"file" validate:"required"`
	Level string `toml:"level" validate:"oneof=debug info warn warning error"`
}

// Defaults used when a key is missing from the file.
const (
	DefaultUnity          = 200
	DefaultCoverageFloor  = 0.99
	DefaultMethod         = "k_shortest"
	DefaultK              = 4
	DefaultRounds         = 1000
	DefaultReplanInterval = 5
	DefaultHedgeWeight    = 1
	DefaultStore          = "file"
	DefaultOutputPath     = "./results"
	DefaultLogDir         = "./logs"
	DefaultLogFile        = "hedge.log"
	DefaultLogLevel       = "info"
)

func LoadConfig(path string) (*ExperimentConfig, error) {
	var config ExperimentConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	config.applyDefaults()
	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &config, nil
}

func (c *ExperimentConfig) applyDefaults() {
	if c.Topology.Unity == 0 {
		log.Warningf("topology.unity not specified, using default %v", DefaultUnity)
		c.Topology.Unity = DefaultUnity
	}
	if c.Topology.Name == "" && c.Topology.Distributions != "" {
		c.Topology.Name = c.Topology.Distributions
	}
	if c.Scenarios.CoverageFloor == 0 {
		log.Warningf("scenarios.coverage_floor not specified, using default %v", DefaultCoverageFloor)
		c.Scenarios.CoverageFloor = DefaultCoverageFloor
	}
	if c.Tunnels.Method == "" {
		log.Warningf("tunnels.method not specified, using default %s", DefaultMethod)
		c.Tunnels.Method = DefaultMethod
	}
	if c.Tunnels.K == 0 {
		log.Warningf("tunnels.k not specified, using default %d", DefaultK)
		c.Tunnels.K = DefaultK
	}
	if c.Simulation.Rounds == 0 {
		log.Warningf("simulation.rounds not specified, using default %d", DefaultRounds)
		c.Simulation.Rounds = DefaultRounds
	}
	if c.Simulation.ReplanInterval == 0 {
		log.Warningf("simulation.replan_interval not specified, using default %d", DefaultReplanInterval)
		c.Simulation.ReplanInterval = DefaultReplanInterval
	}
	if len(c.Simulation.Scales) == 0 {
		log.Warningf("simulation.scales not specified, using [1]")
		c.Simulation.Scales = []float64{1}
	}
	if c.Strategies.HedgeWeight == 0 {
		c.Strategies.HedgeWeight = DefaultHedgeWeight
	}
	if c.Output.Store == "" {
		c.Output.Store = DefaultStore
	}
	if c.Output.Path == "" {
		log.Warningf("output.path not specified, using default %s", DefaultOutputPath)
		c.Output.Path = DefaultOutputPath
	}
	if c.Log.Dir == "" {
		c.Log.Dir = DefaultLogDir
	}
	if c.Log.File == "" {
		c.Log.File = DefaultLogFile
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
