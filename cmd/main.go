package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/allocation"
	"github.com/hedge-wan/hedge/common"
	"github.com/hedge-wan/hedge/config"
	"github.com/hedge-wan/hedge/experiment"
	"github.com/hedge-wan/hedge/lp"
	"github.com/hedge-wan/hedge/metrics"
	"github.com/hedge-wan/hedge/parsing"
	"github.com/hedge-wan/hedge/scenario"
	"github.com/hedge-wan/hedge/simulation"
	"github.com/hedge-wan/hedge/storage"
	"github.com/hedge-wan/hedge/topology"
)

func openStore(cfg config.OutputConfig) (storage.ResultStore, error) {
	switch cfg.Store {
	case "sqlite":
		return storage.NewSQLiteStore(cfg.Path)
	case "mysql":
		return storage.NewMySQLStore(cfg.Path)
	default:
		return storage.NewFileStore(cfg.Path)
	}
}

func main() {
	configPath := flag.String("config", "hedge_config.toml", "experiment configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading configuration failed, err:%v", err)
	}
	logFile, err := common.InitLogging(common.LogConfig{Dir: cfg.Log.Dir, File: cfg.Log.File, Level: cfg.Log.Level})
	if err != nil {
		log.Fatalf("initializing logging failed, err:%v", err)
	}
	defer logFile.Close()

	name, links, err := parsing.ReadTopology(cfg.Topology.Distributions)
	if err != nil {
		log.Fatalf("reading topology failed, err:%v", err)
	}
	if cfg.Topology.Name != "" {
		name = cfg.Topology.Name
	}

	setup, err := experiment.Prepare(name, links, func(net *topology.Network) error {
		return parsing.ReadDemands(net, cfg.Topology.Demands, 1)
	}, experiment.SetupOptions{
		Unity: cfg.Topology.Unity,
		Enumerate: scenario.EnumerateOptions{
			ProbThreshold: cfg.Scenarios.ProbThreshold,
			MaxScenarios:  cfg.Scenarios.MaxScenarios,
		},
		CoverageFloor: cfg.Scenarios.CoverageFloor,
		TunnelMethod:  cfg.Tunnels.Method,
		K:             cfg.Tunnels.K,
	})
	if err != nil {
		log.Fatalf("experiment setup failed, err:%v", err)
	}

	weights, err := experiment.ParseEdgeWeights(cfg.Strategies.EdgeWeights)
	if err != nil {
		log.Fatalf("parsing edge weights failed, err:%v", err)
	}

	collectors := metrics.NewCollectors()
	solver := metrics.InstrumentSolver(lp.NewSimplexSolver(), collectors)
	runner, err := experiment.NewRunner(experiment.Config{
		Scales:     cfg.Simulation.Scales,
		Strategies: cfg.Strategies.Names,
		Simulation: simulation.Config{
			Rounds:         cfg.Simulation.Rounds,
			ReplanInterval: cfg.Simulation.ReplanInterval,
			Seed:           cfg.Simulation.Seed,
		},
		Hedge:   allocation.HedgeOptions{EdgeWeights: weights, DefaultWeight: cfg.Strategies.HedgeWeight},
		Workers: cfg.Simulation.Workers,
	}, solver, collectors)
	if err != nil {
		log.Fatalf("creating runner failed, err:%v", err)
	}
	defer runner.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, err := runner.Run(ctx, setup)
	if err != nil {
		log.Errorf("experiment failed, err:%v", err)
		return
	}
	for _, sr := range rec.Scales {
		for name, st := range sr.Strategies {
			log.Infof("scale=%v strategy=%s throughput=%.3f recomputations=%d replans=%d",
				sr.Scale, name, st.Throughput, st.Recomputations, st.Replans)
		}
	}

	store, err := openStore(cfg.Output)
	if err != nil {
		log.Errorf("opening result store failed, err:%v", err)
		return
	}
	defer store.Close()
	if err := store.Save(ctx, rec); err != nil {
		log.Errorf("saving run failed, err:%v", err)
		return
	}

	if cfg.Output.MetricsFile != "" {
		if err := collectors.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			log.Warnf("writing metrics file failed, err:%v", err)
		}
	}
	log.Infof("run %s saved (%s)", rec.ID, cfg.Output.Store)
}
