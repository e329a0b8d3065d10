// Package main solves a stochastic consumption-savings model end to end:
// a household with CRRA utility chooses consumption each period, savings
// earn a gross return, and labor income follows a discretized AR(1)
// process. Results can be persisted to SQLite and rendered as charts.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/macroforge/bellman/internal/bellman"
	"github.com/macroforge/bellman/internal/grid"
	"github.com/macroforge/bellman/internal/markov"
	"github.com/macroforge/bellman/internal/report"
	storage "github.com/macroforge/bellman/internal/storage/sqlite"
)

// Config holds the model and solver configuration for one run.
type Config struct {
	Beta          float64 `json:"beta"`
	RiskAversion  float64 `json:"risk_aversion"`
	GrossReturn   float64 `json:"gross_return"`
	IncomeMean    float64 `json:"income_mean"`
	IncomeRho     float64 `json:"income_rho"`
	IncomeSigma   float64 `json:"income_sigma"`
	IncomeStates  int     `json:"income_states"`
	WealthMax     float64 `json:"wealth_max"`
	Nodes         int     `json:"nodes"`
	MaxIter       int     `json:"maxiter"`
	Tol           float64 `json:"tol"`
	Parallel      bool    `json:"parallel"`
	Workers       int     `json:"workers"`
	Algorithm     string  `json:"algorithm"`
	Verbose       bool    `json:"verbose"`
	DBPath        string  `json:"db_path,omitempty"`
	ResumeRunID   string  `json:"resume_run_id,omitempty"`
	ChartDir      string  `json:"chart_dir,omitempty"`
	Deterministic bool    `json:"deterministic"`
}

func parseFlags() Config {
	var cfg Config
	flag.Float64Var(&cfg.Beta, "beta", 0.95, "discount factor")
	flag.Float64Var(&cfg.RiskAversion, "gamma", 1.0, "CRRA risk aversion (1 = log utility)")
	flag.Float64Var(&cfg.GrossReturn, "rate", 1.03, "gross return on savings")
	flag.Float64Var(&cfg.IncomeMean, "income", 1.0, "mean labor income")
	flag.Float64Var(&cfg.IncomeRho, "rho", 0.9, "income AR(1) persistence")
	flag.Float64Var(&cfg.IncomeSigma, "sigma", 0.1, "income AR(1) innovation std dev")
	flag.IntVar(&cfg.IncomeStates, "income-states", 5, "discretized income states")
	flag.Float64Var(&cfg.WealthMax, "wealth-max", 20, "upper bound of the wealth grid")
	flag.IntVar(&cfg.Nodes, "nodes", 80, "wealth grid nodes")
	flag.IntVar(&cfg.MaxIter, "maxiter", 500, "sweep cap")
	flag.Float64Var(&cfg.Tol, "tol", 1e-6, "convergence tolerance")
	flag.BoolVar(&cfg.Parallel, "parallel", true, "parallel sweeps")
	flag.IntVar(&cfg.Workers, "workers", 0, "worker count (0 = GOMAXPROCS)")
	flag.StringVar(&cfg.Algorithm, "algorithm", "golden_section", "continuous solver algorithm")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "per-sweep progress logging")
	flag.StringVar(&cfg.DBPath, "db", "", "SQLite path for run persistence (empty = off)")
	flag.StringVar(&cfg.ResumeRunID, "resume", "", "run id whose checkpoint seeds the value guess")
	flag.StringVar(&cfg.ChartDir, "charts", "", "directory for PNG charts (empty = off)")
	flag.BoolVar(&cfg.Deterministic, "deterministic", false, "disable the income shock")
	flag.Parse()
	return cfg
}

// errExhausted marks a clean run that hit the sweep cap before reaching
// tolerance. main maps it to a distinct exit code after run's deferred
// cleanup has executed.
var errExhausted = errors.New("iteration cap reached before convergence")

func main() {
	cfg := parseFlags()
	switch err := run(cfg); {
	case errors.Is(err, errExhausted):
		log.Printf("growth: %v", err)
		os.Exit(2)
	case err != nil:
		log.Fatalf("growth: %v", err)
	}
}

func run(cfg Config) error {
	prob, err := buildProblem(cfg)
	if err != nil {
		return err
	}
	store := bellman.NewStore(prob)

	var runStore *storage.RunStore
	if cfg.DBPath != "" {
		db, err := storage.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		runStore = storage.NewRunStore(db)
	}

	opts := bellman.Options{
		MaxIter:  cfg.MaxIter,
		Tol:      cfg.Tol,
		Parallel: cfg.Parallel,
		Workers:  cfg.Workers,
		Verbose:  cfg.Verbose,
		Solver:   bellman.SolveOptions{Algorithm: bellman.Algorithm(cfg.Algorithm)},
	}
	if cfg.ResumeRunID != "" {
		if runStore == nil {
			return fmt.Errorf("-resume needs -db")
		}
		sweep, err := runStore.LoadCheckpoint(cfg.ResumeRunID, store)
		if err != nil {
			return fmt.Errorf("resuming run %s: %w", cfg.ResumeRunID, err)
		}
		opts.UseCurrentGuess = true
		log.Printf("resumed value guess from run %s (sweep %d)", cfg.ResumeRunID, sweep)
	}

	res, err := bellman.Run(prob, store, opts)
	if err != nil {
		return err
	}
	finalErr := math.NaN()
	if len(res.Errors) > 0 {
		finalErr = res.Errors[len(res.Errors)-1]
	}
	log.Printf("%s after %d sweeps (error %.3e)", res.State, res.Sweeps, finalErr)
	printPolicySummary(prob, store)

	if runStore != nil {
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		rec := storage.NewRunFromResult(res, cfgJSON)
		if err := runStore.Insert(rec); err != nil {
			return fmt.Errorf("persisting run: %w", err)
		}
		if err := runStore.SaveCheckpoint(rec.RunID, store, res.Sweeps); err != nil {
			return fmt.Errorf("persisting checkpoint: %w", err)
		}
		log.Printf("saved run %s to %s", rec.RunID, cfg.DBPath)
	}
	if cfg.ChartDir != "" {
		conv, err := report.SaveConvergence(res, cfg.ChartDir)
		if err != nil {
			return err
		}
		log.Printf("wrote %s", conv)
		pol, err := report.SavePolicy(store, cfg.ChartDir)
		if err != nil {
			return err
		}
		log.Printf("wrote %s", pol)
	}
	if res.State == bellman.StateExhausted {
		return errExhausted
	}
	return nil
}

func buildProblem(cfg Config) (*bellman.Problem, error) {
	if cfg.Nodes < 2 {
		return nil, fmt.Errorf("need at least 2 grid nodes")
	}
	wealthFloor := cfg.IncomeMean / 2
	m, err := grid.Linspace(wealthFloor, cfg.WealthMax, cfg.Nodes)
	if err != nil {
		return nil, err
	}
	g, err := grid.NewTensor(m)
	if err != nil {
		return nil, err
	}

	var chain *markov.Chain
	if cfg.Deterministic || cfg.IncomeStates <= 1 {
		chain, err = markov.Deterministic([]float64{cfg.IncomeMean})
	} else {
		chain, err = markov.Rouwenhorst(cfg.IncomeStates, cfg.IncomeMean, cfg.IncomeRho, cfg.IncomeSigma)
	}
	if err != nil {
		return nil, err
	}

	consumption := bellman.Control{
		Name:       "consumption",
		Continuous: true,
		Lower:      func(x, z []float64) float64 { return 1e-6 },
		Upper:      func(x, z []float64) float64 { return x[0] },
	}
	gamma := cfg.RiskAversion
	utility := func(c float64) float64 {
		if gamma == 1 {
			return math.Log(c)
		}
		return (math.Pow(c, 1-gamma) - 1) / (1 - gamma)
	}
	model := bellman.Model{
		Payoff: func(x, z, c []float64) float64 { return utility(c[0]) },
		Transition: func(x, z, c []float64) []float64 {
			return []float64{cfg.GrossReturn*(x[0]-c[0]) + z[0]}
		},
		Statistics: func(x, z, c []float64) []float64 {
			return []float64{(x[0] - c[0]) / x[0]} // Saving rate
		},
		NumStats: 1,
	}
	return bellman.NewProblem(g, chain, []bellman.Control{consumption}, model, cfg.Beta)
}

// printPolicySummary logs consumption at a few wealth quantiles per
// exogenous state.
func printPolicySummary(prob *bellman.Problem, store *bellman.Store) {
	n := prob.Grid.Size()
	probes := []int{0, n / 4, n / 2, 3 * n / 4, n - 1}
	for iz := 0; iz < prob.Chain.NumStates(); iz++ {
		for _, flat := range probes {
			w := prob.Grid.CoordinateAtFlat(flat)[0]
			c := store.PolicyAt(iz, flat)[0]
			log.Printf("z[%d]=%.3f  w=%7.3f  c=%7.3f  save=%5.1f%%",
				iz, prob.Chain.State(iz)[0], w, c, 100*(w-c)/w)
		}
	}
}
