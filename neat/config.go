package neat

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/ini.v1"
)

// Config stores the configuration parameters for the NEAT algorithm.
type Config struct {
	Neat         NeatConfig
	Genome       GenomeConfig
	Reproduction ReproductionConfig
	SpeciesSet   SpeciesSetConfig
	Stagnation   StagnationConfig
	Logging      LoggingConfig
	Persistence  PersistenceConfig
}

// NeatConfig holds parameters of the evolutionary run itself.
type NeatConfig struct {
	PopSize              int           `ini:"pop_size"`
	MaxGenerations       int           `ini:"max_generations"` // 0 means unlimited
	MaxEvaluations       int           `ini:"max_evaluations"` // 0 means unlimited
	FitnessThreshold     float64       `ini:"fitness_threshold"`
	NoFitnessTermination bool          `ini:"no_fitness_termination"`
	RepeatEvaluations    int           `ini:"repeat_evaluations"` // fitness is the mean of this many runs
	EvaluationTime       time.Duration `ini:"evaluation_time"`    // handed to the evaluator as is
	Workers              int           `ini:"workers"`            // parallel evaluations per generation
	Seed                 int64         `ini:"seed"`               // 0 picks a time based seed
}

// GenomeConfig holds parameters specific to the structure and mutation of genomes.
type GenomeConfig struct {
	// --- Topology ---
	NumInputs         int    `ini:"num_inputs"`
	NumOutputs        int    `ini:"num_outputs"`
	NumHidden         int    `ini:"num_hidden"`
	NumTraits         int    `ini:"num_traits"`
	InitialConnection string `ini:"initial_connection"` // full | single | none
	AllowRecurrent    bool   `ini:"allow_recurrent"`

	// --- Link weights ---
	WeightInitStdev   float64 `ini:"weight_init_stdev"`
	WeightMutateProb  float64 `ini:"weight_mutate_prob"`
	WeightMutatePower float64 `ini:"weight_mutate_power"` // sigma of the gaussian perturbation
	WeightReplaceProb float64 `ini:"weight_replace_prob"` // "cold" mutation: fresh gaussian draw
	WeightMinValue    float64 `ini:"weight_min_value"`
	WeightMaxValue    float64 `ini:"weight_max_value"`

	// --- Traits ---
	TraitMutateProb  float64 `ini:"trait_mutate_prob"`
	TraitMutatePower float64 `ini:"trait_mutate_power"`
	LinkTraitProb    float64 `ini:"link_trait_prob"`
	NodeTraitProb    float64 `ini:"node_trait_prob"`

	// --- Structure ---
	AddLinkAttempts      int     `ini:"add_link_attempts"`
	DeleteSplitLink      bool    `ini:"delete_split_link"`
	DisableInheritedProb float64 `ini:"disable_inherited_prob"`
	MateAverageProb      float64 `ini:"mate_average_prob"`
	ToggleEnableProb     float64 `ini:"toggle_enable_prob"`
	ReenableProb         float64 `ini:"reenable_prob"`
}

// ReproductionConfig holds parameters related to reproduction.
type ReproductionConfig struct {
	SurvivalThreshold          float64 `ini:"survival_threshold"`
	TournamentSize             int     `ini:"tournament_size"`
	InterspeciesMateProb       float64 `ini:"interspecies_mate_prob"`
	Asexual                    bool    `ini:"asexual"`
	StructuralAugmentationProb float64 `ini:"structural_augmentation_prob"`
	StructuralRemovalProb      float64 `ini:"structural_removal_prob"`
	ChampionCloneMinSize       int     `ini:"champion_clone_min_size"`
	InitialStructuralMutations int     `ini:"initial_structural_mutations"`
}

// SpeciesSetConfig holds parameters related to speciation.
type SpeciesSetConfig struct {
	CompatibilityThreshold float64 `ini:"compatibility_threshold"`
	ExcessCoefficient      float64 `ini:"excess_coefficient"`
	DisjointCoefficient    float64 `ini:"disjoint_coefficient"`
	WeightCoefficient      float64 `ini:"weight_coefficient"`
	NormalizeThreshold     int     `ini:"normalize_threshold"` // genomes smaller than this use N = 1
}

// StagnationConfig holds parameters related to species and population stagnation.
type StagnationConfig struct {
	DropoffAge         int     `ini:"dropoff_age"`
	AgeSignificance    float64 `ini:"age_significance"`
	YoungAge           int     `ini:"young_age"`
	ObliterateInterval int     `ini:"obliterate_interval"`
	ObliterateAge      int     `ini:"obliterate_age"`
}

// LoggingConfig selects the zap level used by NewLogger.
type LoggingConfig struct {
	Level string `ini:"level"`
}

// PersistenceConfig controls where evaluation records, best-of-run records and
// innovation ledgers are written.
type PersistenceConfig struct {
	Store           string `ini:"store"` // none | memory | file | sqlite
	Dir             string `ini:"dir"`
	SQLitePath      string `ini:"sqlite_path"`
	RobotName       string `ini:"robot_name"`
	InnovationsPath string `ini:"innovations_path"`
	BestCount       int    `ini:"best_count"`
}

// DefaultConfig returns a configuration populated with the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Neat: NeatConfig{
			PopSize:           50,
			MaxGenerations:    100,
			FitnessThreshold:  math.Inf(1),
			RepeatEvaluations: 1,
			EvaluationTime:    30 * time.Second,
			Workers:           1,
		},
		Genome: GenomeConfig{
			NumInputs:            2,
			NumOutputs:           1,
			NumTraits:            3,
			InitialConnection:    "full",
			AllowRecurrent:       true,
			WeightInitStdev:      1.0,
			WeightMutateProb:     0.8,
			WeightMutatePower:    2.5,
			WeightReplaceProb:    0.1,
			WeightMinValue:       -8.0,
			WeightMaxValue:       8.0,
			TraitMutateProb:      0.8,
			TraitMutatePower:     0.25,
			LinkTraitProb:        0.1,
			NodeTraitProb:        0.1,
			AddLinkAttempts:      20,
			DisableInheritedProb: 0.75,
			MateAverageProb:      0.4,
			ToggleEnableProb:     0.01,
			ReenableProb:         0.01,
		},
		Reproduction: ReproductionConfig{
			SurvivalThreshold:          0.2,
			TournamentSize:             4,
			InterspeciesMateProb:       0.001,
			StructuralAugmentationProb: 0.2,
			StructuralRemovalProb:      0.0,
			ChampionCloneMinSize:       5,
			InitialStructuralMutations: 0,
		},
		SpeciesSet: SpeciesSetConfig{
			CompatibilityThreshold: 3.0,
			ExcessCoefficient:      1.0,
			DisjointCoefficient:    1.0,
			WeightCoefficient:      0.4,
			NormalizeThreshold:     20,
		},
		Stagnation: StagnationConfig{
			DropoffAge:         15,
			AgeSignificance:    1.0,
			YoungAge:           10,
			ObliterateInterval: 30,
			ObliterateAge:      20,
		},
		Logging: LoggingConfig{Level: "info"},
		Persistence: PersistenceConfig{
			Store:     "none",
			Dir:       ".",
			RobotName: "robot",
			BestCount: 10,
		},
	}
}

// LoadConfig loads configuration parameters from an INI file.
// Keys that are absent keep their DefaultConfig value.
func LoadConfig(filePath string) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}
	return mapConfig(cfg)
}

// LoadConfigBytes parses an INI document held in memory.
func LoadConfigBytes(data []byte) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return mapConfig(cfg)
}

func mapConfig(cfg *ini.File) (*Config, error) {
	config := DefaultConfig()

	// Map sections to structs
	sections := []struct {
		name   string
		target interface{}
	}{
		{"NEAT", &config.Neat},
		{"DefaultGenome", &config.Genome},
		{"DefaultReproduction", &config.Reproduction},
		{"DefaultSpeciesSet", &config.SpeciesSet},
		{"DefaultStagnation", &config.Stagnation},
		{"Logging", &config.Logging},
		{"Persistence", &config.Persistence},
	}
	for _, s := range sections {
		if !cfg.HasSection(s.name) {
			continue
		}
		if err := cfg.Section(s.name).MapTo(s.target); err != nil {
			return nil, fmt.Errorf("failed to map [%s] section: %w", s.name, err)
		}
	}

	// --- Explicitly clean potentially problematic string values ---
	config.Genome.InitialConnection = cleanIniString(config.Genome.InitialConnection)
	config.Logging.Level = cleanIniString(config.Logging.Level)
	config.Persistence.Store = strings.ToLower(cleanIniString(config.Persistence.Store))
	config.Persistence.Dir = cleanIniString(config.Persistence.Dir)
	config.Persistence.SQLitePath = cleanIniString(config.Persistence.SQLitePath)
	config.Persistence.RobotName = cleanIniString(config.Persistence.RobotName)
	config.Persistence.InnovationsPath = cleanIniString(config.Persistence.InnovationsPath)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks value ranges and clamps the few parameters the engine
// silently corrects (population and tournament sizes).
func (c *Config) Validate() error {
	if c.Neat.PopSize < 2 {
		c.Neat.PopSize = 2
	}
	if c.Neat.RepeatEvaluations < 1 {
		return fmt.Errorf("config error: repeat_evaluations must be positive")
	}
	if c.Neat.Workers < 1 {
		return fmt.Errorf("config error: workers must be positive")
	}
	if c.Neat.MaxGenerations < 0 || c.Neat.MaxEvaluations < 0 {
		return fmt.Errorf("config error: max_generations and max_evaluations cannot be negative")
	}

	g := &c.Genome
	if g.NumInputs <= 0 {
		return fmt.Errorf("config error: num_inputs must be positive")
	}
	if g.NumOutputs <= 0 {
		return fmt.Errorf("config error: num_outputs must be positive")
	}
	if g.NumHidden < 0 {
		return fmt.Errorf("config error: num_hidden cannot be negative")
	}
	if g.NumTraits < 0 {
		return fmt.Errorf("config error: num_traits cannot be negative")
	}
	validConnections := map[string]bool{"full": true, "single": true, "none": true}
	if !validConnections[strings.ToLower(g.InitialConnection)] {
		return fmt.Errorf("config error: invalid initial_connection type '%s'", g.InitialConnection)
	}
	if g.WeightMaxValue < g.WeightMinValue {
		return fmt.Errorf("config error: weight_max_value cannot be less than weight_min_value")
	}
	if g.WeightInitStdev < 0 || g.WeightMutatePower < 0 || g.TraitMutatePower < 0 {
		return fmt.Errorf("config error: weight and trait powers cannot be negative")
	}
	if g.AddLinkAttempts <= 0 {
		return fmt.Errorf("config error: add_link_attempts must be positive")
	}

	probabilities := map[string]float64{
		"weight_mutate_prob":           g.WeightMutateProb,
		"weight_replace_prob":          g.WeightReplaceProb,
		"trait_mutate_prob":            g.TraitMutateProb,
		"disable_inherited_prob":       g.DisableInheritedProb,
		"mate_average_prob":            g.MateAverageProb,
		"link_trait_prob":              g.LinkTraitProb,
		"node_trait_prob":              g.NodeTraitProb,
		"toggle_enable_prob":           g.ToggleEnableProb,
		"reenable_prob":                g.ReenableProb,
		"survival_threshold":           c.Reproduction.SurvivalThreshold,
		"interspecies_mate_prob":       c.Reproduction.InterspeciesMateProb,
		"structural_augmentation_prob": c.Reproduction.StructuralAugmentationProb,
		"structural_removal_prob":      c.Reproduction.StructuralRemovalProb,
	}
	for name, p := range probabilities {
		if p < 0 || p > 1 {
			return fmt.Errorf("config error: %s must be between 0 and 1", name)
		}
	}

	if c.Reproduction.TournamentSize > c.Neat.PopSize {
		c.Reproduction.TournamentSize = c.Neat.PopSize
	}
	if c.Reproduction.TournamentSize < 2 {
		c.Reproduction.TournamentSize = 2
	}
	if c.Reproduction.InitialStructuralMutations < 0 {
		return fmt.Errorf("config error: initial_structural_mutations cannot be negative")
	}

	s := c.SpeciesSet
	if s.CompatibilityThreshold < 0 {
		return fmt.Errorf("config error: compatibility_threshold cannot be negative")
	}
	if s.ExcessCoefficient < 0 || s.DisjointCoefficient < 0 || s.WeightCoefficient < 0 {
		return fmt.Errorf("config error: compatibility coefficients cannot be negative")
	}

	if c.Stagnation.DropoffAge <= 0 {
		return fmt.Errorf("config error: dropoff_age must be positive")
	}
	if c.Stagnation.AgeSignificance < 0 {
		return fmt.Errorf("config error: age_significance cannot be negative")
	}

	if c.Logging.Level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			return fmt.Errorf("config error: invalid logging level '%s'", c.Logging.Level)
		}
	}

	validStores := map[string]bool{"": true, "none": true, "memory": true, "file": true, "sqlite": true}
	if !validStores[strings.ToLower(c.Persistence.Store)] {
		return fmt.Errorf("config error: invalid persistence store '%s'", c.Persistence.Store)
	}
	if c.Persistence.BestCount < 0 {
		return fmt.Errorf("config error: best_count cannot be negative")
	}
	return nil
}

// cleanIniString removes inline comments and trims whitespace from a string read from INI.
func cleanIniString(s string) string {
	// Remove comments starting with # or ;
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
