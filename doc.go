// Package neat is the root of a NeuroEvolution of Augmenting Topologies
// (NEAT) engine for evolving control policies.
//
// A population of genomes carries historical markings (innovation numbers)
// so that structurally different networks can be aligned for crossover and
// compared for speciation. Each generation is scored by an external
// evaluator, shares fitness within its species and is replaced by offspring
// produced through tournament selection, crossover and mutation.
//
// The packages are:
//
//	neat          genomes, innovation ledger, mutation, crossover, speciation
//	              and the population's generation cycle
//	neat/nn       the phenotype: a double-buffered sigmoid network that also
//	              evaluates recurrent genomes
//	neat/persist  YAML policy records and the file and SQLite stores
//	neat/learner  the evaluation loop with parallel evaluators, limits and
//	              prometheus metrics
//
// Basic usage:
//
//	config, err := neat.LoadConfig("path/to/config.ini")
//	if err != nil {
//		log.Fatalf("Error loading config: %v", err)
//	}
//
//	l, err := learner.New(config)
//	if err != nil {
//		log.Fatalf("Error creating learner: %v", err)
//	}
//	defer l.Close()
//
//	res, err := l.Run(ctx, learner.EvaluatorFunc(
//		func(ctx context.Context, net *nn.Network, d time.Duration) (float64, error) {
//			out := net.Run([]float64{0, 1}, 5)
//			return 1 - math.Abs(1-out[0]), nil
//		}))
//	if err != nil {
//		log.Fatalf("Error running: %v", err)
//	}
//	fmt.Println("Best fitness:", res.BestFitness)
//
// Driving a Population directly is also possible: take genomes with
// PopPending, score them with ReportFitness and call NextGeneration once
// every genome has a fitness. examples/xor is a complete program.
package neat
