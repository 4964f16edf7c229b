package neat

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// PopulationSaveData is a helper struct to hold only the parts of Population needed for saving.
// The Config is not saved; it is supplied again on load. The random source is
// not saved either, so a resumed run does not replay the original draws.
type PopulationSaveData struct {
	Organisms          []*Organism // arena order
	Queue              []int
	Species            []*Species
	Ledger             LedgerState
	Generation         int
	NextGenomeID       int
	NextSpeciesID      int
	HighestFitness     float64
	HighestLastChanged int
}

// WriteCheckpoint gob-encodes the population state through gzip.
// It must not be called while NextGeneration is running.
func (p *Population) WriteCheckpoint(w io.Writer) error {
	gzWriter := gzip.NewWriter(w)

	// Genomes handed out but never scored go back into the queue so a resumed
	// run evaluates them.
	var queue []int
	for _, id := range p.order {
		if !p.organisms[id].Evaluated {
			queue = append(queue, id)
		}
	}
	saveData := PopulationSaveData{
		Organisms:          p.Organisms(),
		Queue:              queue,
		Species:            p.species,
		Ledger:             p.ledger.State(),
		Generation:         p.generation,
		NextGenomeID:       p.nextGenomeID,
		NextSpeciesID:      p.nextSpeciesID,
		HighestFitness:     p.HighestFitness,
		HighestLastChanged: p.HighestLastChanged,
	}
	if err := gob.NewEncoder(gzWriter).Encode(saveData); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode population data: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}
	return nil
}

// SaveCheckpoint saves the current state of the Population to a file.
// Uses gzip compression for smaller file size.
func (p *Population) SaveCheckpoint(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file '%s': %w", filePath, err)
	}
	if err := p.WriteCheckpoint(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint file '%s': %w", filePath, err)
	}
	p.logger.Info("checkpoint saved", zap.String("path", filePath), zap.Int("generation", p.generation))
	return nil
}

// ReadCheckpoint restores a population written by WriteCheckpoint. Options
// behave as for NewPopulation, except that seed genomes and ledgers are ignored.
func ReadCheckpoint(r io.Reader, config *Config, opts ...Option) (*Population, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for checkpoint: %w", err)
	}
	defer gzReader.Close()

	var saveData PopulationSaveData
	if err := gob.NewDecoder(gzReader).Decode(&saveData); err != nil {
		return nil, fmt.Errorf("failed to decode population data from checkpoint: %w", err)
	}

	p, err := newPopulationShell(config, opts...)
	if err != nil {
		return nil, err
	}
	if err := p.ledger.Restore(saveData.Ledger); err != nil {
		return nil, fmt.Errorf("checkpoint ledger: %w", err)
	}
	for _, o := range saveData.Organisms {
		if o == nil || o.Genome == nil {
			return nil, fmt.Errorf("checkpoint contains an empty organism")
		}
		if err := o.Genome.IsValid(); err != nil {
			return nil, fmt.Errorf("checkpoint genome: %w", err)
		}
		p.organisms[o.Genome.ID] = o
		p.order = append(p.order, o.Genome.ID)
	}
	for _, sp := range saveData.Species {
		for _, id := range sp.Members {
			if _, ok := p.organisms[id]; !ok {
				return nil, fmt.Errorf("species %d references unknown genome %d", sp.ID, id)
			}
		}
	}
	p.queue = saveData.Queue
	p.species = saveData.Species
	p.generation = saveData.Generation
	p.nextGenomeID = saveData.NextGenomeID
	p.nextSpeciesID = saveData.NextSpeciesID
	p.HighestFitness = saveData.HighestFitness
	p.HighestLastChanged = saveData.HighestLastChanged
	return p, nil
}

// LoadCheckpoint loads a Population state from a checkpoint file.
func LoadCheckpoint(checkpointPath string, config *Config, opts ...Option) (*Population, error) {
	file, err := os.Open(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file '%s': %w", checkpointPath, err)
	}
	defer file.Close()

	p, err := ReadCheckpoint(file, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("checkpoint '%s': %w", checkpointPath, err)
	}
	p.logger.Info("checkpoint loaded", zap.String("path", checkpointPath), zap.Int("generation", p.generation))
	return p, nil
}
