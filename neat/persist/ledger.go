package persist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/baldhumanity/policy-neat/neat"
)

// SaveLedger writes a snapshot of the innovation ledger as YAML.
func SaveLedger(path string, ledger *neat.InnovationLedger) error {
	data, err := yaml.Marshal(ledger.State())
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger '%s': %w", path, err)
	}
	return nil
}

// LoadLedger reads a ledger written by SaveLedger.
func LoadLedger(path string) (*neat.InnovationLedger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger '%s': %w", path, err)
	}
	var st neat.LedgerState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse ledger '%s': %w", path, err)
	}
	ledger := neat.NewInnovationLedger()
	if err := ledger.Restore(st); err != nil {
		return nil, fmt.Errorf("ledger '%s': %w", path, err)
	}
	return ledger, nil
}
