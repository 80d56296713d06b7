package scaffold

import (
	"fmt"
	"os"
)

// CheckExisting checks if a comb.yml already exists in the current directory.
// Returns an error if it does, nil otherwise.
func CheckExisting() error {
	if _, err := os.Stat("comb.yml"); err == nil {
		return fmt.Errorf("deployment already initialized\n\nFound existing: comb.yml\n\nUse 'comb init --force' to reinitialize (this will overwrite existing configuration)")
	}

	return nil
}
