package scaffold

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the Comb deployment structure in the current directory.
// If force is true, it will remove an existing comb.yml first.
func Initialize(force bool) error {
	if force {
		if err := handleForce(); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	if err := writeFiles(files); err != nil {
		return err
	}

	return validateCreatedFiles()
}

// handleForce removes existing files if --force was specified
func handleForce() error {
	if _, err := os.Stat("comb.yml"); err == nil {
		fmt.Println("⚠️  Removing existing comb.yml...")
		if err := os.Remove("comb.yml"); err != nil {
			return fmt.Errorf("failed to remove comb.yml: %w", err)
		}
	}

	return nil
}

// getTemplateFiles reads and processes all template files
func getTemplateFiles() ([]FileInfo, error) {
	combYml, err := templatesFS.ReadFile("templates/comb.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read comb.yml template: %w", err)
	}

	return []FileInfo{
		{
			Path:        "comb.yml",
			Content:     combYml,
			Permissions: 0644,
		},
	}, nil
}

// writeFiles writes all template files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles validates that created files are correct
func validateCreatedFiles() error {
	content, err := os.ReadFile("comb.yml")
	if err != nil {
		return fmt.Errorf("failed to read created comb.yml: %w", err)
	}

	var yamlData interface{}
	if err := yaml.Unmarshal(content, &yamlData); err != nil {
		return fmt.Errorf("created comb.yml is not valid YAML: %w", err)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized Comb deployment!")
	fmt.Println("\nCreated:")
	fmt.Println("  ✓ comb.yml")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Customize comb.yml with your own elements")
	fmt.Println("  2. Run 'comb elements' to browse the element catalog")
	fmt.Println("  3. Run 'comb up' to start the deployment sandbox")
}
