package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const policyFile = ".classync/unenroll_policy.yaml"

// DefaultInactiveDays is the inactivity threshold when the policy file
// does not set one.
const DefaultInactiveDays = 30

// UnenrollPolicy drives the auto-unenroll pass. The zero value is the
// fail-closed default: disabled, and dry-run even when enabled.
type UnenrollPolicy struct {
	AutoUnenroll bool     `yaml:"auto_unenroll"`
	DryRun       bool     `yaml:"dry_run"`
	InactiveDays int      `yaml:"inactive_days"`
	Protected    []string `yaml:"protected"`
}

// IsProtected reports whether an email may never be auto-removed.
// Matching is case-insensitive.
func (p *UnenrollPolicy) IsProtected(email string) bool {
	for _, candidate := range p.Protected {
		if strings.EqualFold(candidate, email) {
			return true
		}
	}
	return false
}

// LoadPolicy reads the unenroll policy file. A missing file yields the
// fail-closed default: auto-unenroll disabled, dry-run on.
func LoadPolicy(baseDir string) (*UnenrollPolicy, error) {
	policyPath := filepath.Join(baseDir, policyFile)

	data, err := os.ReadFile(policyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &UnenrollPolicy{DryRun: true, InactiveDays: DefaultInactiveDays}, nil
		}
		return nil, err
	}

	// Dry-run defaults to true when the file omits it; an explicit
	// "dry_run: false" is the only way to go live.
	policy := UnenrollPolicy{DryRun: true}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse %s: %w", policyFile, err)
	}
	if policy.InactiveDays <= 0 {
		policy.InactiveDays = DefaultInactiveDays
	}

	return &policy, nil
}

// SavePolicy writes the policy file, used by init to lay down the default.
func SavePolicy(baseDir string, policy *UnenrollPolicy) error {
	policyPath := filepath.Join(baseDir, policyFile)

	if err := os.MkdirAll(filepath.Dir(policyPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(policy)
	if err != nil {
		return err
	}

	return os.WriteFile(policyPath, data, 0644)
}
