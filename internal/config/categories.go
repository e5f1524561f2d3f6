package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// CategoryInput is one entry of the category configuration. Payloads are
// decoded into this struct and validated at the boundary instead of being
// passed around as free-form maps.
type CategoryInput struct {
	ExternalID       string `json:"external_category_id" binding:"required"`
	Name             string `json:"name" binding:"required"`
	ParentExternalID string `json:"parent_external_id,omitempty"`
}

// Validate checks a single category entry.
func (c CategoryInput) Validate() error {
	if strings.TrimSpace(c.ExternalID) == "" {
		return fmt.Errorf("category entry missing external_category_id")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("category %s missing name", c.ExternalID)
	}
	return nil
}

// ValidateCategories checks a whole list, including duplicate external ids.
func ValidateCategories(inputs []CategoryInput) error {
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return err
		}
		if _, dup := seen[in.ExternalID]; dup {
			return fmt.Errorf("duplicate category external id %s", in.ExternalID)
		}
		seen[in.ExternalID] = struct{}{}
	}
	return nil
}

// LoadCategoryFile reads the category configuration JSON file.
func LoadCategoryFile(path string) ([]CategoryInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category config: %w", err)
	}

	var inputs []CategoryInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("failed to parse category config: %w", err)
	}
	if err := ValidateCategories(inputs); err != nil {
		return nil, err
	}
	return inputs, nil
}
