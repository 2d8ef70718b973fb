package lifecycle

import (
	"fmt"
	"os"

	"github.com/ternarybob/fabrica/internal/models"
	"gopkg.in/yaml.v3"
)

// Blueprints declare which deliverable jobs accompany a build per autonomy
// level. They ship with an embedded default and can be overridden by a YAML
// file named in the blueprints config section.
type Blueprints struct {
	Build DeliverablePlan `yaml:"build"`
}

// DeliverablePlan lists the deliverable job types enqueued alongside a
// build, keyed by project autonomy.
type DeliverablePlan struct {
	FullAuto   []models.JobType `yaml:"full_auto"`
	Supervised []models.JobType `yaml:"supervised"`
	Manual     []models.JobType `yaml:"manual"`
}

const defaultBlueprintYAML = `
build:
  full_auto:
    - review
    - one_pager
    - emails
  supervised:
    - review
    - one_pager
    - emails
  manual: []
`

// LoadBlueprints parses the blueprint file at path, falling back to the
// embedded defaults when path is empty or missing.
func LoadBlueprints(path string) (*Blueprints, error) {
	data := []byte(defaultBlueprintYAML)

	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read blueprint file: %w", err)
			}
		} else {
			data = fileData
		}
	}

	var bp Blueprints
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("failed to parse blueprints: %w", err)
	}

	if err := bp.validate(); err != nil {
		return nil, err
	}

	return &bp, nil
}

func (b *Blueprints) validate() error {
	for _, plan := range [][]models.JobType{b.Build.FullAuto, b.Build.Supervised, b.Build.Manual} {
		for _, jt := range plan {
			switch jt {
			case models.JobTypeReview, models.JobTypeDeploy, models.JobTypeOnePager, models.JobTypeEmails:
			default:
				return fmt.Errorf("%w: %q is not a deliverable job type", models.ErrValidationFailed, jt)
			}
		}
	}
	return nil
}

// DeliverablesFor returns the deliverable job types for an autonomy level
// and the initial status they should be enqueued with. Supervised projects
// gate deliverables behind a human release, so they start pending.
func (b *Blueprints) DeliverablesFor(autonomy models.AutonomyLevel) ([]models.JobType, models.JobStatus) {
	switch autonomy {
	case models.AutonomyFullAuto:
		return b.Build.FullAuto, models.JobStatusQueued
	case models.AutonomySupervised:
		return b.Build.Supervised, models.JobStatusPending
	default:
		return b.Build.Manual, models.JobStatusQueued
	}
}
