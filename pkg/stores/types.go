package stores

import (
	"errors"
	"time"

	"github.com/camia/aviation/pkg/config"
)

// ErrNotFound is returned when a scenario does not exist.
var ErrNotFound = errors.New("scenario not found")

// ScenarioRecord is a stored scenario.
type ScenarioRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Output      string    `json:"output"`
	Document    []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Scenario decodes the stored document. It goes through the same schema
// checks as a scenario file.
func (r *ScenarioRecord) Scenario() (*config.Scenario, error) {
	return config.NewScenarioLoader().Parse(r.Document, r.Name+".json")
}
