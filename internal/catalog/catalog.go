// Package catalog provides the read-only reference data used by the dialogue:
// the symptom questionnaire, the service plans, greeting phrases and exam markers.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/vitabot/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// minPhraseRunes keeps greeting phrases long enough that substring matching
// does not fire inside ordinary words.
const minPhraseRunes = 4

// Plan describes one service level offered after the analysis.
type Plan struct {
	Tag          domain.PlanTag `yaml:"tag"`
	Title        string         `yaml:"title"`
	Description  string         `yaml:"description"`
	PriceUnits   int            `yaml:"price_units"`
	Prescription string         `yaml:"prescription"`
}

// Greeting maps a set of phrases to a canned reply.
type Greeting struct {
	Phrases []string `yaml:"phrases"`
	Reply   string   `yaml:"reply"`
}

// ExamMarker is a term looked for in exam results and the advice attached to it.
type ExamMarker struct {
	Phrase string `yaml:"phrase"`
	Advice string `yaml:"advice"`
}

// Catalog holds all reference data. It is never mutated after loading.
type Catalog struct {
	Currency    string           `yaml:"currency"`
	Symptoms    []domain.Symptom `yaml:"symptoms"`
	Plans       []Plan           `yaml:"plans"`
	Greetings   []Greeting       `yaml:"greetings"`
	ExamMarkers []ExamMarker     `yaml:"exam_markers"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or returns the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}

// Validate checks the catalog is usable by the dialogue engine.
func (c *Catalog) Validate() error {
	if len(c.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter ISO code, got %q", c.Currency)
	}
	if len(c.Symptoms) == 0 {
		return fmt.Errorf("at least one symptom is required")
	}
	seen := make(map[string]bool, len(c.Symptoms))
	for i, s := range c.Symptoms {
		if s.ID == "" || strings.TrimSpace(s.Prompt) == "" {
			return fmt.Errorf("symptom %d: id and prompt are required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate symptom id %q", s.ID)
		}
		seen[s.ID] = true
	}
	for _, tag := range []domain.PlanTag{domain.PlanFree, domain.PlanTier2, domain.PlanTier3} {
		p, ok := c.Plan(tag)
		if !ok {
			return fmt.Errorf("plan %q is missing", tag)
		}
		if tag.Paid() && p.PriceUnits <= 0 {
			return fmt.Errorf("plan %q must have a positive price", tag)
		}
		if !tag.Paid() && p.PriceUnits != 0 {
			return fmt.Errorf("plan %q must be free", tag)
		}
		if p.Title == "" {
			return fmt.Errorf("plan %q needs a title", tag)
		}
	}
	for _, p := range c.Plans {
		if !p.Tag.Valid() {
			return fmt.Errorf("unknown plan tag %q", p.Tag)
		}
	}
	for i, g := range c.Greetings {
		if strings.TrimSpace(g.Reply) == "" {
			return fmt.Errorf("greeting %d needs a reply", i)
		}
		for _, phrase := range g.Phrases {
			if utf8.RuneCountInString(strings.TrimSpace(phrase)) < minPhraseRunes {
				return fmt.Errorf("greeting phrase %q is shorter than %d characters", phrase, minPhraseRunes)
			}
		}
	}
	return nil
}

// Plan looks up a plan by tag.
func (c *Catalog) Plan(tag domain.PlanTag) (Plan, bool) {
	for _, p := range c.Plans {
		if p.Tag == tag {
			return p, true
		}
	}
	return Plan{}, false
}

// Len returns the number of symptom questions.
func (c *Catalog) Len() int {
	return len(c.Symptoms)
}
