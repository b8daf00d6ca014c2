// Package catalog loads ability and unit definitions from YAML, validates
// them against an embedded JSON schema, and builds tools and units.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/action/tools"
	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/occupancy"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

//go:embed schema.json
var schemaSource string

var schema = jsonschema.MustCompileString("catalog.schema.json", schemaSource)

// ErrUnknownAbility is returned when a unit or derived link names an
// ability that is not defined.
var ErrUnknownAbility = errors.New("catalog: unknown ability")

// AbilitySpec is one ability definition.
type AbilitySpec struct {
	ID                string   `yaml:"id"`
	Type              string   `yaml:"type"`
	Kind              string   `yaml:"kind"`
	Seconds           int      `yaml:"seconds"`
	Energy            int      `yaml:"energy"`
	SecondsPerStep    int      `yaml:"seconds_per_step"`
	EnergyPerStep     int      `yaml:"energy_per_step"`
	MaxSteps          int      `yaml:"max_steps"`
	SpeedLimited      bool     `yaml:"speed_limited"`
	Reserve           string   `yaml:"reserve"`
	Damage            int      `yaml:"damage"`
	Amount            int      `yaml:"amount"`
	Reach             int      `yaml:"reach"`
	Hostile           bool     `yaml:"hostile"`
	EscalationPercent *int     `yaml:"escalation_percent"`
	Cooldown          int      `yaml:"cooldown"`
	Duration          int      `yaml:"duration"`
	Tags              []string `yaml:"tags"`
	After             []string `yaml:"after"`
	Derived           string   `yaml:"derived"`
	Cue               string   `yaml:"cue"`
}

// UnitSpec is one unit definition.
type UnitSpec struct {
	ID        string     `yaml:"id"`
	Faction   string     `yaml:"faction"`
	Stats     unit.Stats `yaml:"stats"`
	Footprint [][2]int   `yaml:"footprint"`
	Position  *[2]int    `yaml:"position"`
	Facing    int        `yaml:"facing"`
	Abilities []string   `yaml:"abilities"`
}

// Catalog is a validated set of definitions.
type Catalog struct {
	Abilities []AbilitySpec `yaml:"abilities"`
	Units     []UnitSpec    `yaml:"units"`

	// DefaultEscalationPercent applies to attacks that leave
	// escalation_percent unset.
	DefaultEscalationPercent int `yaml:"-"`

	byID map[string]*AbilitySpec
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse validates data against the schema and decodes it.
func Parse(data []byte) (*Catalog, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	// The validator expects JSON-decoded values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var inst any
	if err := dec.Decode(&inst); err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.byID = make(map[string]*AbilitySpec, len(c.Abilities))
	for i := range c.Abilities {
		a := &c.Abilities[i]
		if _, dup := c.byID[a.ID]; dup {
			return fmt.Errorf("duplicate ability %q", a.ID)
		}
		if a.Kind != "" {
			if _, err := rules.ParseActionKind(a.Kind); err != nil {
				return fmt.Errorf("ability %q: %w", a.ID, err)
			}
		}
		c.byID[a.ID] = a
	}
	for _, a := range c.Abilities {
		if a.Derived != "" {
			if _, ok := c.byID[a.Derived]; !ok {
				return fmt.Errorf("ability %q derived %q: %w", a.ID, a.Derived, ErrUnknownAbility)
			}
		}
	}
	seen := make(map[string]bool, len(c.Units))
	for _, u := range c.Units {
		if seen[u.ID] {
			return fmt.Errorf("duplicate unit %q", u.ID)
		}
		seen[u.ID] = true
		for _, id := range u.Abilities {
			if _, ok := c.byID[id]; !ok {
				return fmt.Errorf("unit %q ability %q: %w", u.ID, id, ErrUnknownAbility)
			}
		}
	}
	return nil
}

// Ability returns the definition with the given id.
func (c *Catalog) Ability(id string) (AbilitySpec, bool) {
	a, ok := c.byID[id]
	if !ok {
		return AbilitySpec{}, false
	}
	return *a, true
}

// NewTool builds a fresh tool for the ability. Tools carry per-unit
// usage, so every unit gets its own instances.
func (c *Catalog) NewTool(id string) (action.Tool, error) {
	return c.newTool(id, 0)
}

func (c *Catalog) newTool(id string, depth int) (action.Tool, error) {
	spec, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAbility, id)
	}
	if depth > 1 {
		return nil, fmt.Errorf("ability %q: derived links nest deeper than one layer", id)
	}
	switch spec.Type {
	case "move":
		m := tools.NewMove(spec.ID, spec.SecondsPerStep, spec.EnergyPerStep)
		m.MaxSteps = spec.MaxSteps
		m.SpeedLimited = spec.SpeedLimited
		if spec.Reserve != "" {
			m.Mode = reserveMode(spec.Reserve)
		}
		if spec.Cue != "" {
			m.Cue = spec.Cue
		}
		return m, nil
	case "attack":
		a := tools.NewAttack(spec.ID, spec.Seconds, spec.Energy, spec.Damage)
		if spec.Reach > 0 {
			a.Reach = spec.Reach
		}
		a.EscalationPercent = c.DefaultEscalationPercent
		if spec.EscalationPercent != nil {
			a.EscalationPercent = *spec.EscalationPercent
		}
		a.Cooldown = spec.Cooldown
		a.Tags = spec.Tags
		a.After = spec.After
		if spec.Cue != "" {
			a.Cue = spec.Cue
		}
		if spec.Derived != "" {
			derived, err := c.newTool(spec.Derived, depth+1)
			if err != nil {
				return nil, err
			}
			a.Derived = derived
		}
		return a, nil
	default:
		kind := rules.KindStandard
		if spec.Kind != "" {
			kind, _ = rules.ParseActionKind(spec.Kind)
		}
		return &tools.Ability{
			AbilityID:  spec.ID,
			ActionKind: kind,
			Seconds:    spec.Seconds,
			Energy:     spec.Energy,
			Cooldown:   spec.Cooldown,
			Amount:     spec.Amount,
			Reach:      spec.Reach,
			Hostile:    spec.Hostile,
			Duration:   spec.Duration,
			Tags:       spec.Tags,
			After:      spec.After,
			Cue:        spec.Cue,
		}, nil
	}
}

func reserveMode(name string) occupancy.ReserveMode {
	switch strings.ToLower(name) {
	case "soft_path":
		return occupancy.ReserveSoftPath
	case "path_hard":
		return occupancy.ReservePathHard
	default:
		return occupancy.ReserveEndOnlyHard
	}
}

// Spawn is a unit built from the catalog with its requested position.
type Spawn struct {
	Unit     *unit.Unit
	Position *hex.Cell
	Facing   hex.Facing
}

// Build creates every unit, assigns its tools to loadout and returns the
// units in definition order. Units without turn_seconds use
// defaultTurnSeconds.
func (c *Catalog) Build(loadout *tools.Loadout, defaultTurnSeconds int, logger *zap.Logger) ([]Spawn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]Spawn, 0, len(c.Units))
	for _, spec := range c.Units {
		stats := spec.Stats
		if stats.TurnSeconds == 0 {
			stats.TurnSeconds = defaultTurnSeconds
		}
		var fp hex.Footprint
		for _, off := range spec.Footprint {
			fp = append(fp, hex.C(off[0], off[1]))
		}
		u := unit.New(spec.ID, unit.Faction(spec.Faction), fp, stats)
		for _, id := range spec.Abilities {
			t, err := c.NewTool(id)
			if err != nil {
				return nil, fmt.Errorf("unit %q: %w", spec.ID, err)
			}
			loadout.Assign(u.ID, t)
		}
		s := Spawn{Unit: u, Facing: hex.Facing(spec.Facing)}
		if spec.Position != nil {
			at := hex.C(spec.Position[0], spec.Position[1])
			s.Position = &at
		}
		out = append(out, s)
		logger.Debug("catalog unit built",
			zap.String("actor_id", u.ID),
			zap.String("faction", spec.Faction),
			zap.Strings("abilities", spec.Abilities))
	}
	return out, nil
}
