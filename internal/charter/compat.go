package charter

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ErrIncompatibleEngine is returned when the running engine version
// does not satisfy the charter's engineCompatibility constraint.
var ErrIncompatibleEngine = errors.New("engine version incompatible with charter")

func parseConstraint(s string) (*semver.Constraints, error) {
	c, err := semver.NewConstraint(s)
	if err != nil {
		return nil, fmt.Errorf("parsing constraint %q: %w", s, err)
	}
	return c, nil
}

// CheckEngine reports whether engineVersion (a bare semver) satisfies
// the charter's constraint. An empty constraint accepts any version.
func (c *Config) CheckEngine(engineVersion string) error {
	if c.EngineCompatibility == "" {
		return nil
	}
	constraint, err := parseConstraint(c.EngineCompatibility)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("parsing engine version %q: %w", engineVersion, err)
	}
	if ok, errs := constraint.Validate(v); !ok {
		if len(errs) > 0 {
			return fmt.Errorf("%w: %v", ErrIncompatibleEngine, errs[0])
		}
		return fmt.Errorf("%w: %s does not satisfy %s", ErrIncompatibleEngine, v, c.EngineCompatibility)
	}
	return nil
}
