package retention

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// policyFile is the on-disk YAML form of a policy:
//
//	minimum_retain: 3
//	rules:
//	  - keep: daily
//	    count: 7
//	  - keep: last
//	    count: 5
type policyFile struct {
	MinimumRetain int              `yaml:"minimum_retain"`
	Rules         []policyFileRule `yaml:"rules"`
}

type policyFileRule struct {
	Keep  string `yaml:"keep"`
	Count int    `yaml:"count"`
}

// LoadFile reads a policy document from path. The returned policy is already
// validated.
func LoadFile(path string) (*Policy, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("retention: reading policy file: %w", err)
	}
	var pf policyFile
	if err := yaml.UnmarshalStrict(raw, &pf); err != nil {
		return nil, &PolicyError{Reason: fmt.Sprintf("policy file %s: %v", path, err)}
	}

	p := &Policy{MinimumRetain: pf.MinimumRetain}
	for _, r := range pf.Rules {
		rule, err := ruleFor(r.Keep, r.Count)
		if err != nil {
			return nil, err
		}
		p.Rules = append(p.Rules, rule)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func ruleFor(kind string, count int) (Rule, error) {
	switch kind {
	case "last":
		return MostRecent{N: count}, nil
	case "hourly":
		return PerHour{Hours: count}, nil
	case "daily":
		return PerDay{Days: count}, nil
	case "weekly":
		return PerWeek{Weeks: count}, nil
	case "monthly":
		return PerMonth{Months: count}, nil
	case "yearly":
		return PerYear{Years: count}, nil
	default:
		return nil, &PolicyError{Reason: fmt.Sprintf("unknown rule kind %q", kind)}
	}
}
