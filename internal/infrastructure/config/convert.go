package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/eshaffer321/ledger-recon/internal/domain/categorizer"
	"github.com/eshaffer321/ledger-recon/internal/domain/matcher"
	"github.com/eshaffer321/ledger-recon/internal/domain/normalizer"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/shopspring/decimal"
)

// NormalizerConfig builds the normalizer configuration, starting from the
// built-in defaults.
func (c *Config) NormalizerConfig() (normalizer.Config, error) {
	n := c.Normalizer
	out := normalizer.DefaultConfig()
	out.YearHint = n.YearHint

	if n.AmountCeiling != "" {
		ceiling, err := decimal.NewFromString(n.AmountCeiling)
		if err != nil {
			return normalizer.Config{}, fmt.Errorf("amount_ceiling: %w", err)
		}
		if ceiling.IsNegative() {
			return normalizer.Config{}, fmt.Errorf("amount_ceiling %s is negative", ceiling)
		}
		out.AmountCeiling = ceiling
	}
	if n.DefaultDirection != "" {
		d := txn.Direction(strings.ToLower(n.DefaultDirection))
		if !d.Valid() {
			return normalizer.Config{}, fmt.Errorf("default_direction %q", n.DefaultDirection)
		}
		out.DefaultDirection = d
	}
	if len(n.CreditKeywords) > 0 {
		out.CreditKeywords = n.CreditKeywords
	}
	if len(n.DebitKeywords) > 0 {
		out.DebitKeywords = n.DebitKeywords
	}

	tables := []struct {
		name  string
		exprs []string
		dst   *[]*regexp.Regexp
	}{
		{"noise_patterns", n.NoisePatterns, &out.NoisePatterns},
		{"reference_patterns", n.ReferencePatterns, &out.ReferencePatterns},
		{"business_key_patterns", n.BusinessKeyPatterns, &out.BusinessKeyPatterns},
		{"segment_markers", n.SegmentMarkers, &out.SegmentMarkers},
		{"skip_patterns", n.SkipPatterns, &out.SkipPatterns},
	}
	for _, table := range tables {
		if len(table.exprs) == 0 {
			continue
		}
		compiled, err := normalizer.Compile(table.exprs)
		if err != nil {
			return normalizer.Config{}, fmt.Errorf("%s: %w", table.name, err)
		}
		*table.dst = compiled
	}

	return out, nil
}

// ProfileNames lists configured profiles in sorted order
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Matching.Profiles))
	for name := range c.Matching.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MatcherConfig resolves a profile name into a validated matcher config.
// A configured profile starts from its preset (or the preset with the same
// name, or statement vs ledger) and applies its overrides. An empty name
// means the default profile.
func (c *Config) MatcherConfig(profile string) (matcher.Config, error) {
	if profile == "" {
		profile = c.Matching.DefaultProfile
	}

	p, configured := c.Matching.Profiles[profile]
	if !configured {
		base, ok := matcher.Preset(profile)
		if !ok {
			return matcher.Config{}, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
		}
		return base, nil
	}

	base, ok := matcher.Preset(p.Preset)
	if p.Preset == "" {
		if named, found := matcher.Preset(profile); found {
			base, ok = named, true
		}
	}
	if !ok {
		return matcher.Config{}, fmt.Errorf("%w: preset %q", ErrUnknownProfile, p.Preset)
	}

	out, err := p.apply(base)
	if err != nil {
		return matcher.Config{}, err
	}
	if err := out.Validate(); err != nil {
		return matcher.Config{}, err
	}
	return out, nil
}

func (p ProfileConfig) apply(cfg matcher.Config) (matcher.Config, error) {
	if p.WindowDays != nil {
		cfg.WindowDays = *p.WindowDays
	}
	if p.Epsilon != "" {
		eps, err := decimal.NewFromString(p.Epsilon)
		if err != nil {
			return cfg, fmt.Errorf("epsilon: %w", err)
		}
		cfg.Epsilon = eps
	}
	if p.MinScore != nil {
		cfg.MinScore = *p.MinScore
	}
	if p.Direction != "" {
		cfg.Direction = matcher.DirectionRule(p.Direction)
	}
	if p.MinSharedWords != nil {
		cfg.MinSharedWords = *p.MinSharedWords
	}
	if len(p.StopWords) > 0 {
		cfg.StopWords = p.StopWords
	}
	if len(p.TransferKeywords) > 0 {
		cfg.TransferKeywords = p.TransferKeywords
	}
	if p.RoundAmountUnit != "" {
		unit, err := decimal.NewFromString(p.RoundAmountUnit)
		if err != nil {
			return cfg, fmt.Errorf("round_amount_unit: %w", err)
		}
		cfg.RoundAmountUnit = unit
	}
	if p.DistinctSources != nil {
		cfg.DistinctSources = *p.DistinctSources
	}
	if p.DisableIndex {
		cfg.DisableIndex = true
	}

	w := p.Weights
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Weights.AmountExact, w.AmountExact)
	set(&cfg.Weights.DatePenaltyPerDay, w.DatePenaltyPerDay)
	set(&cfg.Weights.ReferenceOverlap, w.ReferenceOverlap)
	set(&cfg.Weights.DescriptionOverlap, w.DescriptionOverlap)
	set(&cfg.Weights.BusinessKey, w.BusinessKey)
	set(&cfg.Weights.TransferKeyword, w.TransferKeyword)
	set(&cfg.Weights.RoundAmount, w.RoundAmount)
	set(&cfg.Weights.CategoryAgreement, w.CategoryAgreement)

	return cfg, nil
}

// CategoryRules compiles the configured rule table, or the default table
// when none is configured.
func (c *Config) CategoryRules() ([]categorizer.Rule, error) {
	if len(c.Categories) == 0 {
		return categorizer.Compile(categorizer.DefaultRules())
	}
	specs := make([]categorizer.RuleSpec, len(c.Categories))
	for i, r := range c.Categories {
		specs[i] = categorizer.RuleSpec{
			Name:      r.Name,
			Tag:       r.Tag,
			Transfer:  r.Transfer,
			Any:       r.Any,
			All:       r.All,
			Pattern:   r.Pattern,
			Direction: r.Direction,
			MinAmount: r.MinAmount,
			MaxAmount: r.MaxAmount,
			Sources:   r.Sources,
		}
	}
	return categorizer.Compile(specs)
}
