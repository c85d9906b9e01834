// Package classification assigns forensic categories to candidate files
// based on where they live in the extracted filesystem.
package classification

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
)

// CompiledRule holds a rule with its compiled glob patterns.
type CompiledRule struct {
	compiled []*regexp.Regexp
	model.CategoryRule
}

// Classifier implements ordered, first-match-wins path classification.
type Classifier struct {
	byID  map[model.CategoryID]model.CategoryRule
	rules []CompiledRule
	mu    sync.RWMutex
}

// NewClassifier compiles rules into a classifier. Rule order is kept as is.
func NewClassifier(rules []model.CategoryRule) (*Classifier, error) {
	c := &Classifier{}
	if err := c.UpdateRules(rules); err != nil {
		return nil, err
	}
	return c, nil
}

// NewDefaultClassifier returns a classifier over DefaultRules.
func NewDefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		// The built-in table is static; a compile failure is a programming error.
		panic(fmt.Sprintf("default category rules: %v", err))
	}
	return c
}

// UpdateRules replaces the rule table.
func (c *Classifier) UpdateRules(rules []model.CategoryRule) error {
	compiled := make([]CompiledRule, 0, len(rules))
	byID := make(map[model.CategoryID]model.CategoryRule, len(rules))

	for _, r := range rules {
		if r.ID == "" {
			return fmt.Errorf("%w: rule without id", common.ErrInvalidConfig)
		}
		if _, dup := byID[r.ID]; dup {
			return fmt.Errorf("%w: duplicate rule id %s", common.ErrInvalidConfig, r.ID)
		}
		if !r.Tier.Valid() {
			return fmt.Errorf("%w: rule %s has invalid tier %q", common.ErrInvalidConfig, r.ID, r.Tier)
		}
		if r.Score == 0 {
			r.Score = r.Tier.Score()
		}
		if r.DisplayName == "" {
			r.DisplayName = string(r.ID)
		}

		cr := CompiledRule{CategoryRule: r}
		for _, p := range r.Patterns {
			re, err := common.CompileGlob(p)
			if err != nil {
				return fmt.Errorf("failed to compile pattern for %s: %w", r.ID, err)
			}
			cr.compiled = append(cr.compiled, re)
		}

		compiled = append(compiled, cr)
		byID[r.ID] = r
	}

	c.mu.Lock()
	c.rules = compiled
	c.byID = byID
	c.mu.Unlock()

	return nil
}

// Classify returns the category and functional subtype for path.
// size is only a hint; it never influences the category.
func (c *Classifier) Classify(path string, size int64) model.ClassificationResult {
	normalized := common.NormalizePath(path)
	rule := c.match(normalized)

	return model.ClassificationResult{
		CategoryID: rule.ID,
		Category:   rule.DisplayName,
		Subtype:    FunctionalSubtype(normalized, size, rule.ID),
		Tier:       rule.Tier,
		Score:      rule.Score,
		Method:     model.MethodPathBased,
	}
}

// match walks the table in order and returns the first matching rule.
func (c *Classifier) match(normalized string) model.CategoryRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range c.rules {
		for _, re := range r.compiled {
			if re.MatchString(normalized) {
				return r.CategoryRule
			}
		}
	}
	return model.UnknownRule
}

// ClassifyBatch classifies several candidates, keyed by path.
func (c *Classifier) ClassifyBatch(ctx context.Context, candidates []model.CandidateFile) (map[string]model.ClassificationResult, error) {
	results := make(map[string]model.ClassificationResult, len(candidates))

	for _, cand := range candidates {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			results[cand.Path] = c.Classify(cand.Path, cand.Size)
		}
	}

	return results, nil
}

// Rule looks up a rule by id. The synthetic Unknown rule is always found.
func (c *Classifier) Rule(id model.CategoryID) (model.CategoryRule, bool) {
	if id == model.CategoryUnknown {
		return model.UnknownRule, true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byID[id]
	return r, ok
}

// Rules returns the table in priority order.
func (c *Classifier) Rules() []model.CategoryRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.CategoryRule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.CategoryRule
	}
	return out
}

// RuleCount returns the number of loaded rules.
func (c *Classifier) RuleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}
