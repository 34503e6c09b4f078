package agents

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Route identifies the worker a query is dispatched to.
type Route string

const (
	RouteChart    Route = "chart"
	RouteDocument Route = "document"
	RouteGeneral  Route = "general"
)

// Rule matches a query by keyword or regular expression.
type Rule struct {
	Route    Route    `yaml:"route"`
	Keywords []string `yaml:"keywords,omitempty"`
	Pattern  string   `yaml:"pattern,omitempty"`

	compiled *regexp.Regexp
}

// RoutingRules is the supervisor's dispatch table, evaluated in order with
// first match winning.
type RoutingRules struct {
	Rules   []Rule `yaml:"rules"`
	Default Route  `yaml:"default"`
}

// DefaultRules covers the common Korean analyst phrasings without a rules
// file present.
func DefaultRules() *RoutingRules {
	rules := &RoutingRules{
		Rules: []Rule{
			{Route: RouteChart, Keywords: []string{"차트", "주가", "시세", "캔들", "거래량", "chart", "ohlcv"}},
			{Route: RouteChart, Pattern: `\b\d{6}(\.(KS|KQ|NX))?\b`},
			{Route: RouteDocument, Keywords: []string{"보고서", "리포트", "문서", "페이지", "report", "pdf"}},
		},
		Default: RouteGeneral,
	}
	if err := rules.compile(); err != nil {
		panic(err) // built-in patterns are static
	}
	return rules
}

// LoadRules reads a YAML rules file. A missing path falls back to the
// built-in defaults.
func LoadRules(path string) (*RoutingRules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return nil, fmt.Errorf("failed to read routing rules: %w", err)
	}

	var rules RoutingRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse routing rules: %w", err)
	}
	if rules.Default == "" {
		rules.Default = RouteGeneral
	}
	if err := rules.compile(); err != nil {
		return nil, err
	}
	return &rules, nil
}

func (r *RoutingRules) compile() error {
	for i := range r.Rules {
		if r.Rules[i].Pattern == "" {
			continue
		}
		re, err := regexp.Compile(r.Rules[i].Pattern)
		if err != nil {
			return fmt.Errorf("invalid routing pattern %q: %w", r.Rules[i].Pattern, err)
		}
		r.Rules[i].compiled = re
	}
	return nil
}

// Classify returns the route for a query. Pinned chunks force the document
// route because the user has explicitly anchored context.
func (r *RoutingRules) Classify(query string, hasPinnedChunks bool) Route {
	if hasPinnedChunks {
		return RouteDocument
	}
	lowered := strings.ToLower(query)
	for _, rule := range r.Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				return rule.Route
			}
		}
		if rule.compiled != nil && rule.compiled.MatchString(query) {
			return rule.Route
		}
	}
	return r.Default
}
