// Package schema holds the column pattern table and resolves semantic fields
// against the drifting column names of the source extracts.
package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// columnSeparators are folded to a single space before matching.
var columnSeparators = strings.NewReplacer(
	"_", " ",
	".", " ",
	"/", " ",
	",", " ",
	"(", " ",
	")", " ",
	"-", " ",
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// NormalizeColumn returns the form of a column name that patterns are matched against.
func NormalizeColumn(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(columnSeparators.Replace(name))), " ")
}

// Pattern is an ordered alternation of case-insensitive regular expressions
// describing one semantic field. A Pattern is immutable once built.
type Pattern struct {
	field   string
	sources []string
	alts    []*regexp.Regexp
}

// NewPattern compiles the alternatives for field, most specific first.
func NewPattern(field string, alternatives ...string) (*Pattern, error) {
	p := &Pattern{
		field:   field,
		sources: make([]string, 0, len(alternatives)),
		alts:    make([]*regexp.Regexp, 0, len(alternatives)),
	}

	for _, alt := range alternatives {
		re, err := regexp.Compile("(?i)" + alt)
		if err != nil {
			return nil, fmt.Errorf("field %s: invalid pattern %q: %w", field, alt, err)
		}

		p.sources = append(p.sources, alt)
		p.alts = append(p.alts, re)
	}

	return p, nil
}

// MustPattern is NewPattern that panics on an invalid expression.
func MustPattern(field string, alternatives ...string) *Pattern {
	p, err := NewPattern(field, alternatives...)
	if err != nil {
		panic(err)
	}

	return p
}

// Field returns the semantic field name.
func (p *Pattern) Field() string {
	if p == nil {
		return ""
	}

	return p.field
}

// Alternatives returns a copy of the source expressions in match order.
func (p *Pattern) Alternatives() []string {
	if p == nil {
		return nil
	}

	return append([]string(nil), p.sources...)
}

// Empty reports whether the pattern can never match.
func (p *Pattern) Empty() bool {
	return p == nil || len(p.alts) == 0
}

// Matches reports whether a column name matches any alternative.
func (p *Pattern) Matches(column string) bool {
	if p.Empty() {
		return false
	}

	norm := NormalizeColumn(column)
	for _, re := range p.alts {
		if re.MatchString(norm) {
			return true
		}
	}

	return false
}

// Resolver matches patterns against one grid's column names.
// It normalizes the names once and is safe for concurrent use.
type Resolver struct {
	columns    []string
	normalized []string
}

// NewResolver prepares the column names of a grid for matching.
func NewResolver(columns []string) *Resolver {
	r := &Resolver{
		columns:    append([]string(nil), columns...),
		normalized: make([]string, len(columns)),
	}

	for i, c := range columns {
		r.normalized[i] = NormalizeColumn(c)
	}

	return r
}

// Resolve returns the original name of the best matching column, or "" when
// no column matches. Alternatives are tried in order; within one alternative
// the first matching column wins.
func (r *Resolver) Resolve(p *Pattern) string {
	if p.Empty() {
		return ""
	}

	for _, re := range p.alts {
		for i, norm := range r.normalized {
			if re.MatchString(norm) {
				return r.columns[i]
			}
		}
	}

	return ""
}

// Resolve is a one-shot form of Resolver.Resolve.
func Resolve(columns []string, p *Pattern) string {
	return NewResolver(columns).Resolve(p)
}
