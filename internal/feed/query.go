// File: internal/feed/query.go
// Brief: Internal feed package implementation for 'query builder'.

package feed

import (
	"net/url"
	"strings"
	"time"
)

// ODataTimeFormat is the absolute-time layout embedded in filter clauses.
const ODataTimeFormat = "2006-01-02T15:04:05Z"

// TraceColumns lists the columns requested for every trace record.
var TraceColumns = []string{
	"plugintracelogid",
	"typename",
	"messagename",
	"primaryentity",
	"mode",
	"depth",
	"performanceexecutionduration",
	"createdon",
	"correlationid",
	"messageblock",
	"exceptiondetails",
}

// FilterSet is the user-facing filter state. Empty strings and nil bounds are ignored.
type FilterSet struct {
	TypeNameContains string
	ContentContains  string
	DateFrom         *time.Time
	DateTo           *time.Time
}

// IsZero reports whether no filter is active.
func (f FilterSet) IsZero() bool {
	return strings.TrimSpace(f.TypeNameContains) == "" &&
		strings.TrimSpace(f.ContentContains) == "" &&
		f.DateFrom == nil && f.DateTo == nil
}

// Query is the backend query derived from a FilterSet.
type Query struct {
	Select  []string
	Filter  string
	OrderBy string
}

// BuildQuery turns filters into a newest-first query. It performs no I/O.
func BuildQuery(f FilterSet) Query {
	var clauses []string
	if term := strings.TrimSpace(f.TypeNameContains); term != "" {
		clauses = append(clauses, containsClause("typename", term))
	}
	if term := strings.TrimSpace(f.ContentContains); term != "" {
		clauses = append(clauses, "("+strings.Join([]string{
			containsClause("messagename", term),
			containsClause("primaryentity", term),
			containsClause("messageblock", term),
		}, " or ")+")")
	}
	if f.DateFrom != nil {
		clauses = append(clauses, "createdon ge "+formatODataTime(*f.DateFrom))
	}
	if f.DateTo != nil {
		clauses = append(clauses, "createdon le "+formatODataTime(*f.DateTo))
	}
	return Query{
		Select:  append([]string(nil), TraceColumns...),
		Filter:  strings.Join(clauses, " and "),
		OrderBy: "createdon desc",
	}
}

// String renders the query unescaped, for logs and tests.
func (q Query) String() string {
	return q.render(func(s string) string { return s })
}

// Encode renders the query for use as a URL's RawQuery.
func (q Query) Encode() string {
	return q.render(escapeQueryValue)
}

func (q Query) render(escape func(string) string) string {
	var parts []string
	if len(q.Select) > 0 {
		parts = append(parts, "$select="+escape(strings.Join(q.Select, ",")))
	}
	if q.Filter != "" {
		parts = append(parts, "$filter="+escape(q.Filter))
	}
	if q.OrderBy != "" {
		parts = append(parts, "$orderby="+escape(q.OrderBy))
	}
	return strings.Join(parts, "&")
}

// Spaces must travel as %20: some gateways do not decode '+' in OData options.
func escapeQueryValue(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func containsClause(field, term string) string {
	return "contains(" + field + ",'" + escapeLiteral(term) + "')"
}

// OData string literals escape a single quote by doubling it.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func formatODataTime(t time.Time) string {
	return t.UTC().Format(ODataTimeFormat)
}
