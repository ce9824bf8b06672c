package authz

import (
	"fmt"
	"regexp"
	"strings"
)

// RouteRule maps one route pattern to the permissions it requires. Patterns
// may contain path-parameter placeholders, either ":id" or "[id]" style,
// each standing for a single non-slash segment. Method is an HTTP method or
// empty for any. RequireAll switches the rule from ANY (default) to ALL
// semantics across its permissions.
type RouteRule struct {
	Pattern     string
	Method      string
	Permissions []Permission
	RequireAll  bool
}

type compiledRule struct {
	rule RouteRule
	re   *regexp.Regexp // nil for literal patterns
}

// RouteTable resolves request paths to required permissions. It is built
// once from configuration and immutable afterwards; pattern order is
// declaration order and significant for overlapping patterns.
type RouteTable struct {
	rules  []compiledRule
	public []string
}

var placeholderSegment = regexp.MustCompile(`^(:[A-Za-z_][A-Za-z0-9_]*|\[[A-Za-z_][A-Za-z0-9_]*\])$`)

// NewRouteTable compiles the configured rules, failing fast on malformed
// patterns or permissions. public lists path prefixes exempt from permission
// checks entirely.
func NewRouteTable(rules []RouteRule, public []string) (*RouteTable, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if !strings.HasPrefix(rule.Pattern, "/") {
			return nil, fmt.Errorf("authz: route %d %q: pattern must start with /", i, rule.Pattern)
		}
		for j, p := range rule.Permissions {
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("authz: route %q permission %d: %w", rule.Pattern, j, err)
			}
		}
		re, err := compilePattern(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("authz: route %d: %w", i, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &RouteTable{rules: compiled, public: append([]string(nil), public...)}, nil
}

// MustNewRouteTable is NewRouteTable for compiled-in configuration.
func MustNewRouteTable(rules []RouteRule, public []string) *RouteTable {
	t, err := NewRouteTable(rules, public)
	if err != nil {
		panic(err)
	}
	return t
}

// compilePattern turns a pattern with placeholders into a regexp accepting
// one non-slash segment per placeholder. Literal patterns return a nil
// regexp and are matched by string equality.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if !strings.ContainsAny(pattern, ":[") {
		return nil, nil
	}
	segments := strings.Split(pattern, "/")
	parts := make([]string, len(segments))
	for i, seg := range segments {
		switch {
		case seg == "":
			parts[i] = ""
		case placeholderSegment.MatchString(seg):
			parts[i] = "[^/]+"
		case strings.ContainsAny(seg, ":["):
			return nil, fmt.Errorf("malformed pattern %q: placeholder must span a whole segment", pattern)
		default:
			parts[i] = regexp.QuoteMeta(seg)
		}
	}
	return regexp.Compile("^" + strings.Join(parts, "/") + "$")
}

// Resolve returns the permissions required for the path and method, and
// whether ALL of them must hold (false means ANY suffices). Exact matches
// win over patterns; among patterns the first declared match wins. Unknown
// routes resolve to an empty list: no specific permission beyond
// authentication.
func (t *RouteTable) Resolve(path, method string) ([]Permission, bool) {
	method = strings.ToUpper(method)
	for _, c := range t.rules {
		if c.re == nil && c.rule.Pattern == path && methodMatches(c.rule.Method, method) {
			return clonePerms(c.rule.Permissions), c.rule.RequireAll
		}
	}
	for _, c := range t.rules {
		if c.re != nil && c.re.MatchString(path) && methodMatches(c.rule.Method, method) {
			return clonePerms(c.rule.Permissions), c.rule.RequireAll
		}
	}
	return nil, false
}

// GetRoutePermissions returns only the permission list for the route.
func (t *RouteTable) GetRoutePermissions(path, method string) []Permission {
	perms, _ := t.Resolve(path, method)
	return perms
}

// IsPublicRoute reports whether the path falls under a public prefix, which
// bypasses permission checks entirely. Distinct from a route with an empty
// permission list, which still requires authentication.
func (t *RouteTable) IsPublicRoute(path string) bool {
	for _, prefix := range t.public {
		if path == prefix {
			return true
		}
		// "/" is exact-only; any other prefix covers its subtree.
		if prefix != "/" && strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

func methodMatches(want, got string) bool {
	return want == "" || strings.ToUpper(want) == got
}

func clonePerms(perms []Permission) []Permission {
	if len(perms) == 0 {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// DefaultRouteTable wires the admin API surface to the permission
// vocabulary of DefaultTable.
func DefaultRouteTable() *RouteTable {
	return MustNewRouteTable([]RouteRule{
		{Pattern: "/admin/users", Method: "GET", Permissions: []Permission{{Resource: "users", Action: ActionRead}}},
		{Pattern: "/admin/users", Method: "POST", Permissions: []Permission{{Resource: "users", Action: ActionCreate}}},
		{Pattern: "/admin/users/:id", Method: "PUT", Permissions: []Permission{{Resource: "users", Action: ActionUpdate}}},
		{Pattern: "/admin/users/:id", Method: "DELETE", Permissions: []Permission{{Resource: "users", Action: ActionDelete}}},
		{Pattern: "/admin/products", Method: "GET", Permissions: []Permission{{Resource: "products", Action: ActionRead}}},
		{Pattern: "/admin/products", Method: "POST", Permissions: []Permission{{Resource: "products", Action: ActionCreate}}},
		{Pattern: "/admin/products/:id/edit", Permissions: []Permission{{Resource: "products", Action: ActionUpdate}}},
		{Pattern: "/admin/products/:id", Method: "DELETE", Permissions: []Permission{{Resource: "products", Action: ActionDelete}}},
		{Pattern: "/admin/categories", Permissions: []Permission{{Resource: "categories", Action: ActionManage}}},
		{Pattern: "/admin/pages", Method: "GET", Permissions: []Permission{{Resource: "pages", Action: ActionRead}}},
		{Pattern: "/admin/pages/[id]", Permissions: []Permission{{Resource: "pages", Action: ActionUpdate}}},
		{Pattern: "/admin/media", Permissions: []Permission{
			{Resource: "media", Action: ActionRead},
			{Resource: "media", Action: ActionManage},
		}},
		{Pattern: "/admin/analytics", Method: "GET", Permissions: []Permission{{Resource: "analytics", Action: ActionRead}}},
		{Pattern: "/admin/settings/security", Permissions: []Permission{
			{Resource: "settings", Action: ActionManage},
			{Resource: "users", Action: ActionManage},
		}, RequireAll: true},
		{Pattern: "/admin/settings", Permissions: []Permission{{Resource: "settings", Action: ActionManage}}},
	}, []string{
		"/",
		"/auth/login",
		"/healthz",
		"/static",
	})
}
