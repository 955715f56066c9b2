package authz

import "github.com/fieldvolt/fieldvolt-access/internal/catalog"

// ScopeSatisfies reports whether a permission granted at scope `granted`
// covers a check requested at scope `requested`.
//
// "all" covers everything and "division" additionally covers "team"; every
// other pair must match exactly. A permission recorded without a scope
// matches any request, and a request without a scope is treated as "own".
// Pairs outside this table (e.g. "division" vs "own") do not match.
func ScopeSatisfies(granted, requested catalog.Scope) bool {
	if granted == "" || granted == catalog.ScopeAll {
		return true
	}
	if requested == "" {
		requested = catalog.ScopeOwn
	}
	if granted == requested {
		return true
	}
	return granted == catalog.ScopeDivision && requested == catalog.ScopeTeam
}
