package auth

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/cregis-dev/apex/internal/config"
	"github.com/cregis-dev/apex/internal/ratelimit"
	"github.com/cregis-dev/apex/internal/selector"
)

// PolicyError is a rejection produced by policy enforcement or router
// resolution, carrying the HTTP status the pipeline must answer with.
type PolicyError struct {
	Status  int
	Message string
}

func (e *PolicyError) Error() string { return e.Message }

func reject(status int, message string) *PolicyError {
	return &PolicyError{Status: status, Message: message}
}

// matchesAnyPattern reports whether model matches any of patterns using
// case-insensitive literal compare, then case-insensitive glob (spec.md
// §4.5's allowed_models rule reuses §4.1's matching semantics).
func matchesAnyPattern(patterns []string, model string) bool {
	for _, p := range patterns {
		if strings.EqualFold(p, model) {
			return true
		}
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			continue
		}
		if g.Match(strings.ToLower(model)) {
			return true
		}
	}
	return false
}

// CheckRateLimit consumes one request and amount tokens from team's
// configured rate limit, if any. A team with no rate_limit is unlimited.
func CheckRateLimit(limiter *ratelimit.Limiter, team config.Team, tokenEstimate int) *PolicyError {
	rl := team.Policy.RateLimit
	if rl == nil {
		return nil
	}
	if !limiter.Consume(team.ID, ratelimit.DimensionRPM, rl.RPM, 1) {
		return reject(429, "Rate limit exceeded")
	}
	if !limiter.Consume(team.ID, ratelimit.DimensionTPM, rl.TPM, tokenEstimate) {
		return reject(429, "Rate limit exceeded")
	}
	return nil
}

// CheckAllowedModel enforces policy.allowed_models. An absent/empty list
// allows every model.
func CheckAllowedModel(team config.Team, model string) *PolicyError {
	if len(team.Policy.AllowedModels) == 0 {
		return nil
	}
	if !matchesAnyPattern(team.Policy.AllowedModels, model) {
		return reject(403, "model not allowed for this team")
	}
	return nil
}

// ResolveRouter implements spec.md §4.5's router-resolution algorithm.
// With a team context, only routers named in allowed_routers are tried,
// in order, and a miss is a 404; without one, every router in the
// snapshot is tried in declaration order, and a miss is a 400.
func ResolveRouter(sel *selector.Selector, snap *config.Snapshot, team *TeamContext, model string) (routerName string, channels []string, perr *PolicyError) {
	if team != nil {
		if len(team.Team.Policy.AllowedRouters) == 0 {
			return "", nil, reject(403, "no routers allowed for this team")
		}
		for _, name := range team.Team.Policy.AllowedRouters {
			if _, ok := snap.Routers[name]; !ok {
				continue
			}
			if chs := sel.Select(name, model); len(chs) > 0 {
				return name, chs, nil
			}
		}
		return "", nil, reject(404, "no matching router for model")
	}

	for _, router := range snap.Doc.Routers {
		if chs := sel.Select(router.Name, model); len(chs) > 0 {
			return router.Name, chs, nil
		}
	}
	return "", nil, reject(400, "no matching router for model")
}
