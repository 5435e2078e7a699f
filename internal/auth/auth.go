// Package auth extracts API keys and resolves team/global auth context
// (spec.md §4.5).
package auth

import (
	"net/http"
	"strings"

	"github.com/cregis-dev/apex/internal/config"
)

// TeamContext identifies an authenticated team caller.
type TeamContext struct {
	TeamID string
	Team   config.Team
}

// Result is the outcome of resolving an inbound request's credentials.
type Result struct {
	// Team is non-nil when the presented key matched a team.
	Team *TeamContext
	// Authenticated is true when either a team matched or the key
	// matched a global key, or no key was required (auth.mode=none).
	Authenticated bool
	// KeyPresented is true when the caller supplied any credential at
	// all, used to distinguish "no key, mode=none" from "bad key".
	KeyPresented bool
}

// ExtractKey reads the caller's credential from inbound headers:
// "Authorization: Bearer <tok>" -> tok; "Authorization: <raw>" -> raw;
// "x-api-key: <raw>" -> raw; else "" (spec.md §4.5).
func ExtractKey(headers http.Header) string {
	if v := headers.Get("Authorization"); v != "" {
		if strings.HasPrefix(v, "Bearer ") {
			return strings.TrimPrefix(v, "Bearer ")
		}
		return v
	}
	if v := headers.Get("x-api-key"); v != "" {
		return v
	}
	return ""
}

// Resolve implements spec.md §4.5's team-resolution and global-auth
// decision: team match wins, then global key match (anonymous),
// otherwise a presented-but-unrecognized key is rejected, and an absent
// key is allowed only when auth.mode is "none".
func Resolve(snap *config.Snapshot, headers http.Header) Result {
	key := ExtractKey(headers)
	if key == "" {
		return Result{
			Authenticated: snap.Doc.Global.Auth.Mode == config.AuthModeNone,
			KeyPresented:  false,
		}
	}

	if team, ok := snap.TeamsByKey[key]; ok {
		return Result{
			Team:          &TeamContext{TeamID: team.ID, Team: team},
			Authenticated: true,
			KeyPresented:  true,
		}
	}

	for _, k := range snap.Doc.Global.Auth.Keys {
		if k == key {
			return Result{Authenticated: true, KeyPresented: true}
		}
	}

	return Result{Authenticated: false, KeyPresented: true}
}
