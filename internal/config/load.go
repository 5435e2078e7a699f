package config

import (
	"encoding/json"
	"strings"

	"github.com/Laisky/errors/v2"
)

// legacyRouter captures the shapes config files historically used before
// `rules` existed: a flat channels+strategy pair, and/or a
// metadata.model_matcher map. original_source/src/router_selector.rs
// shows three coexisting shapes; per spec.md §9 ("Open question") any
// legacy shape is treated as input to migrate into `rules`, never as an
// authoritative alternative representation.
type legacyRouter struct {
	Name             string            `json:"name"`
	Vkey             string            `json:"vkey,omitempty"`
	Rules            []rawRule         `json:"rules"`
	FallbackChannels []string          `json:"fallback_channels,omitempty"`

	// legacy singleton shape
	Channel  string `json:"channel,omitempty"`
	Channels []rawWeighted `json:"channels,omitempty"`
	Strategy string `json:"strategy,omitempty"`

	Metadata struct {
		ModelMatcher map[string]rawWeightedList `json:"model_matcher,omitempty"`
	} `json:"metadata,omitempty"`
}

type rawWeighted struct {
	Name   string `json:"name"`
	Weight uint32 `json:"weight"`
}

type rawWeightedList struct {
	Channels []rawWeighted `json:"channels"`
}

// rawRule mirrors RouterRule but accepts match_spec.models (or the
// "model" alias) as either a bare string or an array.
type rawRule struct {
	MatchSpec struct {
		Models json.RawMessage `json:"models"`
		Model  json.RawMessage `json:"model"`
	} `json:"match_spec"`
	Channels []rawWeighted `json:"channels"`
	Strategy string        `json:"strategy"`
}

func decodeModels(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asSlice []string
	if err := json.Unmarshal(raw, &asSlice); err == nil {
		return asSlice, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil, nil
		}
		return []string{asString}, nil
	}
	return nil, errors.New("match_spec.models must be a string or an array of strings")
}

func (r rawRule) toRule() (RouterRule, error) {
	models, err := decodeModels(r.MatchSpec.Models)
	if err != nil {
		return RouterRule{}, err
	}
	if len(models) == 0 {
		modelAlias, err := decodeModels(r.MatchSpec.Model)
		if err != nil {
			return RouterRule{}, err
		}
		models = modelAlias
	}
	strat := Strategy(r.Strategy)
	if strat == "" {
		strat = StrategyPriority
	}
	channels := make([]WeightedChannel, 0, len(r.Channels))
	for _, ch := range r.Channels {
		channels = append(channels, WeightedChannel{Name: ch.Name, Weight: ch.Weight})
	}
	return RouterRule{
		MatchSpec: MatchSpec{Models: models},
		Channels:  channels,
		Strategy:  strat,
	}, nil
}

// migrate converts a legacyRouter into the canonical Router shape,
// folding any legacy `channel`/`channels`+`strategy` singleton and any
// `metadata.model_matcher` entries into synthetic rules appended after
// the explicit `rules` list (explicit rules still take first-match
// priority, per spec.md §4.1).
func (lr legacyRouter) migrate() (Router, error) {
	router := Router{
		Name:             lr.Name,
		Vkey:             lr.Vkey,
		FallbackChannels: lr.FallbackChannels,
	}

	for _, rr := range lr.Rules {
		rule, err := rr.toRule()
		if err != nil {
			return Router{}, errors.Wrapf(err, "router %q", lr.Name)
		}
		router.Rules = append(router.Rules, rule)
	}

	// legacy metadata.model_matcher: one rule per entry, strategy priority,
	// model pattern equal to the map key.
	for modelPattern, list := range lr.Metadata.ModelMatcher {
		channels := make([]WeightedChannel, 0, len(list.Channels))
		for _, ch := range list.Channels {
			channels = append(channels, WeightedChannel{Name: ch.Name, Weight: ch.Weight})
		}
		router.Rules = append(router.Rules, RouterRule{
			MatchSpec: MatchSpec{Models: []string{modelPattern}},
			Channels:  channels,
			Strategy:  StrategyPriority,
		})
	}

	// legacy flat channel/channels+strategy becomes a synthetic wildcard
	// rule, tried last.
	if lr.Channel != "" {
		router.Rules = append(router.Rules, RouterRule{
			MatchSpec: MatchSpec{Models: []string{"*"}},
			Channels:  []WeightedChannel{{Name: lr.Channel, Weight: 1}},
			Strategy:  StrategyPriority,
		})
	}
	if len(lr.Channels) > 0 {
		strat := Strategy(lr.Strategy)
		if strat == "" {
			strat = StrategyPriority
		}
		channels := make([]WeightedChannel, 0, len(lr.Channels))
		for _, ch := range lr.Channels {
			channels = append(channels, WeightedChannel{Name: ch.Name, Weight: ch.Weight})
		}
		router.Rules = append(router.Rules, RouterRule{
			MatchSpec: MatchSpec{Models: []string{"*"}},
			Channels:  channels,
			Strategy:  strat,
		})
	}

	return router, nil
}

type rawDocument struct {
	Version   int             `json:"version"`
	Global    Global          `json:"global"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
	Channels  []Channel       `json:"channels"`
	Routers   []legacyRouter  `json:"routers"`
	Teams     []Team          `json:"teams"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
	HotReload HotReloadConfig `json:"hot_reload,omitempty"`
	Audit     AuditConfig     `json:"audit,omitempty"`
}

// ParseDocument decodes a config file's bytes, migrating any legacy
// router shapes into `rules`.
func ParseDocument(raw []byte) (Document, error) {
	var rd rawDocument
	if err := json.Unmarshal(raw, &rd); err != nil {
		return Document{}, errors.Wrap(err, "decode config document")
	}

	doc := Document{
		Version:   rd.Version,
		Global:    rd.Global,
		Logging:   rd.Logging,
		Channels:  rd.Channels,
		Teams:     rd.Teams,
		Metrics:   rd.Metrics,
		HotReload: rd.HotReload,
		Audit:     rd.Audit,
	}
	for _, lr := range rd.Routers {
		router, err := lr.migrate()
		if err != nil {
			return Document{}, err
		}
		doc.Routers = append(doc.Routers, router)
	}
	return doc, nil
}

// Validate checks the cross-reference invariants spec.md §3 requires:
// unique channel names, unique team keys, every channel name referenced
// by a rule or fallback chain must exist, and every rule must have a
// non-empty channel list.
func Validate(doc Document) error {
	channelNames := make(map[string]bool, len(doc.Channels))
	for _, ch := range doc.Channels {
		if ch.Name == "" {
			return errors.New("channel with empty name")
		}
		if channelNames[ch.Name] {
			return errors.Errorf("duplicate channel name %q", ch.Name)
		}
		channelNames[ch.Name] = true
	}

	teamKeys := make(map[string]bool, len(doc.Teams))
	for _, t := range doc.Teams {
		if t.APIKey == "" {
			return errors.Errorf("team %q has empty api_key", t.ID)
		}
		if teamKeys[t.APIKey] {
			return errors.Errorf("duplicate team api_key for team %q", t.ID)
		}
		teamKeys[t.APIKey] = true
	}

	routerNames := make(map[string]bool, len(doc.Routers))
	for _, r := range doc.Routers {
		if r.Name == "" {
			return errors.New("router with empty name")
		}
		routerNames[r.Name] = true
		for _, rule := range r.Rules {
			if len(rule.Channels) == 0 {
				return errors.Errorf("router %q has a rule with no channels", r.Name)
			}
			for _, wc := range rule.Channels {
				if !channelNames[wc.Name] {
					return errors.Errorf("router %q rule references unknown channel %q", r.Name, wc.Name)
				}
			}
		}
		for _, fb := range r.FallbackChannels {
			if !channelNames[fb] {
				return errors.Errorf("router %q fallback references unknown channel %q", r.Name, fb)
			}
		}
	}

	for _, t := range doc.Teams {
		for _, allowed := range t.Policy.AllowedRouters {
			if !routerNames[allowed] {
				return errors.Errorf("team %q allows unknown router %q", t.ID, allowed)
			}
		}
	}

	return nil
}

// NewSnapshot validates doc and builds an index for O(1) lookup.
func NewSnapshot(doc Document) (*Snapshot, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Doc:        doc,
		Channels:   make(map[string]Channel, len(doc.Channels)),
		Routers:    make(map[string]Router, len(doc.Routers)),
		Teams:      make(map[string]Team, len(doc.Teams)),
		TeamsByKey: make(map[string]Team, len(doc.Teams)),
	}
	for _, ch := range doc.Channels {
		snap.Channels[ch.Name] = ch
	}
	for _, r := range doc.Routers {
		snap.Routers[r.Name] = r
	}
	for _, t := range doc.Teams {
		snap.Teams[t.ID] = t
		snap.TeamsByKey[t.APIKey] = t
	}
	return snap, nil
}

// LoadFile reads, parses, and validates a config document from disk,
// returning a ready Snapshot.
func LoadFile(readFile func(string) ([]byte, error), path string) (*Snapshot, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %q", path)
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(doc)
}

// IsGlobPattern reports whether s contains glob metacharacters, used by
// callers (e.g. the selector) that want to distinguish exact literals
// from patterns before compiling them.
func IsGlobPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
