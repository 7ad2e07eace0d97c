package draft

import (
	"encoding/json"
	"errors"
)

// FeaturedRule is a server-validated per-session override applied at
// action time: a character can be globally banned or forced (globalPick),
// an accessory can be globally banned. customCost overrides the cost
// table for display.
type FeaturedRule struct {
	Kind       string   `json:"kind"`
	Code       string   `json:"code,omitempty"`
	ID         string   `json:"id,omitempty"`
	Rule       string   `json:"rule"`
	CustomCost *float64 `json:"customCost,omitempty"`
}

const (
	RuleNone       = "none"
	RuleGlobalBan  = "globalBan"
	RuleGlobalPick = "globalPick"
)

var errBadFeatured = errors.New("invalid featured rule")

// ParseFeatured decodes and sanitizes the featured list. Unknown fields
// are discarded, unknown rule values coerce to none, and accessory
// globalPick is rejected.
func ParseFeatured(raw json.RawMessage) ([]FeaturedRule, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rules []FeaturedRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, errBadFeatured
	}
	out := make([]FeaturedRule, 0, len(rules))
	for _, r := range rules {
		switch r.Rule {
		case RuleNone, RuleGlobalBan, RuleGlobalPick:
		default:
			r.Rule = RuleNone
		}
		switch r.Kind {
		case "character":
			if r.Code == "" {
				return nil, errBadFeatured
			}
			r.ID = ""
		case "accessory":
			if r.ID == "" {
				return nil, errBadFeatured
			}
			if r.Rule == RuleGlobalPick {
				return nil, errBadFeatured
			}
			r.Code = ""
		default:
			return nil, errBadFeatured
		}
		out = append(out, r)
	}
	return out, nil
}

// Rules is the reducer-facing index of a featured list.
type Rules struct {
	CharacterGlobalBan  map[string]bool
	CharacterGlobalPick map[string]bool
	AccessoryGlobalBan  map[string]bool
}

func CompileRules(rules []FeaturedRule) Rules {
	out := Rules{
		CharacterGlobalBan:  map[string]bool{},
		CharacterGlobalPick: map[string]bool{},
		AccessoryGlobalBan:  map[string]bool{},
	}
	for _, r := range rules {
		switch {
		case r.Kind == "character" && r.Rule == RuleGlobalBan:
			out.CharacterGlobalBan[r.Code] = true
		case r.Kind == "character" && r.Rule == RuleGlobalPick:
			out.CharacterGlobalPick[r.Code] = true
		case r.Kind == "accessory" && r.Rule == RuleGlobalBan:
			out.AccessoryGlobalBan[r.ID] = true
		}
	}
	return out
}
