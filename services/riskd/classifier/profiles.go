// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"time"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// Profile is the fetch-shaping configuration one mode runs under.
//
// # Description
//
// Modes never touch the ranking formula; they shape what gets fetched
// and how the prompt frames it. DefaultWindow feeds recency decay and
// every adapter's time filter. VectorTopK sizes the semantic search
// before post-filtering. SignalTypes limits which ML signals the
// signal adapter computes. PromptFocus is the one-line emphasis the
// reasoning prompt opens with.
type Profile struct {
	Mode          datatypes.Mode
	DefaultWindow time.Duration
	VectorTopK    int
	SignalTypes   []datatypes.SignalType
	PromptFocus   string
}

// profiles is the fixed per-mode configuration table.
var profiles = map[datatypes.Mode]Profile{
	datatypes.ModeRisk: {
		Mode:          datatypes.ModeRisk,
		DefaultWindow: 72 * time.Hour,
		VectorTopK:    12,
		SignalTypes:   []datatypes.SignalType{datatypes.SignalAnomaly, datatypes.SignalSentiment, datatypes.SignalLiquidity},
		PromptFocus:   "Identify the concrete risks facing this instrument and grade each one.",
	},
	datatypes.ModeMove: {
		Mode:          datatypes.ModeMove,
		DefaultWindow: 24 * time.Hour,
		VectorTopK:    8,
		SignalTypes:   []datatypes.SignalType{datatypes.SignalAnomaly, datatypes.SignalSentiment},
		PromptFocus:   "Explain the recent price move using only the supplied evidence.",
	},
	datatypes.ModeOptions: {
		Mode:          datatypes.ModeOptions,
		DefaultWindow: 168 * time.Hour,
		VectorTopK:    10,
		SignalTypes:   []datatypes.SignalType{datatypes.SignalAnomaly, datatypes.SignalLiquidity},
		PromptFocus:   "Assess volatility and liquidity conditions relevant to options positioning.",
	},
	datatypes.ModeMacro: {
		Mode:          datatypes.ModeMacro,
		DefaultWindow: 336 * time.Hour,
		VectorTopK:    10,
		SignalTypes:   []datatypes.SignalType{datatypes.SignalSentiment},
		PromptFocus:   "Assess market-wide forces first, then how they bear on this instrument.",
	},
	datatypes.ModeGeneral: {
		Mode:          datatypes.ModeGeneral,
		DefaultWindow: 168 * time.Hour,
		VectorTopK:    8,
		SignalTypes:   []datatypes.SignalType{datatypes.SignalAnomaly, datatypes.SignalSentiment, datatypes.SignalLiquidity},
		PromptFocus:   "Summarize the overall risk picture suggested by the evidence.",
	},
}

// ProfileFor returns the profile for a mode. Unknown modes get the
// GENERAL profile so callers never receive a zero window.
func ProfileFor(mode datatypes.Mode) Profile {
	if p, ok := profiles[mode]; ok {
		return p
	}
	return profiles[datatypes.ModeGeneral]
}
