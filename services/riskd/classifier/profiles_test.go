// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"testing"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

func TestProfileFor_EveryModeHasProfile(t *testing.T) {
	modes := []datatypes.Mode{
		datatypes.ModeRisk,
		datatypes.ModeMove,
		datatypes.ModeOptions,
		datatypes.ModeMacro,
		datatypes.ModeGeneral,
	}

	for _, mode := range modes {
		p := ProfileFor(mode)
		if p.Mode != mode {
			t.Errorf("%s: profile carries wrong mode %s", mode, p.Mode)
		}
		if p.DefaultWindow <= 0 {
			t.Errorf("%s: profile must have a positive default window", mode)
		}
		if p.VectorTopK <= 0 {
			t.Errorf("%s: profile must have a positive vector top-k", mode)
		}
		if len(p.SignalTypes) == 0 {
			t.Errorf("%s: profile must request at least one signal type", mode)
		}
		if p.PromptFocus == "" {
			t.Errorf("%s: profile must have a prompt focus line", mode)
		}
	}
}

func TestProfileFor_UnknownModeFallsBackToGeneral(t *testing.T) {
	p := ProfileFor(datatypes.Mode("BOGUS"))
	if p.Mode != datatypes.ModeGeneral {
		t.Errorf("expected GENERAL fallback, got %s", p.Mode)
	}
}
