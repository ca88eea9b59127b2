package shader

import "slices"

// splitStages splits the rewritten token stream at its #pragma stage markers. Text before the
// first marker is shared and prepended to both stages; the marker lines themselves are dropped.
//
// Parameters:
//   - pass: the pass index, for error reporting
//   - tokens: the fully rewritten module
//
// Returns:
//   - []Token: the vertex stage
//   - []Token: the fragment stage
//   - error: a *MissingStageError if either stage has no marker
func splitStages(pass int, tokens []Token) ([]Token, []Token, error) {
	var shared, vertex, fragment []Token
	current := &shared
	seen := map[Stage]bool{}

	for start := 0; start < len(tokens); {
		end := start
		for end < len(tokens) && tokens[end].Kind != TokenNewline {
			end++
		}
		if end < len(tokens) {
			end++
		}
		if stage, ok := stageMarker(tokens[start:end]); ok {
			seen[stage] = true
			if stage == StageVertex {
				current = &vertex
			} else {
				current = &fragment
			}
		} else {
			*current = append(*current, tokens[start:end]...)
		}
		start = end
	}

	if !seen[StageVertex] {
		return nil, nil, &MissingStageError{Pass: pass, Stage: StageVertex}
	}
	if !seen[StageFragment] {
		return nil, nil, &MissingStageError{Pass: pass, Stage: StageFragment}
	}
	return append(slices.Clone(shared), vertex...), append(slices.Clone(shared), fragment...), nil
}

// stageMarker reports whether a line is "#pragma stage vertex|fragment".
func stageMarker(line []Token) (Stage, bool) {
	var words []string
	for _, t := range line {
		if t.Significant() {
			words = append(words, t.Text)
		}
	}
	if len(words) != 4 || words[0] != "#" || words[1] != "pragma" || words[2] != "stage" {
		return StageShared, false
	}
	switch words[3] {
	case "vertex":
		return StageVertex, true
	case "fragment":
		return StageFragment, true
	}
	return StageShared, false
}

// matchVaryings renames fragment inputs to the vertex output at the same location, so the stages
// link by name once locations are gone.
func matchVaryings(file string, fragment []Token, varyings []varying) error {
	outputs := make(map[int]string)
	for _, v := range varyings {
		if v.stage == StageVertex {
			outputs[v.location] = v.name
		}
	}
	for _, v := range varyings {
		if v.stage != StageFragment {
			continue
		}
		name, ok := outputs[v.location]
		if !ok {
			return &ParseError{File: file, Msg: "fragment input " + v.name + " has no vertex output at its location"}
		}
		if name == v.name {
			continue
		}
		if usesIdentifier(fragment, name) {
			return &ParseError{File: file, Msg: "fragment input " + v.name + " cannot be renamed to " + name + ": name already in use"}
		}
		renameIdentifier(fragment, v.name, name)
	}
	return nil
}

func usesIdentifier(tokens []Token, name string) bool {
	for i, t := range tokens {
		if t.Kind == TokenIdent && t.Text == name {
			if p := prevSignificant(tokens, i); p < 0 || !tokens[p].Is(".") {
				return true
			}
		}
	}
	return false
}

func renameIdentifier(tokens []Token, from, to string) {
	for i, t := range tokens {
		if t.Kind != TokenIdent || t.Text != from {
			continue
		}
		if p := prevSignificant(tokens, i); p >= 0 && tokens[p].Is(".") {
			continue
		}
		tokens[i].Text = to
	}
}
