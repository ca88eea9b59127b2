// annotations.go defines the pragma types and the pragma parser of the module pre-processor.
// Pragmas are single-line "#pragma" directives that carry metadata the GLSL compiler never sees:
// tunable parameters, stage boundaries, the pass's published alias, and its preferred target
// format. Parsed pragmas are stored as Pragma values and consumed by the Compiler; the directive
// lines themselves are removed from the emitted stages.
package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-crt/common"
)

// pragmaPrefix is the directive that introduces every pragma.
const pragmaPrefix = "#pragma"

// PragmaType identifies the kind of pragma parsed from a directive line.
type PragmaType string

const (
	// PragmaTypeParameter declares a tunable float exposed to the host.
	//
	// Syntax: #pragma parameter <name> "<label>" <default> <min> <max> [step]
	//
	// Example: #pragma parameter GAMMA "Output Gamma" 2.2 1.0 3.0 0.05
	PragmaTypeParameter PragmaType = "parameter"

	// PragmaTypeStage starts the vertex or fragment section. Text before the first stage pragma is
	// shared by both stages.
	//
	// Syntax: #pragma stage vertex|fragment
	PragmaTypeStage PragmaType = "stage"

	// PragmaTypeName publishes an alias for the pass's output when the preset gives none.
	//
	// Syntax: #pragma name <alias>
	PragmaTypeName PragmaType = "name"

	// PragmaTypeFormat requests a target format for the pass.
	//
	// Syntax: #pragma format <VK_FORMAT_NAME>
	//
	// Example: #pragma format R16G16B16A16_SFLOAT
	PragmaTypeFormat PragmaType = "format"
)

// Pragma is one parsed pragma. Only the fields relevant to Type are set.
type Pragma struct {
	Type PragmaType

	// Line is the 1-based line of the directive in its file.
	Line int

	// Parameter is set for PragmaTypeParameter.
	Parameter Parameter

	// Stage is set for PragmaTypeStage.
	Stage Stage

	// Name is set for PragmaTypeName.
	Name string

	// Format is set for PragmaTypeFormat.
	Format common.PixelFormat
}

// parsePragma attempts to parse a single directive line as a pragma this pre-processor owns.
// Returns nil with no error for lines that are not pragmas, and for pragmas meant for the GLSL
// compiler itself (e.g. "#pragma optimize(on)"), which are left in place.
//
// Parameters:
//   - line: the directive text, starting at '#'
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Pragma: the parsed pragma, or nil if the line is not one
//   - error: a descriptive error if the pragma is malformed
func parsePragma(line string, lineNum int) (*Pragma, error) {
	trimmed := strings.TrimSpace(line)
	after, ok := strings.CutPrefix(trimmed, "#")
	if !ok {
		return nil, nil
	}
	after = strings.TrimSpace(after)
	after, ok = strings.CutPrefix(after, strings.TrimPrefix(pragmaPrefix, "#"))
	if !ok || (after != "" && after[0] != ' ' && after[0] != '\t') {
		return nil, nil
	}

	args, err := splitPragmaArgs(after)
	if err != nil {
		return nil, fmt.Errorf("line %d: %v", lineNum, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty #pragma", lineNum)
	}

	switch args[0] {
	case string(PragmaTypeParameter):
		if len(args) < 6 || len(args) > 7 {
			return nil, fmt.Errorf("line %d: #pragma parameter requires a name, a quoted label, default, min, max and an optional step", lineNum)
		}
		if !isIdentifier(args[1]) {
			return nil, fmt.Errorf("line %d: invalid parameter name %q", lineNum, args[1])
		}
		values := make([]float32, 0, 4)
		for _, a := range args[3:] {
			f, err := strconv.ParseFloat(strings.TrimSuffix(a, "f"), 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid number %q in #pragma parameter %s: %v", lineNum, a, args[1], err)
			}
			values = append(values, float32(f))
		}
		p := Parameter{
			Name:    args[1],
			Label:   args[2],
			Default: values[0],
			Min:     values[1],
			Max:     values[2],
		}
		if len(values) == 4 {
			p.Step = values[3]
		}
		if p.Min > p.Max {
			return nil, fmt.Errorf("line %d: #pragma parameter %s has min %g above max %g", lineNum, p.Name, p.Min, p.Max)
		}
		return &Pragma{Type: PragmaTypeParameter, Line: lineNum, Parameter: p}, nil
	case string(PragmaTypeStage):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: #pragma stage requires exactly one argument", lineNum)
		}
		switch args[1] {
		case "vertex":
			return &Pragma{Type: PragmaTypeStage, Line: lineNum, Stage: StageVertex}, nil
		case "fragment":
			return &Pragma{Type: PragmaTypeStage, Line: lineNum, Stage: StageFragment}, nil
		}
		return nil, fmt.Errorf("line %d: unknown stage %q in #pragma stage", lineNum, args[1])
	case string(PragmaTypeName):
		if len(args) != 2 || !isIdentifier(args[1]) {
			return nil, fmt.Errorf("line %d: #pragma name requires exactly one identifier", lineNum)
		}
		return &Pragma{Type: PragmaTypeName, Line: lineNum, Name: args[1]}, nil
	case string(PragmaTypeFormat):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: #pragma format requires exactly one argument", lineNum)
		}
		f, err := common.ParsePixelFormat(args[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", lineNum, err)
		}
		return &Pragma{Type: PragmaTypeFormat, Line: lineNum, Format: f}, nil
	default:
		return nil, nil
	}
}

// splitPragmaArgs splits pragma arguments on blanks, keeping double-quoted labels whole.
func splitPragmaArgs(s string) ([]string, error) {
	var args []string
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return args, nil
		}
		if s[0] == '"' {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated string in #pragma")
			}
			args = append(args, s[1:end+1])
			s = s[end+2:]
			continue
		}
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			end = len(s)
		}
		args = append(args, s[:end])
		s = s[end:]
	}
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}
