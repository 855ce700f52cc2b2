package ir

// Rule is the command a Build runs to produce its outputs. Commands arrive
// already fully variable-interpolated by the (out-of-scope) compiler; the
// engine never substitutes variables itself.
type Rule struct {
	Command     string
	Description string
}
