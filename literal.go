package anansi

// Literal is a value written verbatim into compiled statements instead of
// being bound as a parameter. Use it for computed right-hand sides, such
// as a column of a common table expression.
type Literal string

// String returns the literal text.
func (l Literal) String() string { return string(l) }
