package effectpy

// Unit is the type of a computation run purely for its effects. It is the
// empty struct idiom, not a data-type convenience in the sense excluded by
// the out-of-scope list (optional/either/result/chunk) — it carries no
// API surface of its own.
type Unit = struct{}

// unit is the single value of Unit.
var unit Unit
