package effectpy

// Name identifies a computation, fiber, layer, or scope for debugging,
// annotation, and structured logging. Using a distinct type instead of a
// bare string encourages declaring names as package-level constants.
type Name = string

// FiberID is a monotonically increasing identity assigned to every forked
// Fiber. The zero value never names a real fiber.
type FiberID uint64
