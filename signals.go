package effectpy

import "github.com/zoobzio/capitan"

// Signal constants for effectpy runtime events.
// Signals follow the pattern: <component>.<event>.
const (
	// Fiber lifecycle signals.
	SignalFiberForked      capitan.Signal = "fiber.forked"
	SignalFiberDone        capitan.Signal = "fiber.done"
	SignalFiberInterrupted capitan.Signal = "fiber.interrupted"

	// Scope signals.
	SignalScopeClosed         capitan.Signal = "scope.closed"
	SignalScopeFinalizerFailed capitan.Signal = "scope.finalizer-failed"

	// Layer signals.
	SignalLayerBuildStart capitan.Signal = "layer.build-start"
	SignalLayerBuildDone  capitan.Signal = "layer.build-done"
	SignalLayerBuildError capitan.Signal = "layer.build-error"

	// Schedule signals.
	SignalScheduleContinue capitan.Signal = "schedule.continue"
	SignalScheduleHalt     capitan.Signal = "schedule.halt"

	// Channel signals.
	SignalChannelSaturated capitan.Signal = "channel.saturated"
	SignalChannelClosed    capitan.Signal = "channel.closed"

	// Pipeline signals.
	SignalPipelineStageStarted capitan.Signal = "pipeline.stage-started"
	SignalPipelineWorkerExited capitan.Signal = "pipeline.worker-exited"
	SignalPipelineStageError   capitan.Signal = "pipeline.stage-error"
	SignalPipelineDrained      capitan.Signal = "pipeline.drained"
)

// Common field keys, all primitive types to avoid custom struct
// serialization at the logging boundary.
var (
	FieldName        = capitan.NewStringKey("name")
	FieldError       = capitan.NewStringKey("error")
	FieldTimestamp   = capitan.NewFloat64Key("timestamp")
	FieldFiberID     = capitan.NewIntKey("fiber_id")
	FieldAttempt     = capitan.NewIntKey("attempt")
	FieldDelayMillis = capitan.NewFloat64Key("delay_ms")
	FieldStageIndex  = capitan.NewIntKey("stage_index")
	FieldWorkerCount = capitan.NewIntKey("worker_count")
	FieldQueueLen    = capitan.NewIntKey("queue_len")
	FieldCapacity    = capitan.NewIntKey("capacity")
)
