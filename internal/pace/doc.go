// Package pace schedules outbound FreeD packets against the wall clock.
//
// A Player either replays a recorded sequence of timestamped packets,
// preserving their relative timing scaled by a speed factor, or drives a
// pattern generator at a fixed tick rate. Each Player runs once: Run owns
// the sink for its whole duration and closes it on every exit path.
//
// State machine:
//
//	Idle -> Running -> Completed
//	                -> Cancelled  (context done; not an error)
//	                -> Failed     (fatal sink error under StopOnError)
//
// With Loop enabled a completed replay pass re-anchors its start time and
// begins again instead of entering Completed.
package pace
