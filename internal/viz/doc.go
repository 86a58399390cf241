// Package viz provides the terminal viewer for live posterior
// sampling, built on the Bubble Tea framework.
//
// The viewer polls a [Feed] that the sampler writes draws into and
// shows per-chain progress plus trace previews of the intercept and
// residual sd.
//
// # Key Bindings
//
//	Q     - Quit (sampling continues in the background run)
//	Space - Pause/resume the trace refresh
package viz
