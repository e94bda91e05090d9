// Package workflow drives work items through the fixed stage sequence
// generate, illustrate, gate, publish, announce.
//
// The Orchestrator claims an item from the queue store, runs each stage
// handler under its configured timeout, applies the stage failure policy and
// records the outcome: the item's final status, a Scheduler Log event and a
// push notification. It is also the only component that moves documents
// between lifecycle directories (draft to approved or review after the gate,
// approved to published after a successful publish).
//
// Entry points:
//   - RunNext claims and runs the next eligible item
//   - Run runs an already claimed item
//   - Resume re-enters the sequence at a later stage for a staged or failed item
//   - PublishApproved replays publish and announce for staged items whose
//     document waits in the approved directory
package workflow
