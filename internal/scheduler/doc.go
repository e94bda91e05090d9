// Package scheduler decides when the pipeline runs. Each tick checks whether
// the clock sits inside a publish window, whether today's quota still has
// room and whether the window was already used, then asks the orchestrator
// for at most one run. The weekly report is triggered the same way. Run
// drives ticks from a robfig/cron @every entry.
package scheduler
