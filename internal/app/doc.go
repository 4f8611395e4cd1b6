// Package app provides the dashboard application layer.
//
// Service owns the workflow, task, agent and suggestion use cases and
// announces every change as an event. AgentSweeper marks agents offline once
// their heartbeats stop; with Redis configured only the elected leader sweeps.
package app
