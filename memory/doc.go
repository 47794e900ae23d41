// Package memory contains concrete core.HistoryStore implementations holding
// per-(agent, project) conversation turns. Depend on core.HistoryStore in your
// code and select an implementation at wiring time.
package memory
