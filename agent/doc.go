// Package agent contains the agent registry and first-class agent
// implementations for NovelMesh. The package focuses on three concerns:
//
//  1. Agent configuration as data (Spec, Catalog, LoadCatalog)
//  2. Construction by name for a project (Factory implements core.AgentFactory)
//  3. Concrete agents: the model-backed ModelAgent and the function adapter FuncAgent
//
// Agents are opaque to the engine: each receives a *core.SystemState and
// returns a core.Update, or an error (preferably *core.AgentExecutionError).
package agent
