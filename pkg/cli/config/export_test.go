package config

// SetEngineFlags sets the flag-bound fields directly for tests
func (e *Engine) SetEngineFlags(retrievalStrategy, mergeStrategy, tuningPath string) {
	e.retrievalStrategy = retrievalStrategy
	e.mergeStrategy = mergeStrategy
	e.tuningPath = tuningPath
}

// SetBackend sets the repository backend for tests
func (r *Repository) SetBackend(backend string) {
	r.backend = backend
}
