// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The Coordinator runs chat turns, IngestService and RetrievalService
// maintain and query the chunk store, and SettingsService maps the config
// file onto typed settings.
package services
