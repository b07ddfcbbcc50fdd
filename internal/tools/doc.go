// Package tools holds the process-wide tool registry, the argument
// validator that enforces each tool's allow-list, and the dispatcher that
// drives an invocation from receipt to a structured result.
//
// The registry is built once at startup and is read-only afterwards.
// Tool variants form a closed set (search, patch, cli); dispatch looks a
// tool up by name and switches on its variant to build the command.
package tools
