// Command intakectl runs operator tasks against the intake pipeline:
// database migrations, dependency checks, local PDF rendering and blob
// retention cleanup.
package main
