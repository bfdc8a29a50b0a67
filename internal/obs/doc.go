// Package obs holds the observability plumbing shared by the server and the
// CLI: logrus configuration with rotated log files and an in-memory ring of
// recent log records. Export metrics live in the otel subpackage.
package obs
