// Package logging provides a simple leveled logging interface for the
// media library tools, backed by a zap console logger.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to debug with DEBUG=true. SetOutput tees output into a second
// writer such as the library's log file.
package logging
