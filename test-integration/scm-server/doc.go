// Package integration runs the scm-server in process against a configuration
// file and exercises the REST API, the repository commands and the hook
// endpoint end to end.
package integration
