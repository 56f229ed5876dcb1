// Package clients provides a client for the onboarding HTTP API.
package clients
