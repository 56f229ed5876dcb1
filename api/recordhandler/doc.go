// Package recordhandler serves the record onboarding endpoints.
package recordhandler
