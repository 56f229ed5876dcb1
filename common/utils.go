package common

// PackageName is used as the metrics namespace.
const PackageName = "onboarding"

// Version is overridden at build time via -ldflags.
var Version = "dev"
