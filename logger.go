package rules

import "github.com/temitayocharles/healthcare-naija/logger"

// Logger is re-exported so engine consumers don't need a second import.
type Logger = logger.Logger
