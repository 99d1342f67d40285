package app

// Command is the application start mode.
type Command string

const (
	// CommandServe starts the API server.
	CommandServe Command = "serve"
	// CommandHealthcheck probes the running server.
	// Used as the Docker healthcheck in a distroless image.
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand parses the subcommand from the command-line arguments.
// Empty or unknown arguments fall back to CommandServe.
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
