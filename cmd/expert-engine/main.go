// Command expert-engine is the issue pattern matching and remediation engine.
package main

import "github.com/k8s-ai-assistant/expert-engine/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
