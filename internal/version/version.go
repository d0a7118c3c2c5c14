package version

import (
	"strings"

	"github.com/fatih/color"
)

// Version information for the tracec CLI.
// These variables can be overridden at build time via -ldflags.
var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var partColors = []color.Attribute{color.FgYellow, color.FgGreen, color.FgBlue}

// Banner renders "tracec <version>" with the major, minor and patch parts
// colored when colored is set, followed by commit and build date lines
// when they are known.
func Banner(colored bool) string {
	core, suffix, _ := strings.Cut(Version, "-")
	parts := strings.SplitN(core, ".", 3)
	for i, p := range parts {
		c := color.New(partColors[i], color.Bold)
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		parts[i] = c.Sprint(p)
	}
	v := strings.Join(parts, ".")
	if suffix != "" {
		v += "-" + suffix
	}

	var sb strings.Builder
	sb.WriteString("tracec " + v)
	if GitCommit != "" {
		sb.WriteString("\ncommit: " + GitCommit)
	}
	if BuildDate != "" {
		sb.WriteString("\nbuilt:  " + BuildDate)
	}
	return sb.String()
}
