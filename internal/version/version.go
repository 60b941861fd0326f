// Package version holds build identity, overridden at link time:
//
//	go build -ldflags "-X github.com/you/chatvault/internal/version.Version=v0.3.0"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func String() string {
	return Version + " (" + Commit + ")"
}
