package health

import (
	"fmt"
	"os"
	"runtime/debug"
)

// buildIdentity is resolved per call: environment overrides win, then
// whatever the Go toolchain embedded, then placeholders.
type buildIdentity struct {
	version  string
	revision string
	modified bool
}

func resolveBuildIdentity() buildIdentity {
	identity := buildIdentity{
		version:  "dev",
		revision: "unknown",
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			identity.version = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				identity.revision = setting.Value
			case "vcs.modified":
				identity.modified = setting.Value == "true"
			}
		}
	}

	if v := os.Getenv("BUILD_VERSION"); v != "" {
		identity.version = v
	}
	if v := os.Getenv("BUILD_COMMIT"); v != "" {
		identity.revision = v
	}

	return identity
}

func getBuildInfo() string {
	identity := resolveBuildIdentity()

	revision := identity.revision
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if identity.modified {
		revision += "-dirty"
	}

	return fmt.Sprintf("%s-%s", identity.version, revision)
}
