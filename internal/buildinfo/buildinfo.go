// Package buildinfo carries version stamps injected at link time.
package buildinfo

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "agent":   "dispatchd",
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
}

