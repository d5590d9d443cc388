package prog

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// SocketEnv overrides the socket location of the daemon
const SocketEnv = "ADE_PROGD_SOCK"

// DefaultSocket is where the daemon of user uid listens when SocketEnv is
// not set
func DefaultSocket(uid string) string {
	return filepath.Join("/tmp", "ade-"+uid, "progd")
}

// SocketPath returns the socket the daemon of the current user listens on
func SocketPath() (string, error) {
	return socketPath(os.LookupEnv, os.UserHomeDir, currentUID)
}

func currentUID() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Uid, nil
}

func socketPath(
	lookupEnv func(string) (string, bool),
	homeDir func() (string, error),
	uid func() (string, error),
) (string, error) {
	if path, ok := lookupEnv(SocketEnv); ok && path != "" {
		rest, found := strings.CutPrefix(path, "~")
		if !found || (rest != "" && rest[0] != '/') {
			return path, nil
		}
		home, err := homeDir()
		if err != nil {
			return "", fmt.Errorf("cannot expand %s=%s: %w", SocketEnv, path, err)
		}
		return home + rest, nil
	}

	id, err := uid()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	return DefaultSocket(id), nil
}
