package scanner

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"engram/internal/logging"
)

// defaultCloneTimeout bounds a remote clone's wall clock.
const defaultCloneTimeout = 5 * time.Minute

// IsRemoteTarget reports whether target looks like a git URL rather
// than a local path.
func IsRemoteTarget(target string) bool {
	return strings.HasPrefix(target, "http://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "git@") ||
		strings.HasPrefix(target, "ssh://")
}

// resolveTarget turns the scan target into a readable local root. For
// remote targets that means a shallow clone into a temp directory; the
// returned cleanup removes it no matter how the scan ends.
func resolveTarget(ctx context.Context, opts Options) (string, func(), error) {
	if !IsRemoteTarget(opts.Target) {
		info, err := os.Stat(opts.Target)
		if err != nil {
			return "", nil, &TargetError{Target: opts.Target, Err: err}
		}
		if !info.IsDir() {
			return "", nil, &TargetError{Target: opts.Target, Err: fmt.Errorf("not a directory")}
		}
		return opts.Target, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "engram-scan-*")
	if err != nil {
		return "", nil, &TargetError{Target: opts.Target, Err: err}
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logging.Get(logging.CategoryScanner).Warn("Failed to remove clone dir %s: %v", dir, err)
		}
	}
	if err := cloneRemote(ctx, opts, dir); err != nil {
		cleanup()
		return "", nil, &TargetError{Target: opts.Target, Err: err}
	}
	return dir, cleanup, nil
}

func cloneRemote(ctx context.Context, opts Options, dir string) error {
	timeout := opts.Remote.Timeout
	if timeout <= 0 {
		timeout = defaultCloneTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	depth := opts.Remote.Depth
	if depth <= 0 {
		depth = 1
	}
	args := []string{"clone", "--depth", fmt.Sprintf("%d", depth), "--single-branch"}
	if opts.Remote.Branch != "" {
		args = append(args, "--branch", opts.Remote.Branch)
	}
	cloneURL, err := injectCredential(opts.Target, opts.Credential)
	if err != nil {
		return err
	}
	args = append(args, cloneURL, dir)

	logging.Scanner("Cloning %s (depth=%d, branch=%q)", opts.Target, depth, opts.Remote.Branch)
	cmd := exec.CommandContext(ctx, "git", args...)
	// The URL may carry a credential; keep git from prompting instead
	// of failing when it is wrong or missing.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, sanitize(string(out), opts.Credential))
	}
	return nil
}

// injectCredential rewrites an https URL to carry the credential.
// "user:pass" becomes basic auth; a bare token becomes the username,
// which is how git hosts accept personal access tokens.
func injectCredential(target, credential string) (string, error) {
	if credential == "" || !strings.HasPrefix(target, "https://") {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid clone url: %w", err)
	}
	if user, pass, ok := strings.Cut(credential, ":"); ok {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(credential)
	}
	return u.String(), nil
}

// sanitize scrubs the credential out of command output before it can
// reach an error message or log line.
func sanitize(out, credential string) string {
	out = strings.TrimSpace(out)
	if credential == "" {
		return out
	}
	return strings.ReplaceAll(out, credential, "****")
}
