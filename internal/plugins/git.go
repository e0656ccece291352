// Package plugins implements the plugin installer: Git-backed marketplace
// synchronization into an on-disk cache, manifest parsing, and install/
// uninstall of a plugin's declared artifacts into shared content roots.
package plugins

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// gitRunner shells out to the git binary, grounded on the same
// exec.Command + cmd.Dir + CombinedOutput idiom used for dev-automation
// branch management elsewhere in the retrieved pack: no git-plumbing
// library appears anywhere in it, so the binary is the idiomatic choice.
type gitRunner struct{}

func (gitRunner) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w, output: %s", strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}

func (g gitRunner) cloneShallow(ctx context.Context, url, branch, dest string) error {
	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dest)
	// dest doesn't exist yet, so no cmd.Dir is set here: clone runs in the
	// process's working directory and dest is passed as its target path.
	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone %s: %w, output: %s", url, err, string(out))
	}
	return nil
}

func (g gitRunner) fastForward(ctx context.Context, dir, branch string) error {
	if branch != "" {
		if _, err := g.run(ctx, dir, "checkout", branch); err != nil {
			return err
		}
	}
	if _, err := g.run(ctx, dir, "fetch", "--depth", "1", "origin"); err != nil {
		return err
	}
	ref := "origin/HEAD"
	if branch != "" {
		ref = "origin/" + branch
	}
	_, err := g.run(ctx, dir, "reset", "--hard", ref)
	return err
}
