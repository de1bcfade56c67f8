package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rendis/cmdkit/internal/cleanup"
	"github.com/rendis/cmdkit/internal/skills"
)

var k8sCmd = &cobra.Command{
	Use:   "k8s",
	Short: "Kubernetes helpers",
}

var k8sDebugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Open a shell in an ephemeral debug pod that is deleted on exit or after --ttl",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		ns, _ := f.GetString("namespace")
		image, _ := f.GetString("image")
		pod, _ := f.GetString("pod")
		shell, _ := f.GetString("shell")
		ttl, _ := f.GetDuration("ttl")
		keep, _ := f.GetBool("keep")

		if ttl < time.Second {
			return fmt.Errorf("--ttl must be at least 1s")
		}
		if pod == "" {
			pod = "cmdkit-debug-" + uuid.NewString()[:8]
		}
		target := map[string]string{"pod": pod, "namespace": ns}
		ctx := cmd.Context()
		stderr := cmd.ErrOrStderr()

		start := map[string]string{
			"pod":         pod,
			"namespace":   ns,
			"image":       image,
			"ttl_seconds": strconv.Itoa(int(ttl.Seconds())),
		}
		if err := runSkill(ctx, "k8s.debug", start); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "debug pod %s/%s started (ttl %s)\n", ns, pod, ttl)

		timers := cleanup.New(app.logger)
		deletePod := func(ctx context.Context) error {
			return runSkill(ctx, "k8s.delete_pod", target)
		}
		if err := timers.Schedule(pod, ttl, deletePod); err != nil {
			return err
		}
		defer func() {
			if keep && timers.Cancel(pod) {
				fmt.Fprintf(stderr, "debug pod %s/%s kept; it exits on its own after %s\n", ns, pod, ttl)
			}
			if err := timers.Close(context.WithoutCancel(ctx)); err != nil {
				fmt.Fprintf(stderr, "cleanup failed: %v\n", err)
				return
			}
			if !keep {
				fmt.Fprintf(stderr, "debug pod %s/%s deleted\n", ns, pod)
			}
		}()

		if err := runSkill(ctx, "k8s.wait_ready", target); err != nil {
			return err
		}

		sh := exec.CommandContext(ctx, skills.ToolKubectl, "exec", "-it", "-n", ns, pod, "--", shell)
		sh.Stdin = os.Stdin
		sh.Stdout = os.Stdout
		sh.Stderr = os.Stderr
		if err := sh.Run(); err != nil {
			// The shell's own exit status belongs to the user's session.
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return fmt.Errorf("attach to %s: %w", pod, err)
			}
		}
		return nil
	},
}

// runSkill runs a skill and turns a non-zero exit into an error.
func runSkill(ctx context.Context, name string, params map[string]string) error {
	inv, err := app.skills.Run(ctx, name, params, nil)
	if err != nil {
		return err
	}
	if !inv.Success() {
		return fmt.Errorf("%s failed: %s", inv.Command, strings.TrimSpace(inv.Stderr))
	}
	return nil
}

func init() {
	f := k8sDebugCmd.Flags()
	f.StringP("namespace", "n", "default", "namespace for the debug pod")
	f.String("image", skills.DefaultDebugImage, "debug container image")
	f.String("pod", "", "pod name (default cmdkit-debug-<random>)")
	f.String("shell", "sh", "shell to start in the pod")
	f.Duration("ttl", time.Hour, "delete the pod after this long even if the session is still open")
	f.Bool("keep", false, "leave the pod running on exit until its ttl passes")

	k8sCmd.AddCommand(k8sDebugCmd)
}
