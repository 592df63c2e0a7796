package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/howard-nolan/codegate/internal/rules"
	"github.com/howard-nolan/codegate/internal/store"
)

// versionRunner answers `codegate version`.
type versionRunner struct{ version string }

func (r versionRunner) Run(ctx context.Context, args []string) (string, error) {
	return fmt.Sprintf("codegate %s", r.version), nil
}

// workspaceRunner answers `codegate workspace list|add|activate <name>`,
// mirroring the original's workspace CLI subcommand against the control
// plane's own store rather than a separate command path.
type workspaceRunner struct {
	store *store.Store
	reg   *rules.Registry
}

func (r workspaceRunner) Run(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "usage: codegate workspace list|add <name>|activate <name>", nil
	}
	switch args[0] {
	case "list":
		names := r.store.ListWorkspaces()
		return "workspaces:\n- " + strings.Join(names, "\n- "), nil
	case "add":
		if len(args) < 2 {
			return "usage: codegate workspace add <name>", nil
		}
		if err := r.store.CreateWorkspace(args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("created workspace %q", args[1]), nil
	case "activate":
		if len(args) < 2 {
			return "usage: codegate workspace activate <name>", nil
		}
		if err := r.store.SetActiveWorkspace(args[1]); err != nil {
			return "", err
		}
		r.reg.SetActive(args[1])
		return fmt.Sprintf("activated workspace %q", args[1]), nil
	default:
		return "unknown workspace subcommand: " + args[0], nil
	}
}

// customInstructionsRunner answers `codegate custom-instructions <text>`
// by echoing the text back together with the active workspace's name.
// The text is not stored anywhere and does not change any later
// request's system prompt.
type customInstructionsRunner struct {
	store *store.Store
}

func (r customInstructionsRunner) Run(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "usage: codegate custom-instructions <text>", nil
	}
	active := r.store.ActiveWorkspace()
	return fmt.Sprintf("custom instructions for workspace %q noted: %s", active, strings.Join(args, " ")), nil
}
