package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hostguard-dev/hostguard/host"
	"github.com/hostguard-dev/hostguard/infrastructure/approvalstore"
	"github.com/hostguard-dev/hostguard/infrastructure/auditlog"
	"github.com/hostguard-dev/hostguard/infrastructure/promptercli"
	"github.com/hostguard-dev/hostguard/lifecycle"
	"github.com/hostguard-dev/hostguard/sandbox"
)

var (
	installSource string
	runPayload    string
	auditPath     string
)

func configDir() string {
	return filepath.Join(os.Getenv("HOME"), ".hostguard")
}

func newManager() *lifecycle.Manager {
	return lifecycle.NewManager(
		lifecycle.WithApprovalStore(approvalstore.NewFileStore()),
		lifecycle.WithPrompter(promptercli.NewCliPrompter(os.Stdin, os.Stderr)),
		lifecycle.WithManagerLogger(slog.New(logger)),
	)
}

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <package>",
		Short: "Validate a plugin package and review its permissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newManager().Install(args[0], lifecycle.SourceType(installSource))
			if err != nil {
				return err
			}

			logger.Info("package valid",
				"plugin", result.Manifest.Identity(),
				"risk", result.Risk.String())
			for _, notice := range result.Notices {
				logger.Warn(notice)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&installSource, "source", string(lifecycle.SourceLocal),
		"package source: local, vcs, or registry")
	return cmd
}

func newApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <package>",
		Short: "Run the first-run consent flow for a plugin package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := lifecycle.OpenPackage(args[0])
			if err != nil {
				return err
			}
			if err := pkg.Validate(); err != nil {
				return err
			}
			if err := newManager().EnsureApproved(pkg.Manifest); err != nil {
				return err
			}
			logger.Info("plugin approved", "plugin", pkg.Manifest.Identity())
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <package> <function>",
		Short: "Invoke one exported function of an installed plugin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			manager := newManager()

			result, err := manager.Install(args[0], lifecycle.SourceLocal)
			if err != nil {
				return err
			}
			if err := manager.EnsureApproved(result.Manifest); err != nil {
				return err
			}

			sb, err := sandbox.New(result.Manifest)
			if err != nil {
				return err
			}

			auditFile, err := auditlog.OpenCBORFile(auditPath)
			if err != nil {
				return err
			}
			defer auditFile.Close()
			sink := auditlog.NewWriter(auditFile)
			defer sink.Close()

			executor, err := host.NewExecutor(ctx, sb,
				host.WithAuditSink(sink),
				host.WithLogger(slog.New(logger)))
			if err != nil {
				return err
			}
			defer executor.Close(ctx)

			if err := executor.Load(ctx, result.Module); err != nil {
				return err
			}

			out, err := executor.Invoke(ctx, args[1], []byte(runPayload))
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&runPayload, "payload", "", "JSON payload passed to the function")
	cmd.Flags().StringVar(&auditPath, "audit-file", filepath.Join(configDir(), "audit.cbor"),
		"path of the CBOR audit trail")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema for plugin.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := lifecycle.ManifestSchema()
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
