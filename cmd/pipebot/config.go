package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scottdmilner/pipebot/internal/config"
	"github.com/scottdmilner/pipebot/internal/doctor"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and lock configuration",
	}
	cmd.AddCommand(newConfigCheckCmd())
	cmd.AddCommand(newConfigLockCmd())
	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	var strict bool
	var format string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate syntax, references and integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, envFile := globalPaths(cmd)
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}

			var result *doctor.Result
			cfg, err := config.Load(configPath)
			if err != nil {
				result = doctor.LoadFailure(err)
			} else {
				result = doctor.New(cfg, configPath).Validate()
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				s, err := doctor.FormatJSON(result)
				if err != nil {
					return fmt.Errorf("format result: %w", err)
				}
				fmt.Fprintln(out, s)
			case "human":
				printResult(out, result)
			default:
				return fmt.Errorf("unknown format %q (expected human or json)", format)
			}

			if !result.Valid {
				return &exitError{code: 1}
			}
			if strict && len(result.Warnings) > 0 {
				return &exitError{code: 2}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors (exit 2)")
	cmd.Flags().StringVar(&format, "format", "human", "Output format (human, json)")
	return cmd
}

// printResult renders a doctor result with terminal styling.
func printResult(w io.Writer, r *doctor.Result) {
	switch {
	case r.Valid && len(r.Warnings) == 0:
		fmt.Fprintln(w, okStyle.Render("Configuration valid."))
		return
	case r.Valid:
		fmt.Fprintln(w, okStyle.Render("Configuration valid")+dimStyle.Render(fmt.Sprintf(" (%d warning(s))", len(r.Warnings))))
	default:
		fmt.Fprintln(w, errStyle.Render("Configuration invalid")+
			dimStyle.Render(fmt.Sprintf(" (%d error(s), %d warning(s))", len(r.Errors), len(r.Warnings))))
	}

	for _, e := range r.Errors {
		fmt.Fprintln(w, "  "+errStyle.Render("ERROR")+" "+doctor.FormatIssue(e))
	}
	for _, i := range r.Warnings {
		fmt.Fprintln(w, "  "+warnStyle.Render("WARN ")+" "+doctor.FormatIssue(i))
	}
}

func newConfigLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Record the config file's BLAKE3 hash in " + config.ChecksumFile,
		Long: "Record the configuration file's BLAKE3 hash. Once locked, pipebot refuses\n" +
			"to start if the file changes until it is locked again.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := globalPaths(cmd)
			if configPath == "" {
				return fmt.Errorf("config lock needs --config; the built-in configuration cannot be locked")
			}

			manifest, err := config.WriteChecksums(configPath)
			if err != nil {
				return fmt.Errorf("lock config: %w", err)
			}

			name := filepath.Base(configPath)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", okStyle.Render("Locked"), configPath)
			fmt.Fprintf(out, "  %s %s\n", dimStyle.Render("blake3"), manifest.Hashes[name])
			fmt.Fprintf(out, "  %s %s\n", dimStyle.Render("wrote "), filepath.Join(filepath.Dir(configPath), config.ChecksumFile))
			return nil
		},
	}
}

func globalPaths(cmd *cobra.Command) (configPath, envFile string) {
	configPath, _ = cmd.Flags().GetString("config")
	envFile, _ = cmd.Flags().GetString("env-file")
	return configPath, envFile
}
