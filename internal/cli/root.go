// Package cli implements the controllersync command line.
package cli

import (
	"context"
	"io/fs"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is the application version.
// This value is intended to be set at build time using ldflags.
// Example: go build -ldflags "-X github.com/soar/ControllerSync/internal/cli.Version=1.0.0"
var Version = "dev"

// Execute runs the command line with the given arguments.
func Execute(ctx context.Context, frontend fs.FS, args []string) error {
	cmd := NewRootCmd(viper.New(), frontend)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. Settings are read into v.
func NewRootCmd(v *viper.Viper, frontend fs.FS) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "controllersync",
		Short:         "Drive game controls from a physical controller at a realistic rate.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./controllersync.yaml)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newRunCmd(v, frontend, &cfgFile))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("controllersync %s\n", Version)
		},
	}
}
