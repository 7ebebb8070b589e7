package cliutil

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// CommandConfig holds configuration for a command
type CommandConfig struct {
	Use     string
	Aliases []string
	Short   string
	Long    string
	Example string

	// Args validates positional arguments. Nil accepts anything.
	Args      cobra.PositionalArgs
	ValidArgs []string

	// RunFunc is left nil for pure command groups.
	RunFunc func(cmd *cobra.Command, args []string) error

	Flags       map[string]Flag
	Subcommands []*cobra.Command
}

// Flag represents a command line flag
type Flag struct {
	Type        FlagType
	Shorthand   string
	Description string
	Required    bool

	DefaultString      string
	DefaultInt         int
	DefaultBool        bool
	DefaultStringSlice []string
}

type FlagType int

const (
	FlagTypeString FlagType = iota
	FlagTypeInt
	FlagTypeBool
	// FlagTypeStringSlice accepts repeated or comma separated values.
	FlagTypeStringSlice
)

// CreateCommand creates a new cobra command with the given configuration
func CreateCommand(config CommandConfig, log zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           config.Use,
		Aliases:       config.Aliases,
		Short:         config.Short,
		Long:          config.Long,
		Example:       config.Example,
		Args:          config.Args,
		ValidArgs:     config.ValidArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if config.RunFunc != nil {
		cmd.RunE = config.RunFunc
	}

	for name, flag := range config.Flags {
		switch flag.Type {
		case FlagTypeString:
			cmd.Flags().StringP(name, flag.Shorthand, flag.DefaultString, flag.Description)
		case FlagTypeInt:
			cmd.Flags().IntP(name, flag.Shorthand, flag.DefaultInt, flag.Description)
		case FlagTypeBool:
			cmd.Flags().BoolP(name, flag.Shorthand, flag.DefaultBool, flag.Description)
		case FlagTypeStringSlice:
			cmd.Flags().StringSliceP(name, flag.Shorthand, flag.DefaultStringSlice, flag.Description)
		}

		if flag.Required {
			if err := cmd.MarkFlagRequired(name); err != nil {
				log.Error().Err(err).Str("flag", name).Msg("Failed to mark flag as required")
			}
		}
	}

	cmd.AddCommand(config.Subcommands...)
	return cmd
}
