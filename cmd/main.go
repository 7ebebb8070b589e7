package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/parity-provision/cmd/cli"
	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/utils/cliutil"
	"github.com/theblitlabs/parity-provision/internal/utils/contextutil"
	"github.com/theblitlabs/parity-provision/internal/utils/errorutil"
	"github.com/theblitlabs/parity-provision/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "parity-provision",
	Short: "Parity Provision",
	Long:  `Provision and deploy a Django application stack over SSH, one environment at a time`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.InitWithMode(logger.ParseMode(cli.Global.LogMode))
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := contextutil.WithInterrupt(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(errorutil.ExitCode(err))
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cli.Global.ConfigPath, "config", cli.DefaultConfigPath, "Path to the provisioning config")
	flags.StringVarP(&cli.Global.Env, "env", "e", "", "Target environment: development, staging, production, ci")
	flags.StringVar(&cli.Global.LogMode, "log", "pretty", "Log mode: debug, pretty, info, prod, test")
	flags.BoolVar(&cli.Global.DryRun, "dry-run", false, "Print remote commands instead of running them")
	flags.BoolVarP(&cli.Global.AssumeYes, "yes", "y", false, "Answer yes to every confirmation")

	log := logger.WithComponent("cli")
	pipelineFlags := map[string]cliutil.Flag{
		"only": {Type: cliutil.FlagTypeStringSlice, Description: "Run only these steps, in pipeline order"},
		"list": {Type: cliutil.FlagTypeBool, Description: "List the steps and exit"},
	}

	rootCmd.AddCommand(
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:       "env [environment]",
			Short:     "Show the resolved target for an environment",
			Args:      cobra.MaximumNArgs(1),
			ValidArgs: []string{"development", "staging", "production", "ci"},
			RunFunc:   cli.RunEnv,
		}, log),
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:     "test-connect",
			Short:   "Check the target is reachable",
			Args:    cobra.NoArgs,
			RunFunc: cli.RunTestConnect,
		}, log),
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:     "install [component | packages...]",
			Short:   "Install a named component or apt packages",
			Example: "  parity-provision -e staging install postgres\n  parity-provision -e staging install htop tree",
			RunFunc: cli.RunInstall,
			Flags: map[string]cliutil.Flag{
				"list": {Type: cliutil.FlagTypeBool, Description: "List the named components"},
			},
		}, log),
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:     "service <name> <start|stop|restart>",
			Short:   "Control a system service",
			Long:    "Control a system service. Names: " + strings.Join(serviceNames(), ", "),
			Args:    cobra.ExactArgs(2),
			RunFunc: cli.RunService,
		}, log),
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:     "logs <tail|tac|cat> <log>",
			Short:   "View a remote log by name or path",
			Args:    cobra.MaximumNArgs(2),
			RunFunc: cli.RunLogs,
			Flags: map[string]cliutil.Flag{
				"sudo": {Type: cliutil.FlagTypeBool, DefaultBool: true, Description: "Read the log as root"},
				"list": {Type: cliutil.FlagTypeBool, Description: "List the known log names"},
			},
		}, log),
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:   "database",
			Short: "Provision and back up PostgreSQL databases",
			Subcommands: []*cobra.Command{
				cliutil.CreateCommand(cliutil.CommandConfig{
					Use:     "setup",
					Short:   "Create a role and database",
					Args:    cobra.NoArgs,
					RunFunc: cli.RunDatabaseSetup,
					Flags: map[string]cliutil.Flag{
						"name":     {Type: cliutil.FlagTypeString, Description: "Database name", Required: true},
						"user":     {Type: cliutil.FlagTypeString, Description: "Owner role", Required: true},
						"password": {Type: cliutil.FlagTypeString, Description: "Owner password, empty for trust authentication"},
					},
				}, log),
				cliutil.CreateCommand(cliutil.CommandConfig{
					Use:     "from-secrets",
					Short:   "Create the database named in the remote secrets file",
					Args:    cobra.NoArgs,
					RunFunc: cli.RunDatabaseFromSecrets,
				}, log),
				cliutil.CreateCommand(cliutil.CommandConfig{
					Use:     "from-settings [file]",
					Short:   "Create the database named in a local settings file",
					Args:    cobra.MaximumNArgs(1),
					RunFunc: cli.RunDatabaseFromSettings,
				}, log),
				cliutil.CreateCommand(cliutil.CommandConfig{
					Use:     "dump [database]",
					Short:   "Dump a database and download it, named by DATABASE_NAME in the secrets file by default",
					Args:    cobra.MaximumNArgs(1),
					RunFunc: cli.RunDatabaseDump,
				}, log),
			},
		}, log),
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:   "broker",
			Short: "Provision RabbitMQ",
			Subcommands: []*cobra.Command{
				cliutil.CreateCommand(cliutil.CommandConfig{
					Use:     "setup",
					Short:   "Create a broker user and vhost",
					Args:    cobra.NoArgs,
					RunFunc: cli.RunBrokerSetup,
					Flags: map[string]cliutil.Flag{
						"user":     {Type: cliutil.FlagTypeString, Description: "Broker user", Required: true},
						"password": {Type: cliutil.FlagTypeString, Description: "Broker password", Required: true},
						"vhost":    {Type: cliutil.FlagTypeString, Description: "Virtual host", Required: true},
					},
				}, log),
				cliutil.CreateCommand(cliutil.CommandConfig{
					Use:     "from-secrets",
					Short:   "Create the broker user named in the remote secrets file",
					Args:    cobra.NoArgs,
					RunFunc: cli.RunBrokerFromSecrets,
				}, log),
			},
		}, log),
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:     "deploy",
			Short:   "Deploy the application to --env",
			Example: "  parity-provision -e staging deploy\n  parity-provision -e production deploy --only supervisor,nginx",
			Args:    cobra.NoArgs,
			RunFunc: cli.RunDeploy,
			Flags:   pipelineFlags,
		}, log),
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:   "ci",
			Short: "Manage the CI server",
			Subcommands: []*cobra.Command{
				cliutil.CreateCommand(cliutil.CommandConfig{
					Use:     "bootstrap",
					Short:   "Install and configure the CI server",
					Args:    cobra.NoArgs,
					RunFunc: cli.RunCIBootstrap,
					Flags:   pipelineFlags,
				}, log),
			},
		}, log),
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:   "secrets",
			Short: "Manage the remote secrets file",
			Subcommands: []*cobra.Command{
				cliutil.CreateCommand(cliutil.CommandConfig{
					Use:     "upload <file>",
					Short:   "Upload a local secrets file",
					Args:    cobra.ExactArgs(1),
					RunFunc: cli.RunSecretsUpload,
				}, log),
			},
		}, log),
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:   "keys",
			Short: "Manage deploy keys",
			Subcommands: []*cobra.Command{
				cliutil.CreateCommand(cliutil.CommandConfig{
					Use:     "add",
					Short:   "Create a deploy key for the login user",
					Args:    cobra.NoArgs,
					RunFunc: cli.RunKeysAdd,
				}, log),
			},
		}, log),
		cliutil.CreateCommand(cliutil.CommandConfig{
			Use:   "django",
			Short: "Interactive management commands",
			Subcommands: []*cobra.Command{
				cliutil.CreateCommand(cliutil.CommandConfig{
					Use:     "createsuperuser",
					Short:   "Create an admin account",
					Args:    cobra.NoArgs,
					RunFunc: cli.RunCreateSuperuser,
				}, log),
				cliutil.CreateCommand(cliutil.CommandConfig{
					Use:     "shell",
					Short:   "Open a project shell",
					Args:    cobra.NoArgs,
					RunFunc: cli.RunDjangoShell,
				}, log),
			},
		}, log),
	)
}

func serviceNames() []string {
	names := make([]string, len(models.Services))
	for i, s := range models.Services {
		names[i] = string(s)
	}
	return names
}
