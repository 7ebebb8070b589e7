package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/provision"
)

// RunInstall installs a named component, or the given apt packages.
func RunInstall(cmd *cobra.Command, args []string) error {
	list, _ := cmd.Flags().GetBool("list")
	if list {
		s, err := openSession(cmd.Context(), "", true)
		if err != nil {
			return err
		}
		defer s.Close()
		for _, name := range s.prov.Installer().ComponentNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("nothing to install, name a component or packages (see --list)")
	}

	return withSession(cmd.Context(), "", func(s *session) error {
		inst := s.prov.Installer()
		if len(args) == 1 {
			if _, ok := inst.Components()[args[0]]; ok {
				return inst.InstallComponent(cmd.Context(), args[0])
			}
		}
		return inst.Install(cmd.Context(), args...)
	})
}

// RunService runs `service <name> <action>` on the target.
func RunService(cmd *cobra.Command, args []string) error {
	svc, err := models.ParseService(args[0])
	if err != nil {
		return err
	}
	action, err := models.ParseAction(args[1])
	if err != nil {
		return err
	}
	return withSession(cmd.Context(), "", func(s *session) error {
		if err := s.prov.Services().Control(cmd.Context(), svc, action); err != nil {
			return err
		}
		s.log.Info().Str("service", string(svc)).Str("action", string(action)).Msg("Service command completed")
		return nil
	})
}

// RunLogs pages a remote log: logs <tail|tac|cat> <log>.
func RunLogs(cmd *cobra.Command, args []string) error {
	list, _ := cmd.Flags().GetBool("list")
	if list {
		ids := models.LogIDs()
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = string(id)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: logs <tail|tac|cat> <log>")
	}
	useSudo, _ := cmd.Flags().GetBool("sudo")

	return withSession(cmd.Context(), "", func(s *session) error {
		return s.prov.Logs().View(cmd.Context(), provision.Viewer(args[0]), args[1], useSudo)
	})
}

func RunSecretsUpload(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), "", func(s *session) error {
		if err := s.prov.Secrets().Upload(cmd.Context(), args[0]); err != nil {
			return err
		}
		s.log.Info().Str("path", s.target.SecretsFile).Msg("Secrets uploaded")
		return nil
	})
}

func RunKeysAdd(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), "", func(s *session) error {
		return s.prov.Keys().AddDeployKey(cmd.Context(), "", s.target.Home)
	})
}

func RunCreateSuperuser(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), "", func(s *session) error {
		return s.prov.Django().CreateSuperuser(cmd.Context())
	})
}

func RunDjangoShell(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), "", func(s *session) error {
		return s.prov.Django().ShellSession(cmd.Context())
	})
}
