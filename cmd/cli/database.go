package cli

import (
	"github.com/spf13/cobra"

	"github.com/theblitlabs/parity-provision/internal/provision"
)

func RunDatabaseSetup(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	user, _ := cmd.Flags().GetString("user")
	password, _ := cmd.Flags().GetString("password")
	creds := provision.Credentials{Name: name, User: user, Password: password}
	if err := creds.Validate(); err != nil {
		return err
	}
	return withSession(cmd.Context(), "", func(s *session) error {
		return s.prov.Database().Setup(cmd.Context(), creds)
	})
}

func RunDatabaseFromSecrets(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), "", func(s *session) error {
		return s.prov.Database().FromSecrets(cmd.Context())
	})
}

// RunDatabaseFromSettings provisions the database named in a local settings
// file, defaulting to ci.settings_file.
func RunDatabaseFromSettings(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), "", func(s *session) error {
		path := s.cfg.CI.SettingsFile
		if len(args) > 0 {
			path = args[0]
		}
		return s.prov.Database().FromSettings(cmd.Context(), path)
	})
}

// RunDatabaseDump dumps the named database, or the one named in the remote
// secrets file when no argument is given.
func RunDatabaseDump(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	return withSession(cmd.Context(), "", func(s *session) error {
		local, err := s.prov.Database().Dump(cmd.Context(), name)
		if err != nil {
			return err
		}
		s.log.Info().Str("path", local).Msg("Database dumped")
		return nil
	})
}

func RunBrokerSetup(cmd *cobra.Command, args []string) error {
	user, _ := cmd.Flags().GetString("user")
	password, _ := cmd.Flags().GetString("password")
	vhost, _ := cmd.Flags().GetString("vhost")
	return withSession(cmd.Context(), "", func(s *session) error {
		return s.prov.Broker().Setup(cmd.Context(), provision.BrokerCredentials{User: user, Password: password, VHost: vhost})
	})
}

func RunBrokerFromSecrets(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), "", func(s *session) error {
		return s.prov.Broker().FromSecrets(cmd.Context())
	})
}
