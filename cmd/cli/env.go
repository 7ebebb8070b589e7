package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// RunEnv prints the resolved target without connecting.
func RunEnv(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	env := ""
	if len(args) > 0 {
		env = args[0]
	}
	t, err := selectTarget(cfg, env)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"environment", t.Env.String()},
		{"address", t.Address()},
		{"user", t.User},
		{"key", t.KeyFile},
		{"home", t.Home},
		{"secrets", t.SecretsFile},
		{"repository", t.Repository},
	}
	if t.HasProject() {
		rows = append(rows,
			[2]string{"project", t.ProjectRoot},
			[2]string{"django", t.DjangoRoot},
			[2]string{"virtualenv", t.VirtualenvDir},
		)
	}
	if t.SearchIndexDir != "" {
		rows = append(rows, [2]string{"search index", t.SearchIndexDir})
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\n", r[0], r[1])
	}
	return w.Flush()
}

func RunTestConnect(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), "", func(s *session) error {
		if err := s.prov.TestConnect(cmd.Context()); err != nil {
			return err
		}
		s.log.Info().Str("target", describeTarget(s.target)).Msg("Connection OK")
		return nil
	})
}
