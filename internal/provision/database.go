package provision

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/lib/pq"

	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/remote"
)

const (
	pgHBA        = "/etc/postgresql/9.1/main/pg_hba.conf"
	postgresUser = "postgres"
)

// Credentials identify an application database and its owner role. An empty
// Password creates a role that relies on trust or peer authentication.
type Credentials struct {
	Name     string
	User     string
	Password string
}

func (c Credentials) Validate() error {
	if c.Name == "" || c.User == "" {
		return errors.New("database name and user are required")
	}
	return nil
}

// Database provisions PostgreSQL roles and databases.
type Database struct {
	*Provisioner
}

func (d *Database) psql(sql string) *remote.Command {
	return remote.Cmd("psql", "-c", sql).As(postgresUser)
}

// Setup creates the role and the database, each tolerated when it already
// exists, then relaxes local peer authentication to trust.
func (d *Database) Setup(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	role := d.psql(createRoleSQL(creds))
	if creds.Password != "" {
		role.Secret()
	}
	createDB := fmt.Sprintf("CREATE DATABASE %s WITH OWNER=%s TEMPLATE=template0 ENCODING='utf-8';",
		pq.QuoteIdentifier(creds.Name), pq.QuoteIdentifier(creds.User))

	if err := d.try(ctx, role); err != nil {
		return err
	}
	if err := d.try(ctx, d.psql(createDB)); err != nil {
		return err
	}

	peer, err := remote.Contains(ctx, d.exec, pgHBA, "peer", true)
	if err != nil {
		return err
	}
	if !peer {
		return nil
	}

	d.log.Info().Str("file", pgHBA).Msg("Switching peer authentication to trust")
	if err := d.run(ctx, remote.Cmd("sed", "-i.bak", "-e", "s/peer/trust/g", pgHBA).Sudo()); err != nil {
		return err
	}
	return d.Services().Restart(ctx, models.ServicePostgreSQL)
}

func createRoleSQL(creds Credentials) string {
	password := ""
	if creds.Password != "" {
		password = " PASSWORD " + pq.QuoteLiteral(creds.Password)
	}
	return fmt.Sprintf("CREATE ROLE %s WITH%s NOSUPERUSER CREATEDB NOCREATEROLE LOGIN;",
		pq.QuoteIdentifier(creds.User), password)
}

// FromSecrets provisions with credentials expanded from the remote secrets
// file.
func (d *Database) FromSecrets(ctx context.Context) error {
	v, err := d.Secrets().Read(ctx, "DATABASE_NAME", "DATABASE_USER", "DATABASE_PASSWORD")
	if err != nil {
		return err
	}
	return d.Setup(ctx, Credentials{Name: v["DATABASE_NAME"], User: v["DATABASE_USER"], Password: v["DATABASE_PASSWORD"]})
}

// FromSettings provisions with credentials from a local application settings
// file.
func (d *Database) FromSettings(ctx context.Context, settingsFile string) error {
	settings, err := LoadSettings(settingsFile)
	if err != nil {
		return err
	}
	creds, err := settings.DatabaseCredentials()
	if err != nil {
		return err
	}
	return d.Setup(ctx, creds)
}

// Dump writes a timestamped dump on the host, downloads it and archives the
// remote copy under ~/backups. It returns the local path. An empty name is
// read from the secrets file.
func (d *Database) Dump(ctx context.Context, name string) (string, error) {
	if name == "" {
		v, err := d.Secrets().Read(ctx, "DATABASE_NAME")
		if err != nil {
			return "", err
		}
		name = v["DATABASE_NAME"]
	}

	file := fmt.Sprintf("%s-%s.sql", name, d.clock.Now().Format("20060102-150405"))
	tmp := path.Join("/tmp", file)
	archiveDir := path.Join(d.target.Home, "backups")
	local := filepath.Join(d.cfg.Backups.LocalDir, file)

	if err := d.run(ctx, remote.Cmd("pg_dump", "--no-owner", "-f", tmp, name).As(postgresUser)); err != nil {
		return "", err
	}
	if err := d.exec.Get(ctx, tmp, local); err != nil {
		return "", err
	}

	archive := []*remote.Command{
		remote.Cmd("mkdir", "-p", archiveDir),
		remote.Cmd("mv", tmp, archiveDir).Sudo(),
		remote.Cmd("gzip", "-f", path.Join(archiveDir, file)).Sudo(),
	}
	for _, cmd := range archive {
		if err := d.run(ctx, cmd); err != nil {
			return "", err
		}
	}

	d.log.Info().Str("local", local).Str("archive", path.Join(archiveDir, file+".gz")).Msg("Database dumped")
	return local, nil
}
