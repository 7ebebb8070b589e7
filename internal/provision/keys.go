package provision

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/remote"
)

// Keys manages SSH deploy keys on the host.
type Keys struct {
	*Provisioner
}

func asAccount(cmd *remote.Command, account string) *remote.Command {
	if account == "" {
		return cmd
	}
	return cmd.As(account)
}

// AddDeployKey makes sure account (the login user when empty) has a key pair
// under home, prints the public key and optionally checks repository access.
func (k *Keys) AddDeployKey(ctx context.Context, account, home string) error {
	sshDir := path.Join(home, ".ssh")
	private := path.Join(sshDir, "id_rsa")
	public := private + ".pub"

	exists, err := remote.Exists(ctx, k.exec, public, true)
	if err != nil {
		return err
	}

	generate := !exists
	if exists && k.prompt.Confirm("Pub key already exists. Overwrite?", false) {
		generate = true
	}

	if generate {
		cmds := []*remote.Command{
			asAccount(remote.Cmd("mkdir", "-p", "-m", "700", sshDir), account),
			asAccount(remote.Cmd("rm", "-f", private, public), account),
			asAccount(remote.Cmd("ssh-keygen", "-q", "-t", "rsa", "-N", "", "-f", private), account),
		}
		for _, cmd := range cmds {
			if err := k.run(ctx, cmd); err != nil {
				return err
			}
		}
	}

	if err := k.run(ctx, asAccount(remote.Cmd("cat", public), account)); err != nil {
		return err
	}

	if k.prompt.Confirm("Update as deployment key? Make sure you added the public key as a deployment key on the repository host", true) {
		check := asAccount(remote.Cmd("git", "ls-remote", "-h", k.target.Repository, "HEAD"), account).Interactive()
		return k.run(ctx, check)
	}
	return nil
}

// EnvKeyResult lists what UploadEnvKeys did per environment.
type EnvKeyResult struct {
	Uploaded []models.EnvironmentType
	Skipped  []models.EnvironmentType
}

func (k *Keys) localKeyPath(filename string) (string, error) {
	if k.keyDir != "" {
		return filepath.Join(k.keyDir, filename), nil
	}
	return models.LocalKeyPath(filename)
}

// UploadEnvKeys copies each application environment's private key into the
// CI service account and accepts the host key as that account. A missing
// local key is a warning, not a failure.
func (k *Keys) UploadEnvKeys(ctx context.Context) (*EnvKeyResult, error) {
	account := k.cfg.CI.ServiceUser
	sshDir := path.Join(k.cfg.CI.ServiceHome, ".ssh")
	result := &EnvKeyResult{}

	for _, env := range models.Environments {
		ec, err := k.cfg.Environment(env.String())
		if err != nil {
			k.log.Warn().Err(err).Str("environment", env.String()).Msg("No host configured, skipping key")
			result.Skipped = append(result.Skipped, env)
			continue
		}

		local := ""
		if ec.KeyFilename != "" {
			if local, err = k.localKeyPath(ec.KeyFilename); err != nil {
				return result, err
			}
		}
		if _, err := os.Stat(local); err != nil {
			k.log.Warn().
				Str("environment", env.String()).
				Str("key", local).
				Msgf("Place your %s private key in ssh folder", env)
			result.Skipped = append(result.Skipped, env)
			continue
		}

		remoteKey := path.Join(sshDir, filepath.Base(local))
		if err := k.exec.Put(ctx, local, sshDir+"/", remote.PutOptions{UseSudo: true}); err != nil {
			return result, err
		}
		cmds := []*remote.Command{
			remote.Cmd("chown", account+":"+account, remoteKey).Sudo(),
			remote.Cmd("chmod", "600", remoteKey).Sudo(),
		}
		for _, cmd := range cmds {
			if err := k.run(ctx, cmd); err != nil {
				return result, err
			}
		}

		accept := remote.Cmd("ssh",
			"-o", "StrictHostKeyChecking=no",
			"-o", "BatchMode=yes",
			"-p", strconv.Itoa(ec.Port),
			"-i", remoteKey,
			fmt.Sprintf("%s@%s", ec.User, ec.Host),
			"true",
		).As(account)
		if err := k.try(ctx, accept); err != nil {
			return result, err
		}
		result.Uploaded = append(result.Uploaded, env)
	}
	return result, nil
}
