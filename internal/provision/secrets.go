package provision

import (
	"context"
	"fmt"
	"os"

	"github.com/theblitlabs/parity-provision/internal/remote"
)

// SecretsStore manages the shell-sourceable secrets file on the host. Values
// are only ever read by remote expansion.
type SecretsStore struct {
	*Provisioner
}

// Upload copies a local secrets file to the target and restricts it to the
// login user.
func (s *SecretsStore) Upload(ctx context.Context, localFile string) error {
	if _, err := os.Stat(localFile); err != nil {
		return fmt.Errorf("secrets file: %w", err)
	}
	if err := s.exec.Put(ctx, localFile, s.target.SecretsFile, remote.PutOptions{}); err != nil {
		return err
	}
	return s.run(ctx, remote.Cmd("chmod", "600", s.target.SecretsFile))
}

// Read expands each variable after sourcing the secrets file.
func (s *SecretsStore) Read(ctx context.Context, names ...string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	for _, name := range names {
		cmd := remote.Cmd("echo").Append(remote.Var(name)).Source(s.target.SecretsFile)
		v, err := remote.Output(ctx, s.exec, cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from secrets: %w", name, err)
		}
		if v == "" {
			return nil, fmt.Errorf("%s is not set in %s", name, s.target.SecretsFile)
		}
		values[name] = v
	}
	return values, nil
}
