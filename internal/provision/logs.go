package provision

import (
	"context"
	"fmt"

	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/remote"
)

type Viewer string

const (
	ViewerTail Viewer = "tail"
	ViewerTac  Viewer = "tac"
	ViewerCat  Viewer = "cat"
)

// Logs pages remote log files.
type Logs struct {
	*Provisioner
}

// Command builds the viewer command for a log identifier or literal path.
func (l *Logs) Command(viewer Viewer, name string, useSudo bool) (*remote.Command, error) {
	logPath := models.ResolveLog(name, l.target)

	var cmd *remote.Command
	switch viewer {
	case ViewerTail:
		cmd = remote.Cmd("tail", "-f", logPath)
	case ViewerTac:
		cmd = remote.Cmd("tac", logPath).Pipe(remote.Cmd("less"))
	case ViewerCat:
		cmd = remote.Cmd("cat", logPath).Pipe(remote.Cmd("less"))
	default:
		return nil, fmt.Errorf("unknown log viewer %q", viewer)
	}
	if useSudo {
		cmd.Sudo()
	}
	return cmd.Interactive(), nil
}

func (l *Logs) View(ctx context.Context, viewer Viewer, name string, useSudo bool) error {
	cmd, err := l.Command(viewer, name, useSudo)
	if err != nil {
		return err
	}
	return l.run(ctx, cmd)
}
