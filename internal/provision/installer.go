package provision

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/theblitlabs/parity-provision/internal/remote"
)

// Installer wraps the package manager. Re-running relies on apt's own
// idempotence.
type Installer struct {
	*Provisioner
}

// Install installs OS packages. No packages is a no-op.
func (i *Installer) Install(ctx context.Context, pkgs ...string) error {
	if len(pkgs) == 0 {
		return nil
	}
	return i.run(ctx, remote.Cmd("apt-get", append([]string{"-y", "install"}, pkgs...)...).Sudo())
}

func (i *Installer) Update(ctx context.Context) error {
	return i.run(ctx, remote.Cmd("apt-get", "-y", "update").Sudo())
}

func (i *Installer) Git(ctx context.Context) error {
	return i.Install(ctx, "git")
}

func (i *Installer) Nginx(ctx context.Context) error {
	if err := i.Update(ctx); err != nil {
		return err
	}
	return i.Install(ctx, "nginx")
}

func (i *Installer) Postgres(ctx context.Context) error {
	if err := i.Install(ctx, "python-setuptools", "libpq-dev", "python-dev"); err != nil {
		return err
	}
	return i.Install(ctx, "postgresql-9.1", "python-psycopg2")
}

func (i *Installer) Memcached(ctx context.Context) error {
	return i.Install(ctx, "memcached")
}

func (i *Installer) Supervisor(ctx context.Context) error {
	return i.Install(ctx, "supervisor")
}

func (i *Installer) VirtualenvWrapper(ctx context.Context) error {
	if err := i.Install(ctx, "python-pip"); err != nil {
		return err
	}
	return i.run(ctx, remote.Cmd("pip", "install", "virtualenvwrapper").Sudo())
}

func (i *Installer) NPM(ctx context.Context) error {
	return i.Install(ctx, "npm")
}

// NPMGlobal installs a node package globally.
func (i *Installer) NPMGlobal(ctx context.Context, name string) error {
	return i.run(ctx, remote.Cmd("npm", "install", name, "-g").Sudo())
}

func (i *Installer) Sloccount(ctx context.Context) error {
	return i.Install(ctx, "sloccount")
}

func (i *Installer) Fonts(ctx context.Context) error {
	return i.Install(ctx, "ttf-dejavu")
}

const (
	jenkinsKeyURL     = "http://pkg.jenkins-ci.org/debian/jenkins-ci.org.key"
	jenkinsSource     = "deb http://pkg.jenkins-ci.org/debian binary/"
	jenkinsSourceList = "/etc/apt/sources.list.d/jenkins.list"
)

func (i *Installer) Jenkins(ctx context.Context) error {
	addKey := remote.Cmd("wget", "-q", "-O", "-", jenkinsKeyURL).
		Pipe(remote.Cmd("apt-key", "add", "-").Sudo())
	if err := i.run(ctx, addKey); err != nil {
		return err
	}

	addSource := remote.Cmd("echo", jenkinsSource).
		Pipe(remote.Cmd("tee", jenkinsSourceList).Sudo())
	if err := i.run(ctx, addSource); err != nil {
		return err
	}

	if err := i.Update(ctx); err != nil {
		return err
	}
	return i.Install(ctx, "jenkins")
}

// imageLibLinks are the shared objects PIL looks for in /usr/lib.
var imageLibLinks = []string{"libjpeg.so", "libz.so", "libfreetype.so"}

// ImageLibraries installs the headers the imaging library builds against
// and links the multiarch objects to where its build script looks.
func (i *Installer) ImageLibraries(ctx context.Context) error {
	if err := i.Install(ctx, "libjpeg8-dev", "zlib1g-dev", "libfreetype6-dev"); err != nil {
		return err
	}
	for _, lib := range imageLibLinks {
		link := remote.Cmd("ln", "-sf", path.Join("/usr/lib/x86_64-linux-gnu", lib), "/usr/lib/").Sudo()
		if err := i.run(ctx, link); err != nil {
			return err
		}
	}
	return nil
}

func (i *Installer) RabbitMQ(ctx context.Context) error {
	return i.Install(ctx, "rabbitmq-server")
}

// SearchIndex fetches and unpacks the search server distribution into the
// target's index directory.
func (i *Installer) SearchIndex(ctx context.Context) error {
	dir := i.target.SearchIndexDir
	if dir == "" {
		return errors.New("search index is not enabled for this project")
	}

	if err := i.Install(ctx, "openjdk-7-jre-headless"); err != nil {
		return err
	}

	archive := path.Join(i.target.Home, path.Base(i.cfg.SearchIndex.URL))
	steps := []*remote.Command{
		remote.Cmd("wget", "-q", "-O", archive, i.cfg.SearchIndex.URL),
		remote.Cmd("mkdir", "-p", dir),
		remote.Cmd("tar", "xzf", archive, "-C", dir, "--strip-components=1"),
		remote.Cmd("rm", "-f", archive),
	}
	for _, cmd := range steps {
		if err := i.run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// Additional installs the configured extra packages.
func (i *Installer) Additional(ctx context.Context) error {
	return i.Install(ctx, i.cfg.Packages.Additional...)
}

// Dependencies installs the application server stack, plus whatever the
// enabled features need.
func (i *Installer) Dependencies(ctx context.Context) error {
	steps := []func(context.Context) error{
		i.Git,
		i.Nginx,
		i.VirtualenvWrapper,
		i.Postgres,
		i.Memcached,
		i.Supervisor,
		i.NPM,
		func(ctx context.Context) error { return i.NPMGlobal(ctx, "yuglify") },
	}
	if i.cfg.Features.ImageLibrary {
		steps = append(steps, i.ImageLibraries)
	}
	if i.cfg.Features.TaskQueue {
		steps = append(steps, i.RabbitMQ)
	}
	if i.cfg.Features.SearchIndex {
		steps = append(steps, i.SearchIndex)
	}

	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Components maps installer names to operations for the CLI.
func (i *Installer) Components() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"git":               i.Git,
		"nginx":             i.Nginx,
		"postgres":          i.Postgres,
		"memcached":         i.Memcached,
		"supervisor":        i.Supervisor,
		"virtualenvwrapper": i.VirtualenvWrapper,
		"npm":               i.NPM,
		"yuglify":           func(ctx context.Context) error { return i.NPMGlobal(ctx, "yuglify") },
		"jshint":            func(ctx context.Context) error { return i.NPMGlobal(ctx, "jshint") },
		"csslint":           func(ctx context.Context) error { return i.NPMGlobal(ctx, "csslint") },
		"sloccount":         i.Sloccount,
		"fonts":             i.Fonts,
		"jenkins":           i.Jenkins,
		"image-libraries":   i.ImageLibraries,
		"rabbitmq":          i.RabbitMQ,
		"search-index":      i.SearchIndex,
		"additional":        i.Additional,
		"dependencies":      i.Dependencies,
	}
}

// ComponentNames lists the keys of Components, sorted.
func (i *Installer) ComponentNames() []string {
	names := make([]string, 0)
	for name := range i.Components() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InstallComponent runs a named component installer.
func (i *Installer) InstallComponent(ctx context.Context, name string) error {
	fn, ok := i.Components()[name]
	if !ok {
		return fmt.Errorf("unknown component %q", name)
	}
	return fn(ctx)
}
