package provision

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lib/pq"
	"gopkg.in/yaml.v3"
)

// Settings is the slice of the application's own configuration the
// provisioner reads: the default database.
type Settings struct {
	DatabaseURL string                      `yaml:"database_url"`
	Databases   map[string]DatabaseSettings `yaml:"databases"`
}

type DatabaseSettings struct {
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return &s, nil
}

// DatabaseCredentials returns the default database, preferring the explicit
// databases.default block over database_url.
func (s *Settings) DatabaseCredentials() (Credentials, error) {
	if db, ok := s.Databases["default"]; ok && db.Name != "" {
		return Credentials{Name: db.Name, User: db.User, Password: db.Password}, nil
	}
	if s.DatabaseURL == "" {
		return Credentials{}, errors.New("settings define no default database")
	}

	conn, err := pq.ParseURL(s.DatabaseURL)
	if err != nil {
		return Credentials{}, fmt.Errorf("invalid database_url: %w", err)
	}
	kv, err := parseConnString(conn)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Name: kv["dbname"], User: kv["user"], Password: kv["password"]}, nil
}

// parseConnString reads the key=value form pq.ParseURL produces. Values may
// be single-quoted or backslash-escaped.
func parseConnString(s string) (map[string]string, error) {
	out := make(map[string]string)
	for s = strings.TrimLeft(s, " "); s != ""; s = strings.TrimLeft(s, " ") {
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("malformed connection string near %q", s)
		}
		key := s[:eq]
		s = s[eq+1:]

		quoted := strings.HasPrefix(s, "'")
		if quoted {
			s = s[1:]
		}

		var b strings.Builder
		i := 0
		closed := false
		for ; i < len(s); i++ {
			c := s[i]
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
				continue
			}
			if quoted && c == '\'' {
				closed = true
				i++
				break
			}
			if !quoted && c == ' ' {
				break
			}
			b.WriteByte(c)
		}
		if quoted && !closed {
			return nil, fmt.Errorf("unterminated value for %s", key)
		}
		out[key] = b.String()
		s = s[i:]
	}
	return out, nil
}
