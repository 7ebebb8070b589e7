package models

import (
	"sort"
	"strings"
)

// LogID names a well-known log file on the remote host.
type LogID string

const (
	LogNginxAccess LogID = "nginx-access"
	LogNginxError  LogID = "nginx-error"
	LogPostgreSQL  LogID = "postgresql"
	LogMemcached   LogID = "memcached"
	LogSupervisor  LogID = "supervisor"
	LogRabbitMQ    LogID = "rabbitmq"
	LogJenkins     LogID = "jenkins"
	LogApplication LogID = "app"
	LogSearchIndex LogID = "search-index"
)

// logPaths maps each LogID to a path template. {project} and {index} are
// replaced from the Target.
var logPaths = map[LogID]string{
	LogNginxAccess: "/var/log/nginx/access.log",
	LogNginxError:  "/var/log/nginx/error.log",
	LogPostgreSQL:  "/var/log/postgresql/postgresql-9.1-main.log",
	LogMemcached:   "/var/log/memcached.log",
	LogSupervisor:  "/var/log/supervisor/supervisord.log",
	LogRabbitMQ:    "/var/log/rabbitmq/startup_log",
	LogJenkins:     "/var/log/jenkins/jenkins.log",
	LogApplication: "/var/log/{project}/{project}.log",
	LogSearchIndex: "{index}/logs/elasticsearch.log",
}

// LogIDs returns the known log identifiers, sorted.
func LogIDs() []LogID {
	ids := make([]LogID, 0, len(logPaths))
	for id := range logPaths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ResolveLog maps a known identifier to its path on t. Anything else is taken
// as a literal path.
func ResolveLog(name string, t *Target) string {
	tmpl, ok := logPaths[LogID(name)]
	if !ok {
		return name
	}
	return strings.NewReplacer(
		"{project}", t.Project,
		"{index}", t.SearchIndexDir,
	).Replace(tmpl)
}
