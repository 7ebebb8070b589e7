package models

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownService = errors.New("unknown service")
	ErrUnknownAction  = errors.New("unknown service action")
)

// Service is a system service managed on the remote host.
type Service string

const (
	ServiceNginx      Service = "nginx"
	ServicePostgreSQL Service = "postgresql"
	ServiceMemcached  Service = "memcached"
	ServiceSupervisor Service = "supervisor"
	ServiceRabbitMQ   Service = "rabbitmq-server"
)

// Services is the fixed service registry.
var Services = []Service{
	ServiceNginx,
	ServicePostgreSQL,
	ServiceMemcached,
	ServiceSupervisor,
	ServiceRabbitMQ,
}

var serviceAliases = map[string]Service{
	"web":      ServiceNginx,
	"database": ServicePostgreSQL,
	"postgres": ServicePostgreSQL,
	"cache":    ServiceMemcached,
	"broker":   ServiceRabbitMQ,
	"rabbitmq": ServiceRabbitMQ,
}

func ParseService(s string) (Service, error) {
	for _, svc := range Services {
		if string(svc) == s {
			return svc, nil
		}
	}
	if svc, ok := serviceAliases[s]; ok {
		return svc, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownService, s)
}

// NeedsPTY reports whether the init script may be run with a pseudo-terminal.
// memcached's init script hangs when one is allocated.
func (s Service) NeedsPTY() bool {
	return s != ServiceMemcached
}

type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionStart, ActionStop, ActionRestart:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}
