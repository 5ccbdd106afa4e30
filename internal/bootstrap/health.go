package bootstrap

import (
	"context"
	"fmt"
)

// HealthCheck checks one backend.
type HealthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// NewHealthCheck wraps a check function.
func NewHealthCheck(name string, check func(ctx context.Context) error) HealthCheck {
	return HealthCheck{name: name, check: check}
}

func (h HealthCheck) Name() string { return h.name }

func (h HealthCheck) Check(ctx context.Context) error { return h.check(ctx) }

// HealthChecks returns a check for every open backend.
func (i *Infrastructure) HealthChecks() []HealthCheck {
	if i == nil {
		return nil
	}
	var out []HealthCheck
	if i.Postgres != nil {
		out = append(out, NewHealthCheck("postgres", i.Postgres.HealthCheck))
	}
	if i.Redis != nil {
		out = append(out, NewHealthCheck("redis", i.Redis.Ping))
	}
	if i.Milvus != nil {
		out = append(out, NewHealthCheck("milvus", i.Milvus.CheckHealth))
	}
	if i.Search != nil {
		out = append(out, NewHealthCheck("opensearch", i.Search.HealthCheck))
	}
	if i.MinIO != nil {
		mc := i.MinIO
		out = append(out, NewHealthCheck("minio", func(ctx context.Context) error {
			status, err := mc.HealthCheck(ctx)
			if err != nil {
				return err
			}
			if !status.Healthy {
				return fmt.Errorf("minio unhealthy: %s", status.Error)
			}
			return nil
		}))
	}
	if i.Neo4j != nil {
		out = append(out, NewHealthCheck("neo4j", i.Neo4j.HealthCheck))
	}
	if i.Producer != nil {
		p := i.Producer
		out = append(out, NewHealthCheck("kafka", func(context.Context) error {
			if m := p.GetMetrics(); m.MessagesFailed.Load() > 0 && m.MessagesSent.Load() == 0 {
				return fmt.Errorf("kafka producer has %d failed sends and none delivered", m.MessagesFailed.Load())
			}
			return nil
		}))
	}
	return out
}

//Personal.AI order the ending
