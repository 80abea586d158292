// Package pricing produces rough hourly cost estimates for the
// resources an environment will provision. Rates are static on-demand
// approximations; real bills add data transfer, storage IO, and
// regional variation.
package pricing

import (
	"fmt"

	"github.com/buildandburn/buildandburn/pkg/manifest"
)

const (
	// eksControlPlaneRate is the flat hourly charge per cluster.
	eksControlPlaneRate = 0.10

	// hoursPerMonth approximates a 30-day month.
	hoursPerMonth = 24 * 30
)

var nodeRates = map[string]float64{
	"t3.medium": 0.0416,
	"t3.large":  0.0832,
	"t3.xlarge": 0.1664,
}

var databaseRates = map[string]float64{
	"db.t3.small":  0.034,
	"db.t3.medium": 0.068,
	"db.t3.large":  0.136,
}

var queueRates = map[string]float64{
	"mq.t3.micro": 0.028,
	"mq.t3.small": 0.056,
}

var redisRates = map[string]float64{
	"cache.t3.micro": 0.017,
	"cache.t3.small": 0.034,
}

var kafkaRates = map[string]float64{
	"kafka.t3.small":  0.0456,
	"kafka.m5.large":  0.21,
	"kafka.m5.xlarge": 0.42,
}

// Fallback rates for unknown instance classes.
const (
	unknownNodeRate     = 0.05
	unknownDatabaseRate = 0.04
	unknownQueueRate    = 0.03
	unknownRedisRate    = 0.02
	unknownKafkaRate    = 0.05
)

// LineItem is one estimated resource.
type LineItem struct {
	Resource string  `json:"resource"`
	Name     string  `json:"name"`
	Count    int     `json:"count"`
	Hourly   float64 `json:"hourly"`
}

// Estimate is the full cost summary for an environment.
type Estimate struct {
	Items   []LineItem `json:"items"`
	Hourly  float64    `json:"hourly"`
	Monthly float64    `json:"monthly"`
}

// Summarize estimates the hourly cost of the compiled variable set.
// The same variables always produce the same estimate.
func Summarize(vars manifest.Variables) *Estimate {
	est := &Estimate{}
	project, _ := vars["project_name"].(string)
	envID, _ := vars["env_id"].(string)

	est.add(LineItem{
		Resource: "EKS Cluster",
		Name:     fmt.Sprintf("%s-%s", project, envID),
		Count:    1,
		Hourly:   eksControlPlaneRate,
	})

	nodeType := firstInstanceType(vars["eks_instance_types"])
	nodeCount := intVar(vars["eks_node_min"], 1)
	est.add(LineItem{
		Resource: "EC2 Instance",
		Name:     "eks-node-" + nodeType,
		Count:    nodeCount,
		Hourly:   rate(nodeRates, nodeType, unknownNodeRate) * float64(nodeCount),
	})

	for _, dep := range dependencyList(vars["dependencies"]) {
		switch manifest.DependencyType(dep) {
		case manifest.DependencyDatabase:
			class, _ := vars["db_instance_class"].(string)
			est.add(LineItem{
				Resource: "RDS Instance",
				Name:     project + "-db",
				Count:    1,
				Hourly:   rate(databaseRates, class, unknownDatabaseRate),
			})
		case manifest.DependencyQueue:
			class, _ := vars["mq_instance_class"].(string)
			est.add(LineItem{
				Resource: "MQ Broker",
				Name:     project + "-mq",
				Count:    1,
				Hourly:   rate(queueRates, class, unknownQueueRate),
			})
		case manifest.DependencyRedis:
			class, _ := vars["redis_node_type"].(string)
			nodes := intVar(vars["redis_cluster_size"], 1)
			est.add(LineItem{
				Resource: "ElastiCache Node",
				Name:     project + "-redis",
				Count:    nodes,
				Hourly:   rate(redisRates, class, unknownRedisRate) * float64(nodes),
			})
		case manifest.DependencyKafka:
			class, _ := vars["kafka_instance_class"].(string)
			brokers := intVar(vars["kafka_broker_count"], manifest.DefaultKafkaBrokers)
			est.add(LineItem{
				Resource: "MSK Broker",
				Name:     project + "-kafka",
				Count:    brokers,
				Hourly:   rate(kafkaRates, class, unknownKafkaRate) * float64(brokers),
			})
		}
	}

	est.Monthly = est.Hourly * hoursPerMonth
	return est
}

func (e *Estimate) add(item LineItem) {
	e.Items = append(e.Items, item)
	e.Hourly += item.Hourly
}

func rate(table map[string]float64, class string, fallback float64) float64 {
	if r, ok := table[class]; ok {
		return r
	}
	return fallback
}

func firstInstanceType(v interface{}) string {
	switch types := v.(type) {
	case []string:
		if len(types) > 0 {
			return types[0]
		}
	case []interface{}:
		if len(types) > 0 {
			if s, ok := types[0].(string); ok {
				return s
			}
		}
	}
	return "t3.medium"
}

func dependencyList(v interface{}) []string {
	switch deps := v.(type) {
	case []string:
		return deps
	case []interface{}:
		out := make([]string, 0, len(deps))
		for _, d := range deps {
			if s, ok := d.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func intVar(v interface{}, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}
