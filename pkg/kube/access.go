package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buildandburn/buildandburn/pkg/engine"
)

// ServiceAccess describes how one deployed service is reachable.
type ServiceAccess struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	ClusterIP string `json:"cluster_ip,omitempty"`
	URL       string `json:"url,omitempty"`
}

// IngressAccess describes one external route.
type IngressAccess struct {
	Name    string `json:"name"`
	Host    string `json:"host,omitempty"`
	Address string `json:"address,omitempty"`
	URL     string `json:"url,omitempty"`
}

// AccessInfo summarises how to reach an environment's workloads.
type AccessInfo struct {
	Namespace string          `json:"namespace"`
	Services  []ServiceAccess `json:"services,omitempty"`
	Ingresses []IngressAccess `json:"ingresses,omitempty"`
}

// PrimaryURL returns the best externally reachable address: the first
// ingress URL, else the first load balancer URL, else empty.
func (a *AccessInfo) PrimaryURL() string {
	for _, ing := range a.Ingresses {
		if ing.URL != "" {
			return ing.URL
		}
	}
	for _, svc := range a.Services {
		if svc.Type == "LoadBalancer" && svc.URL != "" {
			return svc.URL
		}
	}
	return ""
}

// serviceList is the kubectl get -o json envelope for services.
type serviceList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Spec struct {
			Type      string `json:"type"`
			ClusterIP string `json:"clusterIP"`
			Ports     []struct {
				Port int `json:"port"`
			} `json:"ports"`
		} `json:"spec"`
		Status struct {
			LoadBalancer struct {
				Ingress []struct {
					Hostname string `json:"hostname"`
					IP       string `json:"ip"`
				} `json:"ingress"`
			} `json:"loadBalancer"`
		} `json:"status"`
	} `json:"items"`
}

// ingressList is the kubectl get -o json envelope for ingresses.
type ingressList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Spec struct {
			Rules []struct {
				Host string `json:"host"`
			} `json:"rules"`
		} `json:"spec"`
		Status struct {
			LoadBalancer struct {
				Ingress []struct {
					Hostname string `json:"hostname"`
					IP       string `json:"ip"`
				} `json:"ingress"`
			} `json:"loadBalancer"`
		} `json:"status"`
	} `json:"items"`
}

// GatherAccess queries the cluster for the environment's services and
// ingresses and assembles reachability information.
func (d *Deployer) GatherAccess(ctx context.Context) (*AccessInfo, error) {
	info := &AccessInfo{Namespace: d.namespace}

	stdout, stderr, err := d.runner.Run(ctx, "kubectl",
		[]string{"get", "services", "--namespace", d.namespace, "-o", "json"}, "")
	if err != nil {
		return nil, engine.NewDeployError(
			fmt.Sprintf("failed to list services: %s", strings.TrimSpace(stderr)), err,
		)
	}
	var svcs serviceList
	if err := json.Unmarshal([]byte(stdout), &svcs); err != nil {
		return nil, engine.NewDeployError("failed to decode service list", err)
	}
	for _, item := range svcs.Items {
		access := ServiceAccess{
			Name:      item.Metadata.Name,
			Type:      item.Spec.Type,
			ClusterIP: item.Spec.ClusterIP,
		}
		if item.Spec.Type == "LoadBalancer" && len(item.Status.LoadBalancer.Ingress) > 0 {
			lb := item.Status.LoadBalancer.Ingress[0]
			host := lb.Hostname
			if host == "" {
				host = lb.IP
			}
			if host != "" && len(item.Spec.Ports) > 0 {
				access.URL = fmt.Sprintf("http://%s:%d", host, item.Spec.Ports[0].Port)
			}
		}
		info.Services = append(info.Services, access)
	}

	stdout, _, err = d.runner.Run(ctx, "kubectl",
		[]string{"get", "ingress", "--namespace", d.namespace, "-o", "json"}, "")
	if err != nil {
		// No ingress API or no routes is not an error worth failing on.
		return info, nil
	}
	var ings ingressList
	if err := json.Unmarshal([]byte(stdout), &ings); err != nil {
		return info, nil
	}
	for _, item := range ings.Items {
		access := IngressAccess{Name: item.Metadata.Name}
		if len(item.Spec.Rules) > 0 {
			access.Host = item.Spec.Rules[0].Host
		}
		if len(item.Status.LoadBalancer.Ingress) > 0 {
			lb := item.Status.LoadBalancer.Ingress[0]
			access.Address = lb.Hostname
			if access.Address == "" {
				access.Address = lb.IP
			}
		}
		if access.Host != "" {
			access.URL = "http://" + access.Host
		} else if access.Address != "" {
			access.URL = "http://" + access.Address
		}
		info.Ingresses = append(info.Ingresses, access)
	}

	return info, nil
}
