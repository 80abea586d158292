package provision

import (
	"sort"
	"strings"
)

// EventKind distinguishes resource lifecycle transitions in the
// provisioner's output stream.
type EventKind int

const (
	// EventStart marks a resource entering creation or destruction.
	EventStart EventKind = iota
	// EventComplete marks a resource finishing creation or destruction.
	EventComplete
)

// Event is one parsed lifecycle transition.
type Event struct {
	Kind     EventKind
	Resource string
}

// EventParser extracts lifecycle events from provisioner output lines.
// The supervisor consumes events only through this interface.
type EventParser interface {
	// Parse inspects one output line. The second return is false when
	// the line carries no lifecycle event.
	Parse(line string) (Event, bool)
}

// terraformParser reads the human-readable progress lines terraform
// prints, of the form "aws_vpc.main: Creating..." and
// "aws_vpc.main: Creation complete after 12s [id=vpc-123]".
type terraformParser struct{}

// NewEventParser returns the parser for terraform progress output.
func NewEventParser() EventParser {
	return terraformParser{}
}

var startMarkers = []string{"Creating...", "Destroying..."}

var completeMarkers = []string{"Creation complete", "Destruction complete"}

func (terraformParser) Parse(line string) (Event, bool) {
	for _, marker := range startMarkers {
		if idx := strings.Index(line, marker); idx >= 0 {
			if res := resourceAddress(line[:idx]); res != "" {
				return Event{Kind: EventStart, Resource: res}, true
			}
		}
	}
	for _, marker := range completeMarkers {
		if idx := strings.Index(line, marker); idx >= 0 {
			if res := resourceAddress(line[:idx]); res != "" {
				return Event{Kind: EventComplete, Resource: res}, true
			}
		}
	}
	return Event{}, false
}

// resourceAddress strips the decoration terraform puts around the
// resource address in a progress line.
func resourceAddress(prefix string) string {
	s := strings.TrimSpace(prefix)
	s = strings.TrimSuffix(s, ":")
	s = strings.Trim(s, `"`)
	// Destroy lines carry an id suffix: aws_vpc.main (id=vpc-123): ...
	if idx := strings.Index(s, " ("); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// slowResourceTypes names AWS resource types that routinely take tens
// of minutes to converge. Their presence in flight qualifies a run for
// a one-time timeout extension.
var slowResourceTypes = []string{"eks", "kafka", "msk", "mq", "rds", "db_instance", "iam"}

// fallbackVocabulary correlates completion lines with in-flight
// resources when the parsed address does not match exactly.
var fallbackVocabulary = []string{
	"aws_vpc",
	"aws_subnet",
	"aws_internet_gateway",
	"aws_nat_gateway",
	"aws_route_table",
	"aws_security_group",
	"aws_eks_cluster",
	"aws_eks_node_group",
	"aws_db_instance",
	"aws_db_subnet_group",
	"aws_mq_broker",
	"aws_msk_cluster",
	"aws_elasticache_cluster",
	"aws_elasticache_replication_group",
	"aws_iam_role",
	"aws_iam_policy",
	"aws_iam_role_policy_attachment",
}

// inFlightSet tracks resources between their start and completion
// events. It is used from the supervisor's single event loop and needs
// no locking.
type inFlightSet struct {
	members map[string]struct{}
}

func newInFlightSet() *inFlightSet {
	return &inFlightSet{members: make(map[string]struct{})}
}

func (s *inFlightSet) Add(resource string) {
	s.members[resource] = struct{}{}
}

// Resolve removes the resource matching a completion event. It tries
// the exact address first, then an in-flight entry mentioned verbatim
// in the line, then the shared fallback vocabulary. It reports whether
// anything was removed.
func (s *inFlightSet) Resolve(resource, line string) bool {
	if _, ok := s.members[resource]; ok {
		delete(s.members, resource)
		return true
	}
	for member := range s.members {
		if strings.Contains(line, member) {
			delete(s.members, member)
			return true
		}
	}
	for _, word := range fallbackVocabulary {
		if !strings.Contains(line, word) {
			continue
		}
		for member := range s.members {
			if strings.Contains(member, word) {
				delete(s.members, member)
				return true
			}
		}
	}
	return false
}

// ContainsSlowType reports whether any in-flight resource is of a type
// known to converge slowly.
func (s *inFlightSet) ContainsSlowType() bool {
	for member := range s.members {
		lower := strings.ToLower(member)
		for _, t := range slowResourceTypes {
			if strings.Contains(lower, t) {
				return true
			}
		}
	}
	return false
}

func (s *inFlightSet) Len() int {
	return len(s.members)
}

// Members returns the in-flight addresses in sorted order.
func (s *inFlightSet) Members() []string {
	out := make([]string, 0, len(s.members))
	for member := range s.members {
		out = append(out, member)
	}
	sort.Strings(out)
	return out
}
