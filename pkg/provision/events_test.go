package provision

import (
	"reflect"
	"testing"
)

func TestParseLifecycleLines(t *testing.T) {
	parser := NewEventParser()
	cases := []struct {
		line string
		want Event
		ok   bool
	}{
		{"aws_vpc.main: Creating...", Event{EventStart, "aws_vpc.main"}, true},
		{"module.eks.aws_eks_cluster.this[0]: Creating...", Event{EventStart, "module.eks.aws_eks_cluster.this[0]"}, true},
		{"aws_vpc.main: Creation complete after 2s [id=vpc-0abc]", Event{EventComplete, "aws_vpc.main"}, true},
		{"aws_db_instance.main: Destroying... [id=db-1]", Event{EventStart, "aws_db_instance.main"}, true},
		{"aws_db_instance.main (id=db-1): Destruction complete after 4m2s", Event{EventComplete, "aws_db_instance.main"}, true},
		{"Plan: 12 to add, 0 to change, 0 to destroy.", Event{}, false},
		{"aws_vpc.main: Still creating... [10s elapsed]", Event{}, false},
	}

	for _, tc := range cases {
		got, ok := parser.Parse(tc.line)
		if ok != tc.ok {
			t.Errorf("Parse(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
	}
}

func TestInFlightResolveExact(t *testing.T) {
	s := newInFlightSet()
	s.Add("aws_vpc.main")
	if !s.Resolve("aws_vpc.main", "aws_vpc.main: Creation complete") {
		t.Fatal("exact resolve failed")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestInFlightResolveFallbackVocabulary(t *testing.T) {
	s := newInFlightSet()
	s.Add("module.rds.aws_db_instance.primary[0]")
	// The completion line names a different address form. Correlation
	// falls back to the shared resource vocabulary.
	if !s.Resolve("aws_db_instance.primary", `aws_db_instance: Creation complete`) {
		t.Fatal("fallback resolve failed")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestInFlightResolveNoMatch(t *testing.T) {
	s := newInFlightSet()
	s.Add("aws_vpc.main")
	if s.Resolve("helm_release.app", "helm_release.app: Creation complete") {
		t.Fatal("resolve matched an unrelated resource")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestContainsSlowType(t *testing.T) {
	s := newInFlightSet()
	s.Add("aws_subnet.private[0]")
	if s.ContainsSlowType() {
		t.Error("subnet counted as slow type")
	}
	s.Add("module.eks.aws_eks_cluster.this[0]")
	if !s.ContainsSlowType() {
		t.Error("eks cluster not counted as slow type")
	}
}

func TestMembersSorted(t *testing.T) {
	s := newInFlightSet()
	s.Add("b.second")
	s.Add("a.first")
	if got := s.Members(); !reflect.DeepEqual(got, []string{"a.first", "b.second"}) {
		t.Errorf("Members = %v", got)
	}
}
