package provision

import (
	"testing"
	"time"
)

func TestDefaultTimeouts(t *testing.T) {
	d := DefaultTimeouts()
	if d.Apply != 2*time.Hour {
		t.Errorf("Apply = %v, want 2h", d.Apply)
	}
	if d.Destroy != time.Hour {
		t.Errorf("Destroy = %v, want 1h", d.Destroy)
	}
	if d.Init != 5*time.Minute {
		t.Errorf("Init = %v, want 5m", d.Init)
	}
	if d.KillGrace != 10*time.Second {
		t.Errorf("KillGrace = %v, want 10s", d.KillGrace)
	}
}

func TestTimeoutsFromEnv(t *testing.T) {
	t.Setenv("BB_APPLY_TIMEOUT", "45m")
	t.Setenv("BB_DESTROY_TIMEOUT", "not-a-duration")

	got := TimeoutsFromEnv()
	if got.Apply != 45*time.Minute {
		t.Errorf("Apply = %v, want 45m", got.Apply)
	}
	if got.Destroy != time.Hour {
		t.Errorf("Destroy = %v, unparsable override must keep the default", got.Destroy)
	}
}

func TestForOperation(t *testing.T) {
	d := DefaultTimeouts()
	cases := []struct {
		op   Operation
		want time.Duration
	}{
		{OpApply, d.Apply},
		{OpDestroy, d.Destroy},
		{OpInit, d.Init},
		{OpPlan, d.Init},
	}
	for _, tc := range cases {
		if got := d.ForOperation(tc.op); got != tc.want {
			t.Errorf("ForOperation(%s) = %v, want %v", tc.op, got, tc.want)
		}
	}
}
