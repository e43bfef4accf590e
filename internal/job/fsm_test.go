package job

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusFailed, true},
		{StatusQueued, StatusCompleted, false},
		{StatusRunning, StatusRunning, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusQueued, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusRunning, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestClampedProgress(t *testing.T) {
	for in, want := range map[float64]float64{-5: 0, 0: 0, 42.5: 42.5, 100: 100, 180: 100} {
		j := Job{Progress: in}
		if got := j.ClampedProgress(); got != want {
			t.Fatalf("ClampedProgress(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestCloneDetachesParams(t *testing.T) {
	j := Job{Params: map[string]string{"voice": "alloy"}}
	c := j.Clone()
	c.Params["voice"] = "echo"
	if j.Params["voice"] != "alloy" {
		t.Fatalf("clone mutated original params")
	}
}

func TestPatchOnlyArtifactURL(t *testing.T) {
	if !(Patch{ArtifactURL: Ptr("https://x")}).OnlyArtifactURL() {
		t.Fatalf("expected artifact-only patch")
	}
	if (Patch{ArtifactURL: Ptr("https://x"), Message: Ptr("m")}).OnlyArtifactURL() {
		t.Fatalf("expected mixed patch to be rejected")
	}
}
