package topics

import (
	"reflect"
	"testing"
)

func TestMatchesSubscription(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"r/s/alice/gallery/#", "r/s/alice/gallery/o/cam1", true},
		{"r/s/alice/gallery/#", "r/s/alice/gallery", true},
		{"r/s/alice/gallery/#", "r/s/alice/other/o/cam1", false},
		{"r/s/+/+/o/#", "r/s/alice/gallery/o/box", true},
		{"r/s/+/o/#", "r/s/alice/gallery/o/box", false},
		{"r/s/#", "r/s/alice/gallery/+/+", true},
		{"r/s/alice/#", "r/s/alice/gallery/o/#", true},
		{"r/proc/#", "r/proc/control", true},
		{"r/d/+", "r/d/dev1", true},
		{"r/d/+", "r/d/dev1/ipc", false},
		{"exact/topic", "exact/topic", true},
		{"exact/topic", "exact/other", false},
		// '$' system topics are never matched by a leading wildcard
		{"#", "$NETWORK", false},
		{"+/latency", "$NETWORK/latency", false},
		{"$NETWORK/#", "$NETWORK/latency", true},
	}
	for _, tt := range tests {
		if got := MatchesSubscription(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("MatchesSubscription(%q, %q) = %v, want %v",
				tt.pattern, tt.topic, got, tt.want)
		}
	}
}

func TestClean_RemovesCovered(t *testing.T) {
	got := Clean([]string{
		"r/alice/gallery/o/cam1",
		"r/alice/gallery/o/#",
	})
	want := []string{"r/alice/gallery/o/#"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Clean() = %v, want %v", got, want)
	}
}

func TestClean_ParentCoveredByChildWildcard(t *testing.T) {
	// "X/#" matches its parent "X" even though "X" sorts first, so the
	// parent must be evicted. This is the exact pair the scene object
	// grants produce for a user-client tag.
	got := Clean([]string{
		"realm/s/ns/sc/o/uc",
		"realm/s/ns/sc/o/uc/#",
	})
	want := []string{"realm/s/ns/sc/o/uc/#"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Clean() = %v, want %v", got, want)
	}
}

func TestClean_Deduplicates(t *testing.T) {
	got := Clean([]string{"r/s/a/b/#", "r/s/a/b/#", "r/proc/#"})
	want := []string{"r/proc/#", "r/s/a/b/#"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Clean() = %v, want %v", got, want)
	}
}

func TestClean_WildcardCoverage(t *testing.T) {
	// the broader pattern covers entries that themselves carry wildcards
	got := Clean([]string{
		"r/s/alice/#",
		"r/s/alice/gallery/+/+",
		"r/s/alice/gallery/o/#",
		"r/s/bob/stage/o/tag",
	})
	want := []string{"r/s/alice/#", "r/s/bob/stage/o/tag"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Clean() = %v, want %v", got, want)
	}
}

func TestClean_Idempotent(t *testing.T) {
	in := []string{
		"r/s/#",
		"r/s/alice/gallery/o/#",
		"r/proc/reg",
		"$NETWORK/latency",
		"r/c/alice/o/#",
		"r/c/alice/o/user_123_web",
	}
	once := Clean(in)
	twice := Clean(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Clean not idempotent: %v then %v", once, twice)
	}
}

func TestClean_CoverageInvariant(t *testing.T) {
	// no retained entry may cover another retained entry
	in := []string{
		"r/s/public/+/o/#",
		"r/s/alice/#",
		"r/s/alice/gallery/x/tag",
		"r/s/alice/gallery/c/tag/+",
		"r/d/alice/#",
		"r/d/alice/rpi4/ctl",
		"r/proc/#",
		"r/proc/reg",
		"r/s/bob/stage/o/user_1_web",
		"r/s/bob/stage/o/user_1_web/#",
		"$NETWORK",
		"$NETWORK/latency",
	}
	out := Clean(in)
	for i, a := range out {
		for j, b := range out {
			if i != j && MatchesSubscription(a, b) {
				t.Errorf("retained %q covers retained %q", a, b)
			}
		}
	}
}

func TestClean_Empty(t *testing.T) {
	if got := Clean(nil); got != nil {
		t.Errorf("Clean(nil) = %v, want nil", got)
	}
	if got := Clean([]string{""}); len(got) != 0 {
		t.Errorf("Clean([\"\"]) = %v, want empty", got)
	}
}

func TestForVersion(t *testing.T) {
	for _, v := range SupportedVersions {
		g, err := ForVersion(v)
		if err != nil {
			t.Fatalf("ForVersion(%s): %v", v, err)
		}
		if g.Version() != v {
			t.Errorf("grammar version = %s, want %s", g.Version(), v)
		}
	}
	if _, err := ForVersion("v3"); err != ErrUnsupportedVersion {
		t.Errorf("ForVersion(v3) err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestGrammar_ServiceReadAll(t *testing.T) {
	for _, v := range SupportedVersions {
		g, _ := ForVersion(v)
		subs := g.ServiceReadAllSubs("realm")
		if len(subs) != 1 || subs[0] != "realm/s/#" {
			t.Errorf("%s ServiceReadAllSubs = %v", v, subs)
		}
	}
}

func TestV2_CapabilityReadBackIsPrivate(t *testing.T) {
	g, _ := ForVersion(V2)
	pubs, subs := g.RenderFusionAccess("r", "alice/gallery", "tag1")
	if len(pubs) == 0 || len(subs) == 0 {
		t.Fatalf("expected render fusion grants, got pubs=%v subs=%v", pubs, subs)
	}
	// the public scene wildcard (+/+) must not cover the private publish
	public := "r/s/alice/gallery/+/+"
	for _, p := range pubs[1:] {
		if MatchesSubscription(public, p) {
			t.Errorf("private publish %q is visible through %q", p, public)
		}
	}
}

func TestV1_AprilTags(t *testing.T) {
	g, _ := ForVersion(V1)
	pubs, subs := g.AprilTagAccess("r", false)
	if len(pubs) != 0 {
		t.Errorf("anonymous apriltag pubs = %v, want none", pubs)
	}
	if len(subs) != 1 || subs[0] != "r/g/a/#" {
		t.Errorf("apriltag subs = %v", subs)
	}
	pubs, _ = g.AprilTagAccess("r", true)
	if len(pubs) != 1 {
		t.Errorf("authenticated apriltag pubs = %v, want one", pubs)
	}
}
