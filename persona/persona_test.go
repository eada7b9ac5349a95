package persona

import (
	"strings"
	"testing"

	"github.com/groupline/feedsim/backend/testutil"
)

func TestRandomPersonaFieldsPopulated(t *testing.T) {
	g := NewGenerator(testutil.SeededRand(7))
	known := make(map[Region]bool, len(Regions))
	for _, r := range Regions {
		known[r] = true
	}
	for i := 0; i < 100; i++ {
		p := g.RandomPersona()
		if p.Name == "" {
			t.Fatalf("empty name")
		}
		if !strings.HasPrefix(p.Avatar, "assets/avatars/avatar") {
			t.Fatalf("avatar = %q", p.Avatar)
		}
		if !known[p.Region] {
			t.Fatalf("unknown region %q", p.Region)
		}
	}
}

func TestRandomPersonaIncludesBareHandles(t *testing.T) {
	g := NewGenerator(testutil.SeededRand(7))
	var bare, full int
	for i := 0; i < 500; i++ {
		if strings.HasPrefix(g.RandomPersona().Name, "User") {
			bare++
		} else {
			full++
		}
	}
	if bare == 0 || full == 0 {
		t.Fatalf("name mix skewed: bare=%d full=%d", bare, full)
	}
}

func TestNewGeneratorNilRNG(t *testing.T) {
	if NewGenerator(nil).RandomPersona().Name == "" {
		t.Fatalf("nil rng generator produced empty persona")
	}
}
