package generate

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/groupline/feedsim/backend/feed"
	"github.com/groupline/feedsim/backend/fingerprint"
	"github.com/groupline/feedsim/backend/persona"
	"github.com/groupline/feedsim/backend/telemetry"
)

// maxRetries bounds the duplicate-avoidance loop before forcing a
// time-based suffix.
const maxRetries = 30

// backdateWindow is how far into the past a pooled message's timestamp may
// be shifted, so dequeued messages look like recent backlog.
const backdateWindow = 2000 * time.Second

// Generator composes never-before-seen chat messages from the content pools,
// consulting the fingerprint store for novelty.
type Generator struct {
	fp       *fingerprint.Store
	identity persona.Provider

	mu  sync.Mutex
	rng *rand.Rand

	nowFn func() time.Time
}

// NewGenerator wires a generator to its fingerprint store and persona source.
// A nil rng gets a clock-seeded one.
func NewGenerator(fp *fingerprint.Store, identity persona.Provider, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // G404: simulation randomness, not security
	}
	if identity == nil {
		identity = persona.NewGenerator(nil)
	}
	return &Generator{
		fp:       fp,
		identity: identity,
		rng:      rng,
		nowFn:    time.Now,
	}
}

func (g *Generator) pick(arr []string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return arr[g.rng.Intn(len(arr))]
}

func (g *Generator) maybe(p float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < p
}

func (g *Generator) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

// Compose builds one candidate message text for a persona. Novelty is not
// checked here; callers retry through Generate.
func (g *Generator) Compose(p persona.Persona) string {
	asset := g.pick(assets)
	broker := g.pick(brokers)
	tf := g.pick(timeframes)
	result := g.pick(resultWords)
	slang := slangFor(p.Region)

	templates := []func() string{
		func() string { return fmt.Sprintf("Took %s %s — %s %s", asset, tf, result, g.pick(emojis)) },
		func() string {
			tail := ""
			if g.maybe(0.5) {
				tail = " " + g.pick(emojis)
			}
			return fmt.Sprintf("Scalped %s on %s, %s%s", asset, broker, result, tail)
		},
		func() string { return fmt.Sprintf("%s %s looking strong %s", asset, tf, g.pick(emojis)) },
		func() string { return fmt.Sprintf("%s %s", g.pick(engagement), asset) },
		func() string { return fmt.Sprintf("%s %s %s", g.pick(slang), asset, result) },
		func() string {
			first, _, _ := strings.Cut(p.Name, " ")
			return fmt.Sprintf("%s caught %s %s %s", first, asset, tf, g.pick(emojis))
		},
		func() string { return fmt.Sprintf("Anyone on %s? %s", asset, g.pick(emojis)) },
		func() string { return fmt.Sprintf("Missed %s entry 😩 but next one locked in", asset) },
		func() string { return fmt.Sprintf("Risked 2%% on %s %s — %s", asset, tf, result) },
		func() string { return fmt.Sprintf("That %s breakout was clean %s", asset, g.pick(emojis)) },
	}

	text := templates[g.intn(len(templates))]()
	if g.maybe(0.6) {
		text += " " + g.pick(emojis)
	}
	if g.maybe(0.3) {
		text += " " + g.pick(slang)
	}
	return strings.TrimSpace(text)
}

// Generate produces one novel pooled message. It retries composition with a
// numeric suffix until the text clears the fingerprint store, forcing a
// time-based disambiguator after maxRetries so it always terminates. The
// timestamp is backdated a little so the pool reads like recent traffic.
func (g *Generator) Generate(ctx context.Context) feed.Message {
	p := g.identity.RandomPersona()
	text := g.Compose(p)

	tries := 0
	for g.fp.IsDuplicate(text) && tries < maxRetries {
		text = g.Compose(p) + " " + fmt.Sprintf("%d", g.intn(999))
		telemetry.Inc(telemetry.DuplicateRetries)
		tries++
	}
	if g.fp.IsDuplicate(text) {
		text = fmt.Sprintf("%s %d", text, g.nowFn().UnixNano()%100000)
		telemetry.Inc(telemetry.ForcedDisambiguations)
	}
	g.fp.Record(ctx, text)
	telemetry.Inc(telemetry.MessagesGenerated)

	backdate := time.Duration(g.intn(int(backdateWindow / time.Millisecond))) * time.Millisecond
	return feed.Message{
		ID:        "r_" + uuid.NewString(),
		Persona:   p,
		Text:      text,
		Timestamp: g.nowFn().Add(-backdate),
		Kind:      feed.KindIncoming,
	}
}

// Reply produces a novel message referencing baseText, timestamped now.
func (g *Generator) Reply(ctx context.Context, baseText string) feed.Message {
	m := g.Generate(ctx)
	m.Timestamp = g.nowFn()
	m.ReplyToText = baseText
	return m
}
