package sandbox

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// dockerCreatedAtLayout matches the CreatedAt column of docker ps.
const dockerCreatedAtLayout = "2006-01-02 15:04:05 -0700 MST"

// Sweep removes every managed container older than the configured lifetime,
// including ones whose expiry timer was lost to a server restart. It asks
// docker directly rather than trusting in-memory state.
func (c *Controller) Sweep(ctx context.Context) (int, error) {
	out, err := c.docker.Run(ctx, "ps", "-a", "--format", "{{.Names}},{{.CreatedAt}}")
	if err != nil {
		return 0, fmt.Errorf("list containers: %w", err)
	}

	removed := 0
	now := c.now()
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, createdRaw, found := strings.Cut(line, ",")
		if !found || !strings.HasPrefix(name, c.cfg.ContainerPrefix) {
			continue
		}
		created, err := time.Parse(dockerCreatedAtLayout, strings.TrimSpace(createdRaw))
		if err != nil {
			log.Printf("%s sweep: cannot parse CreatedAt for %s: %v", logTag, name, err)
			continue
		}
		if now.Sub(created) < c.cfg.Lifetime {
			continue
		}
		if _, err := c.docker.Run(ctx, "rm", "-f", name); err != nil {
			log.Printf("%s sweep: remove %s: %v", logTag, name, err)
			continue
		}
		c.forgetContainer(name)
		removed++
	}

	if removed > 0 {
		log.Printf("%s sweep removed %d expired container(s)", logTag, removed)
	}
	return removed, nil
}

// forgetContainer drops in-memory state for a container removed by name.
func (c *Controller) forgetContainer(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, h := range c.handles {
		if h.container == name {
			delete(c.handles, key)
			if timer, ok := c.timers[key]; ok {
				timer.Stop()
				delete(c.timers, key)
			}
		}
	}
}
