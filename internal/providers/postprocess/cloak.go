package postprocess

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Cloak modes
const (
	ModeServer = "server"
	ModeClient = "client"
	ModeOff    = "off"
)

// DefaultAgents is the User-Agent allow-list treated as human browsers.
var DefaultAgents = []string{"Mozilla", "Chrome", "Safari", "Firefox", "Edge", " YaBrowser"}

const headTag = "<head>"

// staticBlock hides the page until DOMContentLoaded; the noscript fallback
// keeps it visible when scripts are disabled.
const staticBlock = `
<style>
    html, body {
        visibility: hidden;
        opacity: 0;
        transition: visibility 0s, opacity 0.5s ease-in-out;
    }
</style>
<script>
    document.addEventListener('DOMContentLoaded', function() {
        document.documentElement.style.visibility = 'visible';
        document.documentElement.style.opacity = '1';
    });
</script>
<noscript>
    <style>
        html, body {
            visibility: visible;
            opacity: 1;
        }
    </style>
</noscript>
`

// clientBlock decides in the browser: allow-listed agents stay hidden until
// DOMContentLoaded, everyone else is revealed immediately.
const clientBlock = `
<style>
    html.sp-cloak, html.sp-cloak body {
        visibility: hidden;
        opacity: 0;
        transition: visibility 0s, opacity 0.5s ease-in-out;
    }
</style>
<script>
    (function() {
        var agents = %s;
        var ua = navigator.userAgent || '';
        var human = agents.some(function(a) { return ua.indexOf(a) !== -1; });
        if (!human) { return; }
        var root = document.documentElement;
        root.className += ' sp-cloak';
        document.addEventListener('DOMContentLoaded', function() {
            root.className = root.className.replace(/\s*sp-cloak/g, '');
        });
    })();
</script>
`

// Cloak selects and renders the injected block.
type Cloak struct {
	Mode   string
	Agents []string
}

// IsHuman reports whether userAgent contains any allow-listed fragment.
func (c Cloak) IsHuman(userAgent string) bool {
	for _, agent := range c.agents() {
		if agent != "" && strings.Contains(userAgent, agent) {
			return true
		}
	}
	return false
}

// Block returns the markup to inject for a request made with userAgent, or
// "" when nothing should be injected.
func (c Cloak) Block(userAgent string) (string, error) {
	switch c.Mode {
	case ModeServer, "":
		if !c.IsHuman(userAgent) {
			return "", nil
		}
		return staticBlock, nil
	case ModeClient:
		agents, err := json.Marshal(c.agents())
		if err != nil {
			return "", fmt.Errorf("encode agent list: %w", err)
		}
		return fmt.Sprintf(clientBlock, agents), nil
	case ModeOff:
		return "", nil
	default:
		return "", fmt.Errorf("unknown cloak mode %q", c.Mode)
	}
}

func (c Cloak) agents() []string {
	if len(c.Agents) == 0 {
		return DefaultAgents
	}
	return c.Agents
}

// Inject inserts block right after the first literal <head>. Documents
// without one, and empty blocks, are returned unchanged.
func Inject(html, block string) (string, bool) {
	if block == "" {
		return html, false
	}
	i := strings.Index(html, headTag)
	if i < 0 {
		return html, false
	}
	at := i + len(headTag)
	return html[:at] + block + html[at:], true
}
