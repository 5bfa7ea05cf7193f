// Package bot implements the conversational engine: a command parser, a
// natural language intent matcher, and the dispatch logic that turns
// incoming chat messages into replies and realtime events.
package bot

import (
	"regexp"
	"strings"
)

// CommandPrefix marks a message as an explicit command.
const CommandPrefix = "!"

var commandRegex = regexp.MustCompile(`^!(\w+)(?:\s+(.*))?$`)

// Intent types detected from free-form text.
const (
	IntentOrder    = "intent_order"
	IntentBrowse   = "intent_browse"
	IntentCheckout = "intent_checkout"
	IntentStatus   = "intent_status"
	IntentGreet    = "intent_greet"
	IntentHelp     = "intent_help"
)

// intentPattern pairs match order with the pattern. The first match wins,
// so more specific purchase phrasing is checked before generic greetings.
type intentPattern struct {
	re     *regexp.Regexp
	intent string
}

var intentPatterns = []intentPattern{
	{regexp.MustCompile(`(?i)i want|i'd like|can i get|order|buy`), IntentOrder},
	{regexp.MustCompile(`(?i)show|list|menu|what's|what do you|products`), IntentBrowse},
	{regexp.MustCompile(`(?i)checkout|pay|payment|confirm|place order`), IntentCheckout},
	{regexp.MustCompile(`(?i)track|status|where is|when|delivery`), IntentStatus},
	{regexp.MustCompile(`(?i)hello|hi|hey|greetings|start`), IntentGreet},
	{regexp.MustCompile(`(?i)help|commands|what can|assistance`), IntentHelp},
}

// Command is a parsed explicit command.
type Command struct {
	Name string
	Args []string
}

// IsCommand reports whether the message uses the command prefix.
func IsCommand(message string) bool {
	return strings.HasPrefix(message, CommandPrefix)
}

// ParseCommand parses an explicit command. The name is lowercased and the
// argument tail is split on whitespace; Args stays nil when there is no
// tail. A bare prefix with no name returns nil.
func ParseCommand(message string) *Command {
	m := commandRegex.FindStringSubmatch(message)
	if m == nil {
		return nil
	}
	cmd := &Command{Name: strings.ToLower(m[1])}
	if args := strings.Fields(m[2]); len(args) > 0 {
		cmd.Args = args
	}
	return cmd
}

// DetectIntent returns the first matching intent for free-form text, or ""
// when nothing matches.
func DetectIntent(message string) string {
	for _, p := range intentPatterns {
		if p.re.MatchString(message) {
			return p.intent
		}
	}
	return ""
}

// IsValidNaturalLanguage reports whether the message is long enough to mean
// something and matches a known intent.
func IsValidNaturalLanguage(message string) bool {
	return len(message) > 2 && DetectIntent(message) != ""
}
