package app

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dkeye/voxroom/internal/domain"
)

// ResponsePolicy maps an incoming chat line to the agent's reply.
// Implementations must be total and safe for concurrent use.
type ResponsePolicy interface {
	Reply(text string, sender domain.Identity) string
}

const (
	EmptyReply     = "It seems like you sent an empty message. How can I help you?"
	HelpReply      = "I am a simple AI assistant running as a room participant. I answer your messages in real time over WebRTC data channels. This setup shows ICE over TCP connectivity, no UDP ports needed!"
	HowAreYouReply = "I'm doing great, thanks for asking! I'm running as a server-side participant connected via TCP."
	AbilitiesReply = "I can chat with you in real time through the room's data channel. This setup uses ICE over TCP, so it keeps working behind corporate VPNs that block UDP traffic."
	TransportReply = "Great question! This setup uses ICE over TCP (port 7881) instead of the default UDP transport, so it works even in restrictive networks like corporate VPNs that block UDP. The media server listens on tcp_port 7881 and clients use iceTransportPolicy: relay."
)

var greeting = regexp.MustCompile(`^(hi|hello|hey|greetings|howdy)`)

// KeywordPolicy checks triggers in a fixed order; the first match wins.
type KeywordPolicy struct{}

func (KeywordPolicy) Reply(text string, sender domain.Identity) string {
	lower := strings.TrimSpace(strings.ToLower(text))

	switch {
	case lower == "":
		return EmptyReply
	case greeting.MatchString(lower):
		return fmt.Sprintf("Hello %s! How can I help you today?", sender)
	case strings.Contains(lower, "help"):
		return HelpReply
	case strings.Contains(lower, "how are you"):
		return HowAreYouReply
	case strings.Contains(lower, "what can you do"):
		return AbilitiesReply
	case strings.Contains(lower, "tcp"), strings.Contains(lower, "udp"), strings.Contains(lower, "ice"):
		return TransportReply
	case strings.Contains(lower, "bye"), strings.Contains(lower, "goodbye"):
		return fmt.Sprintf("Goodbye %s! It was nice chatting with you.", sender)
	}
	return fmt.Sprintf(`You said: "%s". I'm a demo chatbot talking to you over WebRTC on TCP. Try saying "help" to learn more!`, text)
}
