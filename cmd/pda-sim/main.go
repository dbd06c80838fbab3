// pda-sim is a console messenger terminal for trying out a running server.
//
// Commands read from stdin:
//
//	/contacts            list contacts
//	/open <identity>     show a conversation
//	/to <identity> text  send a message
//	/online              toggle online state
//	/eject               remove the id card
//	/insert              put the id card back
//	/quit
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MatusOllah/slogcolor"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/kabili207/pda-messenger/internal/web/components"
	"github.com/kabili207/pda-messenger/pkg/hooks"
	"github.com/kabili207/pda-messenger/pkg/models"
)

type terminal struct {
	client   paho.Client
	root     string
	station  models.StationID
	id       models.TerminalID
	identity models.Contact

	mu sync.Mutex
	// card is the id card currently inserted, nil when ejected
	card *models.Contact
}

func main() {
	broker := flag.String("broker", "tcp://127.0.0.1:1883", "MQTT broker URL")
	root := flag.String("root", hooks.DefaultTopicRoot, "topic root")
	station := flag.String("station", "station-a", "station the terminal is on")
	id := flag.String("terminal", "", "terminal ID (default: random)")
	identity := flag.String("identity", "", "identity on the inserted id card")
	name := flag.String("name", "", "name printed on the id card")
	user := flag.String("username", "", "broker account")
	pass := flag.String("password", "", "broker password")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, &slogcolor.Options{
		Level:       level,
		TimeFormat:  time.TimeOnly,
		SrcFileMode: slogcolor.Nop,
	})))

	if *identity == "" {
		fmt.Fprintln(os.Stderr, "--identity is required")
		os.Exit(2)
	}
	if *id == "" {
		*id = "pda-" + uuid.NewString()[:8]
	}
	if *user == "" {
		*user = *id
	}

	t := &terminal{
		root:     *root,
		station:  models.StationID(*station),
		id:       models.TerminalID(*id),
		identity: models.Contact{Identity: models.Identity(*identity), DisplayName: *name},
	}
	t.card = &t.identity

	opts := paho.NewClientOptions().
		AddBroker(*broker).
		SetClientID(*id).
		SetUsername(*user).
		SetPassword(*pass).
		SetAutoReconnect(true).
		SetOnConnectHandler(t.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("connection lost", "error", err)
		})
	t.client = paho.NewClient(opts)

	if token := t.client.Connect(); token.Wait() && token.Error() != nil {
		slog.Error("unable to connect", "broker", *broker, "error", token.Error())
		os.Exit(1)
	}
	defer t.client.Disconnect(250)

	t.repl()
}

func (t *terminal) topic(action string) string {
	return hooks.TerminalTopic(t.root, t.station, t.id, action)
}

func (t *terminal) onConnect(c paho.Client) {
	slog.Info("connected", "terminal", t.id, "station", t.station)
	c.Subscribe(t.topic(hooks.ActionState), 1, t.onState)
	c.Subscribe(hooks.PresenceTopic(t.root, t.station), 0, t.onPresence)

	// the broker may have restarted, so announce the program and card again
	t.publish(hooks.ActionInstall, nil)
	t.mu.Lock()
	card := t.card
	t.mu.Unlock()
	t.insertCard(card)
}

func (t *terminal) publish(action string, payload []byte) {
	token := t.client.Publish(t.topic(action), 1, false, payload)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		slog.Error("publish failed", "action", action, "error", token.Error())
	}
}

func (t *terminal) request(req models.Request) {
	payload, err := hooks.EncodeRequest(req)
	if err != nil {
		slog.Error("unable to encode request", "error", err)
		return
	}
	t.publish(hooks.ActionRequest, payload)
}

func (t *terminal) insertCard(c *models.Contact) {
	t.mu.Lock()
	t.card = c
	t.mu.Unlock()
	payload, err := hooks.EncodeIdentity(c)
	if err != nil {
		slog.Error("unable to encode identity", "error", err)
		return
	}
	t.publish(hooks.ActionIdentity, payload)
}

func (t *terminal) onState(_ paho.Client, m paho.Message) {
	state, err := hooks.DecodeState(m.Payload())
	if err != nil {
		slog.Warn("unreadable state", "error", err)
		return
	}
	switch state.Type {
	case models.UpdateContacts:
		fmt.Printf("-- contacts (online: %v)\n", state.IsOnline)
		for _, c := range state.Chats {
			fmt.Printf("   %s (%s)\n", c.GetDisplayName(), c.Identity)
		}
	case models.UpdateHistory, models.UpdateSendResult:
		if state.PopupText != "" {
			fmt.Printf("!! %s\n", state.PopupText)
			return
		}
		if state.CurrentOpenChat != nil {
			fmt.Printf("-- conversation with %s\n", state.CurrentOpenChat.GetDisplayName())
		}
		for _, msg := range state.Messages {
			dir := ">"
			if msg.IsIncoming(t.identity.Identity) {
				dir = "<"
			}
			fmt.Printf("   [%s] %s %s\n", components.FormatRoundTime(msg.SentTime), dir, msg.Text)
		}
	case models.UpdateOnlineState:
		fmt.Printf("-- online: %v\n", state.IsOnline)
	case models.UpdatePopup:
		fmt.Printf("!! %s\n", state.PopupText)
	}
}

func (t *terminal) onPresence(_ paho.Client, m paho.Message) {
	p, err := hooks.DecodePresence(m.Payload())
	if err != nil {
		slog.Warn("unreadable presence", "error", err)
		return
	}
	slog.Debug("presence changed", "identity", p.Identity, "name", p.DisplayName, "online", p.Online)
}

func (t *terminal) repl() {
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		cmd, rest, _ := strings.Cut(strings.TrimSpace(in.Text()), " ")
		switch cmd {
		case "":
		case "/contacts":
			t.request(models.GetContacts{})
		case "/open":
			t.request(models.GetHistory{Partner: models.Identity(rest)})
		case "/to":
			to, text, _ := strings.Cut(rest, " ")
			t.request(models.SendMessage{RequestID: uuid.NewString(), To: models.Identity(to), Text: text})
		case "/online":
			t.request(models.ToggleOnlineState{})
		case "/eject":
			t.insertCard(nil)
		case "/insert":
			t.insertCard(&t.identity)
		case "/quit":
			t.publish(hooks.ActionRemove, nil)
			return
		default:
			fmt.Println("unknown command", cmd)
		}
	}
}
